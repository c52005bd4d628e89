package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bulkpost/bulkpost/internal/dispatch"
	"github.com/bulkpost/bulkpost/internal/email"
)

// stubProvider always succeeds and records sent messages.
type stubProvider struct {
	mu   sync.Mutex
	sent []*email.Message
}

func (s *stubProvider) Send(_ context.Context, msg *email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubProvider) Name() string { return "stub" }

func newTestServer(t *testing.T, jwtSecret string) (*Server, *stubProvider) {
	t.Helper()

	stub := &stubProvider{}
	return New(ServerConfig{
		ListenAddr:  ":0",
		MaxBodySize: 1 << 20,
		JWTSecret:   jwtSecret,
		Dispatcher:  dispatch.New(dispatch.Config{Provider: stub}),
	}), stub
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestUploadParsesDataset(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "recipients.csv")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write([]byte("Name,Email\nAna,ana@example.com\n"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/email/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	srv, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Headers               []string         `json:"headers"`
		Rows                  []map[string]any `json:"rows"`
		DetectedAddressColumn *string          `json:"detectedAddressColumn"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(resp.Headers) != 2 || resp.Headers[1] != "Email" {
		t.Errorf("headers: got %v, want [Name Email]", resp.Headers)
	}
	if len(resp.Rows) != 1 {
		t.Errorf("rows: got %d, want 1", len(resp.Rows))
	}
	if resp.DetectedAddressColumn == nil || *resp.DetectedAddressColumn != "Email" {
		t.Errorf("detectedAddressColumn: got %v, want Email", resp.DetectedAddressColumn)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/email/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	srv, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUploadMalformedPayload(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "data.csv")
	part.Write([]byte("Name,Email\n\"broken,row\n"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/email/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	srv, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSendJSON(t *testing.T) {
	t.Parallel()

	payload := `{
		"subject": "Hi {Name}",
		"template": "<p>Hello {Name}</p>",
		"recipients": [
			{"Name": "Ana", "Email": "ana@example.com"},
			{"Name": "NoAddress"}
		]
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/email/send", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	srv, stub := newTestServer(t, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Results []dispatch.Result `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(resp.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Status != dispatch.StatusSent {
		t.Errorf("results[0].Status: got %q, want sent", resp.Results[0].Status)
	}
	if resp.Results[1].Status != dispatch.StatusFailed {
		t.Errorf("results[1].Status: got %q, want failed", resp.Results[1].Status)
	}
	if resp.Results[1].Remarks != "Email address not found" {
		t.Errorf("results[1].Remarks: got %q", resp.Results[1].Remarks)
	}

	if len(stub.sent) != 1 {
		t.Fatalf("sent: got %d, want 1", len(stub.sent))
	}
	if stub.sent[0].Subject != "Hi Ana" {
		t.Errorf("sent subject: got %q, want %q", stub.sent[0].Subject, "Hi Ana")
	}
}

func TestSendMissingFields(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "")

	bodies := []string{
		`{"template": "x", "recipients": [{"Email": "a@b.com"}]}`,
		`{"subject": "x", "recipients": [{"Email": "a@b.com"}]}`,
		`{"subject": "x", "template": "y"}`,
		`not json`,
	}

	for _, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/api/email/send", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status got %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestSendMultipartWithAttachments(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("payload", `{
		"subject": "Hi",
		"template": "<p>Hello</p>",
		"recipients": [{"Email": "ana@example.com"}]
	}`)
	part, _ := writer.CreateFormFile("attachments", "notes.txt")
	part.Write([]byte("attached text"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/email/send", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	srv, stub := newTestServer(t, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	if len(stub.sent) != 1 {
		t.Fatalf("sent: got %d, want 1", len(stub.sent))
	}
	atts := stub.sent[0].Attachments
	if len(atts) != 1 || atts[0].Filename != "notes.txt" {
		t.Fatalf("attachments: got %+v, want notes.txt", atts)
	}
	if string(atts[0].Content) != "attached text" {
		t.Errorf("attachment content: got %q, want %q", string(atts[0].Content), "attached text")
	}
}

func TestCORSPreflights(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/email/send", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin: got %q, want *", got)
	}
}
