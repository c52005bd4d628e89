package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/bulkpost/bulkpost/internal/dataset"
	"github.com/bulkpost/bulkpost/internal/dispatch"
	"github.com/bulkpost/bulkpost/internal/email"
)

// multipartMemoryLimit is how much of a multipart body is held in memory
// before spilling to temp files.
const multipartMemoryLimit = 32 << 20

// uploadResponse is the parsed-dataset payload returned to the client.
type uploadResponse struct {
	Headers               []string         `json:"headers"`
	Rows                  []dataset.Record `json:"rows"`
	DetectedAddressColumn *string          `json:"detectedAddressColumn"`
}

// sendPayload is the client-assembled dispatch request body. Attachments
// arrive as multipart files alongside it, not inside the JSON.
type sendPayload struct {
	Subject    string               `json:"subject"`
	Template   string               `json:"template"`
	Recipients []dataset.Record     `json:"recipients"`
	Credential *dispatch.Credential `json:"credential,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart spreadsheet upload and returns the
// normalized dataset with the inferred address column.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	ds, err := dataset.Parse(data)
	if err != nil {
		if errors.Is(err, dataset.ErrMalformedData) {
			respondError(w, http.StatusBadRequest, "Unsupported or corrupted tabular file")
			return
		}
		slog.Error("upload parse failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to parse file")
		return
	}

	resp := uploadResponse{
		Headers: ds.Headers,
		Rows:    ds.Rows,
	}
	if ds.AddressColumn != "" {
		resp.DetectedAddressColumn = &ds.AddressColumn
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleSend accepts a dispatch request (JSON, or multipart with
// attachment files) and returns one result per recipient.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)

	payload, attachments, err := decodeSendRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if payload.Subject == "" || payload.Template == "" || len(payload.Recipients) == 0 {
		respondError(w, http.StatusBadRequest, "Missing required fields: template, subject, or recipients")
		return
	}

	results, err := s.config.Dispatcher.Dispatch(r.Context(), &dispatch.Request{
		Subject:     payload.Subject,
		Template:    payload.Template,
		Recipients:  payload.Recipients,
		Attachments: attachments,
		Credential:  payload.Credential,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// decodeSendRequest extracts the dispatch payload and any attachment
// files from the request body.
func decodeSendRequest(r *http.Request) (*sendPayload, []email.Attachment, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if !strings.HasPrefix(mediaType, "multipart/") {
		var payload sendPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, nil, errors.New("Invalid request body")
		}
		return &payload, nil, nil
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return nil, nil, errors.New("Invalid multipart request")
	}

	var payload sendPayload
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil {
		return nil, nil, errors.New("Missing or invalid payload field")
	}

	var attachments []email.Attachment
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["attachments"] {
			f, err := header.Open()
			if err != nil {
				return nil, nil, errors.New("Failed to read attachment")
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, nil, errors.New("Failed to read attachment")
			}
			attachments = append(attachments, email.Attachment{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Content:     content,
			})
		}
	}

	return &payload, attachments, nil
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
