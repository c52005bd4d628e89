// Package dispatch implements the batch dispatch orchestrator: it
// personalizes, resolves, and sends one message per recipient, recording
// a structured outcome for each without ever aborting the batch on a
// single recipient's failure.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/bulkpost/bulkpost/internal/dataset"
	"github.com/bulkpost/bulkpost/internal/email"
	"github.com/bulkpost/bulkpost/internal/provider"
	"github.com/bulkpost/bulkpost/internal/provider/gmail"
	"github.com/bulkpost/bulkpost/internal/render"
)

// Credential is an ephemeral sender identity enabling an alternate
// transport for a single batch. It is never cached or persisted.
type Credential struct {
	Address     string `json:"address"`
	AccessToken string `json:"accessToken"`
}

// Request is one bulk dispatch: a subject and body template, the
// recipients to personalize them for, and attachments shared immutably
// across every recipient. It is consumed synchronously and discarded.
type Request struct {
	Subject     string
	Template    string
	Recipients  []dataset.Record
	Attachments []email.Attachment
	Credential  *Credential
}

// Status is the outcome of one recipient's send.
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Result records the outcome for one recipient, in recipient order.
// Address carries the resolved destination even when sending failed;
// it is "Unknown" only when resolution itself failed.
type Result struct {
	Address string `json:"address"`
	Status  Status `json:"status"`
	Remarks string `json:"remarks,omitempty"`
}

const (
	addressUnknown  = "Unknown"
	remarkSent      = "Email sent successfully"
	remarkNoAddress = "Email address not found"
)

// Config holds the settings for creating a Dispatcher.
type Config struct {
	// Provider is the default delivery backend, used when a request
	// carries no credential. Owned by the host process.
	Provider provider.Provider

	// Concurrency bounds how many recipients are processed at once.
	// Values below 1 mean sequential processing.
	Concurrency int64

	// SendTimeout is the per-recipient send deadline. Zero disables it.
	SendTimeout time.Duration
}

// Dispatcher runs dispatch batches. It holds no mutable state between
// calls and is safe for concurrent use.
type Dispatcher struct {
	defaultProvider provider.Provider
	concurrency     int64
	sendTimeout     time.Duration

	// newCredentialProvider builds the transport for a caller-supplied
	// credential. Overridable in tests.
	newCredentialProvider func(ctx context.Context, cred *Credential) (provider.Provider, error)
}

// New creates a Dispatcher with the given configuration.
func New(cfg Config) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Dispatcher{
		defaultProvider: cfg.Provider,
		concurrency:     concurrency,
		sendTimeout:     cfg.SendTimeout,
		newCredentialProvider: func(ctx context.Context, cred *Credential) (provider.Provider, error) {
			return gmail.New(ctx, cred.Address, cred.AccessToken)
		},
	}
}

// Dispatch processes every recipient in the request and returns exactly
// one Result per recipient, in input order. Individual failures (no
// resolvable address, transport rejection) are captured in the result
// stream; the returned error is reserved for request-level problems such
// as an unusable credential.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) ([]Result, error) {
	prov, err := d.selectProvider(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	slog.Info("dispatching batch",
		"batch_id", batchID,
		"recipients", len(req.Recipients),
		"attachments", len(req.Attachments),
		"provider", prov.Name(),
	)

	results := make([]Result, len(req.Recipients))
	sem := semaphore.NewWeighted(d.concurrency)
	var wg sync.WaitGroup

	for i, rec := range req.Recipients {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context gone; the remaining recipients still get a
			// terminal result so the outcome list stays complete.
			results[i] = Result{Address: addressUnknown, Status: StatusFailed, Remarks: err.Error()}
			continue
		}

		wg.Add(1)
		go func(i int, rec dataset.Record) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = d.sendOne(ctx, prov, req, rec)
		}(i, rec)
	}

	wg.Wait()

	sent := 0
	for _, r := range results {
		if r.Status == StatusSent {
			sent++
		}
	}
	slog.Info("batch complete",
		"batch_id", batchID,
		"sent", sent,
		"failed", len(results)-sent,
	)

	return results, nil
}

// selectProvider returns the transport for this batch: a credential-bound
// one when the request supplies a sender identity, otherwise the default.
func (d *Dispatcher) selectProvider(ctx context.Context, cred *Credential) (provider.Provider, error) {
	if cred == nil {
		return d.defaultProvider, nil
	}
	return d.newCredentialProvider(ctx, cred)
}

// sendOne personalizes and delivers a single recipient's message.
func (d *Dispatcher) sendOne(ctx context.Context, prov provider.Provider, req *Request, rec dataset.Record) Result {
	r := render.New(rec)
	subject := r.Render(req.Subject)
	body := r.Render(req.Template)

	addr, err := dataset.ResolveAddress(rec)
	if err != nil {
		slog.Warn("recipient has no resolvable address")
		return Result{Address: addressUnknown, Status: StatusFailed, Remarks: remarkNoAddress}
	}

	msg := &email.Message{
		To:          addr,
		Subject:     subject,
		HtmlBody:    body,
		Attachments: req.Attachments,
	}

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	if err := prov.Send(sendCtx, msg); err != nil {
		slog.Warn("send failed",
			"to", addr,
			"error", err,
		)
		return Result{Address: addr, Status: StatusFailed, Remarks: err.Error()}
	}

	return Result{Address: addr, Status: StatusSent, Remarks: remarkSent}
}
