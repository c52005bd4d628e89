// Package gmail implements a Provider bound to a caller-supplied sender
// identity, delivering via the Gmail API with an OAuth2 access token.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/bulkpost/bulkpost/internal/email"
)

// messageSendAPI is the subset of the Gmail API used to deliver a message.
// It exists so tests can substitute the network call.
type messageSendAPI func(ctx context.Context, raw string) error

// GmailProvider sends emails from a single mailbox using a short-lived
// access token supplied by the caller. Instances live for one dispatch
// batch only; the token is never cached or persisted beyond it.
type GmailProvider struct {
	sender string
	send   messageSendAPI
}

// New creates a GmailProvider for the given sender address and OAuth2
// access token. The token is used as-is via a static token source; no
// refresh is attempted since the credential is scoped to a single batch.
func New(ctx context.Context, sender, accessToken string) (*GmailProvider, error) {
	if sender == "" {
		return nil, fmt.Errorf("gmail: sender address is required")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("gmail: access token is required")
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	return &GmailProvider{
		sender: sender,
		send: func(ctx context.Context, raw string) error {
			_, err := svc.Users.Messages.Send("me", &gmailapi.Message{Raw: raw}).Context(ctx).Do()
			return err
		},
	}, nil
}

// NewWithSendFunc creates a GmailProvider with a custom send function,
// used for testing.
func NewWithSendFunc(sender string, send func(ctx context.Context, raw string) error) *GmailProvider {
	return &GmailProvider{sender: sender, send: send}
}

// Send delivers one personalized message through the sender's mailbox.
func (g *GmailProvider) Send(ctx context.Context, msg *email.Message) error {
	raw, err := email.BuildRaw(g.sender, msg)
	if err != nil {
		return fmt.Errorf("gmail: failed to build message: %w", err)
	}

	if err := g.send(ctx, base64.URLEncoding.EncodeToString(raw)); err != nil {
		return fmt.Errorf("gmail: failed to send email: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (g *GmailProvider) Name() string {
	return "gmail"
}
