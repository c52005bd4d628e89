// Package email defines the outbound message model shared by all delivery providers.
package email

// Message represents one personalized outbound email, ready for delivery.
type Message struct {
	To          string
	Subject     string
	HtmlBody    string
	Attachments []Attachment
}

// Attachment represents a file attached to an outbound message.
// Attachments are shared read-only across every recipient of a batch.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}
