package email

import (
	"context"
	"sync"
)

// Attachment is a file carried with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	TextBody    string
	Attachments []Attachment
}

// Provider delivers messages to recipients.
type Provider interface {
	Send(ctx context.Context, msg Message) error
	// Check reports whether the provider is configured well enough to send.
	Check(ctx context.Context) error
}

// NoOpProvider accepts every message and records nothing.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(context.Context, Message) error { return nil }

func (p *NoOpProvider) Check(context.Context) error { return nil }

// Outbox records messages in memory. It is used in tests and dry runs.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	SendErr  error
	CheckErr error
}

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.SendErr != nil {
		return o.SendErr
	}
	o.messages = append(o.messages, msg)
	return nil
}

func (o *Outbox) Check(context.Context) error { return o.CheckErr }

func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}
