// Package delivery routes alert messages to the transport of their channel.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/sitescan/internal/opportunity"
)

var (
	// ErrNotConfigured is returned when the channel has no configured transport.
	ErrNotConfigured = errors.New("delivery channel not configured")
	// ErrUnsupportedChannel is returned for channels the router does not know.
	ErrUnsupportedChannel = errors.New("unsupported delivery channel")
)

// Message is one rendered alert addressed to one recipient.
type Message struct {
	Channel   opportunity.Channel
	Recipient string
	Subject   string
	Body      string
	// HTML marks Body as an HTML document.
	HTML bool
}

// Sender delivers messages over one transport. A nil error means the
// transport accepted the message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Router dispatches by channel. A nil sender leaves its channel unconfigured.
type Router struct {
	Email Sender
	SMS   Sender
}

// Deliver sends msg through the sender of its channel.
func (r Router) Deliver(ctx context.Context, msg Message) error {
	var s Sender
	switch msg.Channel {
	case opportunity.ChannelEmail:
		s = r.Email
	case opportunity.ChannelSMS:
		s = r.SMS
	default:
		return fmt.Errorf("deliver %q: %w", msg.Channel, ErrUnsupportedChannel)
	}
	if s == nil {
		return fmt.Errorf("deliver %s: %w", msg.Channel, ErrNotConfigured)
	}
	if err := s.Send(ctx, msg); err != nil {
		return fmt.Errorf("deliver %s: %w", msg.Channel, err)
	}
	return nil
}
