// Package notify implements the notification dispatch layer: a channel-keyed
// lookup table of delivery capabilities, a pure template renderer, and stub
// senders used until real vendor integrations are enabled.
//
// The dispatcher is the single exit point for customer notifications. Routing
// is an exact map lookup with no default branch: a channel without a
// registered capability fails loudly instead of silently falling through to
// the wrong vendor.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/restocklab/go-restock-backend/internal/domain"
)

// ErrUnsupportedChannel is returned when no delivery capability is registered
// for the requested channel.
var ErrUnsupportedChannel = errors.New("unsupported notification channel")

// Message is the rendered payload handed to a delivery capability.
type Message struct {
	To      string
	Subject string // empty for SMS-class channels
	Body    string
}

// Sender is a single delivery capability (email vendor, SMS vendor). A nil
// error means the message was accepted for delivery; any error is a failed
// send with no partial-success states.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TemplateData carries the variables a template may interpolate.
type TemplateData struct {
	ProductName  string
	RecoveryURL  string
	CustomerName string
}

var (
	sentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications accepted by a delivery capability, by channel.",
		},
		[]string{"channel"},
	)
	failedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notification sends rejected by a delivery capability, by channel.",
		},
		[]string{"channel"},
	)
)

func init() {
	prometheus.MustRegister(sentTotal, failedTotal)
}

// Dispatcher routes a rendered template to the capability registered for the
// message's channel.
type Dispatcher struct {
	senders map[domain.Channel]Sender
}

// NewDispatcher builds a dispatcher over the full channel set. Both
// capabilities are required up front so a missing registration is a
// construction-time error, not a latent runtime gap.
func NewDispatcher(email, sms Sender) (*Dispatcher, error) {
	if email == nil || sms == nil {
		return nil, errors.New("notify: both email and sms senders are required")
	}
	return &Dispatcher{
		senders: map[domain.Channel]Sender{
			domain.ChannelEmail:    email,
			domain.ChannelWhatsApp: sms, // WhatsApp delivery rides the SMS capability
		},
	}, nil
}

// Send renders the template and delivers it over the channel's capability.
// Capability failures propagate unchanged; there is no retry at this layer.
func (d *Dispatcher) Send(ctx context.Context, channel domain.Channel, to string, tmpl Template, data TemplateData) error {
	sender, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel)
	}

	rendered, err := Render(tmpl, data)
	if err != nil {
		return err
	}

	msg := Message{To: to, Body: rendered.Body}
	if channel == domain.ChannelEmail {
		msg.Subject = rendered.Subject
	}

	if err := sender.Send(ctx, msg); err != nil {
		failedTotal.WithLabelValues(string(channel)).Inc()
		return err
	}
	sentTotal.WithLabelValues(string(channel)).Inc()
	return nil
}
