package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogEmailSender is the email delivery capability. Until Enabled is true it
// only logs the message, which keeps local and staging environments from
// mailing real customers. The vendor API call slots into Send when the
// integration lands.
type LogEmailSender struct {
	// Enabled gates real delivery. When false, Send logs and succeeds.
	Enabled bool
}

// Send delivers (or stubs) an email message.
func (s *LogEmailSender) Send(ctx context.Context, msg Message) error {
	if !s.Enabled {
		log.Info().
			Str("to", msg.To).
			Str("subject", msg.Subject).
			Msg("email stub: delivery disabled")
		return nil
	}

	// TODO(delivery): call the transactional email vendor here once
	// credentials are provisioned.
	log.Info().Str("to", msg.To).Msg("email sent")
	return nil
}

// LogSMSSender is the SMS/WhatsApp delivery capability, stubbed the same way
// as LogEmailSender.
type LogSMSSender struct {
	Enabled bool
}

// Send delivers (or stubs) an SMS message.
func (s *LogSMSSender) Send(ctx context.Context, msg Message) error {
	if !s.Enabled {
		log.Info().
			Str("to", msg.To).
			Msg("sms stub: delivery disabled")
		return nil
	}

	// TODO(delivery): call the SMS vendor here once credentials are
	// provisioned.
	log.Info().Str("to", msg.To).Msg("sms sent")
	return nil
}
