// Package providers adapts contact-point configurations to the concrete
// channel senders. Everything channel-specific (addresses, chat ids, phone
// numbers, credentials) lives here, behind the notifier's Sender interface.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"oncall-service/internal/config"
	"oncall-service/internal/models"
	"oncall-service/internal/notifier"
	"oncall-service/pkg/email"
)

type emailConfig struct {
	Address string `json:"address"`
}

// Email delivers notifications over SMTP.
type Email struct {
	cfg config.Config
}

func NewEmail(cfg config.Config) *Email {
	return &Email{cfg: cfg}
}

func (e *Email) Type() string { return "email" }

func (e *Email) Send(_ context.Context, msg notifier.Message, cp models.ContactPoint) error {
	var eCfg emailConfig
	if err := decodeConfiguration(cp, &eCfg); err != nil {
		return err
	}
	if eCfg.Address == "" {
		return fmt.Errorf("address not set in configuration for contact point %s", cp.ID)
	}
	if e.cfg.Email.SMTPServer == "" || e.cfg.Email.SMTPPort == 0 || e.cfg.Email.Username == "" {
		return fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, or Username is empty")
	}

	err := email.Send(e.cfg.Email.SMTPServer, e.cfg.Email.SMTPPort,
		e.cfg.Email.Username, e.cfg.Email.Password,
		eCfg.Address, msg.Subject, msg.Body)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", eCfg.Address, err)
	}
	return nil
}

// decodeConfiguration converts a contact point's JSONB configuration into a
// typed channel config.
func decodeConfiguration(cp models.ContactPoint, out interface{}) error {
	raw, err := json.Marshal(cp.Configuration)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for contact point %s: %w", cp.ID, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid configuration for contact point %s: %w", cp.ID, err)
	}
	return nil
}
