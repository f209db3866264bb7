package providers

import (
	"context"
	"fmt"

	"oncall-service/internal/config"
	"oncall-service/internal/models"
	"oncall-service/internal/notifier"
	"oncall-service/pkg/sms"
)

type smsConfig struct {
	PhoneNumber string `json:"phone_number"`
}

// SMS delivers notifications via Twilio.
type SMS struct {
	cfg config.Config
}

func NewSMS(cfg config.Config) *SMS {
	return &SMS{cfg: cfg}
}

func (s *SMS) Type() string { return "sms" }

func (s *SMS) Send(_ context.Context, msg notifier.Message, cp models.ContactPoint) error {
	var sCfg smsConfig
	if err := decodeConfiguration(cp, &sCfg); err != nil {
		return err
	}
	if sCfg.PhoneNumber == "" {
		return fmt.Errorf("phone_number not set in configuration for contact point %s", cp.ID)
	}
	if s.cfg.SMS.AccountSID == "" || s.cfg.SMS.AuthToken == "" || s.cfg.SMS.FromNumber == "" {
		return fmt.Errorf("missing SMS configuration: AccountSID, AuthToken, or FromNumber is empty")
	}

	body := fmt.Sprintf("%s\n%s", msg.Subject, msg.Body)
	return sms.Send(s.cfg.SMS.AccountSID, s.cfg.SMS.AuthToken, s.cfg.SMS.FromNumber, sCfg.PhoneNumber, body)
}
