package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-intake/internal/booking"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// Provider names accepted by NewEmailSender.
const (
	ProviderAuto     = "auto"
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
	ProviderStub     = "stub"
)

// ProviderConfig selects and configures the email transport.
type ProviderConfig struct {
	Provider       string
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// NewEmailSender picks a transport. "auto" prefers SendGrid when an API key is
// set, then SES when a client and from address are available, and falls back
// to the stub.
func NewEmailSender(cfg ProviderConfig, ses SESAPI, logger *logging.Logger) (EmailSender, error) {
	if logger == nil {
		logger = logging.Default()
	}
	sendgridSender := func() EmailSender {
		if s := NewSendGridSender(SendGridConfig{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger); s != nil {
			return s
		}
		return nil
	}
	sesSender := func() EmailSender {
		if cfg.FromEmail == "" {
			return nil
		}
		if s := NewSESSender(ses, SESConfig{FromEmail: cfg.FromEmail, FromName: cfg.FromName}, logger); s != nil {
			return s
		}
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderAuto:
		if s := sendgridSender(); s != nil {
			return s, nil
		}
		if s := sesSender(); s != nil {
			return s, nil
		}
		logger.Warn("no email provider configured, confirmations will only be logged")
		return NewStubEmailSender(logger), nil
	case ProviderSendGrid:
		if s := sendgridSender(); s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("notify: sendgrid selected but SENDGRID_API_KEY is empty")
	case ProviderSES:
		if s := sesSender(); s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("notify: ses selected but SES client or from address is missing")
	case ProviderStub:
		return NewStubEmailSender(logger), nil
	default:
		return nil, fmt.Errorf("notify: unknown email provider %q", cfg.Provider)
	}
}

// AppointmentNotifier sends the patient's booking confirmation.
type AppointmentNotifier struct {
	sender EmailSender
	logger *logging.Logger
}

func NewAppointmentNotifier(sender EmailSender, logger *logging.Logger) *AppointmentNotifier {
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentNotifier{sender: sender, logger: logger}
}

// Send emails the confirmation and reports whether it went out.
func (n *AppointmentNotifier) Send(ctx context.Context, record booking.AppointmentRecord) bool {
	if strings.TrimSpace(record.Email) == "" {
		n.logger.Warn("appointment has no email address", "appointment_id", record.ID)
		return false
	}
	if err := n.sender.Send(ctx, ConfirmationEmail(record)); err != nil {
		n.logger.Error("confirmation email failed", "appointment_id", record.ID, "to", logging.MaskEmail(record.Email), "error", err)
		return false
	}
	n.logger.Debug("confirmation email sent", "appointment_id", record.ID, "to", logging.MaskEmail(record.Email))
	return true
}

// ConfirmationEmail renders the fixed confirmation template for record.
func ConfirmationEmail(r booking.AppointmentRecord) EmailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n", r.PatientName)
	b.WriteString("Your appointment has been successfully booked. Below are the details:\n")
	fmt.Fprintf(&b, "Appointment ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Doctor: Dr. %s\n", r.DoctorName)
	fmt.Fprintf(&b, "Department: %s\n", r.Department)
	fmt.Fprintf(&b, "Branch: %s\n", r.Branch)
	fmt.Fprintf(&b, "Date: %s\n", r.Date)
	fmt.Fprintf(&b, "Time Slot: %s\n", r.TimeSlot)
	fmt.Fprintf(&b, "Booking Timestamp: %s\n", r.Timestamp())
	b.WriteString("Best regards,\nHealthcare Team\n")

	return EmailMessage{
		To:        r.Email,
		ToName:    r.PatientName,
		Subject:   "Appointment Confirmation - ID: " + r.ID,
		Body:      b.String(),
		Reference: r.ID,
	}
}

var _ booking.Notifier = (*AppointmentNotifier)(nil)
