package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-intake/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var finalizerTracer = otel.Tracer("intake.internal.booking")

const (
	emailWarning  = " However, we couldn't send a confirmation email. Please check your email address."
	ledgerWarning = " However, we couldn't save your booking record. Please contact support with your appointment ID."
)

// Outcome is the result of finalizing a booking.
type Outcome struct {
	Record    AppointmentRecord
	Message   string
	Persisted bool
	Emailed   bool
}

// Options configures a Finalizer. Ledger and Notifier are required.
type Options struct {
	Ledger   Ledger
	Notifier Notifier
	Events   EventPublisher
	Metrics  Observer
	Logger   *logging.Logger
	Location *time.Location
	Now      func() time.Time
	NewID    func() string
}

// Finalizer turns a completed session into a persisted appointment.
type Finalizer struct {
	ledger   Ledger
	notifier Notifier
	events   EventPublisher
	metrics  Observer
	logger   *logging.Logger
	loc      *time.Location
	now      func() time.Time
	newID    func() string
}

// NewFinalizer constructs a finalizer.
func NewFinalizer(opts Options) *Finalizer {
	if opts.Ledger == nil {
		panic("booking: ledger required")
	}
	if opts.Notifier == nil {
		panic("booking: notifier required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewAppointmentID
	}
	return &Finalizer{
		ledger:   opts.Ledger,
		notifier: opts.Notifier,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		loc:      opts.Location,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// Finalize builds the record, appends it to the ledger, sends the
// confirmation and publishes the booking event. Failures after the record is
// built only degrade the returned message.
func (f *Finalizer) Finalize(ctx context.Context, req Request) Outcome {
	ctx, span := finalizerTracer.Start(ctx, "booking.finalize")
	defer span.End()

	record := newRecord(f.newID(), req, f.now().In(f.loc))
	span.SetAttributes(
		attribute.String("intake.appointment_id", record.ID),
		attribute.String("intake.conversation_id", record.ConversationID),
	)
	logger := f.logger.WithConversation(record.ConversationID)

	out := Outcome{
		Record: record,
		Message: fmt.Sprintf("Appointment booked successfully with Dr. %s on %s at %s! Your appointment ID is %s.",
			record.DoctorName, record.Date, record.TimeSlot, record.ID),
	}

	if err := f.ledger.Append(ctx, record); err != nil {
		span.RecordError(err)
		logger.Error("failed to persist appointment", "error", err, "appointment_id", record.ID)
		out.Message += ledgerWarning
	} else {
		out.Persisted = true
	}

	out.Emailed = f.sendConfirmation(ctx, record, logger)
	if !out.Emailed {
		logger.Warn("appointment confirmation email not sent", "appointment_id", record.ID, "email", logging.MaskEmail(record.Email))
		out.Message += emailWarning
	}

	if out.Persisted && f.events != nil {
		f.publish(ctx, record, logger)
	}

	if f.metrics != nil {
		f.metrics.ObserveBooking(out.Persisted, out.Emailed)
	}
	logger.Info("appointment finalized",
		"appointment_id", record.ID,
		"doctor_id", record.DoctorID,
		"persisted", out.Persisted,
		"emailed", out.Emailed,
	)
	return out
}

// Side outputs run after the record may already be persisted, so a panic in
// them must not unwind the turn and let the user book a second time.

func (f *Finalizer) sendConfirmation(ctx context.Context, record AppointmentRecord, logger *logging.Logger) (sent bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("notifier panicked", "appointment_id", record.ID, "panic", fmt.Sprint(rec))
			sent = false
		}
	}()
	return f.notifier.Send(ctx, record)
}

func (f *Finalizer) publish(ctx context.Context, record AppointmentRecord, logger *logging.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("event publisher panicked", "appointment_id", record.ID, "panic", fmt.Sprint(rec))
		}
	}()
	if err := f.events.PublishAppointmentBooked(ctx, record); err != nil {
		logger.Error("failed to publish appointment booked event", "error", err, "appointment_id", record.ID)
	}
}
