// Package booking finalizes an appointment once a doctor is chosen: it builds
// the appointment record, hands it to the ledger, notifies the patient, and
// announces the booking to downstream consumers.
package booking

import "context"

// Ledger is the append-only store for finalized appointments. Implementations
// write the header once, on an empty store, and must not lose earlier rows.
type Ledger interface {
	Append(ctx context.Context, record AppointmentRecord) error
}

// Notifier sends the patient confirmation. It reports success rather than
// returning an error; a failed send never invalidates a booking.
type Notifier interface {
	Send(ctx context.Context, record AppointmentRecord) bool
}

// EventPublisher announces a persisted booking. Publishing is best-effort.
type EventPublisher interface {
	PublishAppointmentBooked(ctx context.Context, record AppointmentRecord) error
}

// Observer receives one observation per finalized booking.
type Observer interface {
	ObserveBooking(persisted, emailed bool)
}
