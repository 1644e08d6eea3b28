// Package ledger holds the appointment ledgers: a CSV blob in S3, a Postgres
// table, a DynamoDB table, an in-memory list, and a fan-out over several.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wolfman30/clinic-intake/internal/booking"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// Memory keeps records in process. It backs local development and tests.
type Memory struct {
	mu      sync.Mutex
	records []booking.AppointmentRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, record booking.AppointmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

// Records returns a copy of everything appended so far.
func (m *Memory) Records() []booking.AppointmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]booking.AppointmentRecord(nil), m.records...)
}

type named struct {
	name   string
	ledger booking.Ledger
}

// Multi appends every record to each of its ledgers in order. The append
// succeeds when at least one ledger accepted the record; individual failures
// are logged.
type Multi struct {
	ledgers []named
	logger  *logging.Logger
}

func NewMulti(logger *logging.Logger) *Multi {
	if logger == nil {
		logger = logging.Default()
	}
	return &Multi{logger: logger}
}

// Add registers a ledger under name. Nil ledgers are ignored.
func (m *Multi) Add(name string, l booking.Ledger) *Multi {
	if l != nil {
		m.ledgers = append(m.ledgers, named{name: name, ledger: l})
	}
	return m
}

// Len returns the number of registered ledgers.
func (m *Multi) Len() int {
	return len(m.ledgers)
}

func (m *Multi) Append(ctx context.Context, record booking.AppointmentRecord) error {
	if len(m.ledgers) == 0 {
		return errors.New("ledger: no ledgers configured")
	}
	var errs []error
	for _, l := range m.ledgers {
		if err := l.ledger.Append(ctx, record); err != nil {
			m.logger.Error("ledger append failed", "ledger", l.name, "appointment_id", record.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
		}
	}
	if len(errs) == len(m.ledgers) {
		return fmt.Errorf("ledger: all ledgers failed: %w", errors.Join(errs...))
	}
	return nil
}

var (
	_ booking.Ledger = (*Memory)(nil)
	_ booking.Ledger = (*Multi)(nil)
)
