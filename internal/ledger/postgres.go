package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/clinic-intake/internal/booking"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres appends records to the appointments table created by
// internal/migrations.
type Postgres struct {
	db execer
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return &Postgres{db: pool}
}

func newPostgresWithExec(db execer) *Postgres {
	return &Postgres{db: db}
}

const insertAppointment = `
	INSERT INTO appointments (
		appointment_id, conversation_id, patient_name, age, gender, pincode,
		symptom_summary, department, doctor_id, doctor_name, branch,
		selected_date, time_slot, email, booked_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

func (p *Postgres) Append(ctx context.Context, r booking.AppointmentRecord) error {
	ct, err := p.db.Exec(ctx, insertAppointment,
		r.ID, r.ConversationID, r.PatientName, r.Age, r.Gender, r.PinCode,
		r.SymptomSummary, r.Department, r.DoctorID, r.DoctorName, r.Branch,
		r.Date, r.TimeSlot, r.Email, r.BookedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger: insert appointment: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("ledger: insert appointment: %d rows affected", ct.RowsAffected())
	}
	return nil
}

var _ booking.Ledger = (*Postgres)(nil)
