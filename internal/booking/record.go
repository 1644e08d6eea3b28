package booking

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-intake/internal/ranking"
)

// TimestampLayout is how booking timestamps are rendered in ledgers and email.
const TimestampLayout = "2006-01-02 15:04:05"

const notAvailable = "N/A"

// Columns is the ledger column order.
var Columns = []string{
	"Patient_Name",
	"Age",
	"Gender",
	"Pincode",
	"Symptom_Summary",
	"Department",
	"Doctor_ID",
	"Doctor_Name",
	"Branch",
	"Selected_Date",
	"Available_Time_Slot",
	"Email",
	"Appointment_ID",
	"Booking_Timestamp",
}

// Request is the session state the finalizer needs.
type Request struct {
	ConversationID string
	PatientName    string
	Age            int
	Gender         string
	PinCode        string
	Email          string
	Summary        string
	Department     string
	Date           string
	Doctor         ranking.Doctor
}

// AppointmentRecord is one finalized appointment. It is immutable once built.
type AppointmentRecord struct {
	ID             string
	ConversationID string
	PatientName    string
	Age            int
	Gender         string
	PinCode        string
	SymptomSummary string
	Department     string
	DoctorID       string
	DoctorName     string
	Branch         string
	Date           string
	TimeSlot       string
	Email          string
	BookedAt       time.Time
}

// NewAppointmentID returns "APT-" followed by eight lowercase hex characters.
func NewAppointmentID() string {
	id := uuid.New()
	return "APT-" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

func newRecord(id string, req Request, bookedAt time.Time) AppointmentRecord {
	return AppointmentRecord{
		ID:             id,
		ConversationID: req.ConversationID,
		PatientName:    req.PatientName,
		Age:            req.Age,
		Gender:         req.Gender,
		PinCode:        req.PinCode,
		SymptomSummary: req.Summary,
		Department:     req.Department,
		DoctorID:       orNA(req.Doctor.ID),
		DoctorName:     orNA(req.Doctor.Name),
		Branch:         req.Doctor.Branch,
		Date:           req.Date,
		TimeSlot:       orNA(req.Doctor.TimeSlot),
		Email:          req.Email,
		BookedAt:       bookedAt,
	}
}

// Timestamp renders BookedAt with TimestampLayout.
func (r AppointmentRecord) Timestamp() string {
	return r.BookedAt.Format(TimestampLayout)
}

// Row returns the record's values in Columns order.
func (r AppointmentRecord) Row() []string {
	return []string{
		r.PatientName,
		strconv.Itoa(r.Age),
		r.Gender,
		r.PinCode,
		r.SymptomSummary,
		r.Department,
		r.DoctorID,
		r.DoctorName,
		r.Branch,
		r.Date,
		r.TimeSlot,
		r.Email,
		r.ID,
		r.Timestamp(),
	}
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return notAvailable
	}
	return v
}
