package events

import "github.com/wolfman30/clinic-intake/internal/booking"

// AppointmentBookedV1 announces a persisted appointment.
type AppointmentBookedV1 struct {
	AppointmentID  string `json:"appointment_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	PatientName    string `json:"patient_name"`
	Email          string `json:"email"`
	Department     string `json:"department"`
	DoctorID       string `json:"doctor_id"`
	DoctorName     string `json:"doctor_name"`
	Branch         string `json:"branch"`
	SelectedDate   string `json:"selected_date"`
	TimeSlot       string `json:"time_slot"`
	BookedAt       string `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string { return "intake.appointment.booked.v1" }

// NewAppointmentBooked builds the event for a finalized record.
func NewAppointmentBooked(r booking.AppointmentRecord) AppointmentBookedV1 {
	return AppointmentBookedV1{
		AppointmentID:  r.ID,
		ConversationID: r.ConversationID,
		PatientName:    r.PatientName,
		Email:          r.Email,
		Department:     r.Department,
		DoctorID:       r.DoctorID,
		DoctorName:     r.DoctorName,
		Branch:         r.Branch,
		SelectedDate:   r.Date,
		TimeSlot:       r.TimeSlot,
		BookedAt:       r.Timestamp(),
	}
}
