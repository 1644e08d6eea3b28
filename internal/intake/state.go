package intake

// State is a dialogue state. The zero value is not a valid state.
type State string

const (
	StateAskName            State = "ask_name"
	StateAskAge             State = "ask_age"
	StateAskEmail           State = "ask_email"
	StateAskGender          State = "ask_gender"
	StateAskPincode         State = "ask_pincode"
	StateAskSymptoms        State = "ask_symptoms"
	StateAskFollowup        State = "ask_followup"
	StateSelectDepartment   State = "select_department"
	StateConfirmAppointment State = "confirm_appointment"
	StateAskAppointmentDate State = "ask_appointment_date"
	StateConfirmBranches    State = "confirm_branches"
	StateSelectBranches     State = "select_branches"
	StateSelectDoctor       State = "select_doctor"
	StateEnd                State = "end"
)

// States lists every state in dialogue order.
var States = []State{
	StateAskName,
	StateAskAge,
	StateAskEmail,
	StateAskGender,
	StateAskPincode,
	StateAskSymptoms,
	StateAskFollowup,
	StateSelectDepartment,
	StateConfirmAppointment,
	StateAskAppointmentDate,
	StateConfirmBranches,
	StateSelectBranches,
	StateSelectDoctor,
	StateEnd,
}

// Valid reports whether s is one of States.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the conversation is over.
func (s State) Terminal() bool {
	return s == StateEnd
}
