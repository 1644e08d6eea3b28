package intake

import (
	"github.com/wolfman30/clinic-intake/internal/inference"
	"github.com/wolfman30/clinic-intake/internal/ranking"
)

// Reply is the response to one turn.
type Reply struct {
	ConversationID    string             `json:"conversation_id,omitempty"`
	Message           string             `json:"message"`
	State             State              `json:"state"`
	Departments       []string           `json:"departments,omitempty"`
	Branches          []inference.Branch `json:"branches,omitempty"`
	Doctors           []ranking.Doctor   `json:"doctors,omitempty"`
	Genders           []string           `json:"genders,omitempty"`
	ConversationEnded bool               `json:"conversation_ended"`
	SelectedDate      string             `json:"selected_date,omitempty"`
}

// StartResponse is returned when a conversation is created.
type StartResponse struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	State          State  `json:"state"`
}

func say(state State, message string) Reply {
	return Reply{State: state, Message: message}
}
