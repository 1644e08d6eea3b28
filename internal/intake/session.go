package intake

import (
	"time"

	"github.com/wolfman30/clinic-intake/internal/inference"
	"github.com/wolfman30/clinic-intake/internal/ranking"
)

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// ChatEntry is one line of the chat history.
type ChatEntry struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// PersonalDetails is what the patient has told us so far.
type PersonalDetails struct {
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Email   string `json:"email"`
	Gender  string `json:"gender"`
	PinCode string `json:"pin_code"`
	Symptom string `json:"symptom"`
	Summary string `json:"summary"`
}

// Session is the state of one conversation between turns.
type Session struct {
	ID      string
	State   State
	Details PersonalDetails

	FollowupQuestions []string
	// FollowupAnswers keeps asking order; re-answering a question replaces
	// its answer in place.
	FollowupAnswers []inference.FollowupAnswer
	QuestionIndex   int

	Departments        []string
	SelectedDepartment string

	// CandidateDate passed the local window check; SelectedDate is only set
	// once the inference service has validated it.
	CandidateDate string
	SelectedDate  string

	Branches         []inference.Branch
	SelectedBranches []inference.Branch

	AvailableDoctors []ranking.Doctor
	SelectedDoctor   *ranking.Doctor
	AppointmentID    string

	ChatHistory []ChatEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateAskName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Session) record(sender, message string) {
	s.ChatHistory = append(s.ChatHistory, ChatEntry{Sender: sender, Message: message})
}

func (s *Session) setAnswer(question, answer string) {
	for i := range s.FollowupAnswers {
		if s.FollowupAnswers[i].Question == question {
			s.FollowupAnswers[i].Answer = answer
			return
		}
	}
	s.FollowupAnswers = append(s.FollowupAnswers, inference.FollowupAnswer{Question: question, Answer: answer})
}

func (s *Session) patient() inference.Patient {
	return inference.Patient{
		PinCode: s.Details.PinCode,
		Symptom: s.Details.Symptom,
		Age:     s.Details.Age,
		Gender:  s.Details.Gender,
		Email:   s.Details.Email,
		Summary: s.Details.Summary,
	}
}

// activeDepartments is the department set used for branch lookup.
func (s *Session) activeDepartments() []string {
	if s.SelectedDepartment != "" {
		return []string{s.SelectedDepartment}
	}
	return append([]string(nil), s.Departments...)
}

// Clone returns a deep copy.
func (s *Session) Clone() Session {
	out := *s
	out.Details = s.Details
	out.FollowupQuestions = append([]string(nil), s.FollowupQuestions...)
	out.FollowupAnswers = append([]inference.FollowupAnswer(nil), s.FollowupAnswers...)
	out.Departments = append([]string(nil), s.Departments...)
	out.Branches = append([]inference.Branch(nil), s.Branches...)
	out.SelectedBranches = append([]inference.Branch(nil), s.SelectedBranches...)
	out.AvailableDoctors = append([]ranking.Doctor(nil), s.AvailableDoctors...)
	if s.SelectedDoctor != nil {
		doc := *s.SelectedDoctor
		out.SelectedDoctor = &doc
	}
	out.ChatHistory = append([]ChatEntry(nil), s.ChatHistory...)
	return out
}
