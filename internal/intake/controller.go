package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-intake/internal/booking"
	"github.com/wolfman30/clinic-intake/internal/inference"
	"github.com/wolfman30/clinic-intake/internal/ranking"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// Inference is the subset of the inference client the controller drives.
type Inference interface {
	FollowupQuestions(ctx context.Context, p inference.Patient) ([]string, error)
	Summarize(ctx context.Context, p inference.Patient, symptomText string, answers []inference.FollowupAnswer) (string, error)
	MapToDepartments(ctx context.Context, summary string) ([]string, error)
	FindNearestBranches(ctx context.Context, pinCode string, departments []string, returnAll bool) ([]inference.Branch, error)
	ValidateAppointmentDate(ctx context.Context, q inference.DoctorQuery) (bool, error)
	RecommendDoctors(ctx context.Context, q inference.DoctorQuery) (inference.Candidates, error)
	MapSimilarCases(ctx context.Context, groupedText, summary string, branches []inference.Branch) (inference.SimilarCases, error)
	RankDoctors(ctx context.Context, candidates inference.Candidates, cases inference.SimilarCases, date string) (inference.Recommendation, error)
}

// Finalizer books the appointment once a doctor is chosen.
type Finalizer interface {
	Finalize(ctx context.Context, req booking.Request) booking.Outcome
}

// TranscriptSink mirrors chat history outside the registry.
type TranscriptSink interface {
	Append(ctx context.Context, conversationID, sender, message string) error
}

// TurnObserver counts turns by entry and exit state.
type TurnObserver interface {
	ObserveTurn(from, to string)
}

// Options configures a Controller. Inference and Finalizer are required.
type Options struct {
	Inference           Inference
	Parser              ranking.TextParser
	Finalizer           Finalizer
	Transcript          TranscriptSink
	Metrics             TurnObserver
	Logger              *logging.Logger
	EmergencyDepartment string
	EmergencyHotline    string
	BookingWindowDays   int
	Location            *time.Location
	Now                 func() time.Time
}

// Controller runs the intake dialogue. Each turn holds the session lock for
// its whole duration, including inference calls.
type Controller struct {
	registry            *Registry
	inference           Inference
	parser              ranking.TextParser
	finalizer           Finalizer
	transcript          TranscriptSink
	metrics             TurnObserver
	logger              *logging.Logger
	emergencyDepartment string
	hotline             string
	windowDays          int
	loc                 *time.Location
	now                 func() time.Time
}

func NewController(registry *Registry, opts Options) *Controller {
	if registry == nil {
		panic("intake: registry required")
	}
	if opts.Inference == nil {
		panic("intake: inference client required")
	}
	if opts.Finalizer == nil {
		panic("intake: finalizer required")
	}
	if opts.Parser == nil {
		opts.Parser = ranking.BlockParser{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if strings.TrimSpace(opts.EmergencyDepartment) == "" {
		opts.EmergencyDepartment = "Critical Care / Emergency Medicine"
	}
	if opts.EmergencyHotline == "" {
		opts.EmergencyHotline = "108"
	}
	if opts.BookingWindowDays <= 0 {
		opts.BookingWindowDays = 30
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		registry:            registry,
		inference:           opts.Inference,
		parser:              opts.Parser,
		finalizer:           opts.Finalizer,
		transcript:          opts.Transcript,
		metrics:             opts.Metrics,
		logger:              opts.Logger,
		emergencyDepartment: strings.TrimSpace(opts.EmergencyDepartment),
		hotline:             opts.EmergencyHotline,
		windowDays:          opts.BookingWindowDays,
		loc:                 opts.Location,
		now:                 opts.Now,
	}
}

// Start creates a conversation and returns the opening prompt.
func (c *Controller) Start(ctx context.Context) StartResponse {
	session := c.registry.Create(func(s *Session) {
		s.record(SenderBot, msgAskName)
		c.mirror(ctx, s.ID, s.ChatHistory)
	})
	c.logger.WithConversation(session.ID).Info("conversation started")
	return StartResponse{ConversationID: session.ID, Message: msgAskName, State: session.State}
}

// Chat handles one turn. The only error is ErrSessionNotFound; every other
// failure becomes part of the reply.
func (c *Controller) Chat(ctx context.Context, conversationID, input string) (Reply, error) {
	var reply Reply
	err := c.registry.Update(ctx, conversationID, func(ctx context.Context, s *Session) error {
		reply = c.turn(ctx, s, strings.TrimSpace(input))
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	reply.ConversationID = conversationID
	return reply, nil
}

func (c *Controller) turn(ctx context.Context, s *Session, input string) (reply Reply) {
	from := s.State
	before := s.Clone()
	historyLen := len(s.ChatHistory)
	logger := c.logger.WithConversation(s.ID)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("turn panicked", "state", from, "panic", fmt.Sprint(rec))
			*s = before
			reply = say(from, msgTurnFailed)
			reply.ConversationEnded = from.Terminal()
		}
	}()

	row, ok := transitions[s.State]
	if !ok {
		logger.Error("session in unknown state", "state", s.State)
		s.State = StateAskName
		row = transitions[StateAskName]
	}

	if input != "" {
		s.record(SenderUser, input)
	}
	if input == "" {
		reply = row.reprompt(c, s)
	} else {
		reply = row.handle(c, ctx, s, input)
	}
	if !reply.State.Valid() {
		logger.Error("handler produced invalid state", "state", reply.State, "from", from)
		reply.State = from
	}
	reply.ConversationEnded = reply.State.Terminal()

	s.State = reply.State
	s.record(SenderBot, reply.Message)
	c.mirror(ctx, s.ID, s.ChatHistory[historyLen:])

	if c.metrics != nil {
		c.metrics.ObserveTurn(string(from), string(reply.State))
	}
	logger.Debug("turn handled", "from", from, "to", reply.State)
	return reply
}

func (c *Controller) mirror(ctx context.Context, conversationID string, entries []ChatEntry) {
	if c.transcript == nil {
		return
	}
	for _, e := range entries {
		if err := c.transcript.Append(ctx, conversationID, e.Sender, e.Message); err != nil {
			c.logger.WithConversation(conversationID).Warn("transcript mirror failed", "error", err)
			return
		}
	}
}

func (c *Controller) today() time.Time {
	return c.now().In(c.loc)
}

func (c *Controller) handleName(_ context.Context, s *Session, input string) Reply {
	s.Details.Name = input
	return say(StateAskAge, msgAskAge)
}

func (c *Controller) handleAge(_ context.Context, s *Session, input string) Reply {
	age, ok := parseAge(input)
	if !ok {
		return say(StateAskAge, msgInvalidAge)
	}
	s.Details.Age = age
	return say(StateAskEmail, msgAskEmail)
}

func (c *Controller) handleEmail(_ context.Context, s *Session, input string) Reply {
	if !validEmail(input) {
		return say(StateAskEmail, msgInvalidEmail)
	}
	s.Details.Email = input
	reply := say(StateAskGender, msgAskGender)
	reply.Genders = append([]string(nil), Genders...)
	return reply
}

func (c *Controller) handleGender(_ context.Context, s *Session, input string) Reply {
	if !validGender(input) {
		return genderReprompt()
	}
	s.Details.Gender = input
	return say(StateAskPincode, msgAskPincode)
}

func (c *Controller) handlePincode(ctx context.Context, s *Session, input string) Reply {
	if !validPinCode(input) {
		return say(StateAskPincode, msgInvalidPincode)
	}
	s.Details.PinCode = input
	// A new pincode after an empty branch lookup resumes the lookup.
	if s.CandidateDate != "" && len(s.activeDepartments()) > 0 {
		return c.execute(ctx, branchFinding, &run{session: s})
	}
	return say(StateAskSymptoms, msgAskSymptoms)
}

func (c *Controller) handleSymptoms(ctx context.Context, s *Session, input string) Reply {
	s.Details.Symptom = input
	s.FollowupQuestions = nil
	s.FollowupAnswers = nil
	s.QuestionIndex = 0

	raw, err := c.inference.FollowupQuestions(ctx, s.patient())
	if err != nil {
		c.logger.WithConversation(s.ID).Warn("follow-up questions unavailable", "error", err)
		return say(StateAskSymptoms, msgSymptomsFailed)
	}
	questions := normalizeQuestions(raw)
	if len(questions) == 0 {
		return c.execute(ctx, summarization, &run{session: s, symptomText: input})
	}
	s.FollowupQuestions = questions
	return say(StateAskFollowup, questions[0])
}

func (c *Controller) handleFollowup(ctx context.Context, s *Session, input string) Reply {
	if s.QuestionIndex >= len(s.FollowupQuestions) {
		return c.execute(ctx, summarization, &run{session: s, symptomText: s.Details.Symptom})
	}
	s.setAnswer(s.FollowupQuestions[s.QuestionIndex], input)
	s.QuestionIndex++
	if s.QuestionIndex < len(s.FollowupQuestions) {
		return say(StateAskFollowup, s.FollowupQuestions[s.QuestionIndex])
	}
	return c.execute(ctx, summarization, &run{
		session:     s,
		symptomText: combinedSymptom(s.Details.Symptom, s.FollowupAnswers),
	})
}

func (c *Controller) handleSelectDepartment(ctx context.Context, s *Session, input string) Reply {
	if !containsExact(s.Departments, input) {
		return departmentReprompt(s)
	}
	if c.isEmergency(input) {
		branches, err := c.nearestForEmergency(ctx, s, s.Departments)
		return c.escalationReply(s, branches, err)
	}
	s.SelectedDepartment = input
	return say(StateConfirmAppointment, msgConfirmDepartment)
}

func (c *Controller) handleConfirmAppointment(_ context.Context, _ *Session, input string) Reply {
	switch {
	case isYes(input):
		return say(StateAskAppointmentDate, msgAskDate)
	case isNo(input):
		return say(StateEnd, msgGoodbye)
	}
	return say(StateConfirmAppointment, msgConfirmYesNo)
}

func (c *Controller) handleAppointmentDate(ctx context.Context, s *Session, input string) Reply {
	date, err := parseAppointmentDate(input, c.today(), c.windowDays)
	if err != nil {
		return say(StateAskAppointmentDate, invalidDateMessage(err, c.windowDays))
	}
	s.CandidateDate = date
	s.SelectedDate = ""
	return c.execute(ctx, branchFinding, &run{session: s})
}

func (c *Controller) handleConfirmBranches(ctx context.Context, s *Session, input string) Reply {
	switch {
	case isProceed(input):
		s.SelectedBranches = firstBranches(s.Branches, 2)
		return c.execute(ctx, doctorFiltering, &run{session: s})
	case isSeeMore(input):
		return c.execute(ctx, branchFinding, &run{session: s, returnAll: true})
	}
	return branchConfirmReprompt(s)
}

func (c *Controller) handleSelectBranches(ctx context.Context, s *Session, input string) Reply {
	if len(s.Branches) == 0 {
		return say(StateAskAppointmentDate, msgNoBranchesToSelect)
	}
	indices, err := parseBranchSelection(input, len(s.Branches))
	if err != nil {
		return branchSelectReprompt(s, err)
	}
	selected := make([]inference.Branch, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, s.Branches[i])
	}
	s.SelectedBranches = selected
	return c.execute(ctx, doctorFiltering, &run{session: s})
}

func (c *Controller) handleSelectDoctor(ctx context.Context, s *Session, input string) Reply {
	idx, ok := parseChoice(input, len(s.AvailableDoctors))
	if !ok {
		return doctorReprompt(s)
	}
	doctor := s.AvailableDoctors[idx]
	s.SelectedDoctor = &doctor

	outcome := c.finalizer.Finalize(ctx, booking.Request{
		ConversationID: s.ID,
		PatientName:    s.Details.Name,
		Age:            s.Details.Age,
		Gender:         s.Details.Gender,
		PinCode:        s.Details.PinCode,
		Email:          s.Details.Email,
		Summary:        s.Details.Summary,
		Department:     s.SelectedDepartment,
		Date:           s.SelectedDate,
		Doctor:         doctor,
	})
	s.AppointmentID = outcome.Record.ID
	reply := say(StateEnd, outcome.Message)
	reply.SelectedDate = s.SelectedDate
	return reply
}

// nearestForEmergency looks up the two nearest branches for an escalation.
func (c *Controller) nearestForEmergency(ctx context.Context, s *Session, departments []string) ([]inference.Branch, error) {
	branches, err := c.inference.FindNearestBranches(ctx, s.Details.PinCode, departments, false)
	if err != nil {
		return nil, err
	}
	return firstBranches(branches, 2), nil
}

func (c *Controller) escalationReply(s *Session, branches []inference.Branch, lookupErr error) Reply {
	c.logger.WithConversation(s.ID).Warn("emergency escalation", "branches", len(branches), "lookup_failed", lookupErr != nil)
	reply := say(StateEnd, emergencyMessage(c.hotline, branches, lookupErr))
	reply.Branches = branches
	return reply
}

func containsExact(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
