package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-intake/internal/inference"
)

func TestTransitionTableCoversEveryState(t *testing.T) {
	for _, st := range States {
		row, ok := transitions[st]
		require.Truef(t, ok, "no transition row for %s", st)
		assert.NotNilf(t, row.reprompt, "no reprompt for %s", st)
		assert.NotNilf(t, row.handle, "no handler for %s", st)
	}
	for st := range transitions {
		assert.Truef(t, st.Valid(), "transition row for unknown state %q", st)
	}
	assert.False(t, State("").Valid())
}

func TestBlankInputKeepsStateForEveryState(t *testing.T) {
	for _, st := range States {
		t.Run(string(st), func(t *testing.T) {
			h := newHarness(t)
			id := h.start(t)
			require.NoError(t, h.registry.Update(context.Background(), id, func(_ context.Context, s *Session) error {
				s.State = st
				s.Details.Name = "Asha"
				return nil
			}))
			before := h.session(t, id)

			for _, blank := range []string{"", "   ", "\t\n"} {
				reply, err := h.controller.Chat(context.Background(), id, blank)
				require.NoError(t, err)
				assert.Equal(t, st, reply.State)
				assert.NotEmpty(t, reply.Message)
			}
			after := h.session(t, id)
			assert.Equal(t, st, after.State)
			assert.Equal(t, before.Details, after.Details)
			assert.Empty(t, h.inference.calls)
		})
	}
}

func TestAgeValidation(t *testing.T) {
	cases := []struct {
		input string
		ok    bool
	}{
		{"25", true},
		{"-1", false},
		{"0", false},
		{"abc", false},
		{"2.5", false},
		{"99999999999999999999", false},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			h := newHarness(t)
			id := h.start(t)
			h.say(t, id, "Asha")
			reply := h.say(t, id, tc.input)
			if tc.ok {
				assert.Equal(t, StateAskEmail, reply.State)
				assert.Equal(t, 25, h.session(t, id).Details.Age)
				return
			}
			assert.Equal(t, StateAskAge, reply.State)
			assert.Equal(t, msgInvalidAge, reply.Message)
			assert.Zero(t, h.session(t, id).Details.Age)
		})
	}
}

func TestEmailAndGenderValidation(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.say(t, id, "Asha", "20")

	reply := h.say(t, id, "not-an-email")
	assert.Equal(t, StateAskEmail, reply.State)

	reply = h.say(t, id, "a@b.com")
	assert.Equal(t, StateAskGender, reply.State)
	assert.Equal(t, Genders, reply.Genders)

	reply = h.say(t, id, "female")
	assert.Equal(t, StateAskGender, reply.State)
	assert.Equal(t, msgInvalidGender, reply.Message)
	assert.Equal(t, Genders, reply.Genders)

	reply = h.say(t, id, "Female")
	assert.Equal(t, StateAskPincode, reply.State)
}

func TestPincodeValidation(t *testing.T) {
	for _, input := range []string{"12345", "1234567", "12a456", "５０００８１"} {
		t.Run(input, func(t *testing.T) {
			h := newHarness(t)
			id := h.start(t)
			h.say(t, id, "Asha", "20", "a@b.com", "Female")
			reply := h.say(t, id, input)
			assert.Equal(t, StateAskPincode, reply.State)
			assert.Equal(t, msgInvalidPincode, reply.Message)
			assert.Empty(t, h.session(t, id).Details.PinCode)
		})
	}

	h := newHarness(t)
	id := h.start(t)
	h.say(t, id, "Asha", "20", "a@b.com", "Female")
	assert.Equal(t, StateAskSymptoms, h.say(t, id, "500081").State)
	assert.Equal(t, "500081", h.session(t, id).Details.PinCode)
}

func TestDateWindow(t *testing.T) {
	day := func(offset int) string { return testNow.AddDate(0, 0, offset).Format("2006-01-02") }
	cases := []struct {
		input string
		ok    bool
	}{
		{day(0), false},
		{day(-3), false},
		{day(31), false},
		{day(1), true},
		{day(15), true},
		{day(30), true},
		{"2025/06/10", false},
		{"tomorrow", false},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			h := newHarness(t)
			id := h.toDate(t)
			reply := h.say(t, id, tc.input)
			s := h.session(t, id)
			if tc.ok {
				assert.Equal(t, StateConfirmBranches, reply.State)
				assert.Equal(t, tc.input, s.CandidateDate)
				assert.Empty(t, s.SelectedDate)
				return
			}
			assert.Equal(t, StateAskAppointmentDate, reply.State)
			assert.True(t, strings.HasPrefix(reply.Message, "Invalid date"))
			assert.Empty(t, s.CandidateDate)
			assert.NotContains(t, h.inference.calls, "branches")
		})
	}
}

func TestDateWindowUsesClinicTimezone(t *testing.T) {
	// 20:00 UTC on June 1 is already June 2 in Asia/Kolkata.
	_, err := parseAppointmentDate("2025-06-02", testNow.Add(10*time.Hour).In(kolkata(t)), 30)
	assert.ErrorIs(t, err, errDateNotAfter)
	_, err = parseAppointmentDate("2025-06-02", testNow.Add(10*time.Hour), 30)
	assert.NoError(t, err)
}

func TestEmergencyShortCircuit(t *testing.T) {
	cases := []struct {
		name        string
		branches    []inference.Branch
		branchesErr error
		want        string
	}{
		{name: "two nearest named", branches: newFakeInference().branches, want: "The two nearest hospital branches are: Gachibowli, Kukatpally."},
		{name: "no branches", branches: nil, want: "No branches found for your pincode."},
		{name: "lookup failed", branchesErr: inference.ErrNoResponse, want: "Unable to fetch hospital branches."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.inference.departments = []string{"critical care / EMERGENCY medicine", gyn}
			h.inference.questions = []string{"Is there chest pain?"}
			h.inference.branches = tc.branches
			h.inference.branchesErr = tc.branchesErr
			id := h.toSymptoms(t)

			h.say(t, id, "severe chest pain")
			reply := h.say(t, id, "yes, radiating")

			assert.Equal(t, StateEnd, reply.State)
			assert.True(t, reply.ConversationEnded)
			assert.Contains(t, reply.Message, "call our ambulance service at 108")
			assert.Contains(t, reply.Message, tc.want)
			assert.LessOrEqual(t, len(reply.Branches), 2)
			assert.NotContains(t, reply.Message, "Abids")
			assert.Equal(t, []string{"critical care / EMERGENCY medicine", gyn}, h.inference.branchDepartments[0])

			after := h.say(t, id, "hello?")
			assert.Equal(t, StateEnd, after.State)
			assert.True(t, after.ConversationEnded)
			assert.Equal(t, msgConversationEnded, after.Message)
		})
	}
}

func TestManualEmergencySelectionEscalates(t *testing.T) {
	h := newHarness(t)
	h.inference.departments = []string{gyn, "Critical Care / Emergency Medicine"}
	id := h.toSymptoms(t)

	reply := h.say(t, id, "pain")
	require.Equal(t, StateSelectDepartment, reply.State)
	assert.Equal(t, h.inference.departments, reply.Departments)

	reply = h.say(t, id, "Critical Care / Emergency Medicine")
	assert.Equal(t, StateEnd, reply.State)
	assert.True(t, reply.ConversationEnded)
	assert.Contains(t, reply.Message, "emergency")
}

func TestSelectDepartmentRequiresExactMatch(t *testing.T) {
	h := newHarness(t)
	h.inference.departments = []string{gyn, "Endocrinology"}
	id := h.toSymptoms(t)
	h.say(t, id, "irregular periods")

	reply := h.say(t, id, "endocrinology")
	assert.Equal(t, StateSelectDepartment, reply.State)
	assert.Equal(t, "Invalid selection. Please select from: Gynecology & Obstetrics, Endocrinology", reply.Message)

	reply = h.say(t, id, "Endocrinology")
	assert.Equal(t, StateConfirmAppointment, reply.State)
	assert.Equal(t, "Endocrinology", h.session(t, id).SelectedDepartment)

	h.say(t, id, "y", testNow.AddDate(0, 0, 2).Format("2006-01-02"))
	assert.Equal(t, []string{"Endocrinology"}, h.inference.branchDepartments[0])
}

func TestConfirmAppointmentNoEnds(t *testing.T) {
	h := newHarness(t)
	id := h.toSymptoms(t)
	h.say(t, id, "irregular periods")

	assert.Equal(t, StateConfirmAppointment, h.say(t, id, "maybe").State)
	reply := h.say(t, id, "N")
	assert.Equal(t, StateEnd, reply.State)
	assert.True(t, reply.ConversationEnded)
	assert.Equal(t, msgGoodbye, reply.Message)
}

func TestBranchSelection(t *testing.T) {
	h := newHarness(t)
	id := h.toDate(t)
	h.say(t, id, testNow.AddDate(0, 0, 5).Format("2006-01-02"))

	reply := h.say(t, id, "see more")
	require.Equal(t, StateSelectBranches, reply.State)
	assert.Len(t, reply.Branches, 3)
	assert.Contains(t, reply.Message, "3. Abids")

	reply = h.say(t, id, "0, 4, x")
	assert.Equal(t, StateSelectBranches, reply.State)
	assert.Contains(t, reply.Message, "No valid branches selected")
	assert.Nil(t, h.session(t, id).SelectedBranches)

	h.inference.valid = false
	reply = h.say(t, id, "3,1,3")
	assert.Equal(t, StateAskAppointmentDate, reply.State)
	selected := h.session(t, id).SelectedBranches
	require.Len(t, selected, 2)
	assert.Equal(t, "Gachibowli", selected[0].Name)
	assert.Equal(t, "Abids", selected[1].Name)
	assert.Equal(t, selected, h.inference.lastQuery.Branches)
}

func TestSelectBranchesWithEmptyListReturnsToDate(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	require.NoError(t, h.registry.Update(context.Background(), id, func(_ context.Context, s *Session) error {
		s.State = StateSelectBranches
		return nil
	}))
	reply := h.say(t, id, "1")
	assert.Equal(t, StateAskAppointmentDate, reply.State)
	assert.Equal(t, msgNoBranchesToSelect, reply.Message)
}

func TestNoBranchesAsksForNewPincodeAndResumes(t *testing.T) {
	h := newHarness(t)
	id := h.toDate(t)
	h.inference.branches = nil

	reply := h.say(t, id, testNow.AddDate(0, 0, 3).Format("2006-01-02"))
	assert.Equal(t, StateAskPincode, reply.State)
	assert.Equal(t, msgNoBranchesFound, reply.Message)

	h.inference.branches = newFakeInference().branches
	reply = h.say(t, id, "500032")
	assert.Equal(t, StateConfirmBranches, reply.State)
	assert.Equal(t, "500032", h.session(t, id).Details.PinCode)
}

func TestBranchLookupFailureReturnsToDate(t *testing.T) {
	h := newHarness(t)
	id := h.toDate(t)
	h.inference.branchesErr = &inference.StatusError{StatusCode: 400}
	reply := h.say(t, id, testNow.AddDate(0, 0, 3).Format("2006-01-02"))
	assert.Equal(t, StateAskAppointmentDate, reply.State)
	assert.Equal(t, msgBranchesFailed, reply.Message)
}

func TestHappyPathEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.inference.questions = []string{
		"**How long** have you had irregular periods? Please include dates.",
		"Any severe cramps?",
		"   ",
	}
	id := h.start(t)

	reply := h.say(t, id, "Asha", "20", "a@b.com", "Female", "500081", "irregular periods")
	require.Equal(t, StateAskFollowup, reply.State)
	assert.Equal(t, "How long have you had irregular periods?", reply.Message)

	reply = h.say(t, id, "2 months")
	assert.Equal(t, "Any severe cramps?", reply.Message)

	reply = h.say(t, id, "yes")
	require.Equal(t, StateConfirmAppointment, reply.State)
	assert.Equal(t, `irregular periods [{"question":"How long have you had irregular periods?","answer":"2 months"},{"question":"Any severe cramps?","answer":"yes"}]`, h.inference.summarizeText)

	reply = h.say(t, id, "yes")
	require.Equal(t, StateAskAppointmentDate, reply.State)

	date := testNow.AddDate(0, 0, 2).Format("2006-01-02")
	reply = h.say(t, id, date)
	require.Equal(t, StateConfirmBranches, reply.State)
	assert.Equal(t, "The two nearest branches are:\n1. Gachibowli\n2. Kukatpally\nDo you want to proceed with these or see more?", reply.Message)
	assert.Len(t, reply.Branches, 2)

	reply = h.say(t, id, "Proceed")
	require.Equal(t, StateSelectDoctor, reply.State)
	require.Len(t, reply.Doctors, 1)
	assert.Equal(t, date, reply.SelectedDate)
	assert.Contains(t, reply.Message, "1. Dr. Y. Sravani (ID: DOC020) - Branch: Kukatpally - Department: Gynecology & Obstetrics - Available Time: 4:30 PM - 7:30 PM")

	s := h.session(t, id)
	assert.Equal(t, date, s.SelectedDate)
	assert.Equal(t, "Irregular periods for 2 months.", s.Details.Summary)
	require.Len(t, s.SelectedBranches, 2)

	reply = h.say(t, id, "1")
	assert.Equal(t, StateEnd, reply.State)
	assert.True(t, reply.ConversationEnded)

	require.Len(t, h.ledger.records, 1)
	record := h.ledger.records[0]
	assert.Contains(t, reply.Message, record.ID)
	assert.Equal(t, "Asha", record.PatientName)
	assert.Equal(t, gyn, record.Department)
	assert.Equal(t, "DOC020", record.DoctorID)
	assert.Equal(t, date, record.Date)
	assert.Equal(t, record.ID, h.session(t, id).AppointmentID)

	history := h.session(t, id).ChatHistory
	assert.Equal(t, ChatEntry{Sender: SenderBot, Message: msgAskName}, history[0])
	assert.Equal(t, ChatEntry{Sender: SenderBot, Message: reply.Message}, history[len(history)-1])

	reply = h.say(t, id, "1")
	assert.Equal(t, msgConversationEnded, reply.Message)
	assert.Len(t, h.ledger.records, 1)
}

func TestNotifierPanicStillBooksOnce(t *testing.T) {
	h := newHarnessWithNotifier(t, panickingNotifier{})
	id := h.toDate(t)
	h.say(t, id, testNow.AddDate(0, 0, 2).Format("2006-01-02"))
	require.Equal(t, StateSelectDoctor, h.say(t, id, "proceed").State)

	reply := h.say(t, id, "1")
	assert.Equal(t, StateEnd, reply.State)
	assert.True(t, reply.ConversationEnded)
	require.Len(t, h.ledger.records, 1)
	assert.Contains(t, reply.Message, h.ledger.records[0].ID)

	reply = h.say(t, id, "1")
	assert.Equal(t, msgConversationEnded, reply.Message)
	assert.Len(t, h.ledger.records, 1)
}

func TestRejectedInputDoesNotMutateAcceptedDetails(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.say(t, id, "Asha")
	before := h.session(t, id).Details

	reply := h.say(t, id, "Asha")
	assert.Equal(t, StateAskAge, reply.State)
	assert.Equal(t, before, h.session(t, id).Details)
}

func TestSymptomFailuresReturnToSymptoms(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fakeInference)
		want  string
	}{
		{"followup call fails", func(f *fakeInference) { f.questionsErr = inference.ErrNoResponse }, msgSymptomsFailed},
		{"summarize fails", func(f *fakeInference) { f.summaryErr = &inference.StatusError{StatusCode: 503, Exhausted: true} }, msgSymptomsFailed},
		{"department mapping fails", func(f *fakeInference) { f.departmentsErr = inference.ErrMalformedResponse }, msgSymptomsFailed},
		{"no departments", func(f *fakeInference) { f.departments = nil }, msgNoDepartment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h.inference)
			id := h.toSymptoms(t)
			reply := h.say(t, id, "headache")
			assert.Equal(t, StateAskSymptoms, reply.State)
			assert.Equal(t, tc.want, reply.Message)
			assert.False(t, reply.ConversationEnded)
		})
	}
}

func TestDoctorFilteringFailures(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fakeInference)
		want  string
	}{
		{"date rejected", func(f *fakeInference) { f.valid = false }, msgDateRejected},
		{"date service unreachable", func(f *fakeInference) { f.validErr = inference.ErrNoResponse }, msgDateUnreachable},
		{"date service status", func(f *fakeInference) {
			f.validErr = &inference.StatusError{StatusCode: 400, Body: `{"message":"date is a holiday"}`}
		}, "Unable to validate the appointment date. Error: date is a holiday. Please try again."},
		{"date response malformed", func(f *fakeInference) { f.validErr = inference.ErrMalformedResponse }, msgDateServerError},
		{"recommend fails", func(f *fakeInference) {
			f.candidatesErr = &inference.StatusError{StatusCode: 500, Body: "boom", Exhausted: true}
		}, "Unable to find doctors. Error: boom, please try a different date or contact support."},
		{"no candidates", func(f *fakeInference) { f.candidates = inference.Candidates{} }, msgNoDoctors},
		{"similar cases fail", func(f *fakeInference) { f.casesErr = inference.ErrNoResponse }, "Unable to map to similar cases. Error: No response from server, try a different date or contact support."},
		{"no similar cases", func(f *fakeInference) { f.cases = inference.SimilarCases{} }, msgNoSimilarCases},
		{"rank fails", func(f *fakeInference) { f.rankErr = &inference.StatusError{StatusCode: 422} }, "Unable to rank doctors. Error: No details provided by server, try a different date or contact support."},
		{"no doctor in department", func(f *fakeInference) {
			f.recommendation.Doctors = f.recommendation.Doctors[1:]
		}, "No doctors found for Gynecology & Obstetrics on " + testNow.AddDate(0, 0, 4).Format("2006-01-02") + ". Please try a different date or department."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h.inference)
			id := h.toDate(t)
			h.say(t, id, testNow.AddDate(0, 0, 4).Format("2006-01-02"))
			reply := h.say(t, id, "yes")
			assert.Equal(t, StateAskAppointmentDate, reply.State)
			assert.Equal(t, tc.want, reply.Message)
			assert.Empty(t, h.session(t, id).AvailableDoctors)
		})
	}
}

func TestSelectedDateOnlySetAfterServiceValidation(t *testing.T) {
	h := newHarness(t)
	h.inference.valid = false
	id := h.toDate(t)
	date := testNow.AddDate(0, 0, 4).Format("2006-01-02")
	h.say(t, id, date, "proceed")
	s := h.session(t, id)
	assert.Empty(t, s.SelectedDate)
	assert.Equal(t, date, s.CandidateDate)
	assert.Equal(t, date, h.inference.lastQuery.Date)
	assert.Equal(t, []string{"followup", "summarize", "departments", "branches", "validate"}, h.inference.calls)
}

func TestProseRecommendationIsParsed(t *testing.T) {
	h := newHarness(t)
	h.inference.recommendation = inference.Recommendation{Text: "1. Dr. K Aswini (ID: DOC017) - Branch: Kukatpally - Department: Gynecology & Obstetrics\n" +
		"   Available Date: 2025-06-03\n   Available Time Slot: 9:00 AM - 12:00 PM\n\n" +
		"2. Dr. Z (ID: DOC500) - Branch: Abids - Department: Endocrinology"}
	id := h.toDate(t)
	h.say(t, id, testNow.AddDate(0, 0, 2).Format("2006-01-02"))
	reply := h.say(t, id, "y")

	require.Equal(t, StateSelectDoctor, reply.State)
	require.Len(t, reply.Doctors, 1)
	assert.Equal(t, "DOC017", reply.Doctors[0].ID)
	assert.Equal(t, "9:00 AM - 12:00 PM", reply.Doctors[0].TimeSlot)
}

func TestSelectDoctorRejectsOutOfRange(t *testing.T) {
	h := newHarness(t)
	id := h.toDate(t)
	h.say(t, id, testNow.AddDate(0, 0, 2).Format("2006-01-02"), "proceed")

	for _, input := range []string{"0", "2", "one"} {
		reply := h.say(t, id, input)
		assert.Equal(t, StateSelectDoctor, reply.State)
		assert.Equal(t, msgInvalidDoctor, reply.Message)
		assert.Len(t, reply.Doctors, 1)
		assert.NotEmpty(t, reply.SelectedDate)
	}
	assert.Empty(t, h.ledger.records)
}

func TestChatUnknownConversation(t *testing.T) {
	h := newHarness(t)
	_, err := h.controller.Chat(context.Background(), "missing", "hi")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestPanicInCollaboratorLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t)
	h.inference.panicOn = "followup"
	id := h.toSymptoms(t)
	before := h.session(t, id)

	reply, err := h.controller.Chat(context.Background(), id, "headache")
	require.NoError(t, err)
	assert.Equal(t, StateAskSymptoms, reply.State)
	assert.Equal(t, msgTurnFailed, reply.Message)

	after := h.session(t, id)
	assert.Equal(t, before.Details, after.Details)
	assert.Equal(t, before.ChatHistory, after.ChatHistory)
}

func TestConcurrentTurnsAreSerialized(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.say(t, id, "Asha")

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.controller.Chat(context.Background(), id, fmt.Sprintf("not-an-age-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history := h.session(t, id).ChatHistory
	// greeting, name exchange, then one user and one bot entry per turn
	require.Len(t, history, 3+2*turns)
	for i := 3; i < len(history); i += 2 {
		assert.Equal(t, SenderUser, history[i].Sender)
		assert.Equal(t, SenderBot, history[i+1].Sender)
	}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []ChatEntry
	err     error
}

func (r *recordingSink) Append(_ context.Context, _ string, sender, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, ChatEntry{Sender: sender, Message: message})
	return r.err
}

type recordingTurns struct {
	mu    sync.Mutex
	turns []string
}

func (r *recordingTurns) ObserveTurn(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, from+"->"+to)
}

func TestTranscriptMirrorAndMetrics(t *testing.T) {
	h := newHarness(t)
	sink := &recordingSink{}
	turns := &recordingTurns{}
	h.controller.transcript = sink
	h.controller.metrics = turns

	id := h.start(t)
	h.say(t, id, "Asha", "")

	assert.Equal(t, []ChatEntry{
		{Sender: SenderBot, Message: msgAskName},
		{Sender: SenderUser, Message: "Asha"},
		{Sender: SenderBot, Message: msgAskAge},
		{Sender: SenderBot, Message: msgInvalidAge},
	}, sink.entries)
	assert.Equal(t, []string{"ask_name->ask_age", "ask_age->ask_age"}, turns.turns)

	sink.err = errors.New("redis down")
	reply := h.say(t, id, "20")
	assert.Equal(t, StateAskEmail, reply.State)
}

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}
