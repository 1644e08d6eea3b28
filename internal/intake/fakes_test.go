package intake

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-intake/internal/booking"
	"github.com/wolfman30/clinic-intake/internal/inference"
	"github.com/wolfman30/clinic-intake/internal/ranking"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// today is 2025-06-01 in the clinic's zone.
var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

const gyn = "Gynecology & Obstetrics"

type fakeInference struct {
	mu sync.Mutex

	questions    []string
	questionsErr error

	summary    string
	summaryErr error

	departments    []string
	departmentsErr error

	branches    []inference.Branch
	allBranches []inference.Branch
	branchesErr error

	valid    bool
	validErr error

	candidates    inference.Candidates
	candidatesErr error

	cases    inference.SimilarCases
	casesErr error

	recommendation inference.Recommendation
	rankErr        error

	panicOn string

	calls             []string
	summarizeText     string
	branchDepartments [][]string
	lastQuery         inference.DoctorQuery
}

func newFakeInference() *fakeInference {
	branches := []inference.Branch{
		{PinCode: "500032", Name: "Gachibowli", Distance: "3.2"},
		{PinCode: "500072", Name: "Kukatpally", Distance: "5.1"},
		{PinCode: "500001", Name: "Abids", Distance: "9.8"},
	}
	return &fakeInference{
		summary:     "Irregular periods for 2 months.",
		departments: []string{gyn},
		branches:    branches,
		allBranches: branches,
		valid:       true,
		candidates:  inference.Candidates{FinalList: rawList(`{"Doctor_ID":"DOC020"}`), GroupedText: "grouped"},
		cases:       inference.SimilarCases{DoctorIDs: rawList(`"DOC020"`), RawText: "narrative"},
		recommendation: inference.Recommendation{Doctors: []ranking.Doctor{
			{ID: "DOC020", Name: "Y. Sravani", Branch: "Kukatpally", Specialization: gyn, AvailableDate: "2025-06-03", TimeSlot: "4:30 PM - 7:30 PM"},
			{ID: "DOC099", Name: "Other", Branch: "Abids", Specialization: "Endocrinology"},
		}},
	}
}

func (f *fakeInference) track(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.panicOn == name {
		panic("boom: " + name)
	}
}

func (f *fakeInference) FollowupQuestions(_ context.Context, _ inference.Patient) ([]string, error) {
	f.track("followup")
	return f.questions, f.questionsErr
}

func (f *fakeInference) Summarize(_ context.Context, _ inference.Patient, text string, _ []inference.FollowupAnswer) (string, error) {
	f.track("summarize")
	f.summarizeText = text
	return f.summary, f.summaryErr
}

func (f *fakeInference) MapToDepartments(_ context.Context, _ string) ([]string, error) {
	f.track("departments")
	return f.departments, f.departmentsErr
}

func (f *fakeInference) FindNearestBranches(_ context.Context, _ string, departments []string, returnAll bool) ([]inference.Branch, error) {
	f.track("branches")
	f.branchDepartments = append(f.branchDepartments, departments)
	if returnAll {
		return f.allBranches, f.branchesErr
	}
	return f.branches, f.branchesErr
}

func (f *fakeInference) ValidateAppointmentDate(_ context.Context, q inference.DoctorQuery) (bool, error) {
	f.track("validate")
	f.lastQuery = q
	return f.valid, f.validErr
}

func (f *fakeInference) RecommendDoctors(_ context.Context, _ inference.DoctorQuery) (inference.Candidates, error) {
	f.track("recommend")
	return f.candidates, f.candidatesErr
}

func (f *fakeInference) MapSimilarCases(_ context.Context, _, _ string, _ []inference.Branch) (inference.SimilarCases, error) {
	f.track("similar")
	return f.cases, f.casesErr
}

func (f *fakeInference) RankDoctors(_ context.Context, _ inference.Candidates, _ inference.SimilarCases, _ string) (inference.Recommendation, error) {
	f.track("rank")
	return f.recommendation, f.rankErr
}

type memoryLedger struct {
	mu      sync.Mutex
	records []booking.AppointmentRecord
}

func (m *memoryLedger) Append(_ context.Context, r booking.AppointmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

type okNotifier struct{}

func (okNotifier) Send(context.Context, booking.AppointmentRecord) bool { return true }

type panickingNotifier struct{}

func (panickingNotifier) Send(context.Context, booking.AppointmentRecord) bool {
	panic("email client nil")
}

type harness struct {
	controller *Controller
	registry   *Registry
	inference  *fakeInference
	ledger     *memoryLedger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithNotifier(t, okNotifier{})
}

func newHarnessWithNotifier(t *testing.T, notifier booking.Notifier) *harness {
	t.Helper()
	fake := newFakeInference()
	ledger := &memoryLedger{}
	registry := NewRegistry(RegistryOptions{TTL: time.Hour, Now: func() time.Time { return testNow }, Logger: logging.Discard()})
	finalizer := booking.NewFinalizer(booking.Options{
		Ledger:   ledger,
		Notifier: notifier,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return testNow },
	})
	controller := NewController(registry, Options{
		Inference: fake,
		Finalizer: finalizer,
		Logger:    logging.Discard(),
		Now:       func() time.Time { return testNow },
	})
	return &harness{controller: controller, registry: registry, inference: fake, ledger: ledger}
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	return h.controller.Start(context.Background()).ConversationID
}

func (h *harness) say(t *testing.T, id string, inputs ...string) Reply {
	t.Helper()
	var reply Reply
	for _, in := range inputs {
		var err error
		reply, err = h.controller.Chat(context.Background(), id, in)
		require.NoError(t, err)
	}
	return reply
}

func (h *harness) session(t *testing.T, id string) Session {
	t.Helper()
	s, err := h.registry.Snapshot(id)
	require.NoError(t, err)
	return s
}

// to drives a fresh conversation up to the ask_symptoms prompt.
func (h *harness) toSymptoms(t *testing.T) string {
	t.Helper()
	id := h.start(t)
	reply := h.say(t, id, "Asha", "20", "a@b.com", "Female", "500081")
	require.Equal(t, StateAskSymptoms, reply.State)
	return id
}

// toDate drives a conversation to the ask_appointment_date prompt with a
// single department auto-selected.
func (h *harness) toDate(t *testing.T) string {
	t.Helper()
	id := h.toSymptoms(t)
	require.Equal(t, StateConfirmAppointment, h.say(t, id, "irregular periods").State)
	require.Equal(t, StateAskAppointmentDate, h.say(t, id, "yes").State)
	return id
}

func rawList(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item)
	}
	return out
}
