package intake

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/clinic-intake/internal/inference"
	"github.com/wolfman30/clinic-intake/internal/ranking"
)

type failureKind string

const (
	failTransient failureKind = "transient"
	failEmpty     failureKind = "empty"
	failRejected  failureKind = "rejected"
)

// stepFailure ends a pipeline: the session moves to state and the user sees
// message.
type stepFailure struct {
	state   State
	message string
	kind    failureKind
	err     error
}

// run carries values between the steps of one pipeline execution.
type run struct {
	session *Session

	symptomText string
	summary     string
	departments []string

	returnAll bool
	branches  []inference.Branch

	emergencyBranches  []inference.Branch
	emergencyLookupErr error

	query      inference.DoctorQuery
	candidates inference.Candidates
	cases      inference.SimilarCases
	doctors    []ranking.Doctor
}

type step struct {
	name string
	run  func(c *Controller, ctx context.Context, r *run) *stepFailure
}

type pipeline struct {
	name   string
	steps  []step
	finish func(c *Controller, r *run) Reply
}

func (c *Controller) execute(ctx context.Context, p pipeline, r *run) Reply {
	for _, st := range p.steps {
		if f := st.run(c, ctx, r); f != nil {
			c.logger.WithConversation(r.session.ID).Warn("pipeline step failed",
				"pipeline", p.name,
				"step", st.name,
				"kind", f.kind,
				"next_state", f.state,
				"error", f.err,
			)
			return say(f.state, f.message)
		}
	}
	return p.finish(c, r)
}

// Summarization: summarize_symptom, map_to_department, then an emergency
// branch lookup that only runs when the top department is the emergency one.
var summarization = pipeline{
	name: "summarization",
	steps: []step{
		{name: "summarize_symptom", run: summarizeStep},
		{name: "map_to_department", run: mapDepartmentsStep},
		{name: "emergency_branches", run: emergencyBranchesStep},
	},
	finish: finishSummarization,
}

func summarizeStep(c *Controller, ctx context.Context, r *run) *stepFailure {
	summary, err := c.inference.Summarize(ctx, r.session.patient(), r.symptomText, r.session.FollowupAnswers)
	if err != nil {
		return &stepFailure{state: StateAskSymptoms, message: msgSymptomsFailed, kind: failTransient, err: err}
	}
	r.summary = summary
	return nil
}

func mapDepartmentsStep(c *Controller, ctx context.Context, r *run) *stepFailure {
	departments, err := c.inference.MapToDepartments(ctx, r.summary)
	if err != nil {
		return &stepFailure{state: StateAskSymptoms, message: msgSymptomsFailed, kind: failTransient, err: err}
	}
	if len(departments) == 0 {
		return &stepFailure{state: StateAskSymptoms, message: msgNoDepartment, kind: failEmpty}
	}
	r.departments = departments
	r.session.Departments = departments
	r.session.Details.Summary = r.summary
	r.session.SelectedDepartment = ""
	return nil
}

func emergencyBranchesStep(c *Controller, ctx context.Context, r *run) *stepFailure {
	if !c.isEmergency(r.departments[0]) {
		return nil
	}
	r.emergencyBranches, r.emergencyLookupErr = c.nearestForEmergency(ctx, r.session, r.departments)
	return nil
}

func finishSummarization(c *Controller, r *run) Reply {
	s := r.session
	if c.isEmergency(r.departments[0]) {
		return c.escalationReply(s, r.emergencyBranches, r.emergencyLookupErr)
	}
	if len(r.departments) > 1 {
		reply := say(StateSelectDepartment, selectDepartmentMessage(r.departments))
		reply.Departments = append([]string(nil), r.departments...)
		return reply
	}
	s.SelectedDepartment = r.departments[0]
	reply := say(StateConfirmAppointment, msgConfirmDepartment)
	reply.Departments = append([]string(nil), r.departments...)
	return reply
}

// Branch finding: one find_nearest_branches call.
var branchFinding = pipeline{
	name:   "branch_finding",
	steps:  []step{{name: "find_nearest_branches", run: findBranchesStep}},
	finish: finishBranchFinding,
}

func findBranchesStep(c *Controller, ctx context.Context, r *run) *stepFailure {
	s := r.session
	branches, err := c.inference.FindNearestBranches(ctx, s.Details.PinCode, s.activeDepartments(), r.returnAll)
	if err != nil {
		return &stepFailure{state: StateAskAppointmentDate, message: msgBranchesFailed, kind: failTransient, err: err}
	}
	if len(branches) == 0 {
		return &stepFailure{state: StateAskPincode, message: msgNoBranchesFound, kind: failEmpty}
	}
	r.branches = branches
	return nil
}

func finishBranchFinding(_ *Controller, r *run) Reply {
	s := r.session
	s.Branches = r.branches
	s.SelectedBranches = nil
	if r.returnAll {
		reply := say(StateSelectBranches, allBranchesMessage(r.branches))
		reply.Branches = append(reply.Branches, r.branches...)
		return reply
	}
	nearest := firstBranches(r.branches, 2)
	reply := say(StateConfirmBranches, nearestBranchesMessage(nearest))
	reply.Branches = nearest
	return reply
}

// Doctor filtering: validate the date, list candidates, rank them by similar
// cases, then pick the final recommendation for the chosen department.
var doctorFiltering = pipeline{
	name: "doctor_filtering",
	steps: []step{
		{name: "require_department", run: requireDepartmentStep},
		{name: "validate_appointment_date", run: validateDateStep},
		{name: "recommend_doctors", run: recommendDoctorsStep},
		{name: "map_similar_cases", run: similarCasesStep},
		{name: "rank_doctors", run: rankDoctorsStep},
	},
	finish: finishDoctorFiltering,
}

func requireDepartmentStep(_ *Controller, _ context.Context, r *run) *stepFailure {
	s := r.session
	if s.SelectedDepartment == "" {
		return &stepFailure{state: StateAskSymptoms, message: msgNoDepartmentChosen, kind: failRejected}
	}
	r.query = inference.DoctorQuery{
		Patient:    s.patient(),
		Department: s.SelectedDepartment,
		Branches:   append([]inference.Branch(nil), s.SelectedBranches...),
		Date:       s.CandidateDate,
	}
	return nil
}

func validateDateStep(c *Controller, ctx context.Context, r *run) *stepFailure {
	valid, err := c.inference.ValidateAppointmentDate(ctx, r.query)
	if err != nil {
		var statusErr *inference.StatusError
		switch {
		case errors.As(err, &statusErr):
			return &stepFailure{state: StateAskAppointmentDate, message: dateValidationFailedMessage(inference.Detail(err)), kind: failTransient, err: err}
		case errors.Is(err, inference.ErrMalformedResponse):
			return &stepFailure{state: StateAskAppointmentDate, message: msgDateServerError, kind: failTransient, err: err}
		default:
			return &stepFailure{state: StateAskAppointmentDate, message: msgDateUnreachable, kind: failTransient, err: err}
		}
	}
	if !valid {
		return &stepFailure{state: StateAskAppointmentDate, message: msgDateRejected, kind: failRejected}
	}
	r.session.SelectedDate = r.query.Date
	return nil
}

func recommendDoctorsStep(c *Controller, ctx context.Context, r *run) *stepFailure {
	candidates, err := c.inference.RecommendDoctors(ctx, r.query)
	if err != nil {
		return &stepFailure{state: StateAskAppointmentDate, message: findDoctorsFailedMessage(inference.Detail(err)), kind: failTransient, err: err}
	}
	if len(candidates.FinalList) == 0 {
		return &stepFailure{state: StateAskAppointmentDate, message: msgNoDoctors, kind: failEmpty}
	}
	r.candidates = candidates
	return nil
}

func similarCasesStep(c *Controller, ctx context.Context, r *run) *stepFailure {
	cases, err := c.inference.MapSimilarCases(ctx, r.candidates.GroupedText, r.query.Patient.Summary, r.query.Branches)
	if err != nil {
		return &stepFailure{state: StateAskAppointmentDate, message: similarCasesFailedMessage(inference.Detail(err)), kind: failTransient, err: err}
	}
	if len(cases.DoctorIDs) == 0 {
		return &stepFailure{state: StateAskAppointmentDate, message: msgNoSimilarCases, kind: failEmpty}
	}
	r.cases = cases
	return nil
}

func rankDoctorsStep(c *Controller, ctx context.Context, r *run) *stepFailure {
	rec, err := c.inference.RankDoctors(ctx, r.candidates, r.cases, r.query.Date)
	if err != nil {
		return &stepFailure{state: StateAskAppointmentDate, message: rankDoctorsFailedMessage(inference.Detail(err)), kind: failTransient, err: err}
	}
	doctors := rec.Doctors
	if !rec.Structured() {
		doctors = c.parser.Parse(rec.Text)
	}
	doctors = ranking.FilterBySpecialization(doctors, r.query.Department)
	if len(doctors) == 0 {
		return &stepFailure{state: StateAskAppointmentDate, message: noMatchingDoctorsMessage(r.query.Department, r.query.Date), kind: failEmpty}
	}
	r.doctors = doctors
	return nil
}

func finishDoctorFiltering(_ *Controller, r *run) Reply {
	s := r.session
	s.AvailableDoctors = r.doctors
	s.SelectedDoctor = nil
	reply := say(StateSelectDoctor, doctorsMessage(r.doctors))
	reply.Doctors = append(reply.Doctors, r.doctors...)
	reply.SelectedDate = s.SelectedDate
	return reply
}

func firstBranches(branches []inference.Branch, n int) []inference.Branch {
	if len(branches) < n {
		n = len(branches)
	}
	return append([]inference.Branch(nil), branches[:n]...)
}

func (c *Controller) isEmergency(department string) bool {
	return strings.EqualFold(strings.TrimSpace(department), c.emergencyDepartment)
}
