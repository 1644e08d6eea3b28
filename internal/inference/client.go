package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/clinic-intake/internal/ranking"
)

// DefaultSummary stands in when summarize_symptom returns no summary.
const DefaultSummary = "No summary provided."

// Patient is the patient context most tasks carry.
type Patient struct {
	PinCode string
	Symptom string
	Age     int
	Gender  string
	Email   string
	Summary string
}

func (p Patient) appointmentData() map[string]any {
	return map[string]any{"Email": p.Email}
}

// FollowupAnswer pairs a follow-up question with the patient's answer.
type FollowupAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Branch is a clinic branch normalized to text fields.
type Branch struct {
	PinCode  string `json:"pin_code"`
	Name     string `json:"Branch"`
	Distance string `json:"distance"`
}

// wireValue decodes a JSON string or number into its text form.
type wireValue string

func (v *wireValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = wireValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = wireValue(n.String())
	return nil
}

type wireBranch struct {
	Pincode  wireValue `json:"Pincode"`
	PinCode  wireValue `json:"pin_code"`
	Branch   string    `json:"Branch"`
	Distance wireValue `json:"distance"`
}

func (w wireBranch) normalize() Branch {
	pin := string(w.Pincode)
	if pin == "" {
		pin = string(w.PinCode)
	}
	return Branch{PinCode: pin, Name: w.Branch, Distance: string(w.Distance)}
}

// wire converts back to the service's typed form: integer pincode and
// floating point distance. Unparseable values are sent as text.
func (b Branch) wire() map[string]any {
	out := map[string]any{"Branch": b.Name}
	if n, err := strconv.Atoi(strings.TrimSpace(b.PinCode)); err == nil {
		out["Pincode"] = n
	} else {
		out["Pincode"] = b.PinCode
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(b.Distance), 64); err == nil {
		out["distance"] = f
	} else {
		out["distance"] = b.Distance
	}
	return out
}

func wireBranches(branches []Branch) []map[string]any {
	out := make([]map[string]any, 0, len(branches))
	for _, b := range branches {
		out = append(out, b.wire())
	}
	return out
}

// DoctorQuery is the context shared by the doctor filtering tasks.
type DoctorQuery struct {
	Patient    Patient
	Department string
	Branches   []Branch
	Date       string
}

// Candidates is the result of recommend_available_doctors_with_visit_reason_summary.
// The list entries are passed back to top3_and_blocks untouched.
type Candidates struct {
	FinalList   []json.RawMessage
	GroupedText string
}

// SimilarCases is the result of llm_maps_to_similar_cases.
type SimilarCases struct {
	DoctorIDs []json.RawMessage
	RawText   string
}

// Recommendation is the result of top3_and_blocks: either structured doctor
// records or a single prose block.
type Recommendation struct {
	Doctors []ranking.Doctor
	Text    string
}

// Structured reports whether the service returned records.
func (r Recommendation) Structured() bool {
	return r.Text == ""
}

func (r *Recommendation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Text)
	}
	return json.Unmarshal(data, &r.Doctors)
}

// Client exposes the inference tasks with typed inputs and outputs.
type Client struct {
	invoker Invoker
}

func NewClient(invoker Invoker) *Client {
	return &Client{invoker: invoker}
}

func (c *Client) call(ctx context.Context, task Task, fields map[string]any) (*Result, error) {
	if c == nil || c.invoker == nil {
		return nil, fmt.Errorf("%w: task %s: client not configured", ErrNoResponse, task)
	}
	return c.invoker.Invoke(ctx, task, fields)
}

// FollowupQuestions asks for clarifying questions about the symptom.
func (c *Client) FollowupQuestions(ctx context.Context, p Patient) ([]string, error) {
	res, err := c.call(ctx, TaskFollowupQuestions, map[string]any{
		"pincode":          p.PinCode,
		"symptom":          p.Symptom,
		"age":              p.Age,
		"gender":           p.Gender,
		"raw_text":         p.Symptom,
		"appointment_data": p.appointmentData(),
	})
	if err != nil {
		return nil, err
	}
	var questions []string
	if _, err := res.Decode("followup_questions", &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// Summarize condenses the symptom text (already combined with any follow-up
// answers) into a visit summary.
func (c *Client) Summarize(ctx context.Context, p Patient, symptomText string, answers []FollowupAnswer) (string, error) {
	if answers == nil {
		answers = []FollowupAnswer{}
	}
	res, err := c.call(ctx, TaskSummarizeSymptom, map[string]any{
		"pincode":          p.PinCode,
		"symptom":          symptomText,
		"age":              p.Age,
		"gender":           p.Gender,
		"followup_answers": answers,
		"raw_text":         symptomText,
		"appointment_data": p.appointmentData(),
	})
	if err != nil {
		return "", err
	}
	summary := DefaultSummary
	if _, err := res.Decode("summary", &summary); err != nil {
		return "", err
	}
	return summary, nil
}

// MapToDepartments classifies a summary into ordered candidate departments.
func (c *Client) MapToDepartments(ctx context.Context, summary string) ([]string, error) {
	res, err := c.call(ctx, TaskMapToDepartment, map[string]any{"summary": summary})
	if err != nil {
		return nil, err
	}
	var departments []string
	if _, err := res.Decode("departments", &departments); err != nil {
		return nil, err
	}
	return departments, nil
}

// FindNearestBranches looks up branches near pinCode offering departments.
func (c *Client) FindNearestBranches(ctx context.Context, pinCode string, departments []string, returnAll bool) ([]Branch, error) {
	res, err := c.call(ctx, TaskFindNearestBranches, map[string]any{
		"pincode":     pinCode,
		"departments": departments,
		"return_all":  returnAll,
	})
	if err != nil {
		return nil, err
	}
	var raw []wireBranch
	if _, err := res.Decode("branches", &raw); err != nil {
		return nil, err
	}
	branches := make([]Branch, 0, len(raw))
	for _, w := range raw {
		branches = append(branches, w.normalize())
	}
	return branches, nil
}

// ValidateAppointmentDate asks the service whether the date can be booked.
func (c *Client) ValidateAppointmentDate(ctx context.Context, q DoctorQuery) (bool, error) {
	res, err := c.call(ctx, TaskValidateDate, map[string]any{
		"selected_date":    q.Date,
		"departments":      []string{q.Department},
		"branches":         wireBranches(q.Branches),
		"pincode":          q.Patient.PinCode,
		"symptom":          q.Patient.Symptom,
		"age":              q.Patient.Age,
		"gender":           q.Patient.Gender,
		"summary":          q.Patient.Summary,
		"appointment_data": q.Patient.appointmentData(),
	})
	if err != nil {
		return false, err
	}
	var valid bool
	if _, err := res.Decode("valid", &valid); err != nil {
		return false, err
	}
	return valid, nil
}

// RecommendDoctors lists available doctor/date/slot candidates.
func (c *Client) RecommendDoctors(ctx context.Context, q DoctorQuery) (Candidates, error) {
	res, err := c.call(ctx, TaskRecommendDoctors, map[string]any{
		"departments":          []string{q.Department},
		"branches":             wireBranches(q.Branches),
		"selected_date":        q.Date,
		"visit_reason_summary": q.Patient.Summary,
		"pincode":              q.Patient.PinCode,
		"symptom":              q.Patient.Symptom,
		"age":                  q.Patient.Age,
		"gender":               q.Patient.Gender,
		"appointment_data":     q.Patient.appointmentData(),
	})
	if err != nil {
		return Candidates{}, err
	}
	var out Candidates
	if _, err := res.Decode("final_dr_list", &out.FinalList); err != nil {
		return Candidates{}, err
	}
	if _, err := res.Decode("grouped_text", &out.GroupedText); err != nil {
		return Candidates{}, err
	}
	return out, nil
}

// MapSimilarCases ranks doctors by their history with similar cases.
func (c *Client) MapSimilarCases(ctx context.Context, groupedText, summary string, branches []Branch) (SimilarCases, error) {
	res, err := c.call(ctx, TaskMapSimilarCases, map[string]any{
		"grouped_text": groupedText,
		"summary":      summary,
		"branches":     wireBranches(branches),
	})
	if err != nil {
		return SimilarCases{}, err
	}
	var out SimilarCases
	if _, err := res.Decode("doctor_ids_ordered", &out.DoctorIDs); err != nil {
		return SimilarCases{}, err
	}
	if _, err := res.Decode("raw_text", &out.RawText); err != nil {
		return SimilarCases{}, err
	}
	return out, nil
}

// RankDoctors produces the final recommendation from the candidates and ranking.
func (c *Client) RankDoctors(ctx context.Context, candidates Candidates, cases SimilarCases, date string) (Recommendation, error) {
	finalList := candidates.FinalList
	if finalList == nil {
		finalList = []json.RawMessage{}
	}
	ids := cases.DoctorIDs
	if ids == nil {
		ids = []json.RawMessage{}
	}
	res, err := c.call(ctx, TaskRankDoctors, map[string]any{
		"final_dr_list":      finalList,
		"doctor_ids_ordered": ids,
		"selected_date":      date,
		"raw_text":           cases.RawText,
	})
	if err != nil {
		return Recommendation{}, err
	}
	var out Recommendation
	if _, err := res.Decode("recommended_doctors", &out); err != nil {
		return Recommendation{}, err
	}
	return out, nil
}
