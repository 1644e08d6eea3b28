// Package main runs end-to-end scenarios against a running intake API.
//
// The validation and unknown-conversation scenarios only need the API. The
// happy-path and emergency scenarios also need a reachable inference service
// behind it.
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run ./scripts/e2e              # runs all
//	API_BASE_URL=http://localhost:8080 go run ./scripts/e2e happy-path   # runs one
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wolfman30/clinic-intake/internal/intake"
	"github.com/wolfman30/clinic-intake/internal/intakeclient"
)

// maxFollowups bounds the follow-up loop in case the service keeps asking.
const maxFollowups = 10

var client *intakeclient.Client

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// conversation drives one session and remembers the last reply.
type conversation struct {
	t    *T
	id   string
	last intake.Reply
}

func begin(t *T) *conversation {
	start, err := client.Start(context.Background())
	if err != nil {
		t.fatalf("start: %v", err)
		return nil
	}
	t.check("starts in ask_name", start.State == intake.StateAskName)
	return &conversation{t: t, id: start.ConversationID, last: intake.Reply{State: start.State, Message: start.Message}}
}

func (c *conversation) say(input string) intake.Reply {
	reply, err := client.Send(context.Background(), c.id, input)
	if err != nil {
		c.t.fatalf("send %q: %v", input, err)
		return intake.Reply{State: intake.StateEnd, ConversationEnded: true}
	}
	fmt.Printf("    > %s\n    < [%s] %s\n", input, reply.State, firstLine(reply.Message))
	c.last = reply
	return reply
}

func (c *conversation) expect(input string, want intake.State) intake.Reply {
	reply := c.say(input)
	c.t.check(fmt.Sprintf("%q -> %s", input, want), reply.State == want)
	return reply
}

// personalDetails walks name through pincode.
func (c *conversation) personalDetails() {
	c.expect("Asha", intake.StateAskAge)
	c.expect("34", intake.StateAskEmail)
	c.expect(envOr("E2E_EMAIL", "asha@example.com"), intake.StateAskGender)
	c.expect("Female", intake.StateAskPincode)
	c.expect(envOr("E2E_PINCODE", "500032"), intake.StateAskSymptoms)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func scenarioValidation(t *T) {
	c := begin(t)
	if c == nil {
		return
	}
	c.expect("Asha", intake.StateAskAge)
	c.expect("thirty", intake.StateAskAge)
	c.expect("0", intake.StateAskAge)
	c.expect("34", intake.StateAskEmail)
	c.expect("not-an-email", intake.StateAskEmail)
	c.expect("asha@example.com", intake.StateAskGender)
	c.expect("Robot", intake.StateAskGender)
	c.expect("female", intake.StateAskGender)
	c.expect("Female", intake.StateAskPincode)
	c.expect("5000", intake.StateAskPincode)
}

func scenarioUnknownConversation(t *T) {
	_, err := client.Send(context.Background(), "does-not-exist", "hello")
	t.check("unknown conversation is 404", errors.Is(err, intakeclient.ErrNotFound))
}

func scenarioHappyPath(t *T) {
	c := begin(t)
	if c == nil {
		return
	}
	c.personalDetails()
	reply := c.say(envOr("E2E_SYMPTOM", "I have had irregular periods for two months"))
	for i := 0; reply.State == intake.StateAskFollowup && i < maxFollowups; i++ {
		reply = c.say("No")
	}
	if reply.State == intake.StateSelectDepartment {
		if len(reply.Departments) == 0 {
			t.fatalf("select_department without departments")
			return
		}
		reply = c.say(reply.Departments[0])
	}
	if !t.requireState(reply, intake.StateConfirmAppointment) {
		return
	}
	c.expect("yes", intake.StateAskAppointmentDate)

	date := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	reply = c.say(date)
	if reply.State == intake.StateConfirmBranches {
		reply = c.say("proceed")
	}
	if !t.requireState(reply, intake.StateSelectDoctor) {
		return
	}
	t.check("doctors listed", len(reply.Doctors) > 0)
	reply = c.say("1")
	t.check("conversation ended", reply.ConversationEnded)
	t.check("appointment id in confirmation", strings.Contains(reply.Message, "APT-"))

	view, err := client.Transcript(context.Background(), c.id)
	if err != nil {
		t.fatalf("transcript: %v", err)
		return
	}
	t.check("transcript has both sides", len(view.ChatHistory) > 10)
}

func scenarioEmergency(t *T) {
	c := begin(t)
	if c == nil {
		return
	}
	c.personalDetails()
	reply := c.say("Crushing chest pain spreading to my left arm and I can't breathe")
	for i := 0; reply.State == intake.StateAskFollowup && i < maxFollowups; i++ {
		reply = c.say("Yes, it started ten minutes ago")
	}
	t.check("escalation ends the conversation", reply.ConversationEnded)
	t.check("hotline mentioned", strings.Contains(reply.Message, envOr("E2E_HOTLINE", "108")))
}

func (t *T) requireState(r intake.Reply, want intake.State) bool {
	if r.State != want {
		t.fatalf("expected %s, got %s: %s", want, r.State, firstLine(r.Message))
		return false
	}
	return true
}

func main() {
	client = intakeclient.New(envOr("API_BASE_URL", "http://localhost:8080"), 5*time.Minute)

	scenarios := []scenario{
		{"validation", scenarioValidation},
		{"unknown-conversation", scenarioUnknownConversation},
		{"happy-path", scenarioHappyPath},
		{"emergency", scenarioEmergency},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "PASS"
		if t.failed > 0 {
			status = "FAIL"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\nSOME SCENARIOS FAILED")
		os.Exit(1)
	}
	fmt.Println("\nALL SCENARIOS PASSED")
}
