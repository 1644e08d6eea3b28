package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/wolfman30/clinic-intake/internal/intake"
)

type promptKind int

const (
	promptText promptKind = iota
	promptSelect
	promptMulti
)

// turnPrompt describes how to collect the next answer.
type turnPrompt struct {
	kind    promptKind
	options []string
	// values are sent verbatim for a select; nil means send the 1-based index.
	values []string
}

// promptFor picks a prompt shape from the state and the choices in the reply.
func promptFor(r intake.Reply) turnPrompt {
	switch {
	case r.State == intake.StateAskGender && len(r.Genders) > 0:
		return turnPrompt{kind: promptSelect, options: r.Genders, values: r.Genders}
	case r.State == intake.StateSelectDepartment && len(r.Departments) > 0:
		return turnPrompt{kind: promptSelect, options: r.Departments, values: r.Departments}
	case r.State == intake.StateConfirmAppointment:
		return turnPrompt{kind: promptSelect, options: []string{"Yes", "No"}, values: []string{"yes", "no"}}
	case r.State == intake.StateConfirmBranches:
		return turnPrompt{kind: promptSelect, options: []string{"Proceed with the nearest branches", "See more branches"}, values: []string{"proceed", "see more"}}
	case r.State == intake.StateSelectBranches && len(r.Branches) > 0:
		opts := make([]string, len(r.Branches))
		for i, b := range r.Branches {
			opts[i] = fmt.Sprintf("%s (%s, %s km)", b.Name, b.PinCode, b.Distance)
		}
		return turnPrompt{kind: promptMulti, options: opts}
	case r.State == intake.StateSelectDoctor && len(r.Doctors) > 0:
		opts := make([]string, len(r.Doctors))
		for i, d := range r.Doctors {
			opts[i] = fmt.Sprintf("Dr. %s - %s - %s", d.Name, d.Branch, d.TimeSlot)
		}
		return turnPrompt{kind: promptSelect, options: opts}
	}
	return turnPrompt{kind: promptText}
}

// inputFor converts picked option indices into the text the server expects.
func (p turnPrompt) inputFor(picked []int) string {
	if p.kind == promptSelect && p.values != nil && len(picked) == 1 {
		return p.values[picked[0]]
	}
	parts := make([]string, len(picked))
	for i, idx := range picked {
		parts[i] = strconv.Itoa(idx + 1)
	}
	return strings.Join(parts, ",")
}

func ask(r intake.Reply) (string, error) {
	p := promptFor(r)
	switch p.kind {
	case promptSelect:
		var idx int
		if err := survey.AskOne(&survey.Select{Message: "Choose:", Options: p.options}, &idx); err != nil {
			return "", err
		}
		return p.inputFor([]int{idx}), nil
	case promptMulti:
		var picked []int
		err := survey.AskOne(&survey.MultiSelect{Message: "Select branches:", Options: p.options}, &picked, survey.WithValidator(survey.MinItems(1)))
		if err != nil {
			return "", err
		}
		return p.inputFor(picked), nil
	}
	var text string
	err := survey.AskOne(&survey.Input{Message: ">"}, &text, survey.WithValidator(func(val interface{}) error {
		if strings.TrimSpace(val.(string)) == "" {
			return fmt.Errorf("please type a reply")
		}
		return nil
	}))
	return strings.TrimSpace(text), err
}
