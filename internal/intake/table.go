package intake

import "context"

type handlerFunc func(c *Controller, ctx context.Context, s *Session, input string) Reply

// stateSpec is one row of the transition table. Blank input never reaches
// handle; reprompt answers it and the state is left unchanged.
type stateSpec struct {
	reprompt func(c *Controller, s *Session) Reply
	handle   handlerFunc
}

func fixedPrompt(state State, message string) func(*Controller, *Session) Reply {
	return func(*Controller, *Session) Reply { return say(state, message) }
}

var transitions = map[State]stateSpec{
	StateAskName: {
		reprompt: fixedPrompt(StateAskName, msgAskName),
		handle:   (*Controller).handleName,
	},
	StateAskAge: {
		reprompt: fixedPrompt(StateAskAge, msgInvalidAge),
		handle:   (*Controller).handleAge,
	},
	StateAskEmail: {
		reprompt: fixedPrompt(StateAskEmail, msgInvalidEmail),
		handle:   (*Controller).handleEmail,
	},
	StateAskGender: {
		reprompt: func(*Controller, *Session) Reply { return genderReprompt() },
		handle:   (*Controller).handleGender,
	},
	StateAskPincode: {
		reprompt: fixedPrompt(StateAskPincode, msgInvalidPincode),
		handle:   (*Controller).handlePincode,
	},
	StateAskSymptoms: {
		reprompt: fixedPrompt(StateAskSymptoms, msgAskSymptoms),
		handle:   (*Controller).handleSymptoms,
	},
	StateAskFollowup: {
		reprompt: fixedPrompt(StateAskFollowup, msgAskAnswer),
		handle:   (*Controller).handleFollowup,
	},
	StateSelectDepartment: {
		reprompt: func(_ *Controller, s *Session) Reply { return departmentReprompt(s) },
		handle:   (*Controller).handleSelectDepartment,
	},
	StateConfirmAppointment: {
		reprompt: fixedPrompt(StateConfirmAppointment, msgConfirmYesNo),
		handle:   (*Controller).handleConfirmAppointment,
	},
	StateAskAppointmentDate: {
		reprompt: func(c *Controller, _ *Session) Reply {
			return say(StateAskAppointmentDate, invalidDateMessage(errDateFormat, c.windowDays))
		},
		handle: (*Controller).handleAppointmentDate,
	},
	StateConfirmBranches: {
		reprompt: func(_ *Controller, s *Session) Reply { return branchConfirmReprompt(s) },
		handle:   (*Controller).handleConfirmBranches,
	},
	StateSelectBranches: {
		reprompt: func(_ *Controller, s *Session) Reply { return branchSelectReprompt(s, errNoSelection) },
		handle:   (*Controller).handleSelectBranches,
	},
	StateSelectDoctor: {
		reprompt: func(_ *Controller, s *Session) Reply { return doctorReprompt(s) },
		handle:   (*Controller).handleSelectDoctor,
	},
	StateEnd: {
		reprompt: fixedPrompt(StateEnd, msgConversationEnded),
		handle: func(*Controller, context.Context, *Session, string) Reply {
			return say(StateEnd, msgConversationEnded)
		},
	},
}

func genderReprompt() Reply {
	r := say(StateAskGender, msgInvalidGender)
	r.Genders = append([]string(nil), Genders...)
	return r
}

func departmentReprompt(s *Session) Reply {
	r := say(StateSelectDepartment, invalidDepartmentMessage(s.Departments))
	r.Departments = append([]string(nil), s.Departments...)
	return r
}

func branchConfirmReprompt(s *Session) Reply {
	r := say(StateConfirmBranches, msgConfirmBranches)
	r.Branches = firstBranches(s.Branches, 2)
	return r
}

func branchSelectReprompt(s *Session, reason error) Reply {
	r := say(StateSelectBranches, invalidBranchSelectionMessage(reason))
	r.Branches = append(r.Branches, s.Branches...)
	return r
}

func doctorReprompt(s *Session) Reply {
	r := say(StateSelectDoctor, msgInvalidDoctor)
	r.Doctors = append(r.Doctors, s.AvailableDoctors...)
	r.SelectedDate = s.SelectedDate
	return r
}
