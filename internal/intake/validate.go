package intake

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Genders are the accepted gender answers.
var Genders = []string{"Male", "Female", "Other"}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

const dateLayout = "2006-01-02"

var (
	errDateFormat   = errors.New("use the format YYYY-MM-DD")
	errDateNotAfter = errors.New("the date must be after today")
	errDateTooFar   = errors.New("the date is too far ahead")

	errNoSelection       = errors.New("No input provided")
	errNoValidSelections = errors.New("No valid branches selected")
)

func isASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseAge(input string) (int, bool) {
	if !isASCIIDigits(input) {
		return 0, false
	}
	age, err := strconv.Atoi(input)
	if err != nil || age <= 0 {
		return 0, false
	}
	return age, true
}

func validEmail(input string) bool {
	return emailPattern.MatchString(input)
}

func validGender(input string) bool {
	for _, g := range Genders {
		if input == g {
			return true
		}
	}
	return false
}

func validPinCode(input string) bool {
	return len(input) == 6 && isASCIIDigits(input)
}

// parseAppointmentDate accepts dates strictly after today and at most
// windowDays ahead. Dates are compared as calendar days in today's location.
func parseAppointmentDate(input string, today time.Time, windowDays int) (string, error) {
	d, err := time.Parse(dateLayout, input)
	if err != nil {
		return "", errDateFormat
	}
	y, m, day := today.Date()
	start := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, windowDays)
	if !d.After(start) {
		return "", errDateNotAfter
	}
	if d.After(end) {
		return "", errDateTooFar
	}
	return d.Format(dateLayout), nil
}

func isYes(input string) bool {
	switch strings.ToLower(input) {
	case "yes", "y":
		return true
	}
	return false
}

func isNo(input string) bool {
	switch strings.ToLower(input) {
	case "no", "n":
		return true
	}
	return false
}

func isProceed(input string) bool {
	switch strings.ToLower(input) {
	case "proceed", "yes", "y":
		return true
	}
	return false
}

func isSeeMore(input string) bool {
	switch strings.ToLower(input) {
	case "see more", "more":
		return true
	}
	return false
}

// parseBranchSelection resolves comma separated 1-based indices against n
// branches. Non-numeric and out of range tokens are ignored; the result is
// in branch-list order without duplicates.
func parseBranchSelection(input string, n int) ([]int, error) {
	if strings.TrimSpace(input) == "" {
		return nil, errNoSelection
	}
	picked := make([]bool, n)
	for _, token := range strings.Split(input, ",") {
		token = strings.TrimSpace(token)
		if !isASCIIDigits(token) {
			continue
		}
		idx, err := strconv.Atoi(token)
		if err != nil || idx < 1 || idx > n {
			continue
		}
		picked[idx-1] = true
	}
	var out []int
	for i, ok := range picked {
		if ok {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		return nil, errNoValidSelections
	}
	return out, nil
}

// parseChoice resolves a single 1-based index against n options.
func parseChoice(input string, n int) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || idx < 1 || idx > n {
		return 0, false
	}
	return idx - 1, true
}

// normalizeQuestions keeps each question up to its first "?", strips "**"
// markers and drops blanks.
func normalizeQuestions(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, q := range raw {
		if i := strings.Index(q, "?"); i >= 0 {
			q = q[:i+1]
		}
		q = strings.TrimSpace(strings.ReplaceAll(q, "**", ""))
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}
