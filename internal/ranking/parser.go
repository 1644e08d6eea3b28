// Package ranking turns the inference service's doctor recommendations into
// doctor records. Structured records are used as-is; prose is parsed on a
// best-effort basis.
package ranking

import (
	"regexp"
	"strings"
)

// Doctor is one recommended doctor. JSON names follow the inference wire
// format and are also what clients of the chat API receive.
type Doctor struct {
	ID             string `json:"Doctor_ID"`
	Name           string `json:"Doctor_Name"`
	Branch         string `json:"Branch"`
	Specialization string `json:"Specialization"`
	AvailableDate  string `json:"Available_Date"`
	TimeSlot       string `json:"Time_Slot"`
}

// TextParser converts a prose recommendation into doctor records.
type TextParser interface {
	Parse(text string) []Doctor
}

var headerPattern = regexp.MustCompile(`^\d+\.\s*Dr\.\s*(.*)\s*\(ID:\s*(DOC\d+)\)\s*-\s*Branch:\s*(.*?)\s*-\s*Department:\s*(.*)`)

// BlockParser reads entries separated by a blank line. Each entry opens with
//
//	<n>. Dr. <name> (ID: <id>) - Branch: <branch> - Department: <department>
//
// optionally followed by "Available Date:" and "Available Time Slot:" lines.
// Entries whose first line does not match are skipped.
type BlockParser struct{}

func (BlockParser) Parse(text string) []Doctor {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var doctors []Doctor
	for _, block := range strings.Split(strings.TrimSpace(text), "\n\n") {
		lines := strings.Split(block, "\n")
		m := headerPattern.FindStringSubmatch(strings.TrimSpace(lines[0]))
		if m == nil {
			continue
		}
		doc := Doctor{
			Name:           strings.TrimSpace(m[1]),
			ID:             strings.TrimSpace(m[2]),
			Branch:         strings.TrimSpace(m[3]),
			Specialization: strings.TrimSpace(m[4]),
		}
		for _, line := range lines[1:] {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "Available Date:"):
				doc.AvailableDate = valueAfterColon(line)
			case strings.HasPrefix(line, "Available Time Slot:"):
				doc.TimeSlot = valueAfterColon(line)
			}
		}
		doctors = append(doctors, doc)
	}
	return doctors
}

func valueAfterColon(line string) string {
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value)
}

// FilterBySpecialization keeps doctors whose specialization equals department.
func FilterBySpecialization(doctors []Doctor, department string) []Doctor {
	out := make([]Doctor, 0, len(doctors))
	for _, d := range doctors {
		if d.Specialization == department {
			out = append(out, d)
		}
	}
	return out
}

var _ TextParser = BlockParser{}
