package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-intake/internal/inference"
	"github.com/wolfman30/clinic-intake/internal/ranking"
)

const (
	msgAskName            = "Please provide your name."
	msgAskAge             = "Please provide your age."
	msgInvalidAge         = "Please provide a valid age."
	msgAskEmail           = "Please provide your email address."
	msgInvalidEmail       = "Please provide a valid email address."
	msgAskGender          = "Please select your gender."
	msgInvalidGender      = "Please select a valid gender from: Male, Female, Other."
	msgAskPincode         = "Please provide your pin code."
	msgInvalidPincode     = "Please provide a valid 6-digit pin code."
	msgAskSymptoms        = "Please describe your symptoms."
	msgAskAnswer          = "Please provide an answer."
	msgSymptomsFailed     = "Failed to process symptoms. Please try again."
	msgNoDepartment       = "We could not match your symptoms to a department. Please describe your symptoms in more detail."
	msgConfirmDepartment  = "Do you want to book an appointment with this department?"
	msgConfirmYesNo       = "Please select Yes or No."
	msgGoodbye            = "Thank you for using our service. Have a great day!"
	msgAskDate            = "Please select your preferred appointment date (within the next month, format: YYYY-MM-DD)."
	msgNoBranchesFound    = "No branches found for your pincode. Please enter a different pincode."
	msgBranchesFailed     = "Failed to fetch branches. Please try again."
	msgConfirmBranches    = "Please respond with 'Proceed' or 'See more'."
	msgNoBranchesToSelect = "No branches available. Please try again."
	msgInvalidDoctor      = "Invalid selection. Please select a doctor by typing their number."
	msgNoDepartmentChosen = "No department selected. Please start over."
	msgDateUnreachable    = "Unable to connect to the server to validate the date. Please try again later."
	msgDateServerError    = "Server error while validating date. Please try again."
	msgDateRejected       = "The selected date is invalid or not available. Please choose a different date."
	msgNoDoctors          = "No doctors available for the selected date and department. Please try a different date."
	msgNoSimilarCases     = "No similar cases found for your symptoms. Try a different symptom or date."
	msgConversationEnded  = "This conversation has ended. Please start a new conversation."
	msgTurnFailed         = "Something went wrong. Please try again."
)

func invalidDepartmentMessage(departments []string) string {
	return "Invalid selection. Please select from: " + strings.Join(departments, ", ")
}

func selectDepartmentMessage(departments []string) string {
	return "Based on your symptoms, please select a department: " + strings.Join(departments, ", ")
}

func invalidDateMessage(reason error, windowDays int) string {
	return fmt.Sprintf("Invalid date: %s. Please select a future date within the next %d days (format: YYYY-MM-DD).", reason, windowDays)
}

func invalidBranchSelectionMessage(reason error) string {
	return fmt.Sprintf("Invalid selection: %s. Please select branches by typing their numbers separated by commas.", reason)
}

func numberedBranches(branches []inference.Branch) string {
	lines := make([]string, len(branches))
	for i, b := range branches {
		lines[i] = fmt.Sprintf("%d. %s", i+1, b.Name)
	}
	return strings.Join(lines, "\n")
}

func nearestBranchesMessage(branches []inference.Branch) string {
	return "The two nearest branches are:\n" + numberedBranches(branches) + "\nDo you want to proceed with these or see more?"
}

func allBranchesMessage(branches []inference.Branch) string {
	return "Here are all available branches:\n" + numberedBranches(branches) + "\nPlease select branches by typing their numbers separated by commas."
}

func doctorsMessage(doctors []ranking.Doctor) string {
	lines := make([]string, len(doctors))
	for i, d := range doctors {
		lines[i] = fmt.Sprintf("%d. Dr. %s (ID: %s) - Branch: %s - Department: %s - Available Time: %s",
			i+1, d.Name, d.ID, d.Branch, d.Specialization, d.TimeSlot)
	}
	return "Here are the recommended doctors for your appointment:\n" + strings.Join(lines, "\n") + "\nPlease select a doctor by typing their number."
}

func noMatchingDoctorsMessage(department, date string) string {
	return fmt.Sprintf("No doctors found for %s on %s. Please try a different date or department.", department, date)
}

func dateValidationFailedMessage(detail string) string {
	return fmt.Sprintf("Unable to validate the appointment date. Error: %s. Please try again.", detail)
}

func findDoctorsFailedMessage(detail string) string {
	return fmt.Sprintf("Unable to find doctors. Error: %s, please try a different date or contact support.", detail)
}

func similarCasesFailedMessage(detail string) string {
	return fmt.Sprintf("Unable to map to similar cases. Error: %s, try a different date or contact support.", detail)
}

func rankDoctorsFailedMessage(detail string) string {
	return fmt.Sprintf("Unable to rank doctors. Error: %s, try a different date or contact support.", detail)
}

func emergencyMessage(hotline string, branches []inference.Branch, lookupErr error) string {
	lead := fmt.Sprintf("This appears to be an emergency. Please call our ambulance service at %s immediately. ", hotline)
	switch {
	case lookupErr != nil:
		return lead + "Unable to fetch hospital branches. Please seek immediate medical attention."
	case len(branches) == 0:
		return lead + "No branches found for your pincode. Please seek immediate medical attention."
	}
	names := make([]string, len(branches))
	for i, b := range branches {
		names[i] = b.Name
	}
	return lead + fmt.Sprintf("The two nearest hospital branches are: %s. Please rush to one of these hospitals. Thank you for using our service.", strings.Join(names, ", "))
}

// combinedSymptom appends the follow-up answers, JSON encoded, to the symptom.
func combinedSymptom(symptom string, answers []inference.FollowupAnswer) string {
	if len(answers) == 0 {
		return symptom
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(answers); err != nil {
		return symptom
	}
	return symptom + " " + strings.TrimSpace(buf.String())
}
