package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wolfman30/clinic-intake/internal/intake"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Italic(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#F59E0B")).
			Padding(0, 1)
)

func renderStart(s intake.StartResponse) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Conversation "+s.ConversationID),
		botStyle.Render("bot: "+s.Message),
	)
}

func renderEntry(e intake.ChatEntry) string {
	if e.Sender == intake.SenderUser {
		return userStyle.Render("you: " + e.Message)
	}
	return botStyle.Render("bot: " + e.Message)
}

func renderReply(r intake.Reply) string {
	lines := []string{botStyle.Render("bot: " + r.Message)}
	if r.State != "" {
		lines = append(lines, stateStyle.Render(fmt.Sprintf("[%s]", r.State)))
	}
	if r.SelectedDate != "" {
		lines = append(lines, stateStyle.Render("date: "+r.SelectedDate))
	}
	return strings.Join(lines, "\n")
}

func renderTranscript(v intake.TranscriptView) string {
	lines := make([]string, 0, len(v.ChatHistory))
	for _, e := range v.ChatHistory {
		lines = append(lines, renderEntry(e))
	}
	header := titleStyle.Render(fmt.Sprintf("Transcript %s (%s)", v.ConversationID, v.Source))
	if len(lines) == 0 {
		return header + "\n" + mutedStyle.Render("no messages")
	}
	return header + "\n" + boxStyle.Render(strings.Join(lines, "\n"))
}
