package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	passStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func title(s string) {
	fmt.Println(titleStyle.Render(s))
}

func passFail(ok bool) string {
	if ok {
		return passStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

func statusLabel(status string) string {
	switch status {
	case "completed", "SUCCESS":
		return passStyle.Render(status)
	case "failed", "ISSUES_FOUND":
		return failStyle.Render(status)
	default:
		return warnStyle.Render(status)
	}
}
