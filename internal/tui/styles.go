package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Teal accent color for chatviz branding.
const accentTeal = "#2DD4BF"

// CHATVIZ ASCII art (filled block style).
var bannerArt = []string{
	" ██████╗██╗  ██╗ █████╗ ████████╗██╗   ██╗██╗███████╗",
	"██╔════╝██║  ██║██╔══██╗╚══██╔══╝██║   ██║██║╚══███╔╝",
	"██║     ███████║███████║   ██║   ██║   ██║██║  ███╔╝ ",
	"██║     ██╔══██║██╔══██║   ██║   ╚██╗ ██╔╝██║ ███╔╝  ",
	"╚██████╗██║  ██║██║  ██║   ██║    ╚████╔╝ ██║███████╗",
	" ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝     ╚═══╝  ╚═╝╚══════╝",
}

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Banner     lipgloss.Style
	User       lipgloss.Style
	Assistant  lipgloss.Style
	System     lipgloss.Style
	Tips       lipgloss.Style
	Error      lipgloss.Style
	Prompt     lipgloss.Style
	Separator  lipgloss.Style
	StatusBar  lipgloss.Style
	ChartTitle lipgloss.Style
	ChartAxis  lipgloss.Style
	ChartBar   lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentTeal)),
		User:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:     lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:       lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		ChartTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentTeal)),
		ChartAxis:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		ChartBar:   lipgloss.NewStyle().Foreground(lipgloss.Color(accentTeal)),
	}
}

// RenderBanner returns the CHATVIZ ASCII art banner as a styled string.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range bannerArt {
		_, _ = b.WriteString(s.Banner.Render(line))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// welcomeTips contains getting started tips displayed under the banner.
var welcomeTips = []string{
	"Tips for getting started:",
	"  • Ask about your data - tables and series become charts automatically",
	"  • Use /help to see available commands",
	"  • Press Ctrl+C to cancel, Ctrl+D to exit",
	"  • Up/Down arrows navigate command history",
}

// RenderWelcomeTips returns styled welcome tips.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}
