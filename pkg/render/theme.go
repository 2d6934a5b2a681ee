package render

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Autumn palette with warm earth tones
var (
	ColorBase03 = lipgloss.Color("#5c5044")
	ColorBase05 = lipgloss.Color("#ab937b")

	ColorRed    = lipgloss.Color("#d95f5f")
	ColorOrange = lipgloss.Color("#eb8755")
	ColorYellow = lipgloss.Color("#f5b761")
	ColorGreen  = lipgloss.Color("#93b56b")
	ColorCyan   = lipgloss.Color("#61afaf")

	ColorFocus   = ColorOrange
	ColorWarning = ColorYellow
	ColorError   = ColorRed
	ColorInfo    = ColorCyan
	ColorMuted   = ColorBase03
)

// Styles are the terminal styles used for conversation output
type Styles struct {
	Prompt           lipgloss.Style
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	Thought          lipgloss.Style
	ErrorMessage     lipgloss.Style
	InfoMessage      lipgloss.Style
	WarningMessage   lipgloss.Style
	Muted            lipgloss.Style
}

// DefaultStyles returns styles bound to the color profile of w
func DefaultStyles(w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	return &Styles{
		Prompt: r.NewStyle().
			Foreground(ColorFocus).
			Bold(true),

		UserMessage: r.NewStyle().
			Foreground(ColorGreen),

		AssistantMessage: r.NewStyle().
			Foreground(ColorBase05),

		Thought: r.NewStyle().
			Foreground(ColorMuted).
			Italic(true),

		ErrorMessage: r.NewStyle().
			Foreground(ColorError).
			Bold(true),

		InfoMessage: r.NewStyle().
			Foreground(ColorInfo),

		WarningMessage: r.NewStyle().
			Foreground(ColorWarning),

		Muted: r.NewStyle().
			Foreground(ColorMuted),
	}
}
