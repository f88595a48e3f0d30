// Package tui implements a terminal front-end for a tutorial session. The
// reference image is drawn as a schematic of the environment's components
// with the scheduler's overlays, cursor and click ripples on top; a side
// panel shows the step instruction and checklist.
package tui

import "github.com/charmbracelet/lipgloss"

// Checklist glyphs convey state without relying on color alone.
const (
	GlyphPending   = "○"
	GlyphChecking  = "◐"
	GlyphCompleted = "✓"
	GlyphFailed    = "✗"
	GlyphCursor    = "➤"
	GlyphPressed   = "◉"
	GlyphRipple    = "∘"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var modeBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

// --- Canvas styles ---

var (
	canvasBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	componentStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	overlayStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	rippleStyle = lipgloss.NewStyle().
			Foreground(colorCyan)
)

// --- Panel styles ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	itemPending = lipgloss.NewStyle().
			Foreground(colorWhite)

	itemChecking = lipgloss.NewStyle().
			Foreground(colorYellow)

	itemCompleted = lipgloss.NewStyle().
			Foreground(colorGreen)

	itemFailed = lipgloss.NewStyle().
			Foreground(colorRed)
)

// --- Key bar and notices ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)
)
