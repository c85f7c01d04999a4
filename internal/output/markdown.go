package output

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// RenderMarkdown renders a report body for the terminal, word-wrapped to the
// current window. Blank input renders to an empty string.
func RenderMarkdown(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth()),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// renderWidth picks the wrap column: the window size when stdout is a tty,
// the COLUMNS variable otherwise. Clamped so report tables stay legible.
func renderWidth() int {
	width := 0
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	} else if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil {
		width = cols
	}
	switch {
	case width <= 0:
		return 80
	case width < 40:
		return 40
	default:
		return width
	}
}
