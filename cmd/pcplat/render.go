package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

var (
	headingStyle = ansi.Style{}.Bold().ForegroundColor(ansi.Cyan)
	dimStyle     = ansi.Style{}.Faint()
	okStyle      = ansi.Style{}.ForegroundColor(ansi.Green)
	failStyle    = ansi.Style{}.Bold().ForegroundColor(ansi.Red)
)

// renderer prints aligned tables, styled when writing to a terminal.
type renderer struct {
	w     io.Writer
	color bool
}

func newRenderer(f *os.File) *renderer {
	return &renderer{w: f, color: term.IsTerminal(int(f.Fd()))}
}

func (r *renderer) style(s ansi.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Styled(text)
}

func (r *renderer) heading(format string, args ...any) {
	fmt.Fprintf(r.w, "\n%s\n", r.style(headingStyle, fmt.Sprintf(format, args...)))
}

func (r *renderer) line(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

// table prints rows under header with columns padded to their widest cell.
// Cells may already carry styling.
func (r *renderer) table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = ansi.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(cell))
			}
		}
	}

	write := func(cells []string, style func(string) string) {
		var sb strings.Builder
		sb.WriteString("  ")
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(style(cell))
			if i < len(cells)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-ansi.StringWidth(cell)))
			}
		}
		fmt.Fprintln(r.w, sb.String())
	}

	write(header, func(s string) string { return r.style(dimStyle, s) })
	for _, row := range rows {
		if !r.color {
			for i := range row {
				row[i] = ansi.Strip(row[i])
			}
		}
		write(row, func(s string) string { return s })
	}
}
