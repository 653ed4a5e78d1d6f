package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"gebr/internal/daemonctl"
	"gebr/internal/ipc"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var severityStyles = map[string]struct {
	tag   string
	color string
}{
	daemonctl.SeverityOK:    {"OK", ansiGreen},
	daemonctl.SeverityWarn:  {"WARN", ansiYellow},
	daemonctl.SeverityError: {"ERROR", ansiRed},
	daemonctl.SeverityInfo:  {"INFO", ansiBlue},
}

// statusPrinter writes the sectioned report of `gebr status`.
type statusPrinter struct {
	out   io.Writer
	color bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, color: shouldColorize(out)}
}

func (p *statusPrinter) section(title string) {
	for _, line := range renderSectionHeader(title, p.color) {
		fmt.Fprintln(p.out, line)
	}
}

func (p *statusPrinter) line(label, severity, detail string) {
	fmt.Fprintln(p.out, renderStatusLine(label, severity, detail, p.color))
}

// renderStatusLine formats "label: [TAG] detail" with the label padded to a
// fixed width. Unknown severities render as INFO.
func renderStatusLine(label, severity, detail string, colorize bool) string {
	style, ok := severityStyles[strings.ToLower(strings.TrimSpace(severity))]
	if !ok {
		style = severityStyles[daemonctl.SeverityInfo]
	}
	text := "[" + style.tag + "]"
	if detail != "" {
		text += " " + detail
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)
	if colorize {
		return style.color + line + ansiReset
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	lines := []string{heading, strings.Repeat("-", len(heading))}
	if colorize {
		for i := range lines {
			lines[i] = ansiBlue + lines[i] + ansiReset
		}
	}
	return lines
}

func shouldColorize(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// dependencyLines renders the summary row followed by one row per tool.
func dependencyLines(list []ipc.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := []string{renderStatusLine("Summary", summary.Severity, summary.Detail, colorize)}
	for _, dep := range list {
		detail := strings.TrimSpace(dep.Detail)
		switch {
		case dep.Available && dep.Command != "":
			detail = "Ready (command: " + dep.Command + ")"
		case dep.Available:
			detail = "Ready"
		case detail == "":
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, daemonctl.Severity(dep), detail, colorize))
	}
	return lines
}

func countRows(counts map[string]int) [][]string {
	var rows [][]string
	for _, token := range []string{"queued", "running", "finished", "failed", "canceled"} {
		if counts[token] > 0 {
			rows = append(rows, []string{displayStatus(token), fmt.Sprint(counts[token])})
		}
	}
	return rows
}
