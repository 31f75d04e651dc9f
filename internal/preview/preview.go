// Package preview derives one-line plain-text previews of sessions from
// captured pane content, for the session list in the observation API.
package preview

import (
	"regexp"
	"strings"
)

// maxPreviewLen caps the preview at a length that fits a list row.
const maxPreviewLen = 120

// ansiPattern matches CSI sequences, OSC sequences (BEL- or
// ST-terminated), and charset selection escapes — the escape traffic
// interactive agents emit constantly.
var ansiPattern = regexp.MustCompile(
	`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)|\x1b[()][0-9A-B]`)

// Line returns the last non-blank line of the captured pane content with
// ANSI sequences stripped, truncated to a displayable length. Returns ""
// for an empty or all-blank capture.
func Line(capture string) string {
	plain := ansiPattern.ReplaceAllString(capture, "")

	lines := strings.Split(plain, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], " \t\r")
		if line == "" {
			continue
		}
		return truncate(strings.TrimLeft(line, " \t"), maxPreviewLen)
	}
	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
