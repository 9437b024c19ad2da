package interceptor

import (
	"errors"
	"strings"

	"gorged/models"
)

// Markers delimiting the generated table in a README.
const (
	DocsBeginMarker = "BEGIN FLAG DOCS"
	DocsEndMarker   = "END FLAG DOCS"
)

// MarkdownTable renders infos as the README table of interceptors.
func MarkdownTable(infos []models.InterceptorInfo) string {
	var b strings.Builder
	b.WriteString("|Name|Enabled by default?|Description|\n|-|-|-|")
	for _, info := range infos {
		enabled := "⛔"
		if info.DefaultEnabled {
			enabled = "✅"
		}
		b.WriteString("\n|`" + info.ID + "`|" + enabled + "|" + strings.ReplaceAll(info.Description, "|", `\|`) + "|")
	}
	return b.String()
}

// ReplaceDocsRegion swaps everything between the line holding
// DocsBeginMarker and the line holding DocsEndMarker for table. The marker
// lines themselves are kept.
func ReplaceDocsRegion(markdown, table string) (string, error) {
	lines := strings.Split(markdown, "\n")
	begin, end := -1, -1
	for i, line := range lines {
		if begin < 0 && strings.Contains(line, DocsBeginMarker) {
			begin = i
		} else if begin >= 0 && strings.Contains(line, DocsEndMarker) {
			end = i
			break
		}
	}
	if begin < 0 || end < 0 {
		return "", errors.New("markers " + DocsBeginMarker + " / " + DocsEndMarker + " not found in order")
	}

	out := make([]string, 0, begin+len(lines)-end+3)
	out = append(out, lines[:begin+1]...)
	out = append(out, "", table, "")
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n"), nil
}
