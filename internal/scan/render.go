package scan

import (
	"bytes"
	"strings"
)

const defaultSmallBodyBytes = 2048

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// renderHints lists signs that the document is filled in by JavaScript, in
// which case the static HTML may not contain the containers the browser will.
func renderHints(body []byte, smallBody int) []string {
	if len(bytes.TrimSpace(body)) == 0 {
		return []string{"empty body"}
	}
	var hints []string
	if len(body) < smallBody && scriptDensityHigh(body) {
		hints = append(hints, "small script-heavy document")
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			hints = append(hints, "marker "+string(marker))
		}
	}
	return hints
}

// scriptDensityHigh reports whether script elements cover at least a quarter
// of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagEnd + 1

		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return total > 0 && coverage*100/total >= 25
}
