package scan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderHints(t *testing.T) {
	t.Parallel()

	article := "<html><body><article class=\"blogPost\">" + strings.Repeat("word ", 600) + "</article></body></html>"

	tests := []struct {
		name string
		body string
		want []string
	}{
		{name: "empty", body: "  \n", want: []string{"empty body"}},
		{name: "next marker", body: `<div id="__next"></div>` + strings.Repeat(" ", 3000), want: []string{"marker __next"}},
		{name: "script heavy", body: `<html><script>var a=1;</script><p>t</p></html>`, want: []string{"small script-heavy document"}},
		{
			name: "script heavy spa",
			body: `<html><div id="root"></div><script src="app.js"></script></html>`,
			want: []string{"small script-heavy document", `marker id="root"`},
		},
		{name: "static article", body: article, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, renderHints([]byte(tt.body), defaultSmallBodyBytes))
		})
	}
}

func TestScriptDensityHigh(t *testing.T) {
	t.Parallel()

	require.False(t, scriptDensityHigh([]byte("<p>plain text only</p>")))
	require.True(t, scriptDensityHigh([]byte("<p>x</p><script>unterminated")))
	require.True(t, scriptDensityHigh([]byte("<p>x</p><script")))
}
