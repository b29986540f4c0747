package steps

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineWriterSplitsLines(t *testing.T) {
	var lines []string
	w := &lineWriter{onLine: func(l string) { lines = append(lines, l) }}

	_, _ = w.Write([]byte("one\r\ntw"))
	_, _ = w.Write([]byte("o\nthree"))
	require.Equal(t, []string{"one", "two"}, lines)

	w.Flush()
	require.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestLineWriterBoundsUnterminatedOutput(t *testing.T) {
	var lines []string
	w := &lineWriter{onLine: func(l string) { lines = append(lines, l) }}

	progress := []byte(strings.Repeat("\r[=====>    ] 50%", 1024))
	for range 16 {
		_, _ = w.Write(progress)
		require.Less(t, w.partial.Len(), maxLineBytes)
	}
	require.NotEmpty(t, lines)
	for _, l := range lines {
		require.Len(t, l, maxLineBytes)
	}

	_, _ = w.Write([]byte("\ndone\n"))
	require.Equal(t, "done", lines[len(lines)-1])
	require.Zero(t, w.partial.Len())
}

func TestTailKeepsLastLines(t *testing.T) {
	tl := newTail(3)
	require.Nil(t, tl.snapshot())
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		tl.add(l)
	}
	require.Equal(t, []string{"c", "d", "e"}, tl.snapshot())
}

func TestOutcomeBoundsRecordedWarnings(t *testing.T) {
	var o outcome
	for range maxRecordedWarnings + 5 {
		o.addWarning("w")
	}
	require.Equal(t, maxRecordedWarnings+5, o.nWarn)
	require.Len(t, o.warnings, maxRecordedWarnings)
}

func TestWarningMatcher(t *testing.T) {
	m, err := newWarningMatcher([]string{"WARNING:", "(?i)^warning:"})
	require.NoError(t, err)
	require.True(t, m.match("file.rst:1: WARNING: bad"))
	require.True(t, m.match("warning: lowercase"))
	require.False(t, m.match("all good"))

	_, err = newWarningMatcher([]string{"("})
	require.Error(t, err)
}
