package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

// recordingT captures failures so asserters can be tested on both outcomes.
type recordingT struct {
	errors []string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTextAsserter_Match(t *testing.T) {
	rt := &recordingT{}
	ok := NewTextAsserter(rt).Assert("outcome: eof  \nbytes: 300\n\n", "outcome: eof\nbytes: 300")

	assert.True(t, ok)
	assert.Empty(t, rt.errors, "trailing whitespace MUST be ignored by default")
}

func TestTextAsserter_Mismatch(t *testing.T) {
	rt := &recordingT{}
	ok := NewTextAsserter(rt).Assert("outcome: timeout\nbytes: 300", "outcome: eof\nbytes: 300")

	assert.False(t, ok)
	if assert.Len(t, rt.errors, 1) {
		assert.Contains(t, rt.errors[0], "-outcome: eof")
		assert.Contains(t, rt.errors[0], "+outcome: timeout")
	}
}

func TestTextAsserter_MasksANSI(t *testing.T) {
	green := color.New(color.FgGreen)
	green.EnableColor()

	ta := NewTextAsserter(t)
	ta.Assert(green.Sprint("OK")+" playback", "OK playback")

	strict := NewTextAsserter(&recordingT{}, WithMaskANSI(false))
	assert.NotEmpty(t, strict.Diff(green.Sprint("OK"), "OK"))
}

func TestTextAsserter_StrictWhitespace(t *testing.T) {
	ta := NewTextAsserter(&recordingT{}, WithTrimSpace(false), WithIgnoreTrailingWhitespace(false))
	assert.NotEmpty(t, ta.Diff("a \n", "a"))
}

func TestTextAsserter_ColoredDiff(t *testing.T) {
	diff := NewTextAsserter(&recordingT{}, WithEnableColors(true)).Diff("a b", "a c")

	assert.Contains(t, diff, "\x1b[")
	assert.True(t, strings.Contains(diff, "a·b"), "changed lines MUST show whitespace")
}
