package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Presence in an expected document matches any actual value, e.g. "elapsed_ms": "<<PRESENCE>>".
const Presence = "<<PRESENCE>>"

type JSONAssertOptions struct {
	// IgnoreExtraKeys drops object keys of actual that expected does not name.
	IgnoreExtraKeys bool `default:"true"`
	// IgnoredFields are removed from both sides at every depth.
	IgnoredFields []string
}

// JSONOption configures a JSONAsserter.
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

func NewJSONAsserter(t TestingT, opts ...JSONOption) *JSONAsserter {
	options := JSONAssertOptions{}
	defaults.SetDefaults(&options)
	for _, opt := range opts {
		opt(&options)
	}
	return &JSONAsserter{t: t, options: options}
}

func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = fields }
}

// Assert reports a structural diff when actual differs from expected.
func (ja *JSONAsserter) Assert(actual, expected string) bool {
	ja.t.Helper()
	if diff := ja.Diff(actual, expected); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// Diff returns an ASCII diff from expected to actual, empty when they match.
func (ja *JSONAsserter) Diff(actual, expected string) string {
	var want, got any
	if err := json.Unmarshal([]byte(expected), &want); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actual), &got); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only.
	if _, ok := want.([]any); ok {
		want = map[string]any{"array": want}
		got = map[string]any{"array": got}
	}

	for _, field := range ja.options.IgnoredFields {
		dropField(want, field)
		dropField(got, field)
	}
	matchPresence(want, got)
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(got, want)
	}

	wantBytes, _ := json.Marshal(want)
	gotBytes, _ := json.Marshal(got)
	diff, err := gojsondiff.New().Compare(wantBytes, gotBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	wantMap, _ := want.(map[string]any)
	out, err := formatter.NewAsciiFormatter(wantMap, formatter.AsciiFormatterConfig{ShowArrayIndex: true}).Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON diff formatting failed: %v", err)
	}
	return out
}

// matchPresence replaces Presence placeholders with the actual value when one exists.
func matchPresence(want, got any) {
	walkPairs(want, got, func(w map[string]any, g map[string]any) {
		for k, v := range w {
			if s, ok := v.(string); ok && s == Presence {
				if gv, exists := g[k]; exists {
					w[k] = gv
				}
			}
		}
	})
}

func pruneExtraKeys(got, want any) {
	walkPairs(want, got, func(w map[string]any, g map[string]any) {
		for k := range g {
			if _, ok := w[k]; !ok {
				delete(g, k)
			}
		}
	})
}

func dropField(v any, field string) {
	switch node := v.(type) {
	case map[string]any:
		delete(node, field)
		for _, child := range node {
			dropField(child, field)
		}
	case []any:
		for _, child := range node {
			dropField(child, field)
		}
	}
}

// walkPairs calls fn for every object present at the same path on both sides.
func walkPairs(want, got any, fn func(w, g map[string]any)) {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return
		}
		fn(w, g)
		for k, child := range w {
			walkPairs(child, g[k], fn)
		}
	case []any:
		g, ok := got.([]any)
		if !ok {
			return
		}
		for i := range min(len(w), len(g)) {
			walkPairs(w[i], g[i], fn)
		}
	}
}
