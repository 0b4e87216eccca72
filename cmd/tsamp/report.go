package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/srg/tsamp/internal/streaming"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// report is the summary a command prints when it ends, in insertion order.
type report struct {
	command string
	fields  *orderedmap.OrderedMap[string, any]
	err     error
}

func newReport(command string) *report {
	return &report{command: command, fields: orderedmap.New[string, any]()}
}

func (r *report) set(key string, value any) *report {
	r.fields.Set(key, value)
	return r
}

func (r *report) addResult(res streaming.Result) *report {
	return r.set("outcome", res.Outcome.String()).
		set("buffers", res.BuffersIssued).
		set("bytes", res.Bytes).
		set("short_transfers", res.ShortTransfers).
		set("rewound_bytes", res.RewoundBytes).
		set("max_in_flight", res.MaxInFlight).
		set("elapsed_ms", res.Elapsed.Milliseconds())
}

func (r *report) fail(err error) *report {
	r.err = err
	return r
}

func (r *report) print(w io.Writer, asJSON bool) error {
	if asJSON {
		return r.printJSON(w)
	}

	status := color.New(color.FgGreen, color.Bold).Sprint("OK")
	if r.err != nil {
		status = color.New(color.FgRed, color.Bold).Sprint("FAILED")
	}
	fmt.Fprintf(w, "%s %s\n", status, r.command)
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(w, "  %s: %v\n", pair.Key, pair.Value)
	}
	return nil
}

func (r *report) printJSON(w io.Writer) error {
	out := orderedmap.New[string, any]()
	out.Set("command", r.command)
	out.Set("status", "ok")
	if r.err != nil {
		out.Set("status", "failed")
		out.Set("error", r.err.Error())
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// finish prints rep and returns err, so commands end with `return finish(...)`.
func finish(cmd interface{ OutOrStdout() io.Writer }, asJSON bool, rep *report, err error) error {
	rep.fail(err)
	if printErr := rep.print(cmd.OutOrStdout(), asJSON); printErr != nil && err == nil {
		return printErr
	}
	return err
}
