// Package util carries the pieces every command shares: the output envelope,
// global flags, destructive-action confirmation, and provider wiring.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"sigs.k8s.io/yaml"
)

// Format selects how command results are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", NewUsageError("unknown output format %q, choose text, json or yaml", s)
	}
}

// Envelope is the uniform shape of every structured response.
type Envelope struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Output renders command results in the chosen format.
type Output struct {
	Format Format
	Out    io.Writer
}

// Structured reports whether the output is machine-readable. Structured
// modes never prompt and never interleave free-form text.
func (o *Output) Structured() bool { return o.Format != FormatText }

// OK emits a success envelope, or the plain message in text mode.
func (o *Output) OK(message string, data any) error {
	if !o.Structured() {
		if message != "" {
			fmt.Fprintln(o.Out, message)
		}
		return nil
	}
	return o.write(Envelope{Status: "ok", Timestamp: time.Now().UTC(), Message: message, Data: data})
}

// Fail emits an error envelope. Text mode prints the errors line by line;
// the command's returned error still decides the exit code.
func (o *Output) Fail(code, message string, errs []string, data any) error {
	if !o.Structured() {
		if message != "" {
			fmt.Fprintln(o.Out, message)
		}
		for _, e := range errs {
			fmt.Fprintln(o.Out, "  - "+e)
		}
		return nil
	}
	return o.write(Envelope{
		Status: "error", Timestamp: time.Now().UTC(),
		Message: message, ErrorCode: code, Errors: errs, Data: data,
	})
}

// Textf prints free-form text, but only in text mode, keeping structured
// output parseable.
func (o *Output) Textf(format string, args ...any) {
	if o.Structured() {
		return
	}
	fmt.Fprintf(o.Out, format, args...)
}

func (o *Output) write(env Envelope) error {
	switch o.Format {
	case FormatYAML:
		data, err := yaml.Marshal(env)
		if err != nil {
			return fmt.Errorf("cannot encode response: %w", err)
		}
		_, err = o.Out.Write(data)
		return err
	default:
		enc := json.NewEncoder(o.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
}

// UsageError marks a command invocation error; main exits 2 for these.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string { return e.msg }

// NewUsageError builds a UsageError with Sprintf semantics.
func NewUsageError(format string, args ...any) *UsageError {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}
