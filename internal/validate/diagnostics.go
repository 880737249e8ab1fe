package validate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Record is one validation finding.
type Record struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Code     Code     `json:"code" yaml:"code"`
	TurnID   string   `json:"turn_id,omitempty" yaml:"turn_id,omitempty"`
	// Response is the 1-based response index within the turn, 0 when the
	// finding is not about a single response.
	Response int    `json:"response,omitempty" yaml:"response,omitempty"`
	Field    string `json:"field,omitempty" yaml:"field,omitempty"`
	Message  string `json:"message" yaml:"message"`
	Observed string `json:"observed,omitempty" yaml:"observed,omitempty"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// String renders the record as a single log line.
func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", r.Code, r.Message)
	if r.TurnID != "" {
		fmt.Fprintf(&b, " turn=%s", r.TurnID)
	}
	if r.Response > 0 {
		fmt.Fprintf(&b, " response=%d", r.Response)
	}
	if r.Field != "" {
		fmt.Fprintf(&b, " field=%s", r.Field)
	}
	if r.Observed != "" {
		fmt.Fprintf(&b, " observed=%q", r.Observed)
	}
	if r.Expected != "" {
		fmt.Fprintf(&b, " expected=%q", r.Expected)
	}
	return b.String()
}

func (r Record) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("code", string(r.Code))}
	if r.TurnID != "" {
		attrs = append(attrs, slog.String("turn", r.TurnID))
	}
	if r.Response > 0 {
		attrs = append(attrs, slog.Int("response", r.Response))
	}
	if r.Field != "" {
		attrs = append(attrs, slog.String("field", r.Field))
	}
	if r.Observed != "" {
		attrs = append(attrs, slog.String("observed", r.Observed))
	}
	if r.Expected != "" {
		attrs = append(attrs, slog.String("expected", r.Expected))
	}
	return attrs
}

// Diagnostics collects the findings of one validation run. It replaces a
// shared log stream: counts are read back directly, and every record is
// optionally mirrored to a logger as it arrives.
//
// A Diagnostics is not safe for concurrent use; the engine is
// single-threaded.
type Diagnostics struct {
	logger   *slog.Logger
	records  []Record
	warnings int
}

// NewDiagnostics creates a collector. logger may be nil.
func NewDiagnostics(logger *slog.Logger) *Diagnostics {
	return &Diagnostics{logger: logger}
}

// Warn records a warning.
func (d *Diagnostics) Warn(r Record) {
	r.Severity = SeverityWarning
	d.records = append(d.records, r)
	d.warnings++
	if d.logger != nil {
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, r.Message, r.attrs()...)
	}
}

// Fatal records a fatal condition and returns it as an error.
func (d *Diagnostics) Fatal(r Record, cause error) *FatalError {
	r.Severity = SeverityFatal
	d.records = append(d.records, r)
	if d.logger != nil {
		attrs := r.attrs()
		if cause != nil {
			attrs = append(attrs, slog.String("error", cause.Error()))
		}
		d.logger.LogAttrs(context.Background(), slog.LevelError, r.Message, attrs...)
	}
	return &FatalError{Code: r.Code, TurnID: r.TurnID, Field: r.Field, Message: r.Message, Err: cause}
}

// Records returns every finding in arrival order.
func (d *Diagnostics) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Warnings is the number of warnings recorded so far.
func (d *Diagnostics) Warnings() int {
	return d.warnings
}

// Errors returns the fatal records. There is at most one per run.
func (d *Diagnostics) Errors() []Record {
	var out []Record
	for _, r := range d.records {
		if r.Severity == SeverityFatal {
			out = append(out, r)
		}
	}
	return out
}

// CountByCode tallies warnings per code.
func (d *Diagnostics) CountByCode() map[Code]int {
	out := make(map[Code]int)
	for _, r := range d.records {
		if r.Severity == SeverityWarning {
			out[r.Code]++
		}
	}
	return out
}

// Scope locates findings within a run. The engine hands a Scope to PTKB
// checks so they report against the right turn and response.
type Scope struct {
	diag     *Diagnostics
	TurnID   string
	Response int
}

// Warn records a warning in this scope. observed and expected are formatted
// with fmt.Sprint when non-nil.
func (s Scope) Warn(code Code, field, message string, observed, expected any) {
	s.diag.Warn(s.record(code, field, message, observed, expected))
}

// Fatal records a fatal condition in this scope and returns it.
func (s Scope) Fatal(code Code, field, message string, observed, expected any) error {
	return s.diag.Fatal(s.record(code, field, message, observed, expected), nil)
}

func (s Scope) record(code Code, field, message string, observed, expected any) Record {
	return Record{
		Code:     code,
		TurnID:   s.TurnID,
		Response: s.Response,
		Field:    field,
		Message:  message,
		Observed: text(observed),
		Expected: text(expected),
	}
}

func text(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
