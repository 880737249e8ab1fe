package validate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/ikat-tools/runvalidator/internal/oracle"
	"github.com/ikat-tools/runvalidator/internal/run"
)

// Result summarises one validation run.
type Result struct {
	SessionID      string       `json:"session_id" yaml:"session_id"`
	RunName        string       `json:"run_name" yaml:"run_name"`
	TurnsValidated int          `json:"turns_validated" yaml:"turns_validated"`
	TotalTurns     int          `json:"total_turns" yaml:"total_turns"`
	ServiceErrors  int          `json:"service_errors" yaml:"service_errors"`
	Warnings       int          `json:"warnings" yaml:"warnings"`
	WarningsByCode map[Code]int `json:"warnings_by_code,omitempty" yaml:"warnings_by_code,omitempty"`
	PassageChecks  bool         `json:"passage_checks" yaml:"passage_checks"`
	Fatal          *Record      `json:"fatal,omitempty" yaml:"fatal,omitempty"`
}

// OK reports whether validation completed without a fatal condition.
func (r Result) OK() bool {
	return r.Fatal == nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionID fixes the session id reported in Result. By default each
// Validate call gets a fresh UUIDv7.
func WithSessionID(id string) Option {
	return func(e *Engine) { e.sessionID = id }
}

// Engine validates runs against a reference topic set.
//
// Turns are processed strictly in run order on the calling goroutine. The
// only blocking operation is the per-turn existence call.
type Engine struct {
	cfg       Config
	topics    *run.TopicSet
	checker   oracle.Checker
	diag      *Diagnostics
	sessionID string
}

// New creates an engine. A nil checker skips passage existence checks;
// a nil diag discards records.
func New(cfg Config, topics *run.TopicSet, checker oracle.Checker, diag *Diagnostics, opts ...Option) *Engine {
	if cfg.PTKB == nil {
		cfg.PTKB = StrictPTKB{}
	}
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	e := &Engine{cfg: cfg, topics: topics, checker: checker, diag: diag}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Diagnostics returns the collector the engine records into.
func (e *Engine) Diagnostics() *Diagnostics {
	return e.diag
}

// Validate runs the global, cardinality and per-turn checks over r.
//
// The returned error is a *FatalError for any condition that ends
// validation, or the context error if ctx is cancelled between turns. The
// Result is filled in either way.
func (e *Engine) Validate(ctx context.Context, r *run.Run) (Result, error) {
	sessionID := e.sessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	res := Result{
		SessionID:     sessionID,
		RunName:       r.Name,
		TotalTurns:    len(r.Turns),
		PassageChecks: e.checker != nil,
	}

	e.checkRun(r)

	if err := e.checkCardinality(r); err != nil {
		return e.finish(res, err)
	}

	for i := range r.Turns {
		if err := ctx.Err(); err != nil {
			return e.finish(res, err)
		}
		if err := e.validateTurn(ctx, r.Type, &r.Turns[i], &res); err != nil {
			return e.finish(res, err)
		}
		res.TurnsValidated++

		if w := e.diag.Warnings(); w > e.cfg.MaxWarnings {
			err := e.diag.Fatal(Record{
				Code:     ErrCodeWarningLimit,
				TurnID:   r.Turns[i].TurnID,
				Message:  fmt.Sprintf("maximum number of warnings exceeded (%d > %d), aborting", w, e.cfg.MaxWarnings),
				Observed: fmt.Sprint(w),
				Expected: fmt.Sprintf("<= %d", e.cfg.MaxWarnings),
			}, nil)
			return e.finish(res, err)
		}
	}
	return e.finish(res, nil)
}

func (e *Engine) finish(res Result, err error) (Result, error) {
	res.Warnings = e.diag.Warnings()
	res.WarningsByCode = e.diag.CountByCode()
	if IsFatal(err) {
		errs := e.diag.Errors()
		fatal := errs[len(errs)-1]
		res.Fatal = &fatal
	}
	return res, err
}

func (e *Engine) checkRun(r *run.Run) {
	if r.Name == "" {
		e.diag.Warn(Record{Code: WarnRunName, Field: "run_name", Message: "run has an empty run_name field"})
	}
	switch {
	case r.Type == "":
		e.diag.Warn(Record{Code: WarnRunType, Field: "run_type", Message: "run has an empty run_type field"})
	case !r.Type.Valid():
		e.diag.Warn(Record{
			Code:     WarnRunType,
			Field:    "run_type",
			Message:  "run has an unrecognised run_type",
			Observed: string(r.Type),
			Expected: runTypeList(),
		})
	}
}

// checkCardinality compares the run's turn and topic counts with the
// reference before any per-turn work.
func (e *Engine) checkCardinality(r *run.Run) error {
	expect := e.topics.Expectations()

	if len(r.Turns) == 0 {
		return e.diag.Fatal(Record{Code: ErrCodeEmptyRun, Field: "turns", Message: "run contains no turns"}, nil)
	}
	if len(r.Turns) != expect.Turns {
		return e.diag.Fatal(Record{
			Code:     ErrCodeTurnCount,
			Field:    "turns",
			Message:  fmt.Sprintf("run contains %d turns, the test topics contain %d turns", len(r.Turns), expect.Turns),
			Observed: fmt.Sprint(len(r.Turns)),
			Expected: fmt.Sprint(expect.Turns),
		}, nil)
	}

	perTopic := make(map[string]int)
	for _, t := range r.Turns {
		id, err := run.ParseTurnID(t.TurnID)
		if err != nil {
			return e.diag.Fatal(Record{
				Code:     ErrCodeTurnID,
				TurnID:   t.TurnID,
				Field:    "turn_id",
				Message:  "failed to parse turn id",
				Observed: t.TurnID,
			}, err)
		}
		perTopic[id.Topic]++
	}

	if len(perTopic) != expect.Topics {
		return e.diag.Fatal(Record{
			Code:     ErrCodeTopicCount,
			Field:    "turns",
			Message:  fmt.Sprintf("run contains %d topics, the expected number is %d", len(perTopic), expect.Topics),
			Observed: fmt.Sprint(len(perTopic)),
			Expected: fmt.Sprint(expect.Topics),
		}, nil)
	}

	for _, number := range e.topics.Numbers() {
		topic, _ := e.topics.Lookup(number)
		got, ok := perTopic[number]
		if !ok {
			return e.diag.Fatal(Record{
				Code:     ErrCodeTopicMissing,
				Field:    "turns",
				Message:  fmt.Sprintf("topic %s does not appear in the run", number),
				Expected: number,
			}, nil)
		}
		if got != topic.TurnCount() {
			return e.diag.Fatal(Record{
				Code:     ErrCodeTopicTurnCount,
				Field:    "turns",
				Message:  fmt.Sprintf("topic %s should have %d turns but has %d", number, topic.TurnCount(), got),
				Observed: fmt.Sprint(got),
				Expected: fmt.Sprint(topic.TurnCount()),
			}, nil)
		}
	}
	return nil
}

func (e *Engine) validateTurn(ctx context.Context, runType run.RunType, turn *run.Turn, res *Result) error {
	id, err := run.ParseTurnID(turn.TurnID)
	if err != nil {
		return e.diag.Fatal(Record{
			Code:     ErrCodeTurnID,
			TurnID:   turn.TurnID,
			Field:    "turn_id",
			Message:  "failed to parse turn id",
			Observed: turn.TurnID,
		}, err)
	}
	topic, ok := e.topics.Lookup(id.Topic)
	if !ok {
		return e.diag.Fatal(Record{
			Code:     ErrCodeUnknownTopic,
			TurnID:   turn.TurnID,
			Field:    "turn_id",
			Message:  fmt.Sprintf("topic %s is not in the test topics", id.Topic),
			Observed: id.Topic,
		}, nil)
	}
	if id.Number < 1 || id.Number > topic.TurnCount() {
		return e.diag.Fatal(Record{
			Code:     ErrCodeTurnRange,
			TurnID:   turn.TurnID,
			Field:    "turn_id",
			Message:  fmt.Sprintf("turn number %d is outside the range of topic %s", id.Number, id.Topic),
			Observed: fmt.Sprint(id.Number),
			Expected: fmt.Sprintf("1..%d", topic.TurnCount()),
		}, nil)
	}

	if e.checker != nil {
		if err := e.checkPassages(ctx, turn, res); err != nil {
			return err
		}
	}

	prevRank := 0
	for i := range turn.Responses {
		resp := &turn.Responses[i]
		s := Scope{diag: e.diag, TurnID: turn.TurnID, Response: i + 1}

		e.checkResponse(s, runType, resp, prevRank)
		prevRank = resp.Rank

		e.checkProvenance(s, resp)

		if err := checkCitations(s, resp); err != nil {
			return err
		}
		if err := e.cfg.PTKB.CheckPTKB(s, topic, resp.PTKBProvenance); err != nil {
			return err
		}
	}
	return nil
}

// checkPassages asks the oracle about every distinct passage id in the turn
// with a single call. Any oracle failure is fatal.
func (e *Engine) checkPassages(ctx context.Context, turn *run.Turn, res *Result) error {
	ids := turnPassageIDs(turn)
	if len(ids) == 0 {
		return nil
	}

	callCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	exists, err := e.checker.CheckExistence(callCtx, ids)
	if err == nil && len(exists) != len(ids) {
		err = fmt.Errorf("%w: sent %d ids, received %d results", oracle.ErrProtocol, len(ids), len(exists))
	}
	if err != nil {
		res.ServiceErrors++
		return e.diag.Fatal(Record{
			Code:    ErrCodeService,
			TurnID:  turn.TurnID,
			Field:   "passage_provenance",
			Message: "an error occurred when validating passages",
		}, err)
	}

	for i, ok := range exists {
		if !ok {
			e.diag.Warn(Record{
				Code:     WarnMissingPassage,
				TurnID:   turn.TurnID,
				Field:    "passage_provenance.id",
				Message:  "provenance id does not exist in the passage collection",
				Observed: ids[i],
			})
		}
	}
	return nil
}

func (e *Engine) checkResponse(s Scope, runType run.RunType, resp *run.Response, prevRank int) {
	if resp.Rank <= 0 {
		s.Warn(WarnRank, "rank", "response rank is missing or not positive", resp.Rank, nil)
	}
	if resp.Rank <= prevRank {
		s.Warn(WarnRankOrder, "rank",
			fmt.Sprintf("rank %d is less than or equal to previous rank %d", resp.Rank, prevRank),
			resp.Rank, fmt.Sprintf("> %d", prevRank))
	}

	if resp.Text == "" {
		if !runType.AllowsEmptyText() {
			s.Warn(WarnText, "text", "response text is missing", nil, nil)
		}
		return
	}
	if limit := e.cfg.ResponseWordLimit; limit > 0 {
		if n := wordCount(resp.Text); n > limit {
			s.Warn(WarnLength, "text",
				fmt.Sprintf("response has %d words, the limit is %d", n, limit), n, fmt.Sprintf("<= %d", limit))
		}
	}
}

func (e *Engine) checkProvenance(s Scope, resp *run.Response) {
	prev := math.Inf(1)
	used := 0
	for i, p := range resp.PassageProvenance {
		field := fmt.Sprintf("passage_provenance[%d]", i)
		if p.Score > prev {
			s.Warn(WarnScoreOrder, field+".score",
				fmt.Sprintf("provenance %s has a greater score than the previous passage", p.ID), p.Score, prev)
		}
		prev = p.Score

		if !strings.HasPrefix(p.ID, e.cfg.PassagePrefix) {
			s.Warn(WarnIDPrefix, field+".id",
				fmt.Sprintf("passage id does not have a %q prefix, may be invalid", e.cfg.PassagePrefix), p.ID, nil)
		}
		if len(strings.Split(p.ID, ":")) != 2 {
			s.Warn(WarnIDFormat, field+".id", "passage id is formatted incorrectly (missing or extra colons?)", p.ID, nil)
		}
		if p.Used {
			used++
		}
	}

	if used == 0 {
		s.Warn(WarnNoUsed, "passage_provenance.used", `response has no passages marked as "used"`, nil, nil)
	}

	switch n := len(resp.PassageProvenance); {
	case n == 0:
		s.Warn(WarnNoProvenance, "passage_provenance", "response has no passage provenance", nil, nil)
	case n > e.cfg.MaxProvenance:
		s.Warn(WarnTooManyProvenance, "passage_provenance",
			fmt.Sprintf("response has more than %d passages", e.cfg.MaxProvenance), n, fmt.Sprintf("<= %d", e.cfg.MaxProvenance))
	}
}

func checkCitations(s Scope, resp *run.Response) error {
	if len(resp.Citations) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(resp.PassageProvenance))
	for _, p := range resp.PassageProvenance {
		known[p.ID] = struct{}{}
	}
	for i, c := range resp.Citations {
		if _, ok := known[c]; !ok {
			return s.Fatal(ErrCodeCitation, fmt.Sprintf("citations[%d]", i),
				"citation is not part of the response's passage provenance", c, nil)
		}
	}
	return nil
}

// turnPassageIDs returns the distinct passage ids of a turn in first-seen
// order.
func turnPassageIDs(turn *run.Turn) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, resp := range turn.Responses {
		for _, p := range resp.PassageProvenance {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// wordCount counts whitespace-separated words after NFKC normalisation, so
// compatibility spaces and ligatures count the same way as their plain
// forms.
func wordCount(s string) int {
	return len(strings.Fields(norm.NFKC.String(s)))
}

func runTypeList() string {
	names := make([]string, len(run.ValidRunTypes))
	for i, t := range run.ValidRunTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
