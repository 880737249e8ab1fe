package validate_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikat-tools/runvalidator/internal/oracle"
	"github.com/ikat-tools/runvalidator/internal/run"
	"github.com/ikat-tools/runvalidator/internal/testutil"
	"github.com/ikat-tools/runvalidator/internal/validate"
)

// recordingChecker answers from a set of missing ids and remembers every
// call.
type recordingChecker struct {
	calls       [][]string
	missing     map[string]bool
	err         error
	short       bool
	hadDeadline bool
}

func (c *recordingChecker) CheckExistence(ctx context.Context, ids []string) ([]bool, error) {
	c.calls = append(c.calls, append([]string(nil), ids...))
	_, c.hadDeadline = ctx.Deadline()
	if c.err != nil {
		return nil, c.err
	}
	out := make([]bool, len(ids))
	for i, id := range ids {
		out[i] = !c.missing[id]
	}
	if c.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

// fixture is two topics of two turns each with four PTKB statements.
func fixture(t *testing.T) (*run.TopicSet, *run.Run, []string) {
	t.Helper()
	set := testutil.TopicSet(t, 2, 2, 4)
	ids := testutil.PassageIDs(10)
	return set, testutil.ValidRun(set, ids, 2), ids
}

func newEngine(set *run.TopicSet, checker oracle.Checker, cfg validate.Config) (*validate.Engine, *validate.Diagnostics) {
	diag := validate.NewDiagnostics(nil)
	return validate.New(cfg, set, checker, diag, validate.WithSessionID("test-session")), diag
}

func countCode(recs []validate.Record, code validate.Code) int {
	n := 0
	for _, r := range recs {
		if r.Code == code {
			n++
		}
	}
	return n
}

func TestValidate_CleanRun(t *testing.T) {
	set, r, _ := fixture(t)
	checker := &recordingChecker{}
	engine, diag := newEngine(set, checker, validate.DefaultConfig())

	res, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, "test-session", res.SessionID)
	assert.Equal(t, "generated_run", res.RunName)
	assert.Equal(t, 4, res.TurnsValidated)
	assert.Equal(t, 4, res.TotalTurns)
	assert.Equal(t, 0, res.Warnings)
	assert.Equal(t, 0, res.ServiceErrors)
	assert.True(t, res.PassageChecks)
	assert.Empty(t, diag.Records())
	assert.Len(t, checker.calls, 4, "one existence call per turn")
	assert.True(t, checker.hadDeadline)
}

func TestValidate_SkipPassageChecks(t *testing.T) {
	set, r, _ := fixture(t)
	engine, _ := newEngine(set, nil, validate.DefaultConfig())

	res, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, res.PassageChecks)
	assert.Equal(t, 4, res.TurnsValidated)
}

func TestValidate_DeduplicatesPassageIDs(t *testing.T) {
	set, r, ids := fixture(t)
	r.Turns[0].Responses[0].PassageProvenance[1].ID = ids[3]
	r.Turns[0].Responses[1].PassageProvenance = append([]run.PassageProvenance(nil), r.Turns[0].Responses[0].PassageProvenance...)

	checker := &recordingChecker{}
	engine, _ := newEngine(set, checker, validate.DefaultConfig())

	_, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[3], ids[2]}, checker.calls[0])
}

func TestValidate_MissingPassages(t *testing.T) {
	set, r, ids := fixture(t)
	checker := &recordingChecker{missing: map[string]bool{ids[0]: true}}
	engine, diag := newEngine(set, checker, validate.DefaultConfig())

	res, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)

	// ids[0] is cited in turns 1, 2 and 4.
	assert.Equal(t, 3, res.Warnings)
	assert.Equal(t, 3, countCode(diag.Records(), validate.WarnMissingPassage))
	for _, rec := range diag.Records() {
		assert.Equal(t, ids[0], rec.Observed)
	}
}

func TestValidate_RankOrdering(t *testing.T) {
	tests := []struct {
		name      string
		ranks     []int
		rank      int
		rankOrder int
	}{
		{"strictly increasing", []int{1, 2, 3}, 0, 0},
		{"gaps allowed", []int{1, 5, 40}, 0, 0},
		{"repeated", []int{1, 1, 2}, 0, 1},
		{"decreasing", []int{3, 2, 1}, 0, 2},
		{"zero first", []int{0, 1, 2}, 1, 1},
		{"negative", []int{-1, 1}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := testutil.TopicSet(t, 2, 2, 4)
			r := testutil.ValidRun(set, testutil.PassageIDs(10), len(tt.ranks))
			for i := range r.Turns[0].Responses {
				r.Turns[0].Responses[i].Rank = tt.ranks[i]
			}
			engine, diag := newEngine(set, nil, validate.DefaultConfig())

			_, err := engine.Validate(context.Background(), r)
			require.NoError(t, err)
			assert.Equal(t, tt.rank, countCode(diag.Records(), validate.WarnRank))
			assert.Equal(t, tt.rankOrder, countCode(diag.Records(), validate.WarnRankOrder))
		})
	}
}

func TestValidate_ScoreOrdering(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   int
	}{
		{"decreasing", []float64{0.9, 0.5, 0.1}, 0},
		{"ties", []float64{0.5, 0.5, 0.5}, 0},
		{"one increase", []float64{0.9, 0.1, 0.5}, 1},
		{"increasing", []float64{0.1, 0.2, 0.3}, 2},
		{"negative scores", []float64{-1, -2, -3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, r, _ := fixture(t)
			prov := r.Turns[0].Responses[0].PassageProvenance
			for i := range prov {
				prov[i].Score = tt.scores[i]
			}
			engine, diag := newEngine(set, nil, validate.DefaultConfig())

			_, err := engine.Validate(context.Background(), r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, countCode(diag.Records(), validate.WarnScoreOrder))
		})
	}
}

func TestValidate_NoUsedPassagesWarnsOnce(t *testing.T) {
	set, r, _ := fixture(t)
	prov := r.Turns[1].Responses[0].PassageProvenance
	for i := range prov {
		prov[i].Used = false
	}
	engine, diag := newEngine(set, nil, validate.DefaultConfig())

	res, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 1, countCode(diag.Records(), validate.WarnNoUsed))
	assert.Equal(t, 1, res.Warnings)

	rec := diag.Records()[0]
	assert.Equal(t, "1_2", rec.TurnID)
	assert.Equal(t, 1, rec.Response)
}

func TestValidate_NoProvenance(t *testing.T) {
	set, r, _ := fixture(t)
	r.Turns[0].Responses[0].PassageProvenance = nil
	engine, diag := newEngine(set, nil, validate.DefaultConfig())

	_, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 1, countCode(diag.Records(), validate.WarnNoProvenance))
	assert.Equal(t, 1, countCode(diag.Records(), validate.WarnNoUsed))
}

func TestValidate_TooManyProvenance(t *testing.T) {
	set, r, _ := fixture(t)
	cfg := validate.DefaultConfig()
	cfg.MaxProvenance = 2
	engine, diag := newEngine(set, nil, cfg)

	_, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	// 4 turns x 2 responses, each with 3 passages.
	assert.Equal(t, 8, countCode(diag.Records(), validate.WarnTooManyProvenance))
}

func TestValidate_PassageIDShape(t *testing.T) {
	set, r, _ := fixture(t)
	prov := r.Turns[0].Responses[0].PassageProvenance
	prov[0].ID = "msmarco_doc_00:1"
	prov[1].ID = "clueweb22-en0000-00-00000"
	prov[2].ID = "clueweb22-en0000-00-00000:1:2"
	engine, diag := newEngine(set, nil, validate.DefaultConfig())

	_, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 1, countCode(diag.Records(), validate.WarnIDPrefix))
	assert.Equal(t, 2, countCode(diag.Records(), validate.WarnIDFormat))
}

func TestValidate_ResponseText(t *testing.T) {
	tests := []struct {
		name    string
		runType run.RunType
		want    int
	}{
		{"manual requires text", run.RunTypeManual, 1},
		{"automatic requires text", run.RunTypeAutomatic, 1},
		{"only_response allows empty", run.RunTypeOnlyResponse, 0},
		{"generation-only allows empty", run.RunTypeGenerationOnly, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, r, _ := fixture(t)
			r.Type = tt.runType
			r.Turns[2].Responses[1].Text = ""
			engine, diag := newEngine(set, nil, validate.DefaultConfig())

			_, err := engine.Validate(context.Background(), r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, countCode(diag.Records(), validate.WarnText))
		})
	}
}

func TestValidate_ResponseLength(t *testing.T) {
	set, r, _ := fixture(t)
	r.Turns[0].Responses[0].Text = "one two three four five"
	r.Turns[0].Responses[1].Text = "one two　three"

	cfg := validate.DefaultConfig()
	cfg.ResponseWordLimit = 4
	engine, diag := newEngine(set, nil, cfg)

	_, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	recs := diag.Records()
	require.Equal(t, 1, countCode(recs, validate.WarnLength))
	assert.Equal(t, "5", recs[0].Observed)

	cfg.ResponseWordLimit = 0
	engine, diag = newEngine(set, nil, cfg)
	_, err = engine.Validate(context.Background(), r)
	require.NoError(t, err)
	assert.Zero(t, countCode(diag.Records(), validate.WarnLength))
}

func TestValidate_RunLevelWarnings(t *testing.T) {
	tests := []struct {
		name     string
		runName  string
		runType  run.RunType
		wantName int
		wantType int
	}{
		{"empty name", "", run.RunTypeManual, 1, 0},
		{"empty type", "x", "", 0, 1},
		{"unknown type", "x", "bogus", 0, 1},
		{"both empty", "", "", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, r, _ := fixture(t)
			r.Name, r.Type = tt.runName, tt.runType
			engine, diag := newEngine(set, nil, validate.DefaultConfig())

			_, err := engine.Validate(context.Background(), r)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, countCode(diag.Records(), validate.WarnRunName))
			assert.Equal(t, tt.wantType, countCode(diag.Records(), validate.WarnRunType))
		})
	}
}

func TestValidate_Cardinality(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *run.Run)
		code   validate.Code
	}{
		{"empty run", func(r *run.Run) { r.Turns = nil }, validate.ErrCodeEmptyRun},
		{"missing turn", func(r *run.Run) { r.Turns = r.Turns[:3] }, validate.ErrCodeTurnCount},
		{"extra turn", func(r *run.Run) { r.Turns = append(r.Turns, r.Turns[0]) }, validate.ErrCodeTurnCount},
		{"too few topics", func(r *run.Run) {
			r.Turns[2].TurnID, r.Turns[3].TurnID = "1_3", "1_4"
		}, validate.ErrCodeTopicCount},
		{"topic missing", func(r *run.Run) {
			r.Turns[2].TurnID, r.Turns[3].TurnID = "3_1", "3_2"
		}, validate.ErrCodeTopicMissing},
		{"topic turn count", func(r *run.Run) {
			r.Turns[2].TurnID = "1_3"
		}, validate.ErrCodeTopicTurnCount},
		{"unparsable turn id", func(r *run.Run) { r.Turns[3].TurnID = "2-2" }, validate.ErrCodeTurnID},
		{"turn id with two underscores", func(r *run.Run) { r.Turns[3].TurnID = "2_2_1" }, validate.ErrCodeTurnID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, r, _ := fixture(t)
			tt.mutate(r)
			checker := &recordingChecker{}
			engine, _ := newEngine(set, checker, validate.DefaultConfig())

			res, err := engine.Validate(context.Background(), r)
			require.Error(t, err)
			assert.True(t, validate.IsFatal(err))
			assert.Equal(t, tt.code, validate.FatalCode(err))
			assert.Equal(t, 0, res.TurnsValidated, "no per-turn validation before cardinality passes")
			assert.Empty(t, checker.calls)
			require.NotNil(t, res.Fatal)
			assert.Equal(t, tt.code, res.Fatal.Code)
		})
	}
}

func TestValidate_TurnOutOfRange(t *testing.T) {
	set, r, _ := fixture(t)
	r.Turns[1].TurnID = "1_5"
	engine, _ := newEngine(set, nil, validate.DefaultConfig())

	res, err := engine.Validate(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, validate.ErrCodeTurnRange, validate.FatalCode(err))
	assert.Equal(t, 1, res.TurnsValidated)

	var fe *validate.FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "1_5", fe.TurnID)
}

func TestValidate_PTKBMismatchIsFatalRegardlessOfBudget(t *testing.T) {
	set, r, _ := fixture(t)
	r.Turns[0].Responses[0].PTKBProvenance = []run.PTKBProvenance{{ID: "4", Text: "wrong", Score: 1}}

	cfg := validate.DefaultConfig()
	cfg.MaxWarnings = 1_000_000
	engine, diag := newEngine(set, nil, cfg)

	res, err := engine.Validate(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, validate.ErrCodePTKBText, validate.FatalCode(err))
	assert.Equal(t, 0, res.TurnsValidated)

	errs := diag.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "wrong", errs[0].Observed)
	assert.Equal(t, testutil.PTKBStatement("1", 4), errs[0].Expected)
	assert.Equal(t, 1, errs[0].Response)
}

func TestValidate_Citations(t *testing.T) {
	set, r, ids := fixture(t)
	r.Turns[0].Responses[0].Citations = []string{ids[0], ids[2]}
	engine, _ := newEngine(set, nil, validate.DefaultConfig())

	_, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)

	r.Turns[1].Responses[0].Citations = []string{ids[9]}
	r.Turns[1].Responses[0].PassageProvenance = r.Turns[1].Responses[0].PassageProvenance[:1]
	r.Turns[1].Responses[0].PassageProvenance[0].ID = ids[5]
	engine, diag := newEngine(set, nil, validate.DefaultConfig())

	res, err := engine.Validate(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, validate.ErrCodeCitation, validate.FatalCode(err))
	assert.Equal(t, 1, res.TurnsValidated)
	assert.Equal(t, ids[9], diag.Errors()[0].Observed)
}

func TestValidate_WarningLimit(t *testing.T) {
	// Two NO_USED warnings in each of the first three turns.
	noUsed := func(r *run.Run) {
		for ti := 0; ti < 3; ti++ {
			for ri := range r.Turns[ti].Responses {
				for pi := range r.Turns[ti].Responses[ri].PassageProvenance {
					r.Turns[ti].Responses[ri].PassageProvenance[pi].Used = false
				}
			}
		}
	}

	t.Run("exceeded aborts after the triggering turn", func(t *testing.T) {
		set, r, _ := fixture(t)
		noUsed(r)
		checker := &recordingChecker{}
		cfg := validate.DefaultConfig()
		cfg.MaxWarnings = 5
		engine, _ := newEngine(set, checker, cfg)

		res, err := engine.Validate(context.Background(), r)
		require.Error(t, err)
		assert.Equal(t, validate.ErrCodeWarningLimit, validate.FatalCode(err))
		assert.Equal(t, 3, res.TurnsValidated)
		assert.Equal(t, 6, res.Warnings)
		assert.Len(t, checker.calls, 3, "fourth turn never inspected")
		assert.Equal(t, "2_1", res.Fatal.TurnID)
	})

	t.Run("equal to the ceiling completes", func(t *testing.T) {
		set, r, _ := fixture(t)
		noUsed(r)
		cfg := validate.DefaultConfig()
		cfg.MaxWarnings = 6
		engine, _ := newEngine(set, nil, cfg)

		res, err := engine.Validate(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, 4, res.TurnsValidated)
		assert.Equal(t, 6, res.Warnings)
	})

	t.Run("run-level warnings count toward the ceiling", func(t *testing.T) {
		set, r, _ := fixture(t)
		r.Name = ""
		cfg := validate.DefaultConfig()
		cfg.MaxWarnings = 0
		engine, _ := newEngine(set, nil, cfg)

		res, err := engine.Validate(context.Background(), r)
		require.Error(t, err)
		assert.Equal(t, validate.ErrCodeWarningLimit, validate.FatalCode(err))
		assert.Equal(t, 1, res.TurnsValidated)
	})
}

func TestValidate_ServiceError(t *testing.T) {
	tests := []struct {
		name    string
		checker *recordingChecker
		kind    error
	}{
		{"timeout", &recordingChecker{err: &oracle.ServiceError{Kind: oracle.ErrTimeout, Err: context.DeadlineExceeded}}, oracle.ErrTimeout},
		{"unreachable", &recordingChecker{err: &oracle.ServiceError{Kind: oracle.ErrUnreachable, Err: errors.New("refused")}}, oracle.ErrUnreachable},
		{"short answer", &recordingChecker{short: true}, oracle.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, r, _ := fixture(t)
			engine, _ := newEngine(set, tt.checker, validate.DefaultConfig())

			res, err := engine.Validate(context.Background(), r)
			require.Error(t, err)
			assert.Equal(t, validate.ErrCodeService, validate.FatalCode(err))
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, 1, res.ServiceErrors)
			assert.Equal(t, 0, res.TurnsValidated)
			assert.Len(t, tt.checker.calls, 1, "never retried")
		})
	}
}

func TestValidate_Cancelled(t *testing.T) {
	set, r, _ := fixture(t)
	engine, _ := newEngine(set, nil, validate.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := engine.Validate(ctx, r)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, validate.IsFatal(err))
	assert.Equal(t, 0, res.TurnsValidated)
}

func TestValidate_NoTimeoutLeavesDeadlineToChecker(t *testing.T) {
	set, r, _ := fixture(t)
	checker := &recordingChecker{}
	cfg := validate.DefaultConfig()
	cfg.Timeout = 0
	engine, _ := newEngine(set, checker, cfg)

	_, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, checker.hadDeadline)
}

func TestValidate_DefaultSessionID(t *testing.T) {
	set, r, _ := fixture(t)
	engine := validate.New(validate.DefaultConfig(), set, nil, nil)

	a, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)
	b, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)

	id, err := uuid.Parse(a.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.NotEqual(t, a.SessionID, b.SessionID)
}

func TestDiagnostics_MirrorsToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	set, r, _ := fixture(t)
	r.Turns[0].Responses[0].Rank = 0
	engine := validate.New(validate.DefaultConfig(), set, nil, validate.NewDiagnostics(logger))

	_, err := engine.Validate(context.Background(), r)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "code=RANK")
	assert.Contains(t, out, "turn=1_1")
	assert.Contains(t, out, "response=1")
}

func TestFatalError_Error(t *testing.T) {
	err := &validate.FatalError{Code: validate.ErrCodeService, TurnID: "3_1", Message: "oracle failed", Err: errors.New("deadline")}
	assert.Equal(t, "SERVICE: oracle failed (turn=3_1): deadline", err.Error())

	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, validate.IsFatal(wrapped))
	assert.Equal(t, validate.ErrCodeService, validate.FatalCode(wrapped))
	assert.Equal(t, validate.Code(""), validate.FatalCode(errors.New("plain")))
}

func TestDefaultConfig(t *testing.T) {
	cfg := validate.DefaultConfig()
	assert.Equal(t, 2000, cfg.MaxWarnings)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "clueweb22-", cfg.PassagePrefix)
	assert.Equal(t, 1000, cfg.MaxProvenance)
	assert.Equal(t, "strict", cfg.PTKB.Name())
}
