package validate

// Code identifies a validation finding.
type Code string

// Fatal codes. Any of these stops validation of the run immediately.
const (
	// ErrCodeLoad indicates the run or topic file could not be loaded.
	ErrCodeLoad Code = "LOAD_ERROR"

	// ErrCodeEmptyRun indicates a run without turns.
	ErrCodeEmptyRun Code = "EMPTY_RUN"

	// ErrCodeTurnCount indicates the run's total turn count differs from
	// the reference.
	ErrCodeTurnCount Code = "TURN_COUNT"

	// ErrCodeTopicCount indicates the run's turns group into the wrong
	// number of topics.
	ErrCodeTopicCount Code = "TOPIC_COUNT"

	// ErrCodeTopicTurnCount indicates a topic has a different number of
	// turns in the run than in the reference.
	ErrCodeTopicTurnCount Code = "TOPIC_TURN_COUNT"

	// ErrCodeTopicMissing indicates a reference topic has no turns in the run.
	ErrCodeTopicMissing Code = "TOPIC_MISSING"

	// ErrCodeTurnID indicates an unparsable turn id.
	ErrCodeTurnID Code = "TURN_ID"

	// ErrCodeUnknownTopic indicates a turn references a topic the reference
	// does not define.
	ErrCodeUnknownTopic Code = "UNKNOWN_TOPIC"

	// ErrCodeTurnRange indicates a turn number outside [1, topic turns].
	ErrCodeTurnRange Code = "TURN_RANGE"

	// ErrCodePTKBID indicates an empty or unknown PTKB statement id.
	ErrCodePTKBID Code = "PTKB_ID"

	// ErrCodePTKBText indicates PTKB text that differs from the statement.
	ErrCodePTKBText Code = "PTKB_TEXT"

	// ErrCodePTKBRange indicates a PTKB ordinal outside [1, len(ptkb)].
	ErrCodePTKBRange Code = "PTKB_RANGE"

	// ErrCodeCitation indicates a citation absent from the response's own
	// passage provenance.
	ErrCodeCitation Code = "CITATION"

	// ErrCodeService indicates the existence oracle failed.
	ErrCodeService Code = "SERVICE"

	// ErrCodeWarningLimit indicates the warning ceiling was exceeded.
	ErrCodeWarningLimit Code = "WARNING_LIMIT"
)

// Warning codes.
const (
	WarnRunName           Code = "RUN_NAME"
	WarnRunType           Code = "RUN_TYPE"
	WarnRank              Code = "RANK"
	WarnRankOrder         Code = "RANK_ORDER"
	WarnText              Code = "TEXT"
	WarnLength            Code = "LENGTH"
	WarnScoreOrder        Code = "SCORE_ORDER"
	WarnIDPrefix          Code = "ID_PREFIX"
	WarnIDFormat          Code = "ID_FORMAT"
	WarnNoProvenance      Code = "NO_PROVENANCE"
	WarnTooManyProvenance Code = "TOO_MANY_PROVENANCE"
	WarnNoUsed            Code = "NO_USED"
	WarnNoPTKB            Code = "NO_PTKB"
	WarnPTKBScoreOrder    Code = "PTKB_SCORE_ORDER"
	WarnMissingPassage    Code = "MISSING_PASSAGE"
)

// Severity separates accumulating warnings from run-ending conditions.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)
