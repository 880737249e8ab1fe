package validate

import (
	"time"

	"github.com/ikat-tools/runvalidator/internal/oracle"
)

// Defaults for Config.
const (
	DefaultMaxWarnings       = 2000
	DefaultPassagePrefix     = "clueweb22-"
	DefaultMaxProvenance     = 1000
	DefaultResponseWordLimit = 250
)

// Config controls the thresholds and variants the engine applies.
type Config struct {
	// MaxWarnings is the warning ceiling. Validation aborts after the first
	// turn that leaves more than MaxWarnings warnings recorded.
	MaxWarnings int

	// Timeout bounds each existence call. Zero leaves the deadline to the
	// checker.
	Timeout time.Duration

	// PTKB selects how PTKB provenance is checked. Nil means StrictPTKB.
	PTKB PTKBCheck

	// PassagePrefix is the corpus identifier prefix every passage id should
	// carry.
	PassagePrefix string

	// MaxProvenance is the largest passage provenance list accepted without
	// a warning.
	MaxProvenance int

	// ResponseWordLimit is the largest response, in words, accepted without
	// a warning. Zero disables the check.
	ResponseWordLimit int
}

// DefaultConfig returns the configuration of official validation.
func DefaultConfig() Config {
	return Config{
		MaxWarnings:       DefaultMaxWarnings,
		Timeout:           oracle.DefaultTimeout,
		PTKB:              StrictPTKB{},
		PassagePrefix:     DefaultPassagePrefix,
		MaxProvenance:     DefaultMaxProvenance,
		ResponseWordLimit: DefaultResponseWordLimit,
	}
}
