package validate

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ikat-tools/runvalidator/internal/run"
)

// PTKBCheck validates the PTKB provenance of a single response against the
// topic's statement table. Returning a non-nil error ends validation; the
// error must come from s.Fatal.
type PTKBCheck interface {
	Name() string
	CheckPTKB(s Scope, topic *run.Topic, entries []run.PTKBProvenance) error
}

// StrictPTKB requires full {id, text, score} records that match the topic's
// statements exactly. Empty ids, unknown ids, text mismatches and bare
// ordinals are fatal; scores that increase are warnings.
type StrictPTKB struct{}

func (StrictPTKB) Name() string { return "strict" }

func (StrictPTKB) CheckPTKB(s Scope, topic *run.Topic, entries []run.PTKBProvenance) error {
	if len(entries) == 0 {
		s.Warn(WarnNoPTKB, "ptkb_provenance", "no PTKB provenance listed for response", nil, nil)
		return nil
	}

	prev := math.Inf(1)
	for i, e := range entries {
		field := fmt.Sprintf("ptkb_provenance[%d]", i)
		if e.Bare {
			return s.Fatal(ErrCodePTKBID, field, "PTKB provenance must be an {id, text, score} record", e.Ordinal, nil)
		}
		if e.ID == "" {
			return s.Fatal(ErrCodePTKBID, field+".id", "PTKB provenance has an empty id", nil, nil)
		}
		statement, ok := topic.PTKB[e.ID]
		if !ok {
			return s.Fatal(ErrCodePTKBID, field+".id",
				fmt.Sprintf("PTKB id %q not found in topic %s", e.ID, topic.Number), e.ID, nil)
		}
		if e.Text != statement {
			return s.Fatal(ErrCodePTKBText, field+".text",
				fmt.Sprintf("PTKB text for id %q does not match topic %s", e.ID, topic.Number), e.Text, statement)
		}
		if e.Score > prev {
			s.Warn(WarnPTKBScoreOrder, field+".score",
				fmt.Sprintf("PTKB id %q has a greater score than the previous entry", e.ID), e.Score, prev)
		}
		prev = e.Score
	}
	return nil
}

// PermissivePTKB accepts bare ordinals and records alike and only checks
// that each refers to a statement in [1, len(ptkb)]. A record's id is read
// as the ordinal.
type PermissivePTKB struct{}

func (PermissivePTKB) Name() string { return "permissive" }

func (PermissivePTKB) CheckPTKB(s Scope, topic *run.Topic, entries []run.PTKBProvenance) error {
	if len(entries) == 0 {
		s.Warn(WarnNoPTKB, "ptkb_provenance", "no PTKB provenance listed for response", nil, nil)
		return nil
	}

	size := len(topic.PTKB)
	for i, e := range entries {
		field := fmt.Sprintf("ptkb_provenance[%d]", i)
		n := e.Ordinal
		if !e.Bare {
			v, err := strconv.Atoi(e.ID)
			if err != nil {
				return s.Fatal(ErrCodePTKBRange, field+".id", "PTKB provenance id is not an integer", e.ID, nil)
			}
			n = v
		}
		if n < 1 || n > size {
			return s.Fatal(ErrCodePTKBRange, field,
				fmt.Sprintf("PTKB provenance id %d is outside the valid range", n), n, fmt.Sprintf("1..%d", size))
		}
	}
	return nil
}

// PTKBCheckByName returns the check registered under name.
func PTKBCheckByName(name string) (PTKBCheck, error) {
	switch name {
	case "", "strict":
		return StrictPTKB{}, nil
	case "permissive":
		return PermissivePTKB{}, nil
	default:
		return nil, fmt.Errorf("unknown PTKB check %q (want strict or permissive)", name)
	}
}
