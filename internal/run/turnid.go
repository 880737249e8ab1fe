package run

import (
	"fmt"
	"strconv"
	"strings"
)

// TurnID is the decomposed form of a "<topic_number>_<turn_number>" id.
type TurnID struct {
	Topic  string
	Number int
}

func (id TurnID) String() string {
	return fmt.Sprintf("%s_%d", id.Topic, id.Number)
}

// ParseTurnID splits a turn id into its topic and turn number. The id must
// contain exactly one underscore, a non-empty topic and an integer turn
// number. Range checking against a topic is left to the caller.
func ParseTurnID(s string) (TurnID, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 {
		return TurnID{}, fmt.Errorf("turn id %q: expected <topic>_<turn>", s)
	}
	if parts[0] == "" {
		return TurnID{}, fmt.Errorf("turn id %q: empty topic number", s)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return TurnID{}, fmt.Errorf("turn id %q: invalid turn number: %w", s, err)
	}
	return TurnID{Topic: parts[0], Number: n}, nil
}
