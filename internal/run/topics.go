package run

import "fmt"

// Reference cardinalities of the current test collection.
const (
	DefaultExpectedTopics = 25
	DefaultExpectedTurns  = 332
)

// TopicExpectations are the fixed cardinalities a topic file, and every run
// validated against it, must match.
type TopicExpectations struct {
	Topics int
	Turns  int
}

// DefaultTopicExpectations returns the cardinalities of the current collection.
func DefaultTopicExpectations() TopicExpectations {
	return TopicExpectations{Topics: DefaultExpectedTopics, Turns: DefaultExpectedTurns}
}

// TopicSet is the read-only reference topic table keyed by topic number.
type TopicSet struct {
	topics map[string]*Topic
	order  []string
	turns  int
	expect TopicExpectations
}

// NewTopicSet indexes topics by number and enforces expect.
func NewTopicSet(topics []Topic, expect TopicExpectations) (*TopicSet, error) {
	if len(topics) != expect.Topics {
		return nil, &LoadError{
			Code:    ErrCodeTopicCount,
			Message: fmt.Sprintf("topics file not loaded correctly (found %d entries, expected %d)", len(topics), expect.Topics),
		}
	}

	set := &TopicSet{
		topics: make(map[string]*Topic, len(topics)),
		order:  make([]string, 0, len(topics)),
		expect: expect,
	}
	for i := range topics {
		t := topics[i]
		if t.Number == "" {
			return nil, &LoadError{Code: ErrCodeTopicData, Message: fmt.Sprintf("topic entry %d has no number", i)}
		}
		if _, dup := set.topics[t.Number]; dup {
			return nil, &LoadError{Code: ErrCodeTopicData, Message: fmt.Sprintf("duplicate topic number %q", t.Number)}
		}
		if t.PTKB == nil {
			t.PTKB = map[string]string{}
		}
		set.topics[t.Number] = &t
		set.order = append(set.order, t.Number)
		set.turns += t.TurnCount()
	}

	if set.turns != expect.Turns {
		return nil, &LoadError{
			Code:    ErrCodeTurnCount,
			Message: fmt.Sprintf("topics file not loaded correctly (found %d turns, expected %d turns)", set.turns, expect.Turns),
		}
	}
	return set, nil
}

// Lookup returns the topic with the given number.
func (s *TopicSet) Lookup(number string) (*Topic, bool) {
	t, ok := s.topics[number]
	return t, ok
}

// Len is the number of topics.
func (s *TopicSet) Len() int { return len(s.order) }

// TotalTurns is the aggregate turn count across all topics.
func (s *TopicSet) TotalTurns() int { return s.turns }

// Numbers returns topic numbers in file order.
func (s *TopicSet) Numbers() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Expectations returns the cardinalities the set was checked against.
func (s *TopicSet) Expectations() TopicExpectations { return s.expect }
