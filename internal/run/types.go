package run

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// RunType is the declared production mode of a run.
type RunType string

const (
	RunTypeManual         RunType = "manual"
	RunTypeAutomatic      RunType = "automatic"
	RunTypeOnlyResponse   RunType = "only_response"
	RunTypeGenerationOnly RunType = "generation-only"
)

// ValidRunTypes lists the accepted run_type values in display order.
var ValidRunTypes = []RunType{RunTypeAutomatic, RunTypeManual, RunTypeOnlyResponse, RunTypeGenerationOnly}

// Valid reports whether t is one of ValidRunTypes.
func (t RunType) Valid() bool {
	for _, v := range ValidRunTypes {
		if v == t {
			return true
		}
	}
	return false
}

// AllowsEmptyText reports whether responses of this run type may have empty
// text. Generation-only runs submit passages without a generated answer.
func (t RunType) AllowsEmptyText() bool {
	return t == RunTypeOnlyResponse || t == RunTypeGenerationOnly
}

// Run is a parsed submission. It is not modified after loading.
type Run struct {
	Name  string  `json:"run_name"`
	Type  RunType `json:"run_type"`
	Turns []Turn  `json:"turns"`
}

// Turn is one conversational turn and its ranked responses.
type Turn struct {
	TurnID    string     `json:"turn_id"`
	Responses []Response `json:"responses,omitempty"`
}

// Response is a single ranked response within a turn.
type Response struct {
	Rank              int                 `json:"rank"`
	Text              string              `json:"text"`
	PassageProvenance []PassageProvenance `json:"passage_provenance,omitempty"`
	PTKBProvenance    []PTKBProvenance    `json:"ptkb_provenance,omitempty"`
	Citations         []string            `json:"citations,omitempty"`
}

// PassageProvenance cites a corpus passage. Text is a denormalised copy and is
// never treated as authoritative.
type PassageProvenance struct {
	ID    string  `json:"id"`
	Text  string  `json:"text,omitempty"`
	Score float64 `json:"score"`
	Used  bool    `json:"used"`
}

// PTKBProvenance cites a statement from the topic's personal knowledge base.
//
// Submissions use one of two shapes: a full {id, text, score} record, or a
// bare integer ordinal. Bare is set for the second shape and Ordinal carries
// the value.
type PTKBProvenance struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Bare    bool    `json:"-"`
	Ordinal int     `json:"-"`
}

type ptkbRecord struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// UnmarshalJSON accepts either an object or an integer.
func (p *PTKBProvenance) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty ptkb provenance")
	}
	if data[0] != '{' {
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("ptkb provenance must be an object or an integer: %w", err)
		}
		*p = PTKBProvenance{Bare: true, Ordinal: n}
		return nil
	}

	var rec ptkbRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return err
	}
	*p = PTKBProvenance{ID: rec.ID, Text: rec.Text, Score: rec.Score}
	return nil
}

// MarshalJSON writes the shape the entry was read from.
func (p PTKBProvenance) MarshalJSON() ([]byte, error) {
	if p.Bare {
		return []byte(strconv.Itoa(p.Ordinal)), nil
	}
	return sonic.Marshal(ptkbRecord{ID: p.ID, Text: p.Text, Score: p.Score})
}

// Topic is one entry of the reference topic file.
type Topic struct {
	Number string            `json:"number"`
	Turns  []any             `json:"turns"`
	PTKB   map[string]string `json:"ptkb"`
}

// TurnCount is the number of turns the reference defines for the topic.
func (t *Topic) TurnCount() int {
	return len(t.Turns)
}
