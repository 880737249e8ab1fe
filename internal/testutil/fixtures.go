package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"

	"github.com/ikat-tools/runvalidator/internal/run"
)

// PassagesPerResponse is the number of passage citations ValidRun attaches
// to each response.
const PassagesPerResponse = 3

// PassageID returns a well-formed corpus identifier.
func PassageID(doc, passage int) string {
	return fmt.Sprintf("clueweb22-en0004-%02d-%05d:%d", doc/100000, doc%100000, passage)
}

// PassageIDs returns n distinct well-formed identifiers.
func PassageIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = PassageID(i+1, i%7)
	}
	return ids
}

// PTKBStatement is the canonical text of statement k of a topic.
func PTKBStatement(topic string, k int) string {
	return fmt.Sprintf("ptkb statement %d for topic %s", k, topic)
}

// Topics builds n topics numbered "1".."n", each with turnsPerTopic turns and
// ptkbSize PTKB statements keyed "1".."ptkbSize".
func Topics(n, turnsPerTopic, ptkbSize int) []run.Topic {
	topics := make([]run.Topic, n)
	for i := range topics {
		number := fmt.Sprintf("%d", i+1)
		turns := make([]any, turnsPerTopic)
		for j := range turns {
			turns[j] = map[string]any{"turn_id": j + 1}
		}
		ptkb := make(map[string]string, ptkbSize)
		for k := 1; k <= ptkbSize; k++ {
			ptkb[fmt.Sprintf("%d", k)] = PTKBStatement(number, k)
		}
		topics[i] = run.Topic{Number: number, Turns: turns, PTKB: ptkb}
	}
	return topics
}

// Expect returns the expectations matching Topics(n, turnsPerTopic, _).
func Expect(n, turnsPerTopic int) run.TopicExpectations {
	return run.TopicExpectations{Topics: n, Turns: n * turnsPerTopic}
}

// TopicSet builds and indexes Topics(n, turnsPerTopic, ptkbSize).
func TopicSet(t testing.TB, n, turnsPerTopic, ptkbSize int) *run.TopicSet {
	t.Helper()
	set, err := run.NewTopicSet(Topics(n, turnsPerTopic, ptkbSize), Expect(n, turnsPerTopic))
	require.NoError(t, err)
	return set
}

// ValidRun builds a run that validates without warnings against set using
// strict PTKB checking. Each turn gets responsesPerTurn responses citing
// passages drawn round-robin from ids.
func ValidRun(set *run.TopicSet, ids []string, responsesPerTurn int) *run.Run {
	r := &run.Run{Name: "generated_run", Type: run.RunTypeManual}
	next := 0
	for _, number := range set.Numbers() {
		topic, _ := set.Lookup(number)
		for n := 1; n <= topic.TurnCount(); n++ {
			turn := run.Turn{TurnID: fmt.Sprintf("%s_%d", number, n)}
			for rank := 1; rank <= responsesPerTurn; rank++ {
				resp := run.Response{Rank: rank, Text: "some response text"}
				for j := 0; j < PassagesPerResponse; j++ {
					resp.PassageProvenance = append(resp.PassageProvenance, run.PassageProvenance{
						ID:    ids[next%len(ids)],
						Text:  "passage text",
						Score: 0.9 - float64(j)*0.1,
						Used:  j == 0,
					})
					next++
				}
				if len(topic.PTKB) > 0 {
					resp.PTKBProvenance = []run.PTKBProvenance{
						{ID: "1", Text: topic.PTKB["1"], Score: 1},
					}
				}
				turn.Responses = append(turn.Responses, resp)
			}
			r.Turns = append(r.Turns, turn)
		}
	}
	return r
}

// HashTSV renders ids as identifier hash file lines.
func HashTSV(ids []string) string {
	var b strings.Builder
	for i, id := range ids {
		doc, passage, _ := strings.Cut(id, ":")
		fmt.Fprintf(&b, "%s\t%s\t%032x\n", doc, passage, i)
	}
	return b.String()
}

// WriteFile writes content under dir and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteJSON marshals v under dir and returns the path.
func WriteJSON(t testing.TB, dir, name string, v any) string {
	t.Helper()
	data, err := sonic.Marshal(v)
	require.NoError(t, err)
	return WriteFile(t, dir, name, string(data))
}
