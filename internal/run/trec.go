package run

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// WriteTREC writes the run in TREC run-file format, one line per distinct
// cited passage of each turn:
//
//	<turn_id> Q0 <passage_id> <rank> <score> <run_name>
//
// Passages cited by several responses of a turn keep their highest score.
// Lines within a turn are ordered by descending score, ties by first
// appearance.
func WriteTREC(w io.Writer, r *Run) error {
	bw := bufio.NewWriter(w)
	name := r.Name
	if name == "" {
		name = "default_run"
	}

	for _, turn := range r.Turns {
		type scored struct {
			id    string
			score float64
		}
		var entries []scored
		index := make(map[string]int)
		for _, resp := range turn.Responses {
			for _, p := range resp.PassageProvenance {
				if i, ok := index[p.ID]; ok {
					if p.Score > entries[i].score {
						entries[i].score = p.Score
					}
					continue
				}
				index[p.ID] = len(entries)
				entries = append(entries, scored{id: p.ID, score: p.Score})
			}
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].score > entries[j].score })

		for rank, e := range entries {
			if _, err := fmt.Fprintf(bw, "%s\tQ0\t%s\t%d\t%.6f\t%s\n", turn.TurnID, e.id, rank+1, e.score, name); err != nil {
				return fmt.Errorf("write trec line: %w", err)
			}
		}
	}
	return bw.Flush()
}
