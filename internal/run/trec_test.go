package run_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikat-tools/runvalidator/internal/run"
)

func TestWriteTREC(t *testing.T) {
	r := &run.Run{
		Name: "bm25",
		Type: run.RunTypeAutomatic,
		Turns: []run.Turn{
			{
				TurnID: "1_1",
				Responses: []run.Response{
					{Rank: 1, PassageProvenance: []run.PassageProvenance{
						{ID: "doc-a:1", Score: 2.5},
						{ID: "doc-b:4", Score: 7},
					}},
					{Rank: 2, PassageProvenance: []run.PassageProvenance{
						{ID: "doc-a:1", Score: 9},
						{ID: "doc-c:2", Score: 7},
					}},
				},
			},
			{TurnID: "1_2"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, run.WriteTREC(&buf, r))

	want := "1_1\tQ0\tdoc-a:1\t1\t9.000000\tbm25\n" +
		"1_1\tQ0\tdoc-b:4\t2\t7.000000\tbm25\n" +
		"1_1\tQ0\tdoc-c:2\t3\t7.000000\tbm25\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTREC_DefaultName(t *testing.T) {
	r := &run.Run{Turns: []run.Turn{{
		TurnID:    "2_1",
		Responses: []run.Response{{PassageProvenance: []run.PassageProvenance{{ID: "d:0", Score: 1}}}},
	}}}

	var buf bytes.Buffer
	require.NoError(t, run.WriteTREC(&buf, r))
	assert.Equal(t, "2_1\tQ0\td:0\t1\t1.000000\tdefault_run\n", buf.String())
}
