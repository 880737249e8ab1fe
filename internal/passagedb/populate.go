package passagedb

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultBatchSize is the number of rows committed per insert transaction.
const DefaultBatchSize = 20000

// bulkPragmas trade durability for insert speed. A failed population is
// discarded and rebuilt from the hash file, and consistency is checked with
// RowCount afterwards.
var bulkPragmas = []string{
	"PRAGMA cache_size = -500000",
	"PRAGMA journal_mode = OFF",
	"PRAGMA synchronous = OFF",
	"PRAGMA temp_store = MEMORY",
}

// ProgressFunc is called after each committed batch.
type ProgressFunc func(inserted, expected int64)

// PopulateOptions controls a bulk load.
type PopulateOptions struct {
	// BatchSize is the number of rows per transaction. Zero means
	// DefaultBatchSize.
	BatchSize int

	// Expected is the anticipated row count, passed through to Progress.
	Expected int64

	// Progress, if set, observes the load.
	Progress ProgressFunc
}

// PopulateResult summarises a completed load.
type PopulateResult struct {
	Rows     int64
	Batches  int64
	Duration time.Duration
}

// Populate destructively rebuilds the identifier set from r.
//
// Each line of r is a tab-separated "document_id, passage_index, hash"
// triple; one identifier "document_id:passage_index" is stored per line.
// Empty lines are skipped. Rows are inserted in transactions of BatchSize and
// the file is vacuumed once all batches are committed.
func (s *Store) Populate(ctx context.Context, r io.Reader, opts PopulateOptions) (PopulateResult, error) {
	start := time.Now()
	if s.readOnly {
		return PopulateResult{}, ErrReadOnly
	}
	db, err := s.conn()
	if err != nil {
		return PopulateResult{}, err
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for _, stmt := range []string{"DROP TABLE IF EXISTS " + tableName, createTableSQL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return PopulateResult{}, fmt.Errorf("populate: reset schema: %w", err)
		}
	}
	for _, pragma := range bulkPragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return PopulateResult{}, fmt.Errorf("populate: %q: %w", pragma, err)
		}
	}

	var res PopulateResult
	batch := make([]string, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.insertBatch(ctx, batch); err != nil {
			return err
		}
		res.Rows += int64(len(batch))
		res.Batches++
		batch = batch[:0]
		if opts.Progress != nil {
			opts.Progress(res.Rows, opts.Expected)
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		fields := strings.SplitN(text, "\t", 3)
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			return res, fmt.Errorf("populate: line %d: expected <document_id>\\t<passage_index>\\t<hash>", line)
		}
		batch = append(batch, fields[0]+":"+fields[1])

		if len(batch) == batchSize {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("populate: %w", err)
			}
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("populate: read line %d: %w", line+1, err)
	}
	if err := flush(); err != nil {
		return res, err
	}

	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return res, fmt.Errorf("populate: vacuum: %w", err)
	}
	res.Duration = time.Since(start)
	return res, nil
}

// insertBatch commits ids as one transaction.
func (s *Store) insertBatch(ctx context.Context, ids []string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("populate: begin batch: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+tableName+" (id) VALUES (?)")
	if err != nil {
		return fmt.Errorf("populate: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("populate: insert %q: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("populate: commit batch: %w", err)
	}
	return nil
}
