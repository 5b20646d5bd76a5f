package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dma198/pg2sqlite/internal/metrics"
)

// progressEvery is the number of rows between progress updates.
const progressEvery = 1000

// DefaultBatchSize is the number of rows per destination transaction.
const DefaultBatchSize = 10000

// Cursor streams the rows of one source query.
type Cursor interface {
	// TypeNames returns the source type name of each result column.
	TypeNames() []string
	Next() bool
	// Values returns the current row. The slice is reused by the next call.
	Values() ([]any, error)
	Err() error
	Close() error
}

// RowSource opens a cursor over every row of a table, columns in catalog order.
type RowSource interface {
	Query(ctx context.Context, table TableDef) (Cursor, error)
}

// Exporter copies table rows from a RowSource into SQLite in batched transactions.
type Exporter struct {
	source    RowSource
	dest      *sql.DB
	batchSize int
	console   *Console
	job       string
}

// NewExporter returns an Exporter committing every batchSize rows.
func NewExporter(source RowSource, dest *sql.DB, batchSize int, console *Console) (*Exporter, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", batchSize)
	}
	if console == nil {
		console = NewConsole(nil)
	}
	return &Exporter{
		source:    source,
		dest:      dest,
		batchSize: batchSize,
		console:   console,
		job:       "pg2sqlite",
	}, nil
}

// exportState holds the per-table counters of the row loop.
type exportState struct {
	exported   int64
	sincePrint int
	inBatch    int
	commits    int
	open       bool
}

// Export copies every table in order and stops at the first error.
func (e *Exporter) Export(ctx context.Context, tables []TableDef) ([]Stats, error) {
	stats := make([]Stats, 0, len(tables))
	for _, table := range tables {
		st, err := e.ExportTable(ctx, table)
		metrics.RecordTable(e.job, table.Name, err, st.Duration)
		if err != nil {
			return stats, fmt.Errorf("failed to export table %s: %w", table.Name, err)
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// ExportTable streams one table into its destination table. On error the
// open transaction is rolled back; earlier batches stay committed.
func (e *Exporter) ExportTable(ctx context.Context, table TableDef) (Stats, error) {
	start := time.Now()
	stats := Stats{Table: table.Name}
	e.console.TableStart(table.Name)

	cur, err := e.source.Query(ctx, table)
	if err != nil {
		return stats, err
	}
	defer cur.Close()

	mapper, err := NewMapper(table, cur.TypeNames())
	if err != nil {
		return stats, err
	}

	// BEGIN and COMMIT run on one connection so the prepared INSERT stays
	// valid across batches.
	conn, err := e.dest.Conn(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to acquire destination connection: %w", err)
	}
	defer conn.Close()

	insertStmt, err := conn.PrepareContext(ctx, insertSQL(table))
	if err != nil {
		return stats, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insertStmt.Close()

	state := &exportState{}
	defer func() {
		if state.open {
			if _, err := conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
				log.Printf("export: rollback table=%s err=%v", table.Name, err)
			}
		}
	}()

	for cur.Next() {
		if !state.open {
			if err := e.begin(ctx, conn, state); err != nil {
				return e.finish(stats, state, start), err
			}
		}

		src, err := cur.Values()
		if err != nil {
			return e.finish(stats, state, start), fmt.Errorf("failed to read row %d: %w", state.exported+1, err)
		}

		args, err := mapper.MapRow(src)
		if err != nil {
			return e.finish(stats, state, start), err
		}

		if _, err := insertStmt.ExecContext(ctx, args...); err != nil {
			return e.finish(stats, state, start), fmt.Errorf("failed to insert row %d: %w", state.exported+1, err)
		}

		state.exported++
		state.sincePrint++
		state.inBatch++

		if state.sincePrint == progressEvery {
			e.console.Rows(state.exported)
			state.sincePrint = 0
		}

		if state.inBatch == e.batchSize {
			if err := e.commit(ctx, conn, state); err != nil {
				return e.finish(stats, state, start), err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return e.finish(stats, state, start), fmt.Errorf("failed to read rows: %w", err)
	}

	// An empty table still gets one empty transaction.
	if state.commits == 0 && !state.open {
		if err := e.begin(ctx, conn, state); err != nil {
			return e.finish(stats, state, start), err
		}
	}
	if state.open {
		if err := e.commit(ctx, conn, state); err != nil {
			return e.finish(stats, state, start), err
		}
	}

	e.console.TableDone(state.exported)
	stats = e.finish(stats, state, start)
	metrics.RecordRows(e.job, table.Name, stats.Rows)
	metrics.RecordCommits(e.job, table.Name, stats.Commits)
	return stats, nil
}

func (e *Exporter) begin(ctx context.Context, conn *sql.Conn, state *exportState) error {
	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	state.open = true
	return nil
}

func (e *Exporter) commit(ctx context.Context, conn *sql.Conn, state *exportState) error {
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit after %d rows: %w", state.exported, err)
	}
	state.open = false
	state.inBatch = 0
	state.commits++
	return nil
}

// finish copies the committed counters into stats. Rows counts only rows
// that were durably committed.
func (e *Exporter) finish(stats Stats, state *exportState, start time.Time) Stats {
	stats.Rows = state.exported
	if state.open {
		stats.Rows -= int64(state.inBatch)
	}
	stats.Commits = state.commits
	stats.Duration = time.Since(start)
	return stats
}

// insertSQL builds a positional INSERT with one placeholder per column.
func insertSQL(table TableDef) string {
	placeholders := make([]string, len(table.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		quoteIdent(table.Name),
		strings.Join(placeholders, ", "),
	)
}
