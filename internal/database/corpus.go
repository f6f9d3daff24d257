package database

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
)

// CorpusEntry is one resolved case in the knowledge corpus.
type CorpusEntry struct {
	TicketRef      string
	Embedding      []float32
	Content        string
	Summary        *string
	PrimaryType    *string
	SecondaryType  *string
	AffectedSystem *string
	Resolution     *string
	Confidence     *float64
	ResolvedAt     time.Time
}

// CorpusMatch is a corpus entry with its vector distance to a query.
type CorpusMatch struct {
	Entry    CorpusEntry
	Distance float64
}

// UpsertCorpusEntry inserts a resolved case, replacing any prior entry for
// the same ticket reference so re-analysis never duplicates corpus rows.
func (db *DB) UpsertCorpusEntry(ctx context.Context, entry CorpusEntry) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO voc_corpus (ticket_ref, embedding, content, summary, primary_type,
		   secondary_type, affected_system, resolution, confidence, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (ticket_ref) DO UPDATE SET
		   embedding = EXCLUDED.embedding,
		   content = EXCLUDED.content,
		   summary = EXCLUDED.summary,
		   primary_type = EXCLUDED.primary_type,
		   secondary_type = EXCLUDED.secondary_type,
		   affected_system = EXCLUDED.affected_system,
		   resolution = EXCLUDED.resolution,
		   confidence = EXCLUDED.confidence,
		   resolved_at = EXCLUDED.resolved_at`,
		entry.TicketRef, pgvector.NewVector(entry.Embedding), entry.Content, entry.Summary,
		entry.PrimaryType, entry.SecondaryType, entry.AffectedSystem,
		entry.Resolution, entry.Confidence, entry.ResolvedAt,
	)
	return err
}

// QueryCorpus returns the entries nearest to the query embedding by L2
// distance, closest first.
func (db *DB) QueryCorpus(ctx context.Context, embedding []float32, limit int) ([]CorpusMatch, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT ticket_ref, embedding, content, summary, primary_type,
		   secondary_type, affected_system, resolution, confidence, resolved_at,
		   embedding <-> $1 AS distance
		 FROM voc_corpus
		 ORDER BY distance
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []CorpusMatch
	for rows.Next() {
		var m CorpusMatch
		var vec pgvector.Vector
		if err := rows.Scan(
			&m.Entry.TicketRef, &vec, &m.Entry.Content, &m.Entry.Summary,
			&m.Entry.PrimaryType, &m.Entry.SecondaryType, &m.Entry.AffectedSystem,
			&m.Entry.Resolution, &m.Entry.Confidence, &m.Entry.ResolvedAt,
			&m.Distance,
		); err != nil {
			return nil, err
		}
		m.Entry.Embedding = vec.Slice()
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CountCorpusEntries returns the number of cases in the corpus.
func (db *DB) CountCorpusEntries(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM voc_corpus`).Scan(&count)
	return count, err
}

// DeleteCorpusEntry removes the corpus entry for a ticket reference, if any.
func (db *DB) DeleteCorpusEntry(ctx context.Context, ticketRef string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM voc_corpus WHERE ticket_ref = $1`, ticketRef)
	return err
}
