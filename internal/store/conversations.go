package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/convoscope/internal/conversation"
)

const conversationColumns = `id, model, language, turn, redacted, messages, summary, embedding, coord_x, coord_y`

// maxInArgs keeps IN (...) lists well under SQLite's variable limit.
const maxInArgs = 500

// CoordView is the projection used to plot the corpus.
type CoordView struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// MetaView is the descriptive metadata of a conversation without its text.
type MetaView struct {
	ID       string `json:"id"`
	Model    string `json:"model"`
	Language string `json:"language"`
	Turn     int    `json:"turn"`
	Redacted bool   `json:"redacted"`
}

// Save upserts a conversation keyed by its ID. The row is committed before
// the embedding is mirrored into an attached index, so an error wrapping
// ErrIndexMirror means the conversation was saved but the index is stale
// until the next embed run.
func (s *Store) Save(ctx context.Context, doc conversation.Document) error {
	if doc.ID == "" {
		return errors.New("saving conversation: empty id")
	}
	messagesJSON, err := json.Marshal(doc.Messages)
	if err != nil {
		return fmt.Errorf("marshalling messages: %w", err)
	}

	var x, y sql.NullFloat64
	if doc.Coordinates != nil {
		x = sql.NullFloat64{Float64: doc.Coordinates.X, Valid: true}
		y = sql.NullFloat64{Float64: doc.Coordinates.Y, Valid: true}
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, model, language, turn, redacted, messages, summary, embedding, coord_x, coord_y, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model = excluded.model,
			language = excluded.language,
			turn = excluded.turn,
			redacted = excluded.redacted,
			messages = excluded.messages,
			summary = excluded.summary,
			embedding = excluded.embedding,
			coord_x = excluded.coord_x,
			coord_y = excluded.coord_y,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Model, doc.Language, doc.Turn, boolToInt(doc.Redacted), string(messagesJSON),
		nullString(doc.Summary), float32SliceToBytes(doc.Embedding), x, y, now, now)
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}

	if s.index != nil && len(doc.Embedding) > 0 {
		if err := s.index.Upsert(ctx, doc.ID, doc.Embedding); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrIndexMirror, doc.ID, err)
		}
	}
	return nil
}

// Get returns a single conversation.
func (s *Store) Get(ctx context.Context, id string) (conversation.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	doc, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Document{}, ErrNotFound
	}
	return doc, err
}

// FetchByIDs returns the conversations for ids in the order given. Unknown
// and repeated ids are skipped.
func (s *Store) FetchByIDs(ctx context.Context, ids []string) ([]conversation.Document, error) {
	found := make(map[string]conversation.Document, len(ids))
	for start := 0; start < len(ids); start += maxInArgs {
		end := min(start+maxInArgs, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("fetching conversations: %w", err)
		}
		docs, err := scanConversations(rows)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			found[d.ID] = d
		}
	}

	out := make([]conversation.Document, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, id := range ids {
		d, ok := found[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, d)
	}
	return out, nil
}

// FetchAll returns conversations in insertion order. A non-positive limit
// returns the whole corpus.
func (s *Store) FetchAll(ctx context.Context, limit int) ([]conversation.Document, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations ORDER BY rowid`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching conversations: %w", err)
	}
	return scanConversations(rows)
}

// Count returns the number of stored conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return n, nil
}

// IDs returns every conversation id in insertion order.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conversations ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Coords returns every conversation that has been projected.
func (s *Store) Coords(ctx context.Context) ([]CoordView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, coord_x, coord_y FROM conversations
		WHERE coord_x IS NOT NULL AND coord_y IS NOT NULL
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("listing coordinates: %w", err)
	}
	defer rows.Close()

	var out []CoordView
	for rows.Next() {
		var v CoordView
		if err := rows.Scan(&v.ID, &v.X, &v.Y); err != nil {
			return nil, fmt.Errorf("scanning coordinates: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Meta returns descriptive metadata for every conversation.
func (s *Store) Meta(ctx context.Context) ([]MetaView, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, model, language, turn, redacted FROM conversations ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing metadata: %w", err)
	}
	defer rows.Close()

	var out []MetaView
	for rows.Next() {
		var v MetaView
		var redacted int
		if err := rows.Scan(&v.ID, &v.Model, &v.Language, &v.Turn, &redacted); err != nil {
			return nil, fmt.Errorf("scanning metadata: %w", err)
		}
		v.Redacted = redacted != 0
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateSummary stores summary and reports whether the stored value changed.
func (s *Store) UpdateSummary(ctx context.Context, id, summary string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET summary = ?, updated_at = ?
		WHERE id = ? AND summary IS NOT ?
	`, summary, time.Now().UTC(), id, summary)
	if err != nil {
		return false, fmt.Errorf("updating summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating summary: %w", err)
	}
	return n > 0, nil
}

// UpdateEmbedding stores a conversation's embedding. Index failures are
// reported the same way as in Save.
func (s *Store) UpdateEmbedding(ctx context.Context, id string, vector []float32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET embedding = ?, updated_at = ? WHERE id = ?`,
		float32SliceToBytes(vector), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if s.index != nil {
		if err := s.index.Upsert(ctx, id, vector); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrIndexMirror, id, err)
		}
	}
	return nil
}

// UpdateCoordinates stores a conversation's 2D projection.
func (s *Store) UpdateCoordinates(ctx context.Context, id string, p conversation.Point) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET coord_x = ?, coord_y = ?, updated_at = ? WHERE id = ?`,
		p.X, p.Y, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating coordinates: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Embedding is a conversation id with its vector.
type Embedding struct {
	ID     string
	Vector []float32
}

// Embeddings returns every stored embedding in insertion order.
func (s *Store) Embeddings(ctx context.Context) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM conversations WHERE embedding IS NOT NULL ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing embeddings: %w", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var blob []byte
		if err := rows.Scan(&e.ID, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		e.Vector = bytesToFloat32Slice(blob)
		if len(e.Vector) > 0 {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (conversation.Document, error) {
	var (
		doc          conversation.Document
		redacted     int
		messagesJSON string
		summary      sql.NullString
		embedding    []byte
		x, y         sql.NullFloat64
	)
	if err := row.Scan(&doc.ID, &doc.Model, &doc.Language, &doc.Turn, &redacted, &messagesJSON,
		&summary, &embedding, &x, &y); err != nil {
		return conversation.Document{}, err
	}
	if err := json.Unmarshal([]byte(messagesJSON), &doc.Messages); err != nil {
		return conversation.Document{}, fmt.Errorf("unmarshalling messages for %s: %w", doc.ID, err)
	}
	doc.Redacted = redacted != 0
	doc.Summary = summary.String
	doc.Embedding = bytesToFloat32Slice(embedding)
	if x.Valid && y.Valid {
		doc.Coordinates = &conversation.Point{X: x.Float64, Y: y.Float64}
	}
	return doc, nil
}

func scanConversations(rows *sql.Rows) ([]conversation.Document, error) {
	defer rows.Close()
	var docs []conversation.Document
	for rows.Next() {
		doc, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return docs, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
