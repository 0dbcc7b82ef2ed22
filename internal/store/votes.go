package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Vote values accepted by AddVote.
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// VoteTally aggregates the votes cast on one question.
type VoteTally struct {
	Question string    `json:"question"`
	Up       int       `json:"up"`
	Down     int       `json:"down"`
	LastVote time.Time `json:"lastVote"`
}

// AddVote records a thumbs up or down on a question.
func (s *Store) AddVote(ctx context.Context, question, vote string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("recording vote: empty question")
	}
	if vote != VoteUp && vote != VoteDown {
		return fmt.Errorf("recording vote: invalid vote %q", vote)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO question_votes (question, vote, created_at) VALUES (?, ?, ?)`,
		question, vote, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording vote: %w", err)
	}
	return nil
}

// Votes returns per-question tallies, most recently voted first.
func (s *Store) Votes(ctx context.Context) ([]VoteTally, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question,
			SUM(CASE WHEN vote = 'up' THEN 1 ELSE 0 END),
			SUM(CASE WHEN vote = 'down' THEN 1 ELSE 0 END),
			MAX(id)
		FROM question_votes
		GROUP BY question
		ORDER BY MAX(id) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing votes: %w", err)
	}
	defer rows.Close()

	var out []VoteTally
	var lastIDs []int64
	for rows.Next() {
		var t VoteTally
		var lastID int64
		if err := rows.Scan(&t.Question, &t.Up, &t.Down, &lastID); err != nil {
			return nil, fmt.Errorf("scanning votes: %w", err)
		}
		out = append(out, t)
		lastIDs = append(lastIDs, lastID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating votes: %w", err)
	}

	for i, id := range lastIDs {
		var last sql.NullTime
		if err := s.db.QueryRowContext(ctx, `SELECT created_at FROM question_votes WHERE id = ?`, id).Scan(&last); err != nil {
			return nil, fmt.Errorf("reading vote time: %w", err)
		}
		out[i].LastVote = last.Time
	}
	return out, nil
}
