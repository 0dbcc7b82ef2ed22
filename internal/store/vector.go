package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/dgallion1/convoscope/internal/conversation"
)

// VectorSearch returns up to limit conversations ranked by cosine
// similarity to query. limit is clamped to candidates. A non-nil filterIDs
// restricts the search to those conversations.
func (s *Store) VectorSearch(ctx context.Context, query []float32, candidates, limit int, filterIDs []string) ([]conversation.Document, error) {
	if candidates <= 0 {
		candidates = 100
	}
	if limit <= 0 || limit > candidates {
		limit = candidates
	}
	if filterIDs != nil && len(filterIDs) == 0 {
		return []conversation.Document{}, nil
	}

	var ids []string
	var err error
	if s.index != nil {
		ids, err = s.index.Search(ctx, query, candidates, limit, filterIDs)
		if err != nil {
			return nil, fmt.Errorf("vector index search: %w", err)
		}
	} else {
		ids, err = s.bruteForceSearch(ctx, query, limit, filterIDs)
		if err != nil {
			return nil, err
		}
	}
	return s.FetchByIDs(ctx, ids)
}

type scoredID struct {
	id    string
	score float64
}

func (s *Store) bruteForceSearch(ctx context.Context, query []float32, limit int, filterIDs []string) ([]string, error) {
	var allow map[string]bool
	if filterIDs != nil {
		allow = make(map[string]bool, len(filterIDs))
		for _, id := range filterIDs {
			allow[id] = true
		}
	}

	embeddings, err := s.Embeddings(ctx)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredID, 0, len(embeddings))
	for _, e := range embeddings {
		if allow != nil && !allow[e.ID] {
			continue
		}
		if len(e.Vector) != len(query) {
			continue
		}
		scored = append(scored, scoredID{id: e.ID, score: cosineSimilarity(query, e.Vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	if len(scored) > limit {
		scored = scored[:limit]
	}
	ids := make([]string, len(scored))
	for i, sc := range scored {
		ids[i] = sc.id
	}
	return ids, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
