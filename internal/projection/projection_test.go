package projection

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/store"
)

const eps = 1e-6

func TestProject_LineAlongFirstAxis(t *testing.T) {
	// Points on a line: all variance lies on the first component.
	pts, err := Project([][]float32{{0, 0, 0}, {1, 1, 0}, {2, 2, 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{-math.Sqrt2, 0, math.Sqrt2}
	for i, p := range pts {
		if math.Abs(p.X-want[i]) > eps {
			t.Errorf("point %d X = %f, want %f", i, p.X, want[i])
		}
		if math.Abs(p.Y) > eps {
			t.Errorf("point %d Y = %f, want 0", i, p.Y)
		}
	}
}

func TestProject_TwoAxes(t *testing.T) {
	pts, err := Project([][]float32{{3, 0}, {-3, 0}, {0, 1}, {0, -1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []conversation.Point{{X: 3}, {X: -3}, {Y: 1}, {Y: -1}}
	for i, p := range pts {
		if math.Abs(p.X-want[i].X) > eps || math.Abs(p.Y-want[i].Y) > eps {
			t.Errorf("point %d = %+v, want %+v", i, p, want[i])
		}
	}
}

func TestProject_EdgeCases(t *testing.T) {
	pts, err := Project(nil)
	if err != nil || pts != nil {
		t.Errorf("nil input: got %v, %v", pts, err)
	}
	pts, err = Project([][]float32{{1, 2, 3}})
	if err != nil || len(pts) != 1 || pts[0] != (conversation.Point{}) {
		t.Errorf("single vector: got %v, %v", pts, err)
	}
	if _, err := Project([][]float32{{1, 2}, {1}}); err == nil {
		t.Error("expected width mismatch error")
	}
}

type memStore struct {
	embs []store.Embedding

	mu     sync.Mutex
	coords map[string]conversation.Point
}

func (s *memStore) Embeddings(context.Context) ([]store.Embedding, error) {
	return s.embs, nil
}

func (s *memStore) UpdateCoordinates(_ context.Context, id string, p conversation.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coords[id] = p
	return nil
}

func TestRun_SavesCoordinatesAndSkipsMismatched(t *testing.T) {
	s := &memStore{
		embs: []store.Embedding{
			{ID: "a", Vector: []float32{3, 0}},
			{ID: "b", Vector: []float32{-3, 0}},
			{ID: "odd", Vector: []float32{1, 2, 3}},
			{ID: "c", Vector: []float32{0, 1}},
		},
		coords: map[string]conversation.Point{},
	}
	sum, err := New(s, 0, slog.New(slog.NewTextHandler(io.Discard, nil))).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Projected != 3 || sum.Skipped != 1 || sum.Dimensions != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if _, ok := s.coords["odd"]; ok {
		t.Error("mismatched vector should not be projected")
	}
	if s.coords["a"].X <= s.coords["b"].X {
		t.Errorf("expected a to the right of b: %+v %+v", s.coords["a"], s.coords["b"])
	}
}
