// Package projection lays stored embeddings out on a 2D map using their
// first two principal components.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/pool"
	"github.com/dgallion1/convoscope/internal/store"
)

const DefaultConcurrency = 20

// Store supplies embeddings and receives coordinates.
type Store interface {
	Embeddings(ctx context.Context) ([]store.Embedding, error)
	UpdateCoordinates(ctx context.Context, id string, p conversation.Point) error
}

// Summary reports a finished run.
type Summary struct {
	Projected  int `json:"projected"`
	Skipped    int `json:"skipped"`
	Dimensions int `json:"dimensions"`
}

type Projector struct {
	store       Store
	concurrency int
	log         *slog.Logger
}

func New(s Store, concurrency int, log *slog.Logger) *Projector {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Projector{store: s, concurrency: concurrency, log: log}
}

// Run projects every embedded conversation and saves its coordinates.
// Vectors whose width differs from the first one are skipped.
func (p *Projector) Run(ctx context.Context) (Summary, error) {
	embs, err := p.store.Embeddings(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load embeddings: %w", err)
	}
	if len(embs) == 0 {
		p.log.Info("projection skipped, no embeddings")
		return Summary{}, nil
	}

	width := len(embs[0].Vector)
	var usable []store.Embedding
	for _, e := range embs {
		if len(e.Vector) == width {
			usable = append(usable, e)
		}
	}
	sum := Summary{Skipped: len(embs) - len(usable), Dimensions: width}
	if sum.Skipped > 0 {
		p.log.Warn("skipping embeddings with mismatched width", "count", sum.Skipped, "width", width)
	}

	vectors := make([][]float32, len(usable))
	for i, e := range usable {
		vectors[i] = e.Vector
	}
	points, err := Project(vectors)
	if err != nil {
		return sum, err
	}

	wp := pool.New(p.concurrency)
	results := pool.Map(ctx, wp, usable, func(i int, e store.Embedding) (struct{}, error) {
		return struct{}{}, p.store.UpdateCoordinates(ctx, e.ID, points[i])
	})
	for i, r := range results {
		if r.Err != nil {
			return sum, fmt.Errorf("save coordinates %s: %w", usable[i].ID, r.Err)
		}
		sum.Projected++
	}
	p.log.Info("projection finished", "projected", sum.Projected, "skipped", sum.Skipped)
	return sum, nil
}

// Project maps equal-width vectors onto their first two principal
// components. Each axis is oriented so its largest loading is positive,
// which keeps the layout stable across runs.
func Project(vectors [][]float32) ([]conversation.Point, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	d := len(vectors[0])
	points := make([]conversation.Point, n)
	if d == 0 || n == 1 {
		return points, nil
	}

	x := mat.NewDense(n, d, nil)
	for i, v := range vectors {
		if len(v) != d {
			return nil, fmt.Errorf("vector %d has width %d, want %d", i, len(v), d)
		}
		for j, f := range v {
			x.Set(i, j, float64(f))
		}
	}
	for j := range d {
		col := mat.Col(nil, j, x)
		var mean float64
		for _, f := range col {
			mean += f
		}
		mean /= float64(n)
		for i := range n {
			x.Set(i, j, x.At(i, j)-mean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, fmt.Errorf("svd did not converge")
	}
	var v mat.Dense
	svd.VTo(&v)
	_, comps := v.Dims()
	comps = min(comps, 2)

	for c := range comps {
		axis := mat.Col(nil, c, &v)
		sign := 1.0
		var peak float64
		for _, f := range axis {
			if math.Abs(f) > peak {
				peak = math.Abs(f)
				sign = math.Copysign(1, f)
			}
		}
		for i := range n {
			var dot float64
			for j := range d {
				dot += x.At(i, j) * axis[j]
			}
			if c == 0 {
				points[i].X = sign * dot
			} else {
				points[i].Y = sign * dot
			}
		}
	}
	return points, nil
}
