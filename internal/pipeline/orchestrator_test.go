package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgallion1/convoscope/internal/config"
	"github.com/dgallion1/convoscope/internal/conversation"
)

func testOrchestrator(t *testing.T, queue int, runners map[JobKind]Runner) *Orchestrator {
	t.Helper()
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: queue, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, runners, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(o.Stop)
	return o
}

func waitFor(t *testing.T, job *Job, want JobStatus) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %q (now %q)", job.ID, want, job.Snapshot().Status)
	return JobSnapshot{}
}

func TestOrchestrator_RunsJobs(t *testing.T) {
	o := testOrchestrator(t, 4, map[JobKind]Runner{
		KindEmbed: RunnerFunc(func(context.Context, *Job) (any, error) { return "ok", nil }),
		KindProject: RunnerFunc(func(context.Context, *Job) (any, error) {
			return nil, errors.New("no embeddings")
		}),
		KindSummarize: RunnerFunc(func(context.Context, *Job) (any, error) { panic("boom") }),
	})
	o.Start(context.Background())

	good := NewJob(KindEmbed, Params{})
	bad := NewJob(KindProject, Params{})
	crash := NewJob(KindSummarize, Params{})
	for _, j := range []*Job{good, bad, crash} {
		if err := o.Submit(j); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	if snap := waitFor(t, good, StatusCompleted); snap.Result != "ok" {
		t.Errorf("expected result %q, got %#v", "ok", snap.Result)
	}
	if snap := waitFor(t, bad, StatusFailed); len(snap.Errors) != 1 || snap.Errors[0] != "no embeddings" {
		t.Errorf("unexpected errors %v", snap.Errors)
	}
	waitFor(t, crash, StatusFailed)
	if o.GetJob(good.ID) != good {
		t.Error("expected job to be retrievable by id")
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	o := testOrchestrator(t, 1, map[JobKind]Runner{
		KindEmbed: RunnerFunc(func(context.Context, *Job) (any, error) { return nil, nil }),
	})
	// Workers not started: the first job fills the queue.
	if err := o.Submit(NewJob(KindEmbed, Params{})); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second := NewJob(KindEmbed, Params{})
	if err := o.Submit(second); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if second.Snapshot().Status != StatusFailed {
		t.Error("expected rejected job to be marked failed")
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}
}

func TestOrchestrator_UnknownKind(t *testing.T) {
	o := testOrchestrator(t, 1, map[JobKind]Runner{})
	if err := o.Submit(NewJob(KindEmbed, Params{})); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

type memLoader struct {
	docs []conversation.Document
}

func (l memLoader) FetchByIDs(_ context.Context, ids []string) ([]conversation.Document, error) {
	var out []conversation.Document
	for _, id := range ids {
		for _, d := range l.docs {
			if d.ID == id {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (l memLoader) FetchAll(_ context.Context, limit int) ([]conversation.Document, error) {
	if limit > 0 && limit < len(l.docs) {
		return l.docs[:limit], nil
	}
	return l.docs, nil
}

func TestLoadSelection(t *testing.T) {
	l := memLoader{docs: []conversation.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}}

	docs, err := LoadSelection(context.Background(), l, []string{"c", "a"}, 1)
	if err != nil || len(docs) != 2 || docs[0].ID != "c" {
		t.Errorf("ids: got %v, %v", docs, err)
	}
	docs, err = LoadSelection(context.Background(), l, nil, 2)
	if err != nil || len(docs) != 2 || docs[1].ID != "b" {
		t.Errorf("limit: got %v, %v", docs, err)
	}
}
