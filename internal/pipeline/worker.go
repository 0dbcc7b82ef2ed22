package pipeline

import (
	"context"
	"fmt"
	"time"
)

// process runs one job to completion, recording the outcome on it.
func (o *Orchestrator) process(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID, "kind", job.Kind)
	start := time.Now()
	job.SetStatus(StatusRunning, string(job.Kind))
	log.Info("job started")

	result, err := o.run(ctx, job)
	if err != nil {
		log.Error("job failed", "error", err, "duration", time.Since(start))
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, string(job.Kind))
		return
	}
	job.SetResult(result)
	job.SetStatus(StatusCompleted, "done")
	log.Info("job completed", "duration", time.Since(start))
}

func (o *Orchestrator) run(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.runners[job.Kind].Run(ctx, job)
}
