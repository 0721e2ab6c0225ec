// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Job outcomes reported to a Recorder.
const (
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusErrorThrown = "error_thrown"
	StatusAbandoned   = "abandoned"
)

// Recorder receives one observation per handled job.
type Recorder interface {
	RecordJob(ctx context.Context, taskType, status string, duration time.Duration)
}

type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
	Handler       worker.JobHandler
	Recorder      Recorder
}

// Open registers a job worker on the Zeebe client.
func Open(client zbc.Client, opts WorkerOptions) worker.JobWorker {
	return client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(Instrument(opts.TaskType, opts.Recorder, opts.Handler)).
		MaxJobsActive(opts.MaxJobsActive).
		Timeout(opts.Timeout).
		Name(opts.TaskType + "-worker").
		Open()
}

// Instrument wraps h and records the outcome of the last job command the
// handler issued. A handler that issues none is recorded as abandoned.
func Instrument(taskType string, rec Recorder, h worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		tracked := &outcomeClient{JobClient: client, status: StatusAbandoned}
		h(tracked, job)
		if rec != nil {
			rec.RecordJob(context.Background(), taskType, tracked.status, time.Since(start))
		}
	}
}

type outcomeClient struct {
	worker.JobClient
	status string
}

func (c *outcomeClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	c.status = StatusCompleted
	return c.JobClient.NewCompleteJobCommand()
}

func (c *outcomeClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	c.status = StatusFailed
	return c.JobClient.NewFailJobCommand()
}

func (c *outcomeClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	c.status = StatusErrorThrown
	return c.JobClient.NewThrowErrorCommand()
}
