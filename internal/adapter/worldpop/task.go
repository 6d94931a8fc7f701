package worldpop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/asteroid-impact-service/internal/domain"
)

// TaskState is the lifecycle of a WorldPop statistics task.
type TaskState string

const (
	TaskCreated  TaskState = "created"
	TaskRunning  TaskState = "running"
	TaskFinished TaskState = "finished"
	TaskFailed   TaskState = "failed"
)

// task tracks one submitted query through Created -> Running -> Finished|Failed.
type task struct {
	id       string
	state    TaskState
	attempts int
}

func newTask(id string) *task {
	return &task{id: id, state: TaskCreated}
}

func (t *task) done() bool {
	return t.state == TaskFinished || t.state == TaskFailed
}

// shortID is the task ID prefix shown in progress messages.
func (t *task) shortID() string {
	if len(t.id) <= 4 {
		return t.id
	}
	return t.id[:4]
}

var errPollBudget = errors.New("worldpop poll budget exhausted")

// pollBudget is the wall-clock bound on waiting for a task, status requests
// included: every interval plus one request timeout for the last poll.
func (o Options) pollBudget() time.Duration {
	return time.Duration(o.MaxAttempts)*o.PollInterval + o.Timeout
}

// awaitWithin runs await under the poll budget. A slow status endpoint ends
// the wait with the same timeout as an exhausted attempt count.
func (s *Source) awaitWithin(ctx context.Context, t *task) (float64, error) {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	deadline := s.clock.AfterFunc(s.opts.pollBudget(), func() { cancel(errPollBudget) })
	defer deadline.Stop()

	total, err := s.await(waitCtx, t)
	if err != nil && errors.Is(context.Cause(waitCtx), errPollBudget) {
		s.logger.Debug("worldpop poll budget exhausted", "task_id", t.id, "attempts", t.attempts,
			"budget", s.opts.pollBudget())
		return 0, timeoutError()
	}
	return total, err
}

func timeoutError() error {
	return domain.NewLookupError(domain.KindTimeout, providerName,
		"Timeout exceeded while waiting for WorldPop task.", nil)
}

// await polls the task every PollInterval until it finishes, fails, the
// attempt budget runs out, or ctx is cancelled. Each poll is preceded by one
// interval of waiting.
func (s *Source) await(ctx context.Context, t *task) (float64, error) {
	for !t.done() && t.attempts < s.opts.MaxAttempts {
		t.attempts++
		domain.ReportProgress(ctx, fmt.Sprintf("Monitoring Task %s... (Attempt %d/%d)...",
			t.shortID(), t.attempts, s.opts.MaxAttempts))

		timer := s.clock.NewTimer(s.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, domain.NewLookupError(domain.KindTimeout, providerName, "WorldPop task polling cancelled", ctx.Err())
		case <-timer.Chan():
		}

		resp, err := s.fetchStatus(ctx, t.id)
		if err != nil {
			return 0, err
		}

		switch resp.Status {
		case string(TaskFinished):
			t.state = TaskFinished
			if resp.Data == nil || resp.Data.TotalPopulation == nil {
				return 0, domain.NewLookupError(domain.KindMalformedResponse, providerName,
					"WorldPop result finished, but no population data.", nil)
			}
			s.logger.Debug("worldpop task finished", "task_id", t.id, "attempts", t.attempts)
			return *resp.Data.TotalPopulation, nil
		case string(TaskFailed):
			t.state = TaskFailed
			msg := resp.ErrorMessage
			if msg == "" {
				msg = "WorldPop task failed."
			}
			return 0, domain.NewLookupError(domain.KindProvider, providerName, msg, nil)
		default:
			t.state = TaskRunning
		}
	}

	return 0, timeoutError()
}
