package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/agrimart/backoffice/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func (s stubInspector) Close() error { return nil }

func TestTriggerMailTask(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq}
	stdout := new(bytes.Buffer)

	code := c.JobsCommand(context.Background(),
		[]string{"trigger", "-email", "jane@agrimart.test", "-name", "Jane", jobs.TaskTypePasswordResetEmail},
		JobsOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "enqueued mail:password_reset")
	require.Len(t, enq.tasks, 1)

	var payload jobs.AccountEmailPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, "jane@agrimart.test", payload.Email)
}

func TestTriggerRejectsMailWithoutRecipient(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}}
	stderr := new(bytes.Buffer)
	code := c.JobsCommand(context.Background(), []string{"trigger", jobs.TaskTypeVerificationEmail}, JobsOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "without recipient")
}

func TestTriggerPurgeAndUnknown(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq}

	_, err := c.Trigger(context.Background(), jobs.TaskTypePurgeSessions, TriggerParams{})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskTypePurgeSessions, enq.tasks[0].Type())

	_, err = c.Trigger(context.Background(), "reports:rebuild", TriggerParams{})
	require.Error(t, err)
}

func TestStatsCommand(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{info: &asynq.QueueInfo{Pending: 2, Active: 1, Retry: 3}}}
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, c.JobsCommand(context.Background(), []string{"stats"}, JobsOptions{Stdout: stdout, Stderr: new(bytes.Buffer)}))

	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Active: 1, Retry: 3}, stats)

	c = &JobsCLI{inspector: stubInspector{err: errors.New("dial tcp")}}
	require.Equal(t, 1, c.JobsCommand(context.Background(), []string{"stats"}, JobsOptions{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}))
}

func TestScheduledCommand(t *testing.T) {
	next := time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)
	c := &JobsCLI{inspector: stubInspector{scheduled: []*asynq.TaskInfo{{ID: "s1", Type: jobs.TaskTypePurgeSessions, NextProcessAt: next}}}}
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, c.JobsCommand(context.Background(), []string{"scheduled", "-size", "5"}, JobsOptions{Stdout: stdout, Stderr: new(bytes.Buffer)}))
	require.Equal(t, "s1\tsessions:purge\t2025-03-01T02:00:00Z\n", stdout.String())
}

func TestUsageErrors(t *testing.T) {
	c := &JobsCLI{}
	opts := JobsOptions{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}
	require.Equal(t, 2, c.JobsCommand(context.Background(), nil, opts))
	require.Equal(t, 2, c.JobsCommand(context.Background(), []string{"explode"}, opts))
	require.Equal(t, 2, c.JobsCommand(context.Background(), []string{"trigger"}, opts))
}
