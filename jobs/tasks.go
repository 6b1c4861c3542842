package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeVerificationEmail re-sends the verification e-mail of a pending account.
	TaskTypeVerificationEmail = "mail:verification"
	// TaskTypePasswordResetEmail sends a password reset e-mail.
	TaskTypePasswordResetEmail = "mail:password_reset"
	// TaskTypePurgeSessions deletes expired login sessions.
	TaskTypePurgeSessions = "sessions:purge"
)

// AccountEmailPayload identifies the recipient of an account e-mail.
type AccountEmailPayload struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

// NewAccountEmailTask constructs a mail task of the given type.
func NewAccountEmailTask(taskType string, payload AccountEmailPayload) (*asynq.Task, error) {
	if taskType != TaskTypeVerificationEmail && taskType != TaskTypePasswordResetEmail {
		return nil, fmt.Errorf("jobs: unsupported mail task %s", taskType)
	}
	if payload.Email == "" {
		return nil, fmt.Errorf("jobs: mail task without recipient")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewPurgeSessionsTask builds the periodic session cleanup task.
func NewPurgeSessionsTask() *asynq.Task {
	return asynq.NewTask(TaskTypePurgeSessions, nil, asynq.Queue(QueueDefault))
}
