package mongo

import (
	"fmt"
	"time"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

type taskModel struct {
	ID              string     `bson:"_id"`
	OwnerID         string     `bson:"owner_id"`
	Kind            string     `bson:"kind"`
	Payload         []byte     `bson:"payload,omitempty"`
	Status          string     `bson:"status"`
	Priority        int        `bson:"priority"`
	ProgressPercent int        `bson:"progress_percent"`
	ProgressMessage string     `bson:"progress_message,omitempty"`
	ErrorMessage    string     `bson:"error_message,omitempty"`
	CancelRequested bool       `bson:"cancel_requested"`
	WorkerID        string     `bson:"worker_id,omitempty"`
	StartedAt       *time.Time `bson:"started_at,omitempty"`
	EndedAt         *time.Time `bson:"ended_at,omitempty"`
	Timeout         int64      `bson:"timeout"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`

	// Active mirrors Status.Active() so the partial unique owner index can
	// filter on a plain equality. Derived on every write, never read back.
	Active bool `bson:"active"`
}

func toTaskModel(t *task.Task) *taskModel {
	return &taskModel{
		ID:              t.ID.String(),
		OwnerID:         t.OwnerID,
		Kind:            t.Kind,
		Payload:         t.Payload,
		Status:          string(t.Status),
		Priority:        t.Priority,
		ProgressPercent: t.Progress.Percent,
		ProgressMessage: t.Progress.Message,
		ErrorMessage:    t.ErrorMessage,
		CancelRequested: t.CancelRequested,
		WorkerID:        t.WorkerID.String(),
		StartedAt:       t.StartedAt,
		EndedAt:         t.EndedAt,
		Timeout:         t.Timeout.Nanoseconds(),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		Active:          t.Status.Active(),
	}
}

func fromTaskModel(m *taskModel) (*task.Task, error) {
	parsedID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/mongo: parse task id %q: %w", m.ID, err)
	}

	t := &task.Task{
		Entity: vedfolnir.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              parsedID,
		OwnerID:         m.OwnerID,
		Kind:            m.Kind,
		Payload:         m.Payload,
		Status:          task.Status(m.Status),
		Priority:        m.Priority,
		Progress:        task.Progress{Percent: m.ProgressPercent, Message: m.ProgressMessage},
		ErrorMessage:    m.ErrorMessage,
		CancelRequested: m.CancelRequested,
		StartedAt:       m.StartedAt,
		EndedAt:         m.EndedAt,
		Timeout:         time.Duration(m.Timeout),
	}

	if m.WorkerID != "" {
		parsedWorker, wErr := id.ParseWorkerID(m.WorkerID)
		if wErr == nil {
			t.WorkerID = parsedWorker
		}
	}

	return t, nil
}
