package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	vedfolnir "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"
	"github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/task"
)

type taskModel struct {
	bun.BaseModel `bun:"table:vedfolnir_tasks"`

	ID              string     `bun:"id,pk"`
	OwnerID         string     `bun:"owner_id,notnull"`
	Kind            string     `bun:"kind,notnull"`
	Payload         []byte     `bun:"payload,type:bytea"`
	Status          string     `bun:"status,notnull,default:'queued'"`
	Priority        int        `bun:"priority,notnull,default:0"`
	ProgressPercent int        `bun:"progress_percent,notnull,default:0"`
	ProgressMessage string     `bun:"progress_message"`
	ErrorMessage    string     `bun:"error_message"`
	CancelRequested bool       `bun:"cancel_requested,notnull,default:false"`
	WorkerID        string     `bun:"worker_id"`
	StartedAt       *time.Time `bun:"started_at"`
	EndedAt         *time.Time `bun:"ended_at"`
	Timeout         int64      `bun:"timeout,notnull,default:0"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
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
	}
}

func fromTaskModel(m *taskModel) (*task.Task, error) {
	parsedID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("vedfolnir/bun: parse task id %q: %w", m.ID, err)
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
