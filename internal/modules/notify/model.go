// README: Notification records and the fire-and-forget sink the core writes to.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var ErrNoTarget = fmt.Errorf("notify: target user or role required: %w", types.ErrValidation)

// Notification is addressed to exactly one user or to every user of a role.
type Notification struct {
	ID        types.ID  `json:"id" firestore:"id"`
	UserID    types.ID  `json:"user_id,omitempty" firestore:"user_id,omitempty"`
	Role      user.Role `json:"role,omitempty" firestore:"role,omitempty"`
	Title     string    `json:"title" firestore:"title"`
	Message   string    `json:"message" firestore:"message"`
	Severity  Severity  `json:"severity" firestore:"severity"`
	JobID     types.ID  `json:"job_id,omitempty" firestore:"job_id,omitempty"`
	Read      bool      `json:"read" firestore:"read"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

func ToUser(id types.ID, title, message string, sev Severity) Notification {
	return Notification{UserID: id, Title: title, Message: message, Severity: sev}
}

func ToRole(role user.Role, title, message string, sev Severity) Notification {
	return Notification{Role: role, Title: title, Message: message, Severity: sev}
}

func (n Notification) Validate() error {
	if (n.UserID == "") == (n.Role == "") {
		return ErrNoTarget
	}
	return nil
}

// Recipients resolves the feeds n lands in. A role notification reaches
// every active user holding that role.
func Recipients(ctx context.Context, users user.Directory, n Notification) ([]types.ID, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if n.UserID != "" {
		return []types.ID{n.UserID}, nil
	}
	members, err := users.ListByRole(ctx, n.Role)
	if err != nil {
		return nil, fmt.Errorf("list %s users: %w", n.Role, err)
	}
	out := make([]types.ID, 0, len(members))
	for _, u := range members {
		if u.Status == user.StatusActive {
			out = append(out, u.ID)
		}
	}
	return out, nil
}

type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// LogSink writes notifications to the structured log only.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(_ context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification",
		slog.String("user_id", string(n.UserID)),
		slog.String("role", string(n.Role)),
		slog.String("title", n.Title),
		slog.String("severity", string(n.Severity)),
		slog.String("job_id", string(n.JobID)),
	)
	return nil
}

// MemorySink keeps every notification; used by tests and local runs.
type MemorySink struct {
	mu   sync.Mutex
	sent []Notification
}

func (s *MemorySink) Notify(_ context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *MemorySink) Sent() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.sent))
	copy(out, s.sent)
	return out
}
