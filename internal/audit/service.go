package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to callers by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ActorID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records an admin action against a location (including hidden roles).
func (s *Service) LogAdminAction(ctx context.Context, actorID, actorRole, ip, message string, locationID int64, metadata string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeAdminAction,
		ActorID:    actorID,
		ActorRole:  actorRole,
		IPAddress:  ip,
		LocationID: locationID,
		Message:    message,
		Metadata:   metadata,
	})
}

// LogQueueMutation records a bulk queue change (enqueue, bulk delete, prune).
func (s *Service) LogQueueMutation(ctx context.Context, actorID, actorRole, ip, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeQueueMutation,
		ActorID:   actorID,
		ActorRole: actorRole,
		IPAddress: ip,
		Message:   message,
		Metadata:  metadata,
	})
}
