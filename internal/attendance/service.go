package attendance

import (
	"context"
	"fmt"
)

// EventStore is the persistence the audit service needs.
type EventStore interface {
	InsertEvent(ctx context.Context, evt SessionEvent) error
	InsertCommittedRecords(ctx context.Context, eventID, classID string, records []StudentRecord) error
}

// AuditService records session events consumed from the queue.
type AuditService struct {
	store EventStore
}

// NewAuditService creates a service backed by a store.
func NewAuditService(store EventStore) *AuditService {
	return &AuditService{store: store}
}

// Record persists evt, and the committed batch when evt is a commit.
func (s *AuditService) Record(ctx context.Context, evt SessionEvent) error {
	if evt.Kind == "" {
		return fmt.Errorf("event %s: kind required", evt.ID)
	}
	if err := s.store.InsertEvent(ctx, evt); err != nil {
		return fmt.Errorf("insert event %s: %w", evt.ID, err)
	}
	if evt.Kind == EventSessionCommitted && len(evt.Records) > 0 {
		if err := s.store.InsertCommittedRecords(ctx, evt.ID, evt.ClassID, evt.Records); err != nil {
			return fmt.Errorf("insert committed records for %s: %w", evt.ID, err)
		}
	}
	return nil
}
