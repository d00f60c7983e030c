package services

import (
	"context"
	"fmt"

	"finsight/internal/core"
	"finsight/internal/store"
)

// ReadStateService exposes insights to their owner and tracks what was read.
// It is not serialized against generation passes.
type ReadStateService struct {
	insights store.InsightStore
	listCap  int
}

func NewReadStateService(insights store.InsightStore, listCap int) *ReadStateService {
	if listCap < 1 {
		listCap = DefaultEngineConfig().ListCap
	}
	return &ReadStateService{insights: insights, listCap: listCap}
}

// List returns the newest listCap insights, or every unread insight when
// unreadOnly is set. Both are ordered newest first.
func (s *ReadStateService) List(ctx context.Context, userID int64, unreadOnly bool) ([]core.Insight, error) {
	opts := store.ListOptions{Limit: s.listCap}
	if unreadOnly {
		opts = store.ListOptions{UnreadOnly: true}
	}
	out, err := s.insights.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	return out, nil
}

// MarkRead flags one insight as read on behalf of userID.
func (s *ReadStateService) MarkRead(ctx context.Context, userID, id int64) error {
	in, err := s.insights.Get(ctx, id)
	if err != nil {
		return err
	}
	if in.UserID != userID {
		return core.ErrUnauthorized
	}
	return s.insights.MarkRead(ctx, id)
}

// MarkAllRead flags every unread insight of userID and returns how many changed.
func (s *ReadStateService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.insights.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}
