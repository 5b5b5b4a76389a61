// Package service is the query and lifecycle surface consumed by the HTTP
// handlers. Every read goes through the planner, so unscoped requests never
// reach the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"msgstore/models"
	"msgstore/observability"
	"msgstore/planner"
	"msgstore/repository"
)

// Page is one page of results, newest first.
type Page struct {
	Messages   []models.MessageRecord `json:"messages"`
	NextCursor string                 `json:"nextCursor,omitempty"`
	HasMore    bool                   `json:"hasMore"`
	Index      string                 `json:"index"`
}

type MessageService struct {
	repo    repository.Repository
	planner *planner.Planner
	routes  repository.RouteCache
	log     *zap.Logger
	now     func() time.Time
}

func NewMessageService(repo repository.Repository, p *planner.Planner, routes repository.RouteCache, log *zap.Logger) *MessageService {
	if routes == nil {
		routes = repository.NopRouteCache{}
	}
	return &MessageService{repo: repo, planner: p, routes: routes, log: log, now: time.Now}
}

// Search runs a conversation-scoped query with any combination of filters.
func (s *MessageService) Search(ctx context.Context, req planner.Request) (Page, error) {
	return s.run(ctx, req)
}

// Latest returns the newest limit messages of a conversation.
func (s *MessageService) Latest(ctx context.Context, chatID string, limit int) (Page, error) {
	return s.run(ctx, planner.Request{ChatID: chatID, Limit: limit})
}

// InChat pages through a conversation without filters.
func (s *MessageService) InChat(ctx context.Context, chatID string, limit int, cursor string) (Page, error) {
	return s.run(ctx, planner.Request{ChatID: chatID, Limit: limit, Cursor: cursor})
}

// FreeSearch is the audit search across fields. A msgId whose conversation
// is known from the route cache is resolved to a chatId-qualified plan.
func (s *MessageService) FreeSearch(ctx context.Context, req planner.Request) (Page, error) {
	if req.ChatID == "" && req.MsgID != "" {
		if chatID, ok := s.routes.Lookup(ctx, req.MsgID); ok {
			req.ChatID = chatID
		}
	}
	return s.run(ctx, req)
}

// Get is a point lookup. chatID may be empty.
func (s *MessageService) Get(ctx context.Context, chatID, msgID string) (*models.MessageRecord, error) {
	if msgID == "" {
		return nil, fmt.Errorf("%w: %s: must not be empty", models.ErrInvalidFieldValue, models.FieldMsgID)
	}
	page, err := s.FreeSearch(ctx, planner.Request{ChatID: chatID, MsgID: msgID})
	if err != nil {
		return nil, err
	}
	if len(page.Messages) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrMessageNotFound, msgID)
	}
	rec := page.Messages[0]
	if chatID == "" {
		s.routes.Remember(ctx, rec.MsgID, rec.ChatID)
	}
	return &rec, nil
}

// Insert validates and stores a new record.
func (s *MessageService) Insert(ctx context.Context, rec *models.MessageRecord) error {
	id := rec.ID
	rec.Normalize(s.now())
	if id != "" {
		rec.ID = id
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return err
	}
	s.routes.Remember(ctx, rec.MsgID, rec.ChatID)
	s.log.Debug("message stored",
		zap.String("chatId", rec.ChatID),
		zap.String("msgId", rec.MsgID))
	return nil
}

func (s *MessageService) AdvanceStatus(ctx context.Context, chatID, msgID string, next models.MsgStatus) (*models.MessageRecord, error) {
	if chatID == "" || msgID == "" {
		return nil, fmt.Errorf("%w: chatId and msgId are required", models.ErrInvalidFieldValue)
	}
	return s.repo.AdvanceStatus(ctx, chatID, msgID, next, s.now())
}

func (s *MessageService) Withdraw(ctx context.Context, chatID, msgID string) (*models.MessageRecord, error) {
	if chatID == "" || msgID == "" {
		return nil, fmt.Errorf("%w: chatId and msgId are required", models.ErrInvalidFieldValue)
	}
	return s.repo.Withdraw(ctx, chatID, msgID, s.now())
}

func (s *MessageService) run(ctx context.Context, req planner.Request) (Page, error) {
	plan, err := s.planner.Plan(req)
	if errors.Is(err, models.ErrUnscopedQuery) {
		observability.UnscopedQueriesTotal.Inc()
	}
	if err != nil {
		return Page{}, err
	}
	observability.QueryPlansTotal.WithLabelValues(plan.Index.Name, strconv.FormatBool(plan.Targeted())).Inc()
	s.log.Debug("query planned", zap.Stringer("plan", plan))

	recs, err := s.repo.Find(ctx, plan)
	if err != nil {
		return Page{}, err
	}

	page := Page{Messages: recs, Index: plan.Index.Name}
	if len(recs) > plan.Limit {
		page.Messages = recs[:plan.Limit]
		page.HasMore = !plan.PointLookup
	}
	if page.HasMore {
		page.NextCursor = planner.CursorAt(page.Messages[len(page.Messages)-1]).Encode()
	}
	if page.Messages == nil {
		page.Messages = []models.MessageRecord{}
	}
	return page, nil
}
