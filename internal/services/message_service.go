package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"agentspace/internal/models"
	"agentspace/internal/observability"
	"agentspace/internal/repositories"
)

const (
	// PageSize caps the rows returned by either pagination mode.
	PageSize = 100

	maxOffset = math.MaxInt - PageSize

	maxNameLength = 100
	maxTextLength = 1000

	messageCreatedRoutingKey = "board_events.message_created"
)

// Limiter bounds successful writes per sender.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
	Refund(key string)
	Max() int
}

// Broadcaster fans an event out to live push connections.
type Broadcaster interface {
	Broadcast(event models.BoardEvent) int
}

// EventPublisher forwards domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// ListQuery carries the raw pagination parameters of a list request. Empty
// values are treated as absent.
type ListQuery struct {
	AfterID string
	Page    string
}

// CreateInput is a validated-on-entry write request.
type CreateInput struct {
	Name     string
	Text     string
	ClientIP string
}

// MessageServiceConfig wires a MessageService.
type MessageServiceConfig struct {
	Messages    repositories.MessageRepository
	Anonymizer  *Anonymizer
	Limiter     Limiter
	Broadcaster Broadcaster
	Publisher   EventPublisher
	Logger      *zap.Logger
}

// MessageService implements the board's read and write paths.
type MessageService struct {
	messages    repositories.MessageRepository
	anonymizer  *Anonymizer
	limiter     Limiter
	broadcaster Broadcaster
	publisher   EventPublisher
	logger      *zap.Logger
}

// NewMessageService builds a MessageService.
func NewMessageService(cfg MessageServiceConfig) *MessageService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		messages:    cfg.Messages,
		anonymizer:  cfg.Anonymizer,
		limiter:     cfg.Limiter,
		broadcaster: cfg.Broadcaster,
		publisher:   cfg.Publisher,
		logger:      logger,
	}
}

// List returns one page of messages. A present after_id selects cursor mode
// (ascending from the cursor); otherwise page mode returns newest first.
func (s *MessageService) List(ctx context.Context, q ListQuery) (models.MessagePage, error) {
	ctx, span := otel.Tracer("agentspace/services").Start(ctx, "MessageService.List")
	defer span.End()

	afterID, hasCursor, err := parseBound(q.AfterID, 0)
	if err != nil {
		return models.MessagePage{}, invalid("after_id", "after_id must be a non-negative integer")
	}
	page, hasPage, err := parseBound(q.Page, 1)
	if err != nil {
		return models.MessagePage{}, invalid("page", "page must be a positive integer")
	}
	if !hasPage {
		page = 1
	}

	salt, err := s.anonymizer.Salt(ctx)
	if err != nil {
		return models.MessagePage{}, err
	}

	if hasCursor {
		span.SetAttributes(attribute.String("pagination.mode", "cursor"), attribute.Int("pagination.after_id", afterID))
		return s.listAfter(ctx, afterID, salt)
	}
	span.SetAttributes(attribute.String("pagination.mode", "page"), attribute.Int("pagination.page", page))
	return s.listPage(ctx, page, salt)
}

func (s *MessageService) listAfter(ctx context.Context, afterID int, salt string) (models.MessagePage, error) {
	rows, err := s.messages.ListAfter(ctx, afterID, PageSize)
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("list messages after %d: %w", afterID, err)
	}
	remaining, err := s.messages.CountAfter(ctx, afterID)
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("count messages after %d: %w", afterID, err)
	}
	return models.MessagePage{
		Messages: toViews(rows, salt),
		Pagination: models.CursorPagination{
			AfterID: afterID,
			HasMore: remaining > PageSize,
			Count:   len(rows),
		},
	}, nil
}

func (s *MessageService) listPage(ctx context.Context, page int, salt string) (models.MessagePage, error) {
	offset := pageOffset(page)
	rows, err := s.messages.ListPage(ctx, PageSize, offset)
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("list messages page %d: %w", page, err)
	}
	total, err := s.messages.Count(ctx)
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("count messages: %w", err)
	}
	return models.MessagePage{
		Messages: toViews(rows, salt),
		Pagination: models.PagePagination{
			Page:    page,
			HasMore: offset+len(rows) < total,
			Total:   total,
		},
	}, nil
}

// Create validates, rate limits, stores and broadcasts a message.
func (s *MessageService) Create(ctx context.Context, in CreateInput) (models.MessageView, error) {
	ctx, span := otel.Tracer("agentspace/services").Start(ctx, "MessageService.Create",
		trace.WithAttributes(attribute.Int("message.text_length", len(in.Text))),
	)
	defer span.End()

	if n := utf8.RuneCountInString(in.Name); n < 1 || n > maxNameLength {
		return models.MessageView{}, invalid("name", "name must be a string between 1 and %d characters", maxNameLength)
	}
	if n := utf8.RuneCountInString(in.Text); n < 1 || n > maxTextLength {
		return models.MessageView{}, invalid("text", "text must be a string between 1 and %d characters", maxTextLength)
	}

	if ok, retry := s.limiter.Allow(in.ClientIP); !ok {
		observability.IncRateLimited()
		return models.MessageView{}, &RateLimitError{Max: s.limiter.Max(), RetryAfter: retry}
	}

	hash, err := s.anonymizer.Token(ctx, in.ClientIP)
	if err != nil {
		s.limiter.Refund(in.ClientIP)
		return models.MessageView{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, in.Name, in.Text, in.ClientIP)
	if err != nil {
		s.limiter.Refund(in.ClientIP)
		return models.MessageView{}, fmt.Errorf("store message: %w", err)
	}

	view := toView(msg, hash)
	span.SetAttributes(attribute.Int("message.id", view.ID))
	observability.IncMessagesCreated()

	delivered := 0
	if s.broadcaster != nil {
		delivered = s.broadcaster.Broadcast(models.BoardEvent{Type: models.EventNewMessage, Data: &view})
	}
	if s.publisher != nil {
		envelope := observability.EventEnvelope{
			EventType: "board_events",
			EventName: "message_created",
			Payload:   view,
		}
		if err := s.publisher.Publish(ctx, messageCreatedRoutingKey, envelope); err != nil {
			s.logger.Warn("publish message event failed", zap.Int("message_id", view.ID), zap.Error(err))
		}
	}
	s.logger.Debug("message stored",
		zap.Int("message_id", view.ID),
		zap.String("hash", view.Hash),
		zap.Int("delivered", delivered),
	)
	return view, nil
}

// parseBound parses an optional integer that must be at least min.
func parseBound(raw string, min int) (int, bool, error) {
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, err
	}
	if v < min {
		return 0, true, fmt.Errorf("value %d below %d", v, min)
	}
	return v, true, nil
}

// pageOffset is the number of rows before page. Pages past the addressable
// range saturate at maxOffset and read as empty.
func pageOffset(page int) int {
	if page-1 > maxOffset/PageSize {
		return maxOffset
	}
	return (page - 1) * PageSize
}

func toViews(rows []models.Message, salt string) []models.MessageView {
	views := make([]models.MessageView, 0, len(rows))
	for _, m := range rows {
		views = append(views, toView(m, HashIP(m.ClientIP, salt)))
	}
	return views
}

// toView is the single place a stored row becomes client-facing: the raw
// address is dropped in favour of its token.
func toView(m models.Message, hash string) models.MessageView {
	return models.MessageView{
		ID:        m.ID,
		Name:      m.Name,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Hash:      hash,
	}
}
