package service

import (
	"context"
	"errors"
	"log"
	"time"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

var ErrForbidden = errors.New("owner role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ReceiptSender delivers sale receipts. NotifyAsync must not block.
type ReceiptSender interface {
	NotifyAsync(sale *domain.Sale, email string)
	Send(ctx context.Context, sale *domain.Sale, email string) error
}

type Options struct {
	Bills           *billing.Allocator
	Receipts        ReceiptSender
	AutoSendReceipt bool
	Location        *time.Location
	Now             func() time.Time
}

type Service struct {
	repo     store.Repository
	bills    *billing.Allocator
	receipts ReceiptSender
	autoSend bool
	loc      *time.Location
	now      func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Bills == nil {
		opts.Bills = billing.NewAllocator(billing.Config{}, nil)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:     repo,
		bills:    opts.Bills,
		receipts: opts.Receipts,
		autoSend: opts.AutoSendReceipt,
		loc:      opts.Location,
		now:      opts.Now,
	}
}

func requireOwner(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return ErrForbidden
	}
	return nil
}

// todayRange is [local midnight, next local midnight) at call time.
func (s *Service) todayRange() (time.Time, time.Time) {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Email: "system", Role: "system"}
	}
	log.Printf("[audit] action=%s entity=%s/%s actor=%s role=%s %s", action, entityType, entityID, actor.Email, actor.Role, detail)
}
