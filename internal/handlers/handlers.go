// Package handlers is the rule layer on top of the event stream: it maps
// runner events to marketplace actions (replies, deliveries, notifications,
// archiving).
package handlers

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/NightStrang6r/FunPayVertex/internal/config"
	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
	"github.com/NightStrang6r/FunPayVertex/internal/goods"
	"github.com/NightStrang6r/FunPayVertex/internal/runner"
	"github.com/NightStrang6r/FunPayVertex/internal/storage"
)

// Notifier forwards noteworthy events to an external channel. Implemented by
// the Telegram bot; nil when notifications are disabled.
type Notifier interface {
	NotifyMessages(stack *runner.MessageStack)
	NotifyNewOrder(order funpay.OrderSummary)
	NotifyOrderStatus(order funpay.OrderSummary)
	NotifyDelivery(result DeliveryResult)
}

// Archive persists orders and deliveries. Implemented by the Supabase
// client; nil when archiving is disabled.
type Archive interface {
	SaveOrder(ctx context.Context, record storage.OrderRecord) error
	SaveDelivery(ctx context.Context, record storage.DeliveryRecord) error
}

// Responder generates a fallback reply when no auto-response rule matches.
// Implemented by the Gemini client; nil when disabled.
type Responder interface {
	Reply(ctx context.Context, buyerMessage string) (string, error)
}

// Env bundles the dependencies handlers act through. Optional integrations
// are nil when not configured; handlers must check.
type Env struct {
	Client    *funpay.Client
	Runner    *runner.Runner
	Config    *config.Config
	Goods     *goods.Store
	Notifier  Notifier
	Archive   Archive
	Responder Responder
	Logger    zerolog.Logger

	wg sync.WaitGroup
}

// Go runs fn on its own goroutine, tracked so Wait can drain in-flight work
// on shutdown. Handlers use it for everything that touches the network: the
// dispatch goroutine must never block on I/O.
func (e *Env) Go(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Wait blocks until every goroutine started through Go has finished.
func (e *Env) Wait() { e.wg.Wait() }

// Handler processes one event. Handlers run sequentially on the dispatch
// goroutine and must not block; see Env.Go.
type Handler func(ctx context.Context, ev runner.Event)

// Registry maps event types to their handlers.
type Registry struct {
	handlers map[runner.EventType][]Handler
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		handlers: map[runner.EventType][]Handler{},
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

// On registers a handler for an event type. Handlers run in registration
// order.
func (r *Registry) On(t runner.EventType, h Handler) {
	r.handlers[t] = append(r.handlers[t], h)
}

// Dispatch runs every handler registered for the event's type. A panicking
// handler is logged and skipped; it must not kill the dispatch loop.
func (r *Registry) Dispatch(ctx context.Context, ev runner.Event) {
	for _, h := range r.handlers[ev.Type()] {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error().
						Interface("panic", rec).
						Stringer("event", ev.Type()).
						Msg("Handler panicked")
				}
			}()
			h(ctx, ev)
		}()
	}
}

// Run consumes the event stream until it closes or ctx is cancelled.
func (r *Registry) Run(ctx context.Context, events <-chan runner.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Dispatch(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}
