package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
	"github.com/NightStrang6r/FunPayVertex/internal/runner"
	"github.com/NightStrang6r/FunPayVertex/internal/storage"
)

const actionTimeout = 30 * time.Second

// RegisterBuiltins wires the built-in rule set into the registry: greeting,
// auto-response, smart-reply fallback, notifications, auto-delivery, review
// answers and the order archive.
func RegisterBuiltins(env *Env, reg *Registry, rules *RuleSet, delivery *DeliverySet) {
	b := &builtins{
		env:      env,
		rules:    rules,
		delivery: delivery,
		greeted:  map[funpay.ChatID]struct{}{},
	}

	reg.On(runner.EventInitialChat, b.onInitialChat)
	reg.On(runner.EventNewMessage, b.onNewMessage)
	reg.On(runner.EventNewOrder, b.onNewOrder)
	reg.On(runner.EventOrderStatusChanged, b.onOrderStatusChanged)
}

type builtins struct {
	env      *Env
	rules    *RuleSet
	delivery *DeliverySet

	mu      sync.Mutex
	greeted map[funpay.ChatID]struct{}
}

// markGreeted records the chat and reports whether it was already known.
func (b *builtins) markGreeted(chatID funpay.ChatID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, known := b.greeted[chatID]
	b.greeted[chatID] = struct{}{}
	return known
}

// onInitialChat seeds the greeted set: chats that existed before start never
// get the first-contact greeting.
func (b *builtins) onInitialChat(_ context.Context, ev runner.Event) {
	e := ev.(runner.InitialChat)
	b.markGreeted(e.Chat.ID)
}

func (b *builtins) onNewMessage(ctx context.Context, ev runner.Event) {
	e := ev.(*runner.NewMessage)
	m := e.Message

	// one notification per stack, on its first event
	if b.env.Notifier != nil && len(e.Stack.Events()) > 0 && e.Stack.Events()[0] == e {
		stack := e.Stack
		b.env.Go(func() { b.env.Notifier.NotifyMessages(stack) })
	}

	if m.AuthorID == 0 {
		b.onSystemMessage(ctx, m)
		return
	}
	if m.ByBot || m.AuthorID == b.env.Client.UserID() || !m.ChatID.Private() {
		return
	}

	if b.env.Config.GreetingText != "" && !b.markGreeted(m.ChatID) {
		b.reply(ctx, m, b.env.Config.GreetingText)
	}

	if response, ok := b.rules.Match(m.Text); ok {
		b.reply(ctx, m, response)
		return
	}

	if b.env.Responder != nil && m.Text != "" {
		b.env.Go(func() {
			ctx, cancel := context.WithTimeout(ctx, actionTimeout)
			defer cancel()
			response, err := b.env.Responder.Reply(ctx, m.Text)
			if err != nil {
				b.env.Logger.Warn().Err(err).Str("chat_id", m.ChatID.String()).Msg("Smart reply failed")
				return
			}
			b.send(ctx, m.ChatID, m.ChatName, response)
		})
	}
}

// onSystemMessage answers new buyer reviews with the configured reply.
func (b *builtins) onSystemMessage(ctx context.Context, m funpay.Message) {
	if m.Kind != funpay.KindNewFeedback || b.env.Config.ReviewReply == "" {
		return
	}
	orderID := funpay.OrderIDFromMessage(m.Text)
	if orderID == "" {
		return
	}
	b.env.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		if err := b.env.Client.SendReview(ctx, orderID, b.env.Config.ReviewReply, 5); err != nil {
			b.env.Logger.Warn().Err(err).Str("order_id", orderID).Msg("Failed to answer review")
		}
	})
}

func (b *builtins) onNewOrder(ctx context.Context, ev runner.Event) {
	e := ev.(runner.NewOrder)
	order := e.Order

	if b.env.Notifier != nil {
		b.env.Go(func() { b.env.Notifier.NotifyNewOrder(order) })
	}
	b.archiveOrder(ctx, order)

	rule, ok := b.delivery.Match(order.Description)
	if !ok {
		return
	}
	b.env.Go(func() { b.deliver(ctx, order, rule) })
}

func (b *builtins) deliver(ctx context.Context, order funpay.OrderSummary, rule DeliveryRule) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	result := DeliveryResult{
		Order:     order,
		ChatID:    funpay.PrivateChatID(b.env.Client.UserID(), order.BuyerID),
		GoodsFile: rule.GoodsFile,
	}

	items, err := b.env.Goods.Take(rule.GoodsFile, rule.Amount)
	if err != nil {
		result.Err = err
	} else {
		result.Items = items
		_, result.Err = b.env.Client.SendMessage(ctx, result.ChatID, order.Buyer, renderDelivery(rule.Response, items))
	}

	if result.Err != nil {
		b.env.Logger.Error().
			Err(result.Err).
			Str("order_id", order.ID).
			Str("goods_file", rule.GoodsFile).
			Msg("Auto-delivery failed")
	} else {
		b.env.Logger.Info().
			Str("order_id", order.ID).
			Str("goods_file", rule.GoodsFile).
			Int("items", len(items)).
			Msg("Order delivered")
		if b.env.Archive != nil {
			record := storage.DeliveryRecord{
				OrderID:   order.ID,
				ChatID:    result.ChatID.String(),
				GoodsFile: rule.GoodsFile,
				ItemCount: len(items),
			}
			if err := b.env.Archive.SaveDelivery(ctx, record); err != nil {
				b.env.Logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to archive delivery")
			}
		}
	}

	if b.env.Notifier != nil {
		b.env.Notifier.NotifyDelivery(result)
	}
}

func (b *builtins) onOrderStatusChanged(ctx context.Context, ev runner.Event) {
	e := ev.(runner.OrderStatusChanged)
	order := e.Order

	if b.env.Notifier != nil {
		b.env.Go(func() { b.env.Notifier.NotifyOrderStatus(order) })
	}
	b.archiveOrder(ctx, order)

	if order.Status == funpay.OrderClosed && b.env.Config.ReviewReply != "" {
		chatID := funpay.PrivateChatID(b.env.Client.UserID(), order.BuyerID)
		b.env.Go(func() {
			ctx, cancel := context.WithTimeout(ctx, actionTimeout)
			defer cancel()
			b.send(ctx, chatID, order.Buyer, b.env.Config.ReviewReply)
		})
	}
}

func (b *builtins) archiveOrder(ctx context.Context, order funpay.OrderSummary) {
	if b.env.Archive == nil {
		return
	}
	b.env.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		record := storage.OrderRecord{
			OrderID:     order.ID,
			Description: order.Description,
			Price:       order.Price,
			Buyer:       order.Buyer,
			BuyerID:     order.BuyerID,
			Status:      order.Status.String(),
			Subcategory: order.Subcategory,
			OrderedAt:   order.Date,
		}
		if err := b.env.Archive.SaveOrder(ctx, record); err != nil {
			b.env.Logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to archive order")
		}
	})
}

// reply answers a buyer message on a tracked goroutine.
func (b *builtins) reply(ctx context.Context, m funpay.Message, text string) {
	b.env.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		b.send(ctx, m.ChatID, m.ChatName, text)
	})
}

func (b *builtins) send(ctx context.Context, chatID funpay.ChatID, chatName, text string) {
	if _, err := b.env.Client.SendMessage(ctx, chatID, chatName, text); err != nil {
		b.env.Logger.Error().Err(err).Str("chat_id", chatID.String()).Msg("Failed to send message")
		return
	}
	// keep the next poll from reporting our own reply as a change
	b.env.Runner.RememberLastMessage(chatID, text)
}
