package bot

import (
	"fmt"
	"strings"

	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
	"github.com/NightStrang6r/FunPayVertex/internal/handlers"
	"github.com/NightStrang6r/FunPayVertex/internal/runner"
)

// The methods below implement handlers.Notifier. They run on handler
// goroutines; tgbotapi's Send is safe for concurrent use.

// NotifyMessages sends one notification for a whole message stack.
func (b *Bot) NotifyMessages(stack *runner.MessageStack) {
	events := stack.Events()
	if len(events) == 0 {
		return
	}
	first := events[0].Message

	var sb strings.Builder
	fmt.Fprintf(&sb, "💬 *%s*\n", escapeMarkdown(first.ChatName))
	for _, ev := range events {
		m := ev.Message
		text := m.Text
		if m.ImageLink != "" {
			text = "🖼 " + m.ImageLink
		}
		fmt.Fprintf(&sb, "\n*%s:* %s", escapeMarkdown(m.Author), escapeMarkdown(text))
	}
	b.sendMessage(b.config.TelegramChatID, sb.String())
}

// NotifyNewOrder announces a paid order.
func (b *Bot) NotifyNewOrder(order funpay.OrderSummary) {
	msg := fmt.Sprintf(
		"🛒 *Новый заказ #%s*\n\n"+
			"👤 Покупатель: %s\n"+
			"📝 %s\n"+
			"💵 %.2f ₽",
		order.ID,
		escapeMarkdown(order.Buyer),
		escapeMarkdown(order.Description),
		order.Price,
	)
	b.sendMessage(b.config.TelegramChatID, msg)
}

// NotifyOrderStatus announces a status transition.
func (b *Bot) NotifyOrderStatus(order funpay.OrderSummary) {
	icon := "ℹ️"
	switch order.Status {
	case funpay.OrderClosed:
		icon = "✅"
	case funpay.OrderRefunded:
		icon = "↩️"
	}
	msg := fmt.Sprintf("%s Заказ *#%s* теперь в статусе «%s»", icon, order.ID, order.Status)
	b.sendMessage(b.config.TelegramChatID, msg)
}

// NotifyDelivery reports the outcome of an auto-delivery.
func (b *Bot) NotifyDelivery(result handlers.DeliveryResult) {
	if result.Delivered() {
		msg := fmt.Sprintf(
			"📦 Заказ *#%s* выдан автоматически\n\nФайл: %s\nТоваров: %d",
			result.Order.ID,
			escapeMarkdown(result.GoodsFile),
			len(result.Items),
		)
		b.sendMessage(b.config.TelegramChatID, msg)
		return
	}
	msg := fmt.Sprintf(
		"⚠️ *Не удалось выдать заказ #%s*\n\nФайл: %s\nОшибка: %s",
		result.Order.ID,
		escapeMarkdown(result.GoodsFile),
		escapeMarkdown(result.Err.Error()),
	)
	b.sendMessage(b.config.TelegramChatID, msg)
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
	return replacer.Replace(s)
}
