package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const commandTimeout = 30 * time.Second

// handleUpdate processes incoming update
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// Wrap in recover middleware
	b.recoverMiddleware(func() {
		// Handle message
		if update.Message != nil {
			b.handleMessage(ctx, update.Message)
		}
	})
}

// handleMessage processes incoming message
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Only the configured owner chat may control the program
	if message.Chat.ID != b.config.TelegramChatID {
		b.logger.Debug().
			Int64("chat_id", message.Chat.ID).
			Int64("expected_chat_id", b.config.TelegramChatID).
			Msg("Ignoring message from different chat")
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
	}
}

// handleCommand processes bot commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()

	b.logger.Info().
		Str("command", command).
		Int64("user_id", message.From.ID).
		Str("username", message.From.UserName).
		Msg("Received command")

	switch command {
	case "status":
		b.handleStatusCommand(message)
	case "goods":
		b.handleGoodsCommand(message)
	case "refund":
		b.handleRefundCommand(ctx, message)
	case "start", "help":
		b.handleHelpCommand(message)
	default:
		b.sendMessage(message.Chat.ID, "❓ Неизвестная команда. Используйте /help для списка команд.")
	}
}

// handleStatusCommand handles /status command
func (b *Bot) handleStatusCommand(message *tgbotapi.Message) {
	sales, purchases := b.client.ActiveCounters()
	statusMsg := fmt.Sprintf(
		"📊 *Аккаунт %s*\n\n"+
			"💰 Активных продаж: %d\n"+
			"🛒 Активных покупок: %d\n"+
			"🎮 Категорий для поднятия: %d",
		b.client.Username(),
		sales,
		purchases,
		len(b.client.Categories()),
	)
	b.sendMessage(message.Chat.ID, statusMsg)
}

// handleGoodsCommand handles /goods <file>: reports remaining stock
func (b *Bot) handleGoodsCommand(message *tgbotapi.Message) {
	file := strings.TrimSpace(message.CommandArguments())
	if file == "" {
		b.sendMessage(message.Chat.ID, "Использование: /goods <файл>")
		return
	}

	count, err := b.goods.Count(file)
	if err != nil {
		b.logger.Error().Err(err).Str("file", file).Msg("Failed to count goods")
		b.sendErrorMessage(message.Chat.ID, "❌ Ошибка при чтении файла товаров")
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("📦 *%s*: осталось %d шт.", file, count))
}

// handleRefundCommand handles /refund <order id>
func (b *Bot) handleRefundCommand(ctx context.Context, message *tgbotapi.Message) {
	orderID := strings.TrimSpace(strings.TrimPrefix(message.CommandArguments(), "#"))
	if orderID == "" {
		b.sendMessage(message.Chat.ID, "Использование: /refund <номер заказа>")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := b.client.Refund(ctx, orderID); err != nil {
		b.logger.Error().Err(err).Str("order_id", orderID).Msg("Refund failed")
		b.sendErrorMessage(message.Chat.ID, fmt.Sprintf("❌ Не удалось вернуть средства по заказу #%s", orderID))
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("✅ Средства по заказу #%s возвращены", orderID))
}

// handleHelpCommand handles /help and /start commands
func (b *Bot) handleHelpCommand(message *tgbotapi.Message) {
	helpMsg := "👋 *Я слежу за вашим аккаунтом FunPay*\n\n" +
		"Сюда приходят уведомления о новых сообщениях и заказах.\n\n" +
		"*Доступные команды:*\n" +
		"/status - Состояние аккаунта\n" +
		"/goods <файл> - Остаток товара\n" +
		"/refund <заказ> - Вернуть средства покупателю\n" +
		"/help - Показать это сообщение"
	b.sendMessage(message.Chat.ID, helpMsg)
}
