package funpay

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ImageMessageText is the placeholder FunPay shows in the chat list when the
// last message of a chat is an image. The change detector relies on it when
// resolving the dedup boundary against full history.
const ImageMessageText = "Изображение"

// botMarker is an invisible character prepended to every message sent through
// Client.SendMessage. A message starting with it was sent by this program.
const botMarker = "⁤"

var privateNodeRe = regexp.MustCompile(`^users-\d+-\d+$`)

// ChatID identifies a conversation thread. Private chats use a numeric id,
// public per-lot chats use an opaque string token.
type ChatID string

// Private reports whether the id belongs to a private (user-to-user) chat.
func (c ChatID) Private() bool {
	if _, err := strconv.ParseInt(string(c), 10, 64); err == nil {
		return true
	}
	return privateNodeRe.MatchString(string(c))
}

func (c ChatID) String() string { return string(c) }

// PrivateChatID builds the node id of the private chat between two users.
// FunPay orders the ids ascending.
func PrivateChatID(a, b int64) ChatID {
	if a > b {
		a, b = b, a
	}
	return ChatID(fmt.Sprintf("users-%d-%d", a, b))
}

// ChatSummary is a chat widget from the chat list snapshot. It is recreated
// on every poll and overwritten on each sighting; FunPay never reports chat
// deletions explicitly, only absence.
type ChatSummary struct {
	ID              ChatID
	Name            string // counterpart display name
	LastMessageText string // truncated to 250 chars by FunPay
	Unread          bool
	LastMessageKind MessageKind // best-effort, see ClassifyMessage
}

// ChatBookmark is a ChatSummary plus the displayed last-message time string
// ("HH:MM", "yesterday", ...). The time string is a tie-breaking signal for
// the change detector, nothing more: the summary view carries no message ids.
type ChatBookmark struct {
	ChatSummary
	LastMessageTime string
}

// Message is a single entry of a chat history. Immutable once created.
// Message ids increase strictly within a chat; they are the core sort and
// dedup key of the whole system.
type Message struct {
	ID        int64
	ChatID    ChatID
	ChatName  string
	Text      string // empty if the message is an image
	ImageLink string
	Author    string
	AuthorID  int64 // 0 is reserved for FunPay system messages
	Kind      MessageKind
	ByBot     bool   // sent through Client.SendMessage
	Badge     string // support badge text, if any
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus int

const (
	OrderPaid OrderStatus = iota
	OrderClosed
	OrderRefunded
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPaid:
		return "paid"
	case OrderClosed:
		return "closed"
	case OrderRefunded:
		return "refunded"
	}
	return "unknown"
}

// OrderSummary is one row of the orders page. The leading '#' is stripped
// from the id.
type OrderSummary struct {
	ID          string
	Description string
	Price       float64
	Buyer       string
	BuyerID     int64
	Status      OrderStatus
	Date        time.Time
	Subcategory string
}

// OrderCounters are the pending-purchase / pending-sale counters from the
// poll response. FunPay only reports counters, never order deltas.
type OrderCounters struct {
	Buyer  int
	Seller int
}

// Snapshot is one parsed poll response. Either section may be absent when
// FunPay omits the corresponding object.
type Snapshot struct {
	ChatTag  string
	OrderTag string

	HasChats bool
	Chats    []ChatBookmark

	HasCounters bool
	Counters    OrderCounters
}

// Category is a game category with raisable subcategories, parsed from the
// main page on login.
type Category struct {
	ID            int64
	Name          string
	Subcategories []int64
}
