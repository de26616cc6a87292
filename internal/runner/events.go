package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
)

// EventType discriminates the event union. Handler registration is keyed by
// it.
type EventType int

const (
	EventInitialChat EventType = iota
	EventChatsListChanged
	EventLastChatMessageChanged
	EventNewMessage
	EventInitialOrder
	EventOrdersListChanged
	EventNewOrder
	EventOrderStatusChanged
)

func (t EventType) String() string {
	switch t {
	case EventInitialChat:
		return "initial_chat"
	case EventChatsListChanged:
		return "chats_list_changed"
	case EventLastChatMessageChanged:
		return "last_chat_message_changed"
	case EventNewMessage:
		return "new_message"
	case EventInitialOrder:
		return "initial_order"
	case EventOrdersListChanged:
		return "orders_list_changed"
	case EventNewOrder:
		return "new_order"
	case EventOrderStatusChanged:
		return "order_status_changed"
	}
	return "unknown"
}

// Event is one element of the runner's output stream. Tag is the correlation
// tag of the poll response the event originated from: consumers use it to
// group events of one batch.
type Event interface {
	Type() EventType
	Tag() string
	Time() time.Time
}

type base struct {
	tag string
	at  time.Time
}

func newBase(tag string) base { return base{tag: tag, at: time.Now()} }

func (b base) Tag() string     { return b.tag }
func (b base) Time() time.Time { return b.at }

// InitialChat: a chat was present on the very first poll.
type InitialChat struct {
	base
	Chat funpay.ChatSummary
}

func (InitialChat) Type() EventType { return EventInitialChat }

// ChatsListChanged: at least one chat changed in this poll. Emitted at most
// once per poll, before the per-chat events.
type ChatsListChanged struct {
	base
}

func (ChatsListChanged) Type() EventType { return EventChatsListChanged }

// LastChatMessageChanged: the last message of a chat changed.
type LastChatMessageChanged struct {
	base
	Chat funpay.ChatSummary
}

func (LastChatMessageChanged) Type() EventType { return EventLastChatMessageChanged }

// NewMessage: a new message appeared in a chat history. All NewMessage
// events produced from one history fetch of one chat share a stack.
type NewMessage struct {
	base
	Message funpay.Message
	Stack   *MessageStack
}

func (NewMessage) Type() EventType { return EventNewMessage }

// MessageStack groups the NewMessage events of one chat and one poll, so a
// consumer can render them as a single notification instead of one per
// message.
type MessageStack struct {
	id     string
	events []*NewMessage
}

func newMessageStack() *MessageStack {
	return &MessageStack{id: uuid.NewString()}
}

// ID returns the stack's random id.
func (s *MessageStack) ID() string { return s.id }

// Events returns every event of the stack, in ascending message id order.
func (s *MessageStack) Events() []*NewMessage { return s.events }

func (s *MessageStack) add(ev *NewMessage) { s.events = append(s.events, ev) }

// InitialOrder: an order was present on the very first poll.
type InitialOrder struct {
	base
	Order funpay.OrderSummary
}

func (InitialOrder) Type() EventType { return EventInitialOrder }

// OrdersListChanged carries the pending counters from the poll response.
// FunPay reports counters unconditionally, so this event fires every poll
// after the first one whether or not anything actually changed.
type OrdersListChanged struct {
	base
	Purchases int
	Sales     int
}

func (OrdersListChanged) Type() EventType { return EventOrdersListChanged }

// NewOrder: an unseen order appeared in the listing.
type NewOrder struct {
	base
	Order funpay.OrderSummary
}

func (NewOrder) Type() EventType { return EventNewOrder }

// OrderStatusChanged: the status of a known order changed.
type OrderStatusChanged struct {
	base
	Order funpay.OrderSummary
}

func (OrderStatusChanged) Type() EventType { return EventOrderStatusChanged }
