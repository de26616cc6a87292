package runner

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
)

// historyBatchSize caps how many chats go into one history request.
const historyBatchSize = 10

// subfetch retry policy: exhaustion degrades to "nothing new this cycle",
// it never fails the poll.
const (
	retryAttempts = 3
	retryBackoff  = time.Second
)

var msgTimeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Source is the upstream the runner polls. *funpay.Client implements it;
// tests substitute a fake.
type Source interface {
	Poll(ctx context.Context, chatTag, orderTag string) (*funpay.Snapshot, error)
	ChatHistories(ctx context.Context, chats map[funpay.ChatID]string) (map[funpay.ChatID][]funpay.Message, error)
	Orders(ctx context.Context, startFrom string) (string, []funpay.OrderSummary, error)
}

// Options configure a Runner.
type Options struct {
	// PollInterval is the sleep between poll cycles.
	PollInterval time.Duration
	// DisableMessageRequests turns off history fetching: chat change
	// detection degrades to summary-only (no NewMessage events).
	DisableMessageRequests bool
	// DisableOrderRequests turns off order list fetching: order change
	// detection degrades to counters only (no New/Initial/StatusChanged
	// order events).
	DisableOrderRequests bool
	// ResumeOnError keeps the Listen loop alive on transient poll failures.
	// Authentication failures terminate the loop regardless.
	ResumeOnError bool
}

type lastSeen struct {
	text string
	time string
}

// Runner holds all poll-to-poll state, diffs successive snapshots and turns
// them into an ordered, deduplicated event sequence.
//
// All state is owned by the single polling goroutine, except the sent-by-us
// set and the last-message cache, which handler goroutines touch through
// MarkSent / RememberLastMessage; those two are mutex-guarded. Exactly one
// runner may poll an account at a time: two concurrent pollers race on the
// sent-by-us tagging.
type Runner struct {
	src    Source
	logger zerolog.Logger

	pollInterval   time.Duration
	fetchHistories bool
	fetchOrders    bool
	resume         bool
	backoff        time.Duration

	first    bool
	chatTag  string
	orderTag string

	// per-chat (text, time) of the last seen summary; the cheap skip signal
	lastMessages map[funpay.ChatID]lastSeen
	// last-message texts captured on the first poll, consumed when the
	// dedup boundary of a chat is resolved against full history
	initMessages map[funpay.ChatID]string
	// dedup boundary: never emit a message id at or below this
	lastMessageIDs map[funpay.ChatID]int64
	// last known status per order id
	savedOrders map[string]funpay.OrderStatus

	mu    sync.Mutex
	byBot map[funpay.ChatID]map[int64]struct{}
}

// New creates a runner on top of src. The runner makes no requests until
// Update or Listen is called.
func New(src Source, opts Options, logger zerolog.Logger) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 6 * time.Second
	}
	return &Runner{
		src:            src,
		logger:         logger.With().Str("component", "runner").Logger(),
		pollInterval:   opts.PollInterval,
		fetchHistories: !opts.DisableMessageRequests,
		fetchOrders:    !opts.DisableOrderRequests,
		resume:         opts.ResumeOnError,
		backoff:        retryBackoff,
		first:          true,
		chatTag:        randomTag(),
		orderTag:       randomTag(),
		lastMessages:   map[funpay.ChatID]lastSeen{},
		initMessages:   map[funpay.ChatID]string{},
		lastMessageIDs: map[funpay.ChatID]int64{},
		savedOrders:    map[string]funpay.OrderStatus{},
		byBot:          map[funpay.ChatID]map[int64]struct{}{},
	}
}

func randomTag() string { return uuid.NewString()[:8] }

// MarkSent records a message id sent by this program, so its next sighting
// in history is tagged ByBot. Safe to call from handler goroutines.
func (r *Runner) MarkSent(chatID funpay.ChatID, messageID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byBot[chatID] == nil {
		r.byBot[chatID] = map[int64]struct{}{}
	}
	r.byBot[chatID][messageID] = struct{}{}
}

// RememberLastMessage overwrites the stored last-message text of a chat, so
// a reply we just sent does not come back as a change on the next poll. An
// empty text stands for an image message. Safe to call from handler
// goroutines.
func (r *Runner) RememberLastMessage(chatID funpay.ChatID, text string) {
	if text == "" {
		text = funpay.ImageMessageText
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastMessages[chatID] = lastSeen{text: truncate(text, 250)}
}

// Update runs one poll cycle and returns the produced events in emission
// order. An error means the poll request itself failed; sub-fetch failures
// degrade to an empty delta instead.
func (r *Runner) Update(ctx context.Context) ([]Event, error) {
	snap, err := r.src.Poll(ctx, r.chatTag, r.orderTag)
	if err != nil {
		return nil, err
	}

	var events []Event
	if snap.HasChats {
		r.chatTag = snap.ChatTag
		events = append(events, r.processChats(ctx, snap)...)
	}
	if snap.HasCounters {
		r.orderTag = snap.OrderTag
		events = append(events, r.processOrders(ctx, snap)...)
	}
	r.first = false
	return events, nil
}

// processChats diffs the chat list against the stored per-chat state.
func (r *Runner) processChats(ctx context.Context, snap *funpay.Snapshot) []Event {
	var events []Event
	var changed []funpay.ChatBookmark

	for _, bm := range snap.Chats {
		r.mu.Lock()
		last, seen := r.lastMessages[bm.ID]
		if seen && last.text == bm.LastMessageText {
			// Same text as stored. Without a usable time signal to break
			// the tie, skip: under-reporting beats a false duplicate. The
			// summary view has no message ids, so this is all we have.
			if last.time == "" || !msgTimeRe.MatchString(bm.LastMessageTime) || last.time == bm.LastMessageTime {
				r.mu.Unlock()
				continue
			}
		}
		r.lastMessages[bm.ID] = lastSeen{text: bm.LastMessageText, time: bm.LastMessageTime}
		r.mu.Unlock()

		if r.first {
			events = append(events, InitialChat{base: newBase(snap.ChatTag), Chat: bm.ChatSummary})
			r.initMessages[bm.ID] = bm.LastMessageText
			continue
		}
		changed = append(changed, bm)
	}

	if len(changed) > 0 {
		events = append(events, ChatsListChanged{base: newBase(snap.ChatTag)})
	}

	if !r.fetchHistories {
		for _, bm := range changed {
			events = append(events, LastChatMessageChanged{base: newBase(snap.ChatTag), Chat: bm.ChatSummary})
		}
		return events
	}

	// Fetch histories in capped batches; within a batch the output is
	// LastChatMessageChanged immediately followed by the chat's NewMessage
	// run, in original chat order. Batches never interleave.
	for len(changed) > 0 {
		n := historyBatchSize
		if len(changed) < n {
			n = len(changed)
		}
		batch := changed[:n]
		changed = changed[n:]

		chats := make(map[funpay.ChatID]string, len(batch))
		for _, bm := range batch {
			chats[bm.ID] = bm.Name
		}
		newMessages := r.newMessageEvents(ctx, snap.ChatTag, chats)

		for _, bm := range batch {
			events = append(events, LastChatMessageChanged{base: newBase(snap.ChatTag), Chat: bm.ChatSummary})
			events = append(events, newMessages[bm.ID]...)
		}
	}
	return events
}

// newMessageEvents fetches the histories of the passed chats and builds the
// NewMessage events, resolving each chat's dedup boundary.
func (r *Runner) newMessageEvents(ctx context.Context, tag string, chats map[funpay.ChatID]string) map[funpay.ChatID][]Event {
	var histories map[funpay.ChatID][]funpay.Message
	ok := r.withRetry(ctx, "chat histories", func() error {
		var err error
		histories, err = r.src.ChatHistories(ctx, chats)
		return err
	})
	if !ok {
		return nil
	}

	result := make(map[funpay.ChatID][]Event, len(histories))
	for chatID, messages := range histories {
		// drop everything at or below the dedup boundary
		boundary, hasBoundary := r.lastMessageIDs[chatID]
		if hasBoundary {
			kept := messages[:0]
			for _, m := range messages {
				if m.ID > boundary {
					kept = append(kept, m)
				}
			}
			messages = kept
		}
		if len(messages) == 0 {
			continue
		}

		// tag messages we sent ourselves
		r.mu.Lock()
		if pending := r.byBot[chatID]; len(pending) > 0 {
			for i := range messages {
				if _, ours := pending[messages[i].ID]; ours && !messages[i].ByBot {
					messages[i].ByBot = true
				}
			}
		}
		r.mu.Unlock()

		if !hasBoundary {
			if initText, ok := r.initMessages[chatID]; ok {
				// The chat was present at process init: scan backwards
				// until the stored init text (or, for the image sentinel,
				// the first image) to find the genuinely new tail.
				delete(r.initMessages, chatID)
				messages = tailAfterInitText(messages, initText)
			} else {
				// Discovered mid-session: only the newest message counts,
				// otherwise the whole history would be replayed.
				messages = messages[len(messages)-1:]
			}
		}
		if len(messages) == 0 {
			continue
		}

		newest := messages[len(messages)-1].ID
		r.lastMessageIDs[chatID] = newest
		r.mu.Lock()
		for id := range r.byBot[chatID] {
			if id <= newest {
				delete(r.byBot[chatID], id)
			}
		}
		r.mu.Unlock()

		messages = collapseRepeats(messages)

		stack := newMessageStack()
		events := make([]Event, 0, len(messages))
		for _, m := range messages {
			ev := &NewMessage{base: newBase(tag), Message: m, Stack: stack}
			stack.add(ev)
			events = append(events, ev)
		}
		result[chatID] = events
	}
	return result
}

// tailAfterInitText returns the messages newer than the one whose text
// equals initText, scanning backwards from the newest entry. For the image
// sentinel the first image from the end is the boundary; a boundary match on
// the newest message yields an empty tail.
func tailAfterInitText(messages []funpay.Message, initText string) []funpay.Message {
	var tail []funpay.Message
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.ImageLink != "" && initText == funpay.ImageMessageText {
			if len(tail) == 0 {
				tail = append(tail, m)
			}
			break
		}
		if m.ImageLink == "" && truncate(m.Text, 250) == initText {
			break
		}
		tail = append(tail, m)
	}
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return tail
}

// collapseRepeats drops consecutive messages with identical text from the
// same author, keeping the first of each run.
func collapseRepeats(messages []funpay.Message) []funpay.Message {
	filtered := messages[:1]
	for i := 1; i < len(messages); i++ {
		if messages[i].Text != messages[i-1].Text || messages[i].AuthorID != messages[i-1].AuthorID {
			filtered = append(filtered, messages[i])
		}
	}
	return filtered
}

// processOrders handles the counters delta and, unless disabled, the full
// order listing.
func (r *Runner) processOrders(ctx context.Context, snap *funpay.Snapshot) []Event {
	var events []Event
	if !r.first {
		// counters arrive unconditionally; so does this event
		events = append(events, OrdersListChanged{
			base:      newBase(snap.OrderTag),
			Purchases: snap.Counters.Buyer,
			Sales:     snap.Counters.Seller,
		})
	}
	if !r.fetchOrders {
		return events
	}

	var orders []funpay.OrderSummary
	ok := r.withRetry(ctx, "order list", func() error {
		orders = orders[:0]
		startFrom := ""
		for {
			next, page, err := r.src.Orders(ctx, startFrom)
			if err != nil {
				return err
			}
			orders = append(orders, page...)
			if next == "" {
				return nil
			}
			startFrom = next
		}
	})
	if !ok {
		return events
	}

	for _, order := range orders {
		prev, seen := r.savedOrders[order.ID]
		switch {
		case !seen && r.first:
			events = append(events, InitialOrder{base: newBase(snap.OrderTag), Order: order})
		case !seen:
			events = append(events, NewOrder{base: newBase(snap.OrderTag), Order: order})
			if order.Status == funpay.OrderClosed {
				// already closed on first sighting: the paid phase was missed
				events = append(events, OrderStatusChanged{base: newBase(snap.OrderTag), Order: order})
			}
		case prev != order.Status:
			events = append(events, OrderStatusChanged{base: newBase(snap.OrderTag), Order: order})
		}
		r.savedOrders[order.ID] = order.Status
	}
	return events
}

// withRetry runs fn up to retryAttempts times with a fixed backoff. It
// reports whether fn eventually succeeded; exhaustion is logged, never
// escalated.
func (r *Runner) withRetry(ctx context.Context, op string, fn func() error) bool {
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err := fn()
		if err == nil {
			return true
		}
		r.logger.Error().Err(err).Str("operation", op).Int("attempt", attempt).Msg("Sub-fetch failed")
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(r.backoff):
		}
	}
	r.logger.Error().Str("operation", op).Msg("Sub-fetch attempts exhausted, skipping this cycle")
	return false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
