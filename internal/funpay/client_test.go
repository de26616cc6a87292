package funpay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainPage = `<html>
<body data-app-data="{&quot;userId&quot;:4242,&quot;csrf-token&quot;:&quot;tok123&quot;}">
<div class="user-link-name">seller</div>
<span class="badge badge-trade">3</span>
<span class="badge badge-orders">1</span>
<div class="promo-game-list">
	<div class="promo-game-item">
		<div class="game-title" data-id="41"><a href="/brawlstars/">Brawl Stars</a></div>
		<ul class="list-inline">
			<li><a href="/lots/210/">Аккаунты</a></li>
			<li><a href="/chips/105/">Гемы</a></li>
		</ul>
	</div>
</div>
</body></html>`

func newLoggedInClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "sess-1"})
			w.Write([]byte(mainPage))
			return
		}
		handler(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient("golden", "test-agent", 5*time.Second, zerolog.Nop())
	c.SetBaseURL(srv.URL)
	require.NoError(t, c.Login(context.Background()))
	return c
}

func TestLoginParsesMainPage(t *testing.T) {
	var gotCookie string
	c := newLoggedInClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		w.Write([]byte(`{"objects":[]}`))
	})

	assert.Equal(t, int64(4242), c.UserID())
	assert.Equal(t, "seller", c.Username())
	sales, purchases := c.ActiveCounters()
	assert.Equal(t, 3, sales)
	assert.Equal(t, 1, purchases)

	cats := c.Categories()
	require.Len(t, cats, 1)
	assert.Equal(t, int64(41), cats[0].ID)
	assert.Equal(t, "Brawl Stars", cats[0].Name)
	assert.Equal(t, []int64{210}, cats[0].Subcategories, "currency subcategories are excluded")

	// the rotated session cookie is carried on subsequent requests
	_, err := c.Poll(context.Background(), "", "")
	require.NoError(t, err)
	assert.Contains(t, gotCookie, "golden_key=golden")
	assert.Contains(t, gotCookie, "PHPSESSID=sess-1")
}

func TestLoginDetectsInvalidKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body>login please</body></html>`))
	}))
	defer srv.Close()

	c := NewClient("bad", "test-agent", 5*time.Second, zerolog.Nop())
	c.SetBaseURL(srv.URL)
	err := c.Login(context.Background())
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestPollRequiresLogin(t *testing.T) {
	c := NewClient("golden", "test-agent", 5*time.Second, zerolog.Nop())
	_, err := c.Poll(context.Background(), "", "")
	assert.True(t, errors.Is(err, ErrNotLoggedIn))
}

func TestPollPostsTagsAndParsesSnapshot(t *testing.T) {
	var form map[string][]string
	c := newLoggedInClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"objects":[
			{"type":"orders_counters","tag":"oc","data":{"buyer":1,"seller":2}},
			{"type":"chat_bookmarks","tag":"cb","data":{"html":""}}
		]}`))
	})

	snap, err := c.Poll(context.Background(), "chat-tag", "order-tag")
	require.NoError(t, err)

	require.Len(t, form["objects"], 1)
	assert.Contains(t, form["objects"][0], `"chat-tag"`)
	assert.Contains(t, form["objects"][0], `"order-tag"`)
	assert.Equal(t, "tok123", form["csrf_token"][0])

	assert.True(t, snap.HasChats)
	assert.True(t, snap.HasCounters)
	assert.Equal(t, "cb", snap.ChatTag)
	assert.Equal(t, "oc", snap.OrderTag)
	assert.Equal(t, OrderCounters{Buyer: 1, Seller: 2}, snap.Counters)
}

func TestForbiddenMapsToUnauthorized(t *testing.T) {
	c := newLoggedInClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.Poll(context.Background(), "", "")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

type recordingHook struct {
	mu   sync.Mutex
	sent map[ChatID][]int64
}

func (h *recordingHook) MarkSent(chatID ChatID, messageID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent == nil {
		h.sent = map[ChatID][]int64{}
	}
	h.sent[chatID] = append(h.sent[chatID], messageID)
}

func TestSendMessageNotifiesHook(t *testing.T) {
	c := newLoggedInClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":{},"objects":[{"data":{"messages":[
			{"id":99,"author":4242,"html":"<div class=\"message-text\">` + botMarker + `привет</div>"}
		]}}]}`))
	})
	hook := &recordingHook{}
	c.SetSentHook(hook)

	msg, err := c.SendMessage(context.Background(), "123", "alice", "привет")
	require.NoError(t, err)

	assert.Equal(t, int64(99), msg.ID)
	assert.Equal(t, "привет", msg.Text)
	assert.True(t, msg.ByBot)
	assert.Equal(t, []int64{99}, hook.sent["123"])
}

func TestSendMessageSurfacesDeliveryError(t *testing.T) {
	c := newLoggedInClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":{"error":"Слишком часто"},"objects":[]}`))
	})

	_, err := c.SendMessage(context.Background(), "123", "alice", "привет")
	var deliveryErr *MessageNotDeliveredError
	require.ErrorAs(t, err, &deliveryErr)
	assert.Equal(t, "Слишком часто", deliveryErr.Message)
}

func TestRaiseLotsParsesCooldown(t *testing.T) {
	c := newLoggedInClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":true,"msg":"Подождите 5 минут."}`))
	})

	err := c.RaiseLots(context.Background(), 41, []int64{210})
	var raiseErr *RaiseError
	require.ErrorAs(t, err, &raiseErr)
	assert.Equal(t, 300, raiseErr.WaitTime)
}

func TestOrdersFollowsContinueToken(t *testing.T) {
	page := func(orderID, token string) string {
		next := ""
		if token != "" {
			next = `<input type="hidden" name="continue" value="` + token + `">`
		}
		return next + `<a class="tc-item info">
			<div class="tc-order">#` + orderID + `</div>
			<div class="order-desc"><div>Лот</div></div>
			<div class="text-muted">Игра</div>
			<div class="tc-date-time">сегодня, 10:00</div>
			<div class="tc-price">10.00 ₽</div>
			<div class="media-user-name"><span data-href="https://funpay.com/users/7/">buyer</span></div>
		</a>`
	}
	c := newLoggedInClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(page("AAAA1111", "tok-2")))
			return
		}
		_ = r.ParseForm()
		assert.Equal(t, "tok-2", r.PostForm.Get("continue"))
		w.Write([]byte(page("BBBB2222", "")))
	})

	next, orders, err := c.Orders(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", next)
	require.Len(t, orders, 1)

	next, orders, err = c.Orders(context.Background(), next)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, orders, 1)
	assert.Equal(t, "BBBB2222", orders[0].ID)
}
