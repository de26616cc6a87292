package funpay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnapshot(t *testing.T) {
	body := `{"objects":[
		{"type":"orders_counters","tag":"oc-tag","data":{"buyer":2,"seller":5}},
		{"type":"chat_bookmarks","tag":"cb-tag","data":{"html":"<a class=\"contact-item unread\" data-id=\"4321\"><div class=\"media-user-name\">alice</div><div class=\"contact-item-message\">привет</div><div class=\"contact-item-time\">12:34</div></a>"}}
	]}`

	snap, err := ParseSnapshot([]byte(body))
	require.NoError(t, err)

	require.True(t, snap.HasCounters)
	assert.Equal(t, "oc-tag", snap.OrderTag)
	assert.Equal(t, OrderCounters{Buyer: 2, Seller: 5}, snap.Counters)

	require.True(t, snap.HasChats)
	assert.Equal(t, "cb-tag", snap.ChatTag)
	require.Len(t, snap.Chats, 1)
	chat := snap.Chats[0]
	assert.Equal(t, ChatID("4321"), chat.ID)
	assert.Equal(t, "alice", chat.Name)
	assert.Equal(t, "привет", chat.LastMessageText)
	assert.Equal(t, "12:34", chat.LastMessageTime)
	assert.True(t, chat.Unread)
}

func TestParseSnapshotRejectsGarbage(t *testing.T) {
	_, err := ParseSnapshot([]byte("not json"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseChatBookmarksSkipsDeletedChats(t *testing.T) {
	// chats removed by the administration have no message block
	html := `
		<a class="contact-item" data-id="1"><div class="media-user-name">alive</div><div class="contact-item-message">hi</div><div class="contact-item-time">10:00</div></a>
		<a class="contact-item" data-id="2"><div class="media-user-name">deleted</div></a>`

	chats, err := ParseChatBookmarks(html)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, ChatID("1"), chats[0].ID)
}

func TestParseChatBookmarksStripsBotMarker(t *testing.T) {
	html := `<a class="contact-item" data-id="1"><div class="media-user-name">alice</div><div class="contact-item-message">` + botMarker + `выдано</div><div class="contact-item-time">10:00</div></a>`

	chats, err := ParseChatBookmarks(html)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "выдано", chats[0].LastMessageText)
}

func TestParseMessages(t *testing.T) {
	raw := []RawMessage{
		{ID: 1, Author: 7, HTML: `<div class="media-user-name"><a href="https://funpay.com/users/7/">alice</a><span>продавец</span></div><div class="message-text">добрый день</div>`},
		{ID: 2, Author: 7, HTML: `<div class="message-text">` + botMarker + `автоответ</div>`},
		{ID: 3, Author: 0, HTML: `<div class="alert alert-with-icon alert-info">Покупатель alice оплатил заказ #ABCD1234. Лот, 1 шт.
seller, не забудьте потом нажать кнопку «Подтвердить выполнение заказа».</div>`},
		{ID: 4, Author: 9, HTML: `<a class="chat-img-link" href="https://funpay.com/img/1.png">image</a>`},
	}

	messages, err := ParseMessages(raw, "users-7-9", 9, "seller", 7, "alice")
	require.NoError(t, err)
	require.Len(t, messages, 4)

	assert.Equal(t, "добрый день", messages[0].Text)
	assert.Equal(t, "alice", messages[0].Author)
	assert.Equal(t, "продавец", messages[0].Badge)
	assert.Equal(t, KindPlain, messages[0].Kind)
	assert.False(t, messages[0].ByBot)

	assert.Equal(t, "автоответ", messages[1].Text)
	assert.True(t, messages[1].ByBot)

	assert.Equal(t, "FunPay", messages[2].Author)
	assert.Equal(t, KindOrderPurchased, messages[2].Kind)

	assert.Equal(t, "https://funpay.com/img/1.png", messages[3].ImageLink)
	assert.Empty(t, messages[3].Text)
	assert.Equal(t, "seller", messages[3].Author)
}

func TestParseOrders(t *testing.T) {
	now := time.Date(2024, time.March, 15, 18, 0, 0, 0, time.UTC)
	html := `
	<input type="hidden" name="continue" value="next-token">
	<a class="tc-item info" href="#">
		<div class="tc-order">#ABCD1234</div>
		<div class="order-desc"><div>Аккаунт, 100 гемов</div></div>
		<div class="text-muted">Brawl Stars, Аккаунты</div>
		<div class="tc-date-time">сегодня, 14:05</div>
		<div class="tc-price">599.00 ₽</div>
		<div class="media-user-name"><span data-href="https://funpay.com/users/777/">buyer_01</span></div>
	</a>
	<a class="tc-item warning" href="#">
		<div class="tc-order">#EFGH5678</div>
		<div class="order-desc"><div>Ключ</div></div>
		<div class="text-muted">Steam, Ключи</div>
		<div class="tc-date-time">2 января, 09:00</div>
		<div class="tc-price">100.50 ₽</div>
		<div class="media-user-name"><span data-href="https://funpay.com/users/778/">buyer_02</span></div>
	</a>
	<a class="tc-item" href="#">
		<div class="tc-order">#IJKL9012</div>
		<div class="order-desc"><div>Буст</div></div>
		<div class="text-muted">Dota 2, Услуги</div>
		<div class="tc-date-time">28 декабря 2022, 11:30</div>
		<div class="tc-price">1500.00 ₽</div>
		<div class="media-user-name"><span data-href="https://funpay.com/users/779/">buyer_03</span></div>
	</a>`

	next, orders, err := ParseOrders(html, now)
	require.NoError(t, err)
	assert.Equal(t, "next-token", next)
	require.Len(t, orders, 3)

	assert.Equal(t, "ABCD1234", orders[0].ID)
	assert.Equal(t, OrderPaid, orders[0].Status)
	assert.Equal(t, "Аккаунт, 100 гемов", orders[0].Description)
	assert.Equal(t, 599.00, orders[0].Price)
	assert.Equal(t, "buyer_01", orders[0].Buyer)
	assert.Equal(t, int64(777), orders[0].BuyerID)
	assert.Equal(t, time.Date(2024, time.March, 15, 14, 5, 0, 0, time.UTC), orders[0].Date)
	assert.Equal(t, "Brawl Stars, Аккаунты", orders[0].Subcategory)

	assert.Equal(t, OrderRefunded, orders[1].Status)
	assert.Equal(t, OrderClosed, orders[2].Status)
}

func TestParseOrdersDetectsLoggedOutPage(t *testing.T) {
	html := `<div class="content-account content-account-login">Войдите</div>`
	_, _, err := ParseOrders(html, time.Now())
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestParseOrdersLastPageHasNoToken(t *testing.T) {
	next, orders, err := ParseOrders("<div></div>", time.Now())
	require.NoError(t, err)
	assert.Empty(t, next)
	assert.Empty(t, orders)
}
