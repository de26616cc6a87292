package funpay

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// The functions in this file are pure: raw response in, typed records out.
// Login state is an implied input enforced by the caller (Client); everything
// else depends solely on the passed markup.

// rawObject is one entry of the runner/ response envelope.
type rawObject struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id"`
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data"`
}

type runnerResponse struct {
	Objects []rawObject `json:"objects"`
}

// RawMessage is one entry of a chat-history response.
type RawMessage struct {
	ID     int64  `json:"id"`
	Author int64  `json:"author"`
	HTML   string `json:"html"`
}

// ParseSnapshot converts a raw runner/ poll response into a Snapshot.
func ParseSnapshot(body []byte) (*Snapshot, error) {
	var resp runnerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ParseError{What: "poll response", Err: err}
	}

	snap := &Snapshot{}
	for _, obj := range resp.Objects {
		switch obj.Type {
		case "chat_bookmarks":
			var data struct {
				HTML string `json:"html"`
			}
			if err := json.Unmarshal(obj.Data, &data); err != nil {
				return nil, &ParseError{What: "chat bookmarks data", Err: err}
			}
			chats, err := ParseChatBookmarks(data.HTML)
			if err != nil {
				return nil, err
			}
			snap.ChatTag = obj.Tag
			snap.HasChats = true
			snap.Chats = chats
		case "orders_counters":
			var data struct {
				Buyer  int `json:"buyer"`
				Seller int `json:"seller"`
			}
			if err := json.Unmarshal(obj.Data, &data); err != nil {
				return nil, &ParseError{What: "order counters data", Err: err}
			}
			snap.OrderTag = obj.Tag
			snap.HasCounters = true
			snap.Counters = OrderCounters{Buyer: data.Buyer, Seller: data.Seller}
		}
	}
	return snap, nil
}

// ParseChatBookmarks converts the chat list HTML fragment into bookmarks.
// Chats removed by the administration have no message block and are skipped.
func ParseChatBookmarks(html string) ([]ChatBookmark, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{What: "chat list", Err: err}
	}

	var chats []ChatBookmark
	doc.Find("a.contact-item").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("data-id")
		if !ok {
			return
		}
		msgDiv := s.Find("div.contact-item-message")
		if msgDiv.Length() == 0 {
			return
		}
		text := strings.TrimPrefix(msgDiv.Text(), botMarker)
		chats = append(chats, ChatBookmark{
			ChatSummary: ChatSummary{
				ID:              ChatID(id),
				Name:            s.Find("div.media-user-name").Text(),
				LastMessageText: text,
				Unread:          s.HasClass("unread"),
				LastMessageKind: ClassifyMessage(text),
			},
			LastMessageTime: s.Find("div.contact-item-time").Text(),
		})
	})
	return chats, nil
}

// ParseMessages converts chat-history entries into messages. selfID/selfName
// identify the account the history was fetched with; author id 0 is the
// FunPay system. Author names missing from the entries are resolved from the
// per-author name blocks seen across the same history.
func ParseMessages(raw []RawMessage, chatID ChatID, selfID int64, selfName string,
	interlocutorID int64, interlocutorName string) ([]Message, error) {

	names := map[int64]string{selfID: selfName, 0: "FunPay"}
	badges := map[int64]string{}
	if interlocutorID != 0 {
		names[interlocutorID] = interlocutorName
	}

	var messages []Message
	for _, entry := range raw {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(entry.HTML))
		if err != nil {
			return nil, &ParseError{What: "chat history entry", Err: err}
		}

		if authorDiv := doc.Find("div.media-user-name"); authorDiv.Length() > 0 {
			if _, ok := badges[entry.Author]; !ok {
				badges[entry.Author] = authorDiv.Find("span").Text()
			}
			if _, ok := names[entry.Author]; !ok {
				names[entry.Author] = strings.TrimSpace(authorDiv.Find("a").Text())
			}
		}

		var text, imageLink string
		if link, ok := doc.Find("a.chat-img-link").Attr("href"); ok {
			imageLink = link
		} else if entry.Author == 0 {
			text = strings.TrimSpace(doc.Find("div.alert.alert-with-icon.alert-info").Text())
		} else {
			text = doc.Find("div.message-text").Text()
		}

		byBot := false
		if strings.HasPrefix(text, botMarker) {
			text = strings.TrimPrefix(text, botMarker)
			byBot = true
		}

		kind := KindPlain
		if entry.Author == 0 {
			kind = ClassifyMessage(text)
		}

		messages = append(messages, Message{
			ID:        entry.ID,
			ChatID:    chatID,
			Text:      text,
			ImageLink: imageLink,
			AuthorID:  entry.Author,
			Kind:      kind,
			ByBot:     byBot,
		})
	}

	for i := range messages {
		messages[i].Author = names[messages[i].AuthorID]
		messages[i].ChatName = interlocutorName
		messages[i].Badge = badges[messages[i].AuthorID]
	}
	return messages, nil
}

// ParseOrders converts one page of the orders listing into order summaries
// plus the token of the next page ("" when the listing is exhausted).
// Relative order dates are resolved against now.
func ParseOrders(html string, now time.Time) (string, []OrderSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, &ParseError{What: "orders page", Err: err}
	}
	if doc.Find("div.content-account.content-account-login").Length() > 0 {
		return "", nil, ErrUnauthorized
	}

	next, _ := doc.Find(`input[type="hidden"][name="continue"]`).Attr("value")

	var orders []OrderSummary
	var parseErr error
	doc.Find("a.tc-item").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var status OrderStatus
		switch {
		case s.HasClass("warning"):
			status = OrderRefunded
		case s.HasClass("info"):
			status = OrderPaid
		default:
			status = OrderClosed
		}

		id := strings.TrimPrefix(s.Find("div.tc-order").Text(), "#")
		price, err := strconv.ParseFloat(firstField(s.Find("div.tc-price").Text()), 64)
		if err != nil {
			parseErr = &ParseError{What: "order price", Err: err}
			return false
		}

		buyerSpan := s.Find("div.media-user-name").Find("span")
		buyerID, err := parseUserHref(buyerSpan.AttrOr("data-href", ""))
		if err != nil {
			parseErr = &ParseError{What: "order buyer", Err: err}
			return false
		}

		date, err := parseOrderDate(s.Find("div.tc-date-time").Text(), now)
		if err != nil {
			parseErr = &ParseError{What: "order date", Err: err}
			return false
		}

		orders = append(orders, OrderSummary{
			ID:          id,
			Description: s.Find("div.order-desc").Children().First().Text(),
			Price:       price,
			Buyer:       buyerSpan.Text(),
			BuyerID:     buyerID,
			Status:      status,
			Date:        date,
			Subcategory: s.Find("div.text-muted").Text(),
		})
		return true
	})
	if parseErr != nil {
		return "", nil, parseErr
	}
	return next, orders, nil
}

// accountData is everything the client extracts from the main page.
type accountData struct {
	UserID          int64
	Username        string
	CSRFToken       string
	ActiveSales     int
	ActivePurchases int
	Categories      []Category
}

func parseMainPage(html string) (*accountData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{What: "main page", Err: err}
	}

	username := doc.Find("div.user-link-name")
	if username.Length() == 0 {
		return nil, ErrUnauthorized
	}

	appDataRaw, ok := doc.Find("body").Attr("data-app-data")
	if !ok {
		return nil, &ParseError{What: "main page app data"}
	}
	var appData struct {
		UserID    int64  `json:"userId"`
		CSRFToken string `json:"csrf-token"`
	}
	if err := json.Unmarshal([]byte(appDataRaw), &appData); err != nil {
		return nil, &ParseError{What: "main page app data", Err: err}
	}

	data := &accountData{
		UserID:    appData.UserID,
		Username:  username.First().Text(),
		CSRFToken: appData.CSRFToken,
	}
	if badge := doc.Find("span.badge.badge-trade"); badge.Length() > 0 {
		data.ActiveSales, _ = strconv.Atoi(strings.TrimSpace(badge.Text()))
	}
	if badge := doc.Find("span.badge.badge-orders"); badge.Length() > 0 {
		data.ActivePurchases, _ = strconv.Atoi(strings.TrimSpace(badge.Text()))
	}
	data.Categories = parseCategories(doc)
	return data, nil
}

// parseCategories extracts games and their raisable (non-currency)
// subcategories from the main page promo block.
func parseCategories(doc *goquery.Document) []Category {
	lists := doc.Find("div.promo-game-list")
	if lists.Length() == 0 {
		return nil
	}
	// the page can carry two copies of the list; the second is the full one
	list := lists.First()
	if lists.Length() > 1 {
		list = lists.Eq(1)
	}

	var categories []Category
	list.Find("div.promo-game-item").Each(func(_ int, item *goquery.Selection) {
		title := item.Find("div.game-title").First()
		idAttr, ok := title.Attr("data-id")
		if !ok {
			return
		}
		id, err := strconv.ParseInt(idAttr, 10, 64)
		if err != nil {
			return
		}
		cat := Category{ID: id, Name: strings.TrimSpace(title.Find("a").First().Text())}
		item.Find("ul.list-inline li a").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !strings.Contains(href, "/lots/") {
				return // currency subcategories cannot be raised
			}
			parts := strings.Split(strings.TrimRight(href, "/"), "/")
			sid, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
			if err != nil {
				return
			}
			cat.Subcategories = append(cat.Subcategories, sid)
		})
		if len(cat.Subcategories) > 0 {
			categories = append(categories, cat)
		}
	})
	return categories
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseUserHref(href string) (int64, error) {
	parts := strings.Split(strings.TrimRight(href, "/"), "/")
	return strconv.ParseInt(parts[len(parts)-1], 10, 64)
}
