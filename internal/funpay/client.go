package funpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://funpay.com"

// SentHook is notified about messages sent through this client, so the
// change detector can tag them as our own on the next sighting. The poll
// that confirms a send and the poll that observes history are different
// calls; without the hook every bot message would come back as a NewMessage
// from ourselves.
type SentHook interface {
	MarkSent(chatID ChatID, messageID int64)
}

// Client executes authenticated requests against FunPay. It owns the session
// cookies (golden_key, rotating PHPSESSID) and the csrf token, and surfaces
// structured failures: ErrUnauthorized is fatal until credentials rotate,
// everything else is retryable.
type Client struct {
	goldenKey string
	userAgent string
	baseURL   string
	http      *http.Client
	logger    zerolog.Logger

	sent SentHook

	// session state, guarded because the refresh job runs off the poll loop
	mu              sync.RWMutex
	phpSessID       string
	csrfToken       string
	userID          int64
	username        string
	activeSales     int
	activePurchases int
	categories      []Category
	loggedIn        bool
}

// NewClient creates a FunPay client. The timeout applies to every request.
func NewClient(goldenKey, userAgent string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		goldenKey: goldenKey,
		userAgent: userAgent,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "funpay").Logger(),
	}
}

// SetBaseURL overrides the upstream base URL (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// SetSentHook registers the change detector's sent-message hook.
func (c *Client) SetSentHook(h SentHook) { c.sent = h }

func (c *Client) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// ActiveCounters returns the sales / purchases badge counters from the last
// Login.
func (c *Client) ActiveCounters() (sales, purchases int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeSales, c.activePurchases
}

// Categories returns the raisable game categories parsed on Login.
func (c *Client) Categories() []Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories
}

func (c *Client) loggedInState() (csrf string, uid int64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrfToken, c.userID, c.loggedIn
}

// do executes one request. Cookies and user-agent are attached here; a
// rotated PHPSESSID in the response is captured. A 403 maps to
// ErrUnauthorized, any other unexpected status to *RequestError.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, xhr bool) (int, []byte, error) {
	link := path
	if !strings.HasPrefix(path, "http") {
		link = c.baseURL + "/" + path
	}

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(form.Encode())
	} else if len(form) > 0 {
		link += "?" + form.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, link, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	if xhr {
		req.Header.Set("Accept", "*/*")
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	c.mu.RLock()
	cookie := "golden_key=" + c.goldenKey
	if c.phpSessID != "" {
		cookie += "; PHPSESSID=" + c.phpSessID
	}
	c.mu.RUnlock()
	req.Header.Set("Cookie", cookie)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", link, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response from %s: %w", link, err)
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == "PHPSESSID" && ck.Value != "" {
			c.mu.Lock()
			c.phpSessID = ck.Value
			c.mu.Unlock()
		}
	}

	if resp.StatusCode == http.StatusForbidden {
		return resp.StatusCode, data, ErrUnauthorized
	}
	return resp.StatusCode, data, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	status, data, err := c.do(ctx, http.MethodPost, path, form, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &RequestError{Method: http.MethodPost, URL: path, StatusCode: status}
	}
	return data, nil
}

// Login fetches the main page and (re)initializes the session: user id,
// username, csrf token, badge counters, game categories. FunPay rotates the
// PHPSESSID cookie roughly hourly, so Login must be re-run periodically.
func (c *Client) Login(ctx context.Context) error {
	status, data, err := c.do(ctx, http.MethodGet, c.baseURL, nil, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &RequestError{Method: http.MethodGet, URL: c.baseURL, StatusCode: status}
	}

	account, err := parseMainPage(string(data))
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.userID = account.UserID
	c.username = account.Username
	c.csrfToken = account.CSRFToken
	c.activeSales = account.ActiveSales
	c.activePurchases = account.ActivePurchases
	c.categories = account.Categories
	c.loggedIn = true
	c.mu.Unlock()

	c.logger.Info().
		Int64("user_id", account.UserID).
		Str("username", account.Username).
		Int("active_sales", account.ActiveSales).
		Int("categories", len(account.Categories)).
		Msg("Logged in")
	return nil
}

// Poll executes one poll cycle against the runner/ endpoint. The tags are
// the correlation tags from the previous cycle ("" on the first one).
func (c *Client) Poll(ctx context.Context, chatTag, orderTag string) (*Snapshot, error) {
	csrf, uid, ok := c.loggedInState()
	if !ok {
		return nil, ErrNotLoggedIn
	}

	objects, err := json.Marshal([]map[string]any{
		{"type": "orders_counters", "id": uid, "tag": orderTag, "data": false},
		{"type": "chat_bookmarks", "id": uid, "tag": chatTag, "data": false},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode poll objects: %w", err)
	}

	form := url.Values{}
	form.Set("objects", string(objects))
	form.Set("request", "false")
	form.Set("csrf_token", csrf)

	data, err := c.post(ctx, "runner/", form)
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(data)
}

// chatNodeObject builds one chat_node request entry. Private chat ids go out
// as numbers, like the site's own frontend sends them.
func chatNodeObject(id ChatID) map[string]any {
	var node any = string(id)
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		node = n
	}
	return map[string]any{
		"type": "chat_node",
		"id":   node,
		"tag":  "00000000",
		"data": map[string]any{"node": node, "last_message": -1, "content": ""},
	}
}

// ChatHistories fetches the histories of several chats in one request
// (up to 50 messages per private chat, 25 per public one). chats maps chat
// id to the counterpart's name, "" when unknown.
func (c *Client) ChatHistories(ctx context.Context, chats map[ChatID]string) (map[ChatID][]Message, error) {
	csrf, uid, ok := c.loggedInState()
	if !ok {
		return nil, ErrNotLoggedIn
	}

	objects := make([]map[string]any, 0, len(chats))
	for id := range chats {
		objects = append(objects, chatNodeObject(id))
	}
	encoded, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat_node objects: %w", err)
	}

	form := url.Values{}
	form.Set("objects", string(encoded))
	form.Set("request", "false")
	form.Set("csrf_token", csrf)

	data, err := c.post(ctx, "runner/", form)
	if err != nil {
		return nil, err
	}

	var resp runnerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ParseError{What: "chat histories response", Err: err}
	}

	c.mu.RLock()
	selfName := c.username
	c.mu.RUnlock()

	result := make(map[ChatID][]Message, len(chats))
	for _, obj := range resp.Objects {
		if obj.Type != "chat_node" {
			continue
		}
		id := ChatID(bytes.Trim(obj.ID, `"`))
		if len(obj.Data) == 0 || string(obj.Data) == "null" || string(obj.Data) == "false" {
			result[id] = nil
			continue
		}
		var node struct {
			Node struct {
				Name string `json:"name"`
			} `json:"node"`
			Messages []RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(obj.Data, &node); err != nil {
			return nil, &ParseError{What: "chat history data", Err: err}
		}

		var interlocutorID int64
		if parts := strings.Split(node.Node.Name, "-"); id.Private() && len(parts) == 3 {
			interlocutorID, _ = strconv.ParseInt(parts[2], 10, 64)
		}
		messages, err := ParseMessages(node.Messages, id, uid, selfName, interlocutorID, chats[id])
		if err != nil {
			return nil, err
		}
		result[id] = messages
	}
	return result, nil
}

// Orders fetches one page of the orders listing. startFrom is the
// continuation token of the previous page, "" for the first one. It returns
// the next token ("" when exhausted) and the page's orders.
func (c *Client) Orders(ctx context.Context, startFrom string) (string, []OrderSummary, error) {
	if _, _, ok := c.loggedInState(); !ok {
		return "", nil, ErrNotLoggedIn
	}

	var (
		status int
		data   []byte
		err    error
	)
	if startFrom == "" {
		status, data, err = c.do(ctx, http.MethodGet, "orders/trade", nil, false)
	} else {
		form := url.Values{}
		form.Set("continue", startFrom)
		status, data, err = c.do(ctx, http.MethodPost, "orders/trade", form, false)
	}
	if err != nil {
		return "", nil, err
	}
	if status != http.StatusOK {
		return "", nil, &RequestError{Method: http.MethodGet, URL: "orders/trade", StatusCode: status}
	}
	return ParseOrders(string(data), time.Now())
}

// SendMessage sends a text message to a chat. The text is prefixed with the
// invisible bot marker so the message is recognizable as ours later. On
// success the detector hook is notified with the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID ChatID, chatName, text string) (Message, error) {
	return c.send(ctx, chatID, chatName, text, 0)
}

// SendImage sends a previously uploaded image to a private chat.
func (c *Client) SendImage(ctx context.Context, chatID ChatID, chatName string, imageID int64) (Message, error) {
	return c.send(ctx, chatID, chatName, "", imageID)
}

func (c *Client) send(ctx context.Context, chatID ChatID, chatName, text string, imageID int64) (Message, error) {
	csrf, uid, ok := c.loggedInState()
	if !ok {
		return Message{}, ErrNotLoggedIn
	}

	var node any = string(chatID)
	if n, err := strconv.ParseInt(string(chatID), 10, 64); err == nil {
		node = n
	}
	reqData := map[string]any{"node": node, "last_message": -1}
	if imageID != 0 {
		reqData["image_id"] = imageID
		reqData["content"] = ""
	} else {
		reqData["content"] = botMarker + text
	}
	request, err := json.Marshal(map[string]any{"action": "chat_message", "data": reqData})
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode send request: %w", err)
	}
	objects, err := json.Marshal([]map[string]any{chatNodeObject(chatID)})
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode send objects: %w", err)
	}

	form := url.Values{}
	form.Set("objects", string(objects))
	form.Set("request", string(request))
	form.Set("csrf_token", csrf)

	data, err := c.post(ctx, "runner/", form)
	if err != nil {
		return Message{}, err
	}

	var resp struct {
		Response *struct {
			Error *string `json:"error"`
		} `json:"response"`
		Objects []struct {
			Data struct {
				Messages []RawMessage `json:"messages"`
			} `json:"data"`
		} `json:"objects"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return Message{}, &ParseError{What: "send response", Err: err}
	}
	if resp.Response == nil {
		return Message{}, &MessageNotDeliveredError{ChatID: chatID}
	}
	if resp.Response.Error != nil {
		return Message{}, &MessageNotDeliveredError{ChatID: chatID, Message: *resp.Response.Error}
	}
	if len(resp.Objects) == 0 || len(resp.Objects[0].Data.Messages) == 0 {
		return Message{}, &ParseError{What: "send response: no message echo"}
	}

	echo := resp.Objects[0].Data.Messages[len(resp.Objects[0].Data.Messages)-1]
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(echo.HTML))
	if err != nil {
		return Message{}, &ParseError{What: "sent message html", Err: err}
	}

	msg := Message{
		ID:       echo.ID,
		ChatID:   chatID,
		ChatName: chatName,
		Author:   c.Username(),
		AuthorID: uid,
		ByBot:    true,
	}
	if link, ok := doc.Find("a.chat-img-link").Attr("href"); ok {
		msg.ImageLink = link
	} else {
		msg.Text = strings.TrimPrefix(doc.Find("div.message-text").Text(), botMarker)
	}

	if c.sent != nil && chatID.Private() {
		c.sent.MarkSent(chatID, msg.ID)
	}
	c.logger.Debug().Str("chat_id", string(chatID)).Int64("message_id", msg.ID).Msg("Message sent")
	return msg, nil
}

// UploadImage uploads an image for later delivery with SendImage and returns
// its FunPay file id.
func (c *Client) UploadImage(ctx context.Context, image []byte) (int64, error) {
	if _, _, ok := c.loggedInState(); !ok {
		return 0, ErrNotLoggedIn
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "image.png")
	if err != nil {
		return 0, fmt.Errorf("failed to build image form: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return 0, fmt.Errorf("failed to build image form: %w", err)
	}
	if err := mw.WriteField("file_id", "0"); err != nil {
		return 0, fmt.Errorf("failed to build image form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("failed to build image form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/file/addChatImage", &buf)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	c.mu.RLock()
	req.Header.Set("Cookie", "golden_key="+c.goldenKey+"; PHPSESSID="+c.phpSessID)
	c.mu.RUnlock()
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("image upload failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		return 0, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &RequestError{Method: http.MethodPost, URL: "file/addChatImage", StatusCode: resp.StatusCode}
	}

	var uploaded struct {
		FileID int64 `json:"fileId"`
	}
	if err := json.Unmarshal(data, &uploaded); err != nil || uploaded.FileID == 0 {
		return 0, &ParseError{What: "image upload response", Err: err}
	}
	return uploaded.FileID, nil
}

// RaiseLots raises all passed subcategories of a game category. On a
// cooldown response the returned *RaiseError carries the wait time FunPay
// asked for.
func (c *Client) RaiseLots(ctx context.Context, categoryID int64, subcategories []int64) error {
	csrf, _, ok := c.loggedInState()
	if !ok {
		return ErrNotLoggedIn
	}
	if len(subcategories) == 0 {
		return fmt.Errorf("category %d has no raisable subcategories", categoryID)
	}

	form := url.Values{}
	form.Set("game_id", strconv.FormatInt(categoryID, 10))
	form.Set("node_id", strconv.FormatInt(subcategories[0], 10))
	for _, id := range subcategories {
		form.Add("node_ids[]", strconv.FormatInt(id, 10))
	}
	form.Set("csrf_token", csrf)

	data, err := c.post(ctx, "lots/raise", form)
	if err != nil {
		return err
	}

	var resp struct {
		Error bool   `json:"error"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return &ParseError{What: "raise response", Err: err}
	}
	if resp.Error {
		return &RaiseError{CategoryID: categoryID, Message: resp.Msg, WaitTime: parseWaitTime(resp.Msg)}
	}
	return nil
}

// Refund returns the money of an order to the buyer.
func (c *Client) Refund(ctx context.Context, orderID string) error {
	csrf, _, ok := c.loggedInState()
	if !ok {
		return ErrNotLoggedIn
	}

	form := url.Values{}
	form.Set("id", orderID)
	form.Set("csrf_token", csrf)

	data, err := c.post(ctx, "orders/refund", form)
	if err != nil {
		return err
	}
	var resp struct {
		Error bool   `json:"error"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return &ParseError{What: "refund response", Err: err}
	}
	if resp.Error {
		return &RefundError{OrderID: orderID, Message: resp.Msg}
	}
	return nil
}

// SendReview creates or edits a review (or a reply to one) on an order.
func (c *Client) SendReview(ctx context.Context, orderID, text string, rating int) error {
	csrf, uid, ok := c.loggedInState()
	if !ok {
		return ErrNotLoggedIn
	}

	form := url.Values{}
	form.Set("authorId", strconv.FormatInt(uid, 10))
	form.Set("text", text)
	form.Set("rating", strconv.Itoa(rating))
	form.Set("orderId", orderID)
	form.Set("csrf_token", csrf)

	if _, err := c.post(ctx, "orders/review", form); err != nil {
		return err
	}
	return nil
}
