package handlers

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/NightStrang6r/FunPayVertex/internal/funpay"
)

// DeliveryRule binds lots to a goods file: an order whose description
// contains any of LotNames gets items from GoodsFile, sent through Response.
// "$product" in Response is replaced with the delivered items.
type DeliveryRule struct {
	LotNames  []string `json:"lot_names"`
	GoodsFile string   `json:"goods_file"`
	Amount    int      `json:"amount"` // items per order, default 1
	Response  string   `json:"response"`
}

// DeliverySet is the loaded auto-delivery configuration.
type DeliverySet struct {
	rules []DeliveryRule
}

// LoadDeliveryRules reads an auto-delivery JSON file. A missing file yields
// an empty set.
func LoadDeliveryRules(path string) (*DeliverySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &DeliverySet{}, nil
		}
		return nil, fmt.Errorf("failed to read delivery file: %w", err)
	}

	var rules []DeliveryRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse delivery file %s: %w", path, err)
	}
	for i := range rules {
		if rules[i].Amount <= 0 {
			rules[i].Amount = 1
		}
	}
	return &DeliverySet{rules: rules}, nil
}

// Match returns the rule covering an order description, if any. First match
// wins, in file order.
func (s *DeliverySet) Match(description string) (DeliveryRule, bool) {
	lowered := strings.ToLower(description)
	for _, rule := range s.rules {
		for _, name := range rule.LotNames {
			if name != "" && strings.Contains(lowered, strings.ToLower(name)) {
				return rule, true
			}
		}
	}
	return DeliveryRule{}, false
}

// Len returns the number of loaded rules.
func (s *DeliverySet) Len() int { return len(s.rules) }

// DeliveryResult is the explicit outcome of one auto-delivery attempt,
// threaded to the post-delivery notification.
type DeliveryResult struct {
	Order     funpay.OrderSummary
	ChatID    funpay.ChatID
	GoodsFile string
	Items     []string
	Err       error
}

// Delivered reports whether the items actually reached the buyer.
func (r DeliveryResult) Delivered() bool { return r.Err == nil }

func renderDelivery(response string, items []string) string {
	return strings.ReplaceAll(response, "$product", strings.Join(items, "\n"))
}
