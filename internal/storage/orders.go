package storage

import (
	"context"
	"fmt"
	"time"
)

// OrderRecord is the archive row for a marketplace order.
type OrderRecord struct {
	OrderID     string    `json:"order_id"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Buyer       string    `json:"buyer"`
	BuyerID     int64     `json:"buyer_id"`
	Status      string    `json:"status"`
	Subcategory string    `json:"subcategory"`
	OrderedAt   time.Time `json:"ordered_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeliveryRecord is the archive row for one auto-delivery.
type DeliveryRecord struct {
	OrderID   string    `json:"order_id"`
	ChatID    string    `json:"chat_id"`
	GoodsFile string    `json:"goods_file"`
	ItemCount int       `json:"item_count"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveOrder upserts an order into the archive. Called on new orders and on
// status transitions; the order id is the conflict key.
func (c *Client) SaveOrder(ctx context.Context, record OrderRecord) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	err := c.withRetry(ctx, "save_order", func() error {
		_, _, err := c.client.From("orders").
			Upsert(record, "order_id", "", "exact").
			Execute()
		if err != nil {
			return fmt.Errorf("failed to upsert order: %w", err)
		}
		return nil
	})

	if err != nil {
		c.logger.Error().
			Err(err).
			Str("order_id", record.OrderID).
			Msg("Failed to save order")
		return err
	}

	c.logger.Debug().
		Str("order_id", record.OrderID).
		Str("status", record.Status).
		Msg("Order saved")
	return nil
}

// SaveDelivery appends a delivery record to the archive.
func (c *Client) SaveDelivery(ctx context.Context, record DeliveryRecord) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	err := c.withRetry(ctx, "save_delivery", func() error {
		_, _, err := c.client.From("deliveries").
			Insert(record, false, "", "", "exact").
			Execute()
		if err != nil {
			return fmt.Errorf("failed to insert delivery: %w", err)
		}
		return nil
	})

	if err != nil {
		c.logger.Error().
			Err(err).
			Str("order_id", record.OrderID).
			Msg("Failed to save delivery")
		return err
	}

	c.logger.Debug().
		Str("order_id", record.OrderID).
		Int("items", record.ItemCount).
		Msg("Delivery saved")
	return nil
}
