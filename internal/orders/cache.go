package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// RedisProjection keeps the derived read copy of an order under
// order:{id}. It is best-effort: the saga never reads it and a missed
// write only means a stale or absent cache entry, never a wrong
// decision.
type RedisProjection struct {
	client *redis.Client
}

func NewRedisProjection(client *redis.Client) *RedisProjection {
	return &RedisProjection{client: client}
}

func cacheKey(orderID string) string {
	return "order:" + orderID
}

func (p *RedisProjection) Store(ctx context.Context, order *domain.Order) error {
	items, err := json.Marshal(domain.EventItems(order.Items))
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	return p.client.HSet(ctx, cacheKey(order.ID), map[string]any{
		"user_id":      order.UserID,
		"total_amount": order.TotalAmount,
		"items":        string(items),
		"payment_link": order.PaymentLink,
	}).Err()
}

func (p *RedisProjection) Evict(ctx context.Context, orderID string) error {
	return p.client.Del(ctx, cacheKey(orderID)).Err()
}
