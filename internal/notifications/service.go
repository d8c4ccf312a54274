package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/payloads"
)

// Service turns order events into in-app notifications.
type Service interface {
	OrderPaid(ctx context.Context, eventID string, event payloads.OrderPaidEvent) (int64, error)
	OrderRefunded(ctx context.Context, eventID string, event payloads.OrderRefundedEvent) (int64, error)
}

type service struct {
	repo Repository
}

// NewService builds the notifications service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &service{repo: repo}, nil
}

// OrderPaid notifies the buyer once and every seller once per event.
func (s *service) OrderPaid(ctx context.Context, eventID string, event payloads.OrderPaidEvent) (int64, error) {
	if strings.TrimSpace(eventID) == "" {
		return 0, fmt.Errorf("event id required")
	}
	if event.OrderID == uuid.Nil || event.BuyerID == uuid.Nil {
		return 0, fmt.Errorf("order and buyer ids required")
	}
	orderID := event.OrderID

	rows := []models.Notification{{
		UserID:        event.BuyerID,
		SourceEventID: eventID,
		Type:          enums.NotificationOrderPlaced,
		Title:         "Order placed",
		Message:       fmt.Sprintf("Order %s was confirmed. Total %s %s.", shortID(orderID), event.Total, event.Currency),
		OrderID:       &orderID,
	}}

	sold := make(map[uuid.UUID]int, len(event.Items))
	for _, item := range event.Items {
		sold[item.SellerID] += item.Quantity
	}
	for _, sellerID := range event.SellerIDs() {
		if sellerID == event.BuyerID {
			continue
		}
		rows = append(rows, models.Notification{
			UserID:        sellerID,
			SourceEventID: eventID,
			Type:          enums.NotificationItemSold,
			Title:         "Item sold",
			Message:       fmt.Sprintf("%d unit(s) sold on order %s.", sold[sellerID], shortID(orderID)),
			OrderID:       &orderID,
		})
	}
	return s.repo.CreateMany(ctx, rows)
}

func (s *service) OrderRefunded(ctx context.Context, eventID string, event payloads.OrderRefundedEvent) (int64, error) {
	if strings.TrimSpace(eventID) == "" {
		return 0, fmt.Errorf("event id required")
	}
	if event.OrderID == uuid.Nil || event.BuyerID == uuid.Nil {
		return 0, fmt.Errorf("order and buyer ids required")
	}
	orderID := event.OrderID
	return s.repo.CreateMany(ctx, []models.Notification{{
		UserID:        event.BuyerID,
		SourceEventID: eventID,
		Type:          enums.NotificationOrderRefunded,
		Title:         "Order refunded",
		Message:       fmt.Sprintf("Order %s was refunded.", shortID(orderID)),
		OrderID:       &orderID,
	}})
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}
