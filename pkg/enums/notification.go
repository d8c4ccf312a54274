package enums

import "fmt"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationOrderPlaced   NotificationType = "order_placed"
	NotificationItemSold      NotificationType = "item_sold"
	NotificationOrderRefunded NotificationType = "order_refunded"
)

var validNotificationTypes = []NotificationType{
	NotificationOrderPlaced,
	NotificationItemSold,
	NotificationOrderRefunded,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
