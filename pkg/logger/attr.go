package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// SubscriptionID records the subscription identifier under the key "subscription_id".
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// SubscriberID records the subscriber identifier under the key "subscriber_id".
func SubscriberID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscriber_id", id)
}

// CreatorID records the creator identifier under the key "creator_id".
func CreatorID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("creator_id", id)
}

// EventID records the payment event identifier under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// EventType records the payment event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Tier records a subscription tier under the key "tier".
func Tier(tier any) slog.Attr {
	return slog.Any("tier", tier)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
