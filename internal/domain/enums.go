package domain

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// Delivery statuses reported by the external notification sender.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// ValidChannel reports whether ch names a supported notification channel.
func ValidChannel(ch string) bool {
	return ch == ChannelEmail || ch == ChannelPush
}

// ValidStatus reports whether s is a known delivery status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed:
		return true
	}
	return false
}
