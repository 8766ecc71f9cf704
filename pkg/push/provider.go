// Package push adapts provider push events (token refresh, foreground
// and background messages, the notification that launched the process)
// into host callbacks and device record updates.
package push

import "context"

// Message is one remote notification.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// EventID extracts the marketing event id a message advertises, empty
// when none. Both key spellings appear in the wild.
func (m *Message) EventID() string {
	if id := m.Data["event_id"]; id != "" {
		return id
	}
	return m.Data["event-id"]
}

// Provider is the platform push bridge (FCM or equivalent).
// Subscription functions return an unsubscribe func.
type Provider interface {
	Token(ctx context.Context) (string, error)

	OnTokenRefresh(fn func(token string)) (unsubscribe func())
	OnForegroundMessage(fn func(msg Message)) (unsubscribe func())
	OnBackgroundMessage(fn func(msg Message)) (unsubscribe func())

	// InitialNotification returns the message that launched the process,
	// nil when the process started any other way.
	InitialNotification(ctx context.Context) (*Message, error)

	HasPermission(ctx context.Context) (bool, error)
	RequestPermission(ctx context.Context) error
}
