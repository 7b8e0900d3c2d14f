package services

import "context"

// NoticeLevel grades user-facing notices.
type NoticeLevel string

const (
	// NoticeInfo is a neutral confirmation.
	NoticeInfo NoticeLevel = "info"
	// NoticeWarn flags a degraded outcome the user should know about.
	NoticeWarn NoticeLevel = "warn"
	// NoticeError flags a failed operation.
	NoticeError NoticeLevel = "error"
)

// Notifier delivers non-blocking notices to the user, standing in for the
// storefront's toast layer. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, level NoticeLevel, message string)
}

// NotifierFunc adapts ordinary functions to Notifier.
type NotifierFunc func(context.Context, NoticeLevel, string)

// Notify invokes the wrapped function.
func (f NotifierFunc) Notify(ctx context.Context, level NoticeLevel, message string) {
	f(ctx, level, message)
}

func noopNotifier() Notifier {
	return NotifierFunc(func(context.Context, NoticeLevel, string) {})
}
