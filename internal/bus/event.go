package bus

import (
	"strings"
	"time"
)

// Event is a notification from a backend component to its observers.
// Kind is dot separated; its first segment names the publisher, such as
// signal.envelope or outbox.failed.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Namespace returns the first segment of the event kind.
func (e Event) Namespace() string {
	ns, _, _ := strings.Cut(e.Kind, ".")
	return ns
}

// matches reports whether kind falls under namespace. An empty namespace
// matches everything; "outbox" and "outbox." both match "outbox.sent" but
// not "outboxes.sent".
func matches(namespace, kind string) bool {
	namespace = strings.TrimSuffix(namespace, ".")
	if namespace == "" || kind == namespace {
		return true
	}
	return strings.HasPrefix(kind, namespace+".")
}
