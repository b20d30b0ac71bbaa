package messaging

import (
	"context"
	"errors"
	"time"
)

// ChannelReminders carries a model.ReminderEvent for every reminder sent.
const ChannelReminders = "alerts.reminders"

// ErrLockHeld is returned by TryLock when another holder owns the key.
var ErrLockHeld = errors.New("lock held by another worker")

// Publisher publishes JSON encoded messages to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Broker is a Publisher that owns a connection.
type Broker interface {
	Publisher
	Close() error
}

// Locker grants short lived exclusive leases across processes.
type Locker interface {
	// TryLock acquires key for ttl. It returns ErrLockHeld when the key is
	// taken; release frees the lease only if it is still ours.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
