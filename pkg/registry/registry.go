package registry

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/antoniomika/syncmap"
)

// ConnID identifies a registered connection. IDs start at 1 and are never
// handed out twice by the same Registry.
type ConnID int64

// Sender delivers one outbound message to a connection. Implementations
// serialize their own writes.
type Sender[M any] interface {
	Send(msg M) error
}

// Subscriber is one channel-keyed subscription entry.
type Subscriber struct {
	Conn  ConnID
	SubID string
}

type subscriberSet = syncmap.Map[Subscriber, struct{}]

// Registry routes messages of type M between connections.
type Registry[M any] struct {
	nextID   atomic.Int64
	senders  *syncmap.Map[ConnID, Sender[M]]
	channels *syncmap.Map[string, *subscriberSet]
	subs     *syncmap.Map[ConnID, *syncmap.Map[string, string]]
}

// New creates an empty Registry.
func New[M any]() *Registry[M] {
	return &Registry[M]{
		senders:  syncmap.New[ConnID, Sender[M]](),
		channels: syncmap.New[string, *subscriberSet](),
		subs:     syncmap.New[ConnID, *syncmap.Map[string, string]](),
	}
}

// Register stores sender under a fresh connection ID.
func (r *Registry[M]) Register(sender Sender[M]) (ConnID, error) {
	if sender == nil {
		return 0, fmt.Errorf("%w: nil sender", ErrInvalidArgument)
	}

	id := ConnID(r.nextID.Add(1))
	r.subs.Store(id, syncmap.New[string, string]())
	r.senders.Store(id, sender)
	return id, nil
}

// Send hands msg to the connection's sender. It reports false when the
// connection is gone or the sender rejected the message.
func (r *Registry[M]) Send(id ConnID, msg M) bool {
	sender, ok := r.senders.Load(id)
	if !ok {
		return false
	}
	return sender.Send(msg) == nil
}

// Broadcast sends msg to every connection subscribed to channel. A connection
// holding several subscriptions to the channel receives msg once per
// subscription. Every subscriber gets the same payload, so SEND fan-out,
// where each MESSAGE names its own subscription, goes through Subscribers
// and Send instead.
func (r *Registry[M]) Broadcast(channel string, msg M) {
	set, ok := r.channels.Load(channel)
	if !ok {
		return
	}
	set.Range(func(s Subscriber, _ struct{}) bool {
		r.Send(s.Conn, msg)
		return true
	})
}

// Subscribe records subID of connection id as a subscription to channel.
// Reusing a subID moves that subscription to the new channel.
func (r *Registry[M]) Subscribe(id ConnID, channel, subID string) error {
	if channel == "" {
		return fmt.Errorf("%w: empty channel", ErrInvalidArgument)
	}
	if _, ok := r.senders.Load(id); !ok {
		return fmt.Errorf("%w: connection %d is not registered", ErrInvalidArgument, id)
	}
	mine, ok := r.subs.Load(id)
	if !ok {
		return fmt.Errorf("%w: connection %d is not registered", ErrInvalidArgument, id)
	}

	entry := Subscriber{Conn: id, SubID: subID}
	if prev, had := mine.Load(subID); had && prev != channel {
		if set, ok := r.channels.Load(prev); ok {
			set.Delete(entry)
		}
	}

	set, ok := r.channels.Load(channel)
	if !ok {
		set, _ = r.channels.LoadOrStore(channel, syncmap.New[Subscriber, struct{}]())
	}
	set.Store(entry, struct{}{})
	mine.Store(subID, channel)
	return nil
}

// Unsubscribe removes subID from connection id and returns the channel it
// was attached to.
func (r *Registry[M]) Unsubscribe(id ConnID, subID string) (string, bool) {
	mine, ok := r.subs.Load(id)
	if !ok {
		return "", false
	}
	channel, ok := mine.LoadAndDelete(subID)
	if !ok {
		return "", false
	}
	if set, ok := r.channels.Load(channel); ok {
		set.Delete(Subscriber{Conn: id, SubID: subID})
	}
	return channel, true
}

// Disconnect forgets the connection and every subscription it held. Calling
// it for an unknown connection is a no-op.
func (r *Registry[M]) Disconnect(id ConnID) {
	r.senders.Delete(id)

	mine, ok := r.subs.LoadAndDelete(id)
	if !ok {
		return
	}
	mine.Range(func(subID, channel string) bool {
		if set, ok := r.channels.Load(channel); ok {
			set.Delete(Subscriber{Conn: id, SubID: subID})
		}
		return true
	})
}

// Subscribers returns a snapshot of the channel's subscribers. The bool is
// false when nobody ever subscribed to the channel.
func (r *Registry[M]) Subscribers(channel string) ([]Subscriber, bool) {
	set, ok := r.channels.Load(channel)
	if !ok {
		return nil, false
	}
	out := make([]Subscriber, 0)
	set.Range(func(s Subscriber, _ struct{}) bool {
		out = append(out, s)
		return true
	})
	return out, true
}

// IsSubscribed reports whether connection id holds any subscription to
// channel.
func (r *Registry[M]) IsSubscribed(id ConnID, channel string) bool {
	set, ok := r.channels.Load(channel)
	if !ok {
		return false
	}
	found := false
	set.Range(func(s Subscriber, _ struct{}) bool {
		if s.Conn == id {
			found = true
			return false
		}
		return true
	})
	return found
}

// Connections returns the number of registered connections.
func (r *Registry[M]) Connections() int {
	n := 0
	r.senders.Range(func(ConnID, Sender[M]) bool {
		n++
		return true
	})
	return n
}

// Channels returns every channel name ever subscribed to, sorted.
func (r *Registry[M]) Channels() []string {
	names := make([]string, 0)
	r.channels.Range(func(name string, _ *subscriberSet) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
