package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recorder) Send(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func register(t *testing.T, r *Registry[string]) (ConnID, *recorder) {
	t.Helper()
	rec := &recorder{}
	id, err := r.Register(rec)
	require.NoError(t, err)
	return id, rec
}

func sortSubscribers(subs []Subscriber) []Subscriber {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Conn != subs[j].Conn {
			return subs[i].Conn < subs[j].Conn
		}
		return subs[i].SubID < subs[j].SubID
	})
	return subs
}

func TestRegister(t *testing.T) {
	r := New[string]()

	_, err := r.Register(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	first, _ := register(t, r)
	second, _ := register(t, r)
	assert.Equal(t, ConnID(1), first)
	assert.Equal(t, ConnID(2), second)
	assert.Equal(t, 2, r.Connections())
}

func TestSend(t *testing.T) {
	r := New[string]()
	id, rec := register(t, r)

	assert.True(t, r.Send(id, "hello"))
	assert.Equal(t, []string{"hello"}, rec.received())

	assert.False(t, r.Send(id+100, "nobody"))

	rec.err = errors.New("broken pipe")
	assert.False(t, r.Send(id, "lost"))
}

func TestSubscribeValidation(t *testing.T) {
	r := New[string]()
	id, _ := register(t, r)

	assert.ErrorIs(t, r.Subscribe(id, "", "1"), ErrInvalidArgument)
	assert.ErrorIs(t, r.Subscribe(id+1, "/topic/a", "1"), ErrInvalidArgument)

	_, ok := r.Subscribers("/topic/a")
	assert.False(t, ok, "failed subscribe must not create the channel")
}

func TestBroadcast(t *testing.T) {
	r := New[string]()
	a, recA := register(t, r)
	b, recB := register(t, r)
	_, recC := register(t, r)

	require.NoError(t, r.Subscribe(a, "/topic/a", "1"))
	require.NoError(t, r.Subscribe(b, "/topic/a", "7"))

	r.Broadcast("/topic/a", "m1")
	r.Broadcast("/topic/none", "m2")

	assert.Equal(t, []string{"m1"}, recA.received())
	assert.Equal(t, []string{"m1"}, recB.received())
	assert.Empty(t, recC.received())
}

func TestMultipleSubscriptionsToOneChannel(t *testing.T) {
	r := New[string]()
	a, rec := register(t, r)

	require.NoError(t, r.Subscribe(a, "/topic/a", "1"))
	require.NoError(t, r.Subscribe(a, "/topic/a", "2"))

	subs, ok := r.Subscribers("/topic/a")
	require.True(t, ok)
	assert.Equal(t, []Subscriber{{a, "1"}, {a, "2"}}, sortSubscribers(subs))

	r.Broadcast("/topic/a", "m")
	assert.Len(t, rec.received(), 2)
}

func TestResubscribeMovesSubscription(t *testing.T) {
	r := New[string]()
	a, _ := register(t, r)

	require.NoError(t, r.Subscribe(a, "/topic/a", "1"))
	require.NoError(t, r.Subscribe(a, "/topic/b", "1"))

	subsA, ok := r.Subscribers("/topic/a")
	require.True(t, ok)
	assert.Empty(t, subsA)

	subsB, _ := r.Subscribers("/topic/b")
	assert.Equal(t, []Subscriber{{a, "1"}}, subsB)

	assert.False(t, r.IsSubscribed(a, "/topic/a"))
	assert.True(t, r.IsSubscribed(a, "/topic/b"))
}

func TestUnsubscribe(t *testing.T) {
	r := New[string]()
	a, _ := register(t, r)
	b, _ := register(t, r)
	require.NoError(t, r.Subscribe(a, "/topic/a", "1"))
	require.NoError(t, r.Subscribe(b, "/topic/a", "1"))

	channel, ok := r.Unsubscribe(a, "1")
	require.True(t, ok)
	assert.Equal(t, "/topic/a", channel)

	_, ok = r.Unsubscribe(a, "1")
	assert.False(t, ok)
	_, ok = r.Unsubscribe(99, "1")
	assert.False(t, ok)

	subs, _ := r.Subscribers("/topic/a")
	assert.Equal(t, []Subscriber{{b, "1"}}, subs)
}

func TestDisconnect(t *testing.T) {
	r := New[string]()
	a, recA := register(t, r)
	b, _ := register(t, r)
	require.NoError(t, r.Subscribe(a, "/topic/a", "1"))
	require.NoError(t, r.Subscribe(a, "/topic/b", "2"))
	require.NoError(t, r.Subscribe(b, "/topic/a", "1"))

	r.Disconnect(a)
	r.Disconnect(a)
	r.Disconnect(1000)

	r.Broadcast("/topic/a", "after")
	assert.Empty(t, recA.received())
	assert.False(t, r.Send(a, "direct"))

	subs, ok := r.Subscribers("/topic/b")
	assert.True(t, ok, "channels persist after their last subscriber leaves")
	assert.Empty(t, subs)

	subs, _ = r.Subscribers("/topic/a")
	assert.Equal(t, []Subscriber{{b, "1"}}, subs)

	assert.ErrorIs(t, r.Subscribe(a, "/topic/a", "3"), ErrInvalidArgument)
	assert.Equal(t, []string{"/topic/a", "/topic/b"}, r.Channels())
	assert.Equal(t, 1, r.Connections())
}

// Each connection only mutates its own entries, so replaying every
// connection's operations sequentially must produce the same channel view as
// the concurrent run.
func TestConcurrentOperationsMatchSequentialReplay(t *testing.T) {
	const (
		conns    = 32
		rounds   = 200
		channels = 4
	)

	type op struct {
		kind    int // 0 subscribe, 1 unsubscribe
		channel string
		subID   string
	}

	plan := func(c int) []op {
		ops := make([]op, 0, rounds)
		for i := 0; i < rounds; i++ {
			ops = append(ops, op{
				kind:    (c + i) % 3 % 2,
				channel: fmt.Sprintf("/topic/%d", (c*7+i)%channels),
				subID:   fmt.Sprintf("%d", i%5),
			})
		}
		return ops
	}

	r := New[string]()
	ids := make([]ConnID, conns)
	for c := range ids {
		ids[c], _ = register(t, r)
	}

	var wg sync.WaitGroup
	for c := 0; c < conns; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for _, o := range plan(c) {
				if o.kind == 0 {
					_ = r.Subscribe(ids[c], o.channel, o.subID)
				} else {
					r.Unsubscribe(ids[c], o.subID)
				}
				r.Broadcast(o.channel, "noise")
			}
			if c%4 == 0 {
				r.Disconnect(ids[c])
			}
		}(c)
	}
	wg.Wait()

	want := make(map[string][]Subscriber)
	for c := 0; c < conns; c++ {
		if c%4 == 0 {
			continue
		}
		mine := make(map[string]string)
		for _, o := range plan(c) {
			if o.kind == 0 {
				mine[o.subID] = o.channel
			} else {
				delete(mine, o.subID)
			}
		}
		for subID, channel := range mine {
			want[channel] = append(want[channel], Subscriber{Conn: ids[c], SubID: subID})
		}
	}

	for i := 0; i < channels; i++ {
		channel := fmt.Sprintf("/topic/%d", i)
		got, _ := r.Subscribers(channel)
		assert.ElementsMatch(t, want[channel], got, channel)
	}
}
