package protocol

import "sync/atomic"

// MessageIDs hands out process-wide message ids. One instance is shared by
// every Engine of a server.
type MessageIDs struct {
	last atomic.Int64
}

// NewMessageIDs returns a counter whose first id is 1.
func NewMessageIDs() *MessageIDs {
	return &MessageIDs{}
}

// Next returns the next id. Ids are strictly increasing across goroutines.
func (m *MessageIDs) Next() int64 {
	return m.last.Add(1)
}
