// Package registry tracks live connections and channel subscriptions for the
// broker.
//
// A Registry is shared by every connection in the process. It owns three key
// spaces, each an independently synchronized concurrent map:
//
//	senders   ConnID  -> Sender
//	channels  channel -> set of Subscriber{ConnID, SubID}
//	subs      ConnID  -> (SubID -> channel)
//
// Operations on unrelated keys never serialize behind each other. Operations
// that touch several keys (Subscribe, Unsubscribe, Disconnect) are not atomic
// as a whole: a Broadcast running concurrently with a Disconnect may still see
// the departing subscriber and attempt a Send, which then reports false
// because the sender is already gone.
package registry
