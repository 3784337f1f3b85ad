package stomp

import (
	"fmt"
	"strings"
)

// Client commands.
const (
	CmdConnect     = "CONNECT"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdDisconnect  = "DISCONNECT"
)

// Server commands.
const (
	CmdConnected = "CONNECTED"
	CmdReceipt   = "RECEIPT"
	CmdError     = "ERROR"
	CmdMessage   = "MESSAGE"
)

// Header names.
const (
	HdrLogin        = "login"
	HdrPasscode     = "passcode"
	HdrReceipt      = "receipt"
	HdrReceiptID    = "receipt-id"
	HdrDestination  = "destination"
	HdrID           = "id"
	HdrVersion      = "version"
	HdrMessage      = "message"
	HdrSubscription = "subscription"
	HdrMessageID    = "message-id"
)

// ProtocolVersion is the version advertised in CONNECTED frames.
const ProtocolVersion = "1.2"

// Header is a single name:value pair. Frames keep headers as an ordered
// slice because the wire order of server frames is fixed.
type Header struct {
	Name  string
	Value string
}

// Frame is a parsed frame.
type Frame struct {
	Command string
	Headers []Header
	Body    string
}

// Get returns the value of the first header with the given name.
func (f Frame) Get(name string) (string, bool) {
	for _, h := range f.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Add appends a header.
func (f *Frame) Add(name, value string) {
	f.Headers = append(f.Headers, Header{Name: name, Value: value})
}

// String renders the frame as wire text, without the NUL terminator.
func (f Frame) String() string {
	var b strings.Builder
	size := len(f.Command) + len(f.Body) + 2
	for _, h := range f.Headers {
		size += len(h.Name) + len(h.Value) + 2
	}
	b.Grow(size)

	b.WriteString(f.Command)
	b.WriteByte('\n')
	for _, h := range f.Headers {
		b.WriteString(h.Name)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(f.Body)
	return b.String()
}

// Parse splits frame text into command, headers and body.
//
// It returns ErrMalformedHeader for a header line without a colon. The
// partially parsed frame is still returned so callers can read the command
// and any receipt header that preceded the bad line.
func Parse(text string) (Frame, error) {
	var f Frame

	head, rest, more := strings.Cut(text, "\n")
	f.Command = strings.TrimSuffix(head, "\r")

	for more {
		var line string
		line, rest, more = strings.Cut(rest, "\n")
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			if more {
				f.Body = rest
			}
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return f, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		if _, dup := f.Get(name); !dup {
			f.Add(name, value)
		}
	}

	return f, nil
}

// Connected builds the reply to a successful CONNECT.
func Connected() Frame {
	return Frame{
		Command: CmdConnected,
		Headers: []Header{{Name: HdrVersion, Value: ProtocolVersion}},
	}
}

// Receipt builds a RECEIPT for the given receipt id.
func Receipt(receiptID string) Frame {
	return Frame{
		Command: CmdReceipt,
		Headers: []Header{{Name: HdrReceiptID, Value: receiptID}},
	}
}

// Error builds an ERROR frame. When hasReceipt is true the frame echoes
// receiptID in a receipt-id header ahead of the message header.
func Error(message, receiptID string, hasReceipt bool) Frame {
	f := Frame{Command: CmdError}
	if hasReceipt {
		f.Add(HdrReceiptID, receiptID)
	}
	f.Add(HdrMessage, message)
	return f
}

// Message builds a MESSAGE delivered to one subscription.
func Message(subscriptionID, messageID, destination, body string) Frame {
	return Frame{
		Command: CmdMessage,
		Headers: []Header{
			{Name: HdrSubscription, Value: subscriptionID},
			{Name: HdrMessageID, Value: messageID},
			{Name: HdrDestination, Value: destination},
		},
		Body: body,
	}
}
