package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/stompd/pkg/credentials"
	"github.com/getmockd/stompd/pkg/logging"
	"github.com/getmockd/stompd/pkg/metrics"
	"github.com/getmockd/stompd/pkg/registry"
	"github.com/getmockd/stompd/pkg/stomp"
)

// Router is the slice of the connection registry an Engine needs.
type Router interface {
	Send(id registry.ConnID, frame string) bool
	Subscribe(id registry.ConnID, channel, subID string) error
	Unsubscribe(id registry.ConnID, subID string) (string, bool)
	Disconnect(id registry.ConnID)
	Subscribers(channel string) ([]registry.Subscriber, bool)
	IsSubscribed(id registry.ConnID, channel string) bool
}

// CredentialStore authenticates connections and records publish provenance.
// *credentials.Store satisfies it.
type CredentialStore interface {
	Login(ctx context.Context, conn registry.ConnID, username, password string) (credentials.LoginStatus, error)
	Logout(conn registry.ConnID)
	TrackFileUpload(username, source, destination string)
}

// Body lines that mark a SEND as a file upload.
const (
	telemetryUser   = "user: "
	telemetrySource = "source: "
)

// ERROR frame reasons, used as metric labels.
const (
	reasonMalformed      = "malformed"
	reasonAuth           = "auth"
	reasonState          = "state"
	reasonMissingHeader  = "missing_header"
	reasonUnknownCommand = "unknown_command"
	reasonInternal       = "internal"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the session logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// Engine is the protocol state machine of one connection. It is not safe
// for concurrent use; the handler feeds it one frame at a time.
type Engine struct {
	creds CredentialStore
	ids   *MessageIDs
	log   *slog.Logger

	ctx    context.Context
	id     registry.ConnID
	router Router

	started    bool
	user       string
	terminated bool
	closed     bool
}

// NewEngine creates an engine. ids must be shared by every engine of the
// server so message ids stay globally ordered.
func NewEngine(creds CredentialStore, ids *MessageIDs, opts ...Option) *Engine {
	e := &Engine{
		creds: creds,
		ids:   ids,
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start binds the engine to its connection. ctx scopes credential lookups
// for the life of the session.
func (e *Engine) Start(ctx context.Context, id registry.ConnID, router Router) error {
	switch {
	case e.started:
		return fmt.Errorf("%w: engine already started", ErrInvalidArgument)
	case router == nil:
		return fmt.Errorf("%w: nil router", ErrInvalidArgument)
	case e.creds == nil || e.ids == nil:
		return fmt.Errorf("%w: engine built without credential store or id counter", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx = ctx
	e.id = id
	e.router = router
	e.started = true
	return nil
}

// ShouldTerminate reports whether the session is over.
func (e *Engine) ShouldTerminate() bool {
	return e.terminated
}

// User returns the login name, or "" before a successful CONNECT.
func (e *Engine) User() string {
	return e.user
}

// Close releases the login held by the connection. It is safe to call more
// than once and before Start.
func (e *Engine) Close() {
	if e.closed || !e.started {
		return
	}
	e.closed = true
	e.creds.Logout(e.id)
}

// Process handles one frame. Protocol violations are answered on the wire
// and end the session; the returned error is reserved for caller mistakes.
func (e *Engine) Process(text string) error {
	if !e.started {
		return fmt.Errorf("%w: process before start", ErrInvalidArgument)
	}
	if e.terminated {
		return fmt.Errorf("%w: process after termination of connection %d", ErrInvalidArgument, e.id)
	}

	start := time.Now()
	f, err := stomp.Parse(text)
	label := commandLabel(f.Command)
	metrics.IncCounter(metrics.FramesReceived, label)
	defer func() {
		metrics.Observe(metrics.FrameDuration, time.Since(start).Seconds(), label)
	}()

	if err != nil {
		e.fail(f, "malformed frame", reasonMalformed)
		e.log.Debug("malformed frame", "error", err)
		return nil
	}

	switch f.Command {
	case stomp.CmdConnect:
		e.connect(f)
	case stomp.CmdSubscribe:
		e.subscribe(f)
	case stomp.CmdUnsubscribe:
		e.unsubscribe(f)
	case stomp.CmdSend:
		e.send(f)
	case stomp.CmdDisconnect:
		e.disconnect(f)
	default:
		e.fail(f, "unknown command "+strconv.Quote(f.Command), reasonUnknownCommand)
	}
	return nil
}

func (e *Engine) connect(f stomp.Frame) {
	if e.user != "" {
		e.fail(f, "already connected as "+e.user, reasonState)
		return
	}
	login, okLogin := f.Get(stomp.HdrLogin)
	passcode, okPass := f.Get(stomp.HdrPasscode)
	if !okLogin || !okPass {
		e.fail(f, "missing login or passcode header", reasonMissingHeader)
		return
	}

	status, err := e.creds.Login(e.ctx, e.id, login, passcode)
	if err != nil {
		e.log.Error("credential lookup failed", "user", login, "error", err)
		e.fail(f, "internal error", reasonInternal)
		return
	}
	metrics.IncCounter(metrics.Logins, status.String())

	if status.OK() {
		e.user = login
		e.log = e.log.With("user", login)
		e.log.Debug("connected", "status", status.String())
		e.reply(stomp.Connected())
		return
	}

	switch status {
	case credentials.WrongPassword:
		e.fail(f, "wrong password", reasonAuth)
	case credentials.AlreadyLoggedInElsewhere:
		e.fail(f, "user is logged in on another connection", reasonAuth)
	case credentials.ConnectionAlreadyAssociated:
		e.fail(f, "connection is already logged in", reasonAuth)
	default:
		e.log.Error("unexpected login status", "status", int(status))
		e.fail(f, "internal error", reasonInternal)
	}
}

func (e *Engine) subscribe(f stomp.Frame) {
	if !e.authenticated(f) {
		return
	}
	destination, ok := f.Get(stomp.HdrDestination)
	if !ok {
		e.fail(f, "missing destination header", reasonMissingHeader)
		return
	}
	subID, ok := f.Get(stomp.HdrID)
	if !ok {
		e.fail(f, "missing id header", reasonMissingHeader)
		return
	}

	if err := e.router.Subscribe(e.id, destination, subID); err != nil {
		e.log.Debug("subscribe rejected", "destination", destination, "error", err)
		e.fail(f, "cannot subscribe to "+strconv.Quote(destination), reasonState)
		return
	}
	e.log.Debug("subscribed", "destination", destination, "subscription", subID)
	e.receipt(f)
}

func (e *Engine) unsubscribe(f stomp.Frame) {
	if !e.authenticated(f) {
		return
	}
	subID, ok := f.Get(stomp.HdrID)
	if !ok {
		e.fail(f, "missing id header", reasonMissingHeader)
		return
	}

	channel, ok := e.router.Unsubscribe(e.id, subID)
	if !ok {
		e.fail(f, "no subscription with id "+strconv.Quote(subID), reasonState)
		return
	}
	e.log.Debug("unsubscribed", "destination", channel, "subscription", subID)
	e.receipt(f)
}

func (e *Engine) send(f stomp.Frame) {
	if !e.authenticated(f) {
		return
	}
	destination, ok := f.Get(stomp.HdrDestination)
	if !ok {
		e.fail(f, "missing destination header", reasonMissingHeader)
		return
	}
	if !e.router.IsSubscribed(e.id, destination) {
		e.fail(f, "not subscribed to "+strconv.Quote(destination), reasonState)
		return
	}

	subscribers, _ := e.router.Subscribers(destination)
	msgID := strconv.FormatInt(e.ids.Next(), 10)
	for _, s := range subscribers {
		frame := stomp.Message(s.SubID, msgID, destination, f.Body)
		if e.router.Send(s.Conn, frame.String()) {
			metrics.IncCounter(metrics.FramesSent, stomp.CmdMessage)
			metrics.IncCounter(metrics.MessagesDelivered)
		}
	}
	metrics.IncCounter(metrics.MessagesPublished)

	e.receipt(f)

	if user, source, ok := uploadOf(f.Body); ok {
		e.creds.TrackFileUpload(user, source, destination)
	}
}

func (e *Engine) disconnect(f stomp.Frame) {
	e.receipt(f)
	e.router.Disconnect(e.id)
	e.terminated = true
	e.Close()
	e.log.Debug("disconnected")
}

func (e *Engine) authenticated(f stomp.Frame) bool {
	if e.user == "" {
		e.fail(f, "not connected", reasonAuth)
		return false
	}
	return true
}

func (e *Engine) receipt(f stomp.Frame) {
	if id, ok := f.Get(stomp.HdrReceipt); ok {
		e.reply(stomp.Receipt(id))
	}
}

func (e *Engine) fail(f stomp.Frame, message, reason string) {
	receiptID, hasReceipt := f.Get(stomp.HdrReceipt)
	e.reply(stomp.Error(message, receiptID, hasReceipt))
	e.terminated = true
	metrics.IncCounter(metrics.ProtocolErrors, reason)
	e.log.Info("protocol error", "command", f.Command, "reason", reason, "message", message)
}

func (e *Engine) reply(f stomp.Frame) {
	if e.router.Send(e.id, f.String()) {
		metrics.IncCounter(metrics.FramesSent, f.Command)
	}
}

// uploadOf extracts the first "user: " and "source: " lines of a body.
func uploadOf(body string) (user, source string, ok bool) {
	var haveUser, haveSource bool
	for line := range strings.SplitSeq(body, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case !haveUser && strings.HasPrefix(line, telemetryUser):
			user, haveUser = line[len(telemetryUser):], true
		case !haveSource && strings.HasPrefix(line, telemetrySource):
			source, haveSource = line[len(telemetrySource):], true
		}
		if haveUser && haveSource {
			return user, source, true
		}
	}
	return "", "", false
}

// commandLabel keeps the metric label set bounded.
func commandLabel(cmd string) string {
	switch cmd {
	case stomp.CmdConnect, stomp.CmdSubscribe, stomp.CmdUnsubscribe, stomp.CmdSend, stomp.CmdDisconnect:
		return cmd
	default:
		return "OTHER"
	}
}
