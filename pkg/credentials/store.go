package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/getmockd/stompd/pkg/logging"
	"github.com/getmockd/stompd/pkg/registry"
)

// Session is one login of a user.
type Session struct {
	Conn     registry.ConnID
	LoginAt  time.Time
	LogoutAt time.Time // zero while the session is open
}

// Upload is one publish that carried provenance lines.
type Upload struct {
	User        string
	Source      string
	Destination string
	At          time.Time
}

// Account is a user provisioned at startup. PasswordHash wins over Password
// when both are set.
type Account struct {
	Username     string
	Password     string
	PasswordHash string
}

// Option configures a Store.
type Option func(*Store)

// WithRegistration controls whether unknown users are created on first
// login. Enabled by default.
func WithRegistration(allow bool) Option {
	return func(s *Store) { s.allowRegistration = allow }
}

// WithBcryptCost sets the cost used to hash new passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the broker's credential authority. It is safe for concurrent use.
type Store struct {
	repo              UserRepository
	allowRegistration bool
	cost              int
	log               *slog.Logger
	now               func() time.Time

	mu      sync.Mutex
	byConn  map[registry.ConnID]string
	online  map[string]registry.ConnID
	history map[string][]Session
	uploads []Upload
}

// New creates a Store backed by repo. A nil repo selects a MemoryRepository.
func New(repo UserRepository, opts ...Option) *Store {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	s := &Store{
		repo:              repo,
		allowRegistration: true,
		cost:              bcrypt.DefaultCost,
		log:               logging.Nop(),
		now:               time.Now,
		byConn:            make(map[registry.ConnID]string),
		online:            make(map[string]registry.ConnID),
		history:           make(map[string][]Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed provisions accounts. Usernames that already exist keep their stored
// password.
func (s *Store) Seed(ctx context.Context, accounts []Account) error {
	var errs []error
	for _, a := range accounts {
		if a.Username == "" || (a.Password == "" && a.PasswordHash == "") {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidAccount, a.Username))
			continue
		}

		hash := a.PasswordHash
		if hash == "" {
			h, err := bcrypt.GenerateFromPassword([]byte(a.Password), s.cost)
			if err != nil {
				errs = append(errs, fmt.Errorf("hash password for %q: %w", a.Username, err))
				continue
			}
			hash = string(h)
		}

		err := s.repo.Create(ctx, User{Username: a.Username, PasswordHash: hash})
		switch {
		case errors.Is(err, ErrUserExists):
			s.log.Debug("seed user already exists", "user", a.Username)
		case err != nil:
			errs = append(errs, err)
		default:
			s.log.Info("seed user created", "user", a.Username)
		}
	}
	return errors.Join(errs...)
}

// Login authenticates username on connection conn. The error is non-nil only
// when the repository fails; the status is then meaningless.
func (s *Store) Login(ctx context.Context, conn registry.ConnID, username, password string) (LoginStatus, error) {
	s.mu.Lock()
	_, associated := s.byConn[conn]
	s.mu.Unlock()
	if associated {
		return ConnectionAlreadyAssociated, nil
	}

	user, err := s.repo.Get(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		if !s.allowRegistration {
			s.log.Info("login rejected, unknown user", "user", username, "conn_id", conn)
			return WrongPassword, nil
		}
		var created bool
		created, err = s.register(ctx, username, password)
		if err != nil {
			return 0, err
		}
		if created {
			return s.claim(conn, username, NewUserCreated), nil
		}
		// Lost a registration race; authenticate against the winner.
		user, err = s.repo.Get(ctx, username)
	}
	if err != nil {
		return 0, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.log.Info("login rejected, wrong password", "user", username, "conn_id", conn)
		return WrongPassword, nil
	}
	return s.claim(conn, username, LoggedInOK), nil
}

func (s *Store) register(ctx context.Context, username, password string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return false, fmt.Errorf("hash password for %q: %w", username, err)
	}
	err = s.repo.Create(ctx, User{Username: username, PasswordHash: string(hash)})
	if errors.Is(err, ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.log.Info("user registered", "user", username)
	return true, nil
}

func (s *Store) claim(conn registry.ConnID, username string, ok LoginStatus) LoginStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, associated := s.byConn[conn]; associated {
		return ConnectionAlreadyAssociated
	}
	if _, active := s.online[username]; active {
		return AlreadyLoggedInElsewhere
	}

	s.byConn[conn] = username
	s.online[username] = conn
	s.history[username] = append(s.history[username], Session{Conn: conn, LoginAt: s.now()})
	s.log.Info("user logged in", "user", username, "conn_id", conn, "status", ok.String())
	return ok
}

// Logout releases the login held by conn. Unknown connections are ignored.
func (s *Store) Logout(conn registry.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.byConn[conn]
	if !ok {
		return
	}
	delete(s.byConn, conn)
	delete(s.online, username)

	sessions := s.history[username]
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].Conn == conn && sessions[i].LogoutAt.IsZero() {
			sessions[i].LogoutAt = s.now()
			break
		}
	}
	s.log.Info("user logged out", "user", username, "conn_id", conn)
}

// Online reports whether username is logged in on some connection.
func (s *Store) Online(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[username]
	return ok
}

// TrackFileUpload records that username published source to destination.
func (s *Store) TrackFileUpload(username, source, destination string) {
	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		User:        username,
		Source:      source,
		Destination: destination,
		At:          s.now(),
	})
	s.mu.Unlock()
	s.log.Debug("file upload tracked", "user", username, "source", source, "destination", destination)
}
