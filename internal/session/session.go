// Package session implements the shopper's authentication session store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/model"
	"github.com/vyrodovalexey/storefront-state/internal/remote"
	"github.com/vyrodovalexey/storefront-state/internal/store"
	"github.com/vyrodovalexey/storefront-state/internal/validation"
)

// Fallback messages used when the remote API gives no reason.
const (
	MsgLoginFailed        = "login failed"
	MsgRegistrationFailed = "registration failed"
)

// Anti-abuse actions passed to a TokenSource.
const (
	ActionLogin    = "login"
	ActionRegister = "register"
)

// Authenticator performs remote login and registration.
type Authenticator interface {
	Login(ctx context.Context, req remote.LoginRequest) (*model.AuthResponse, error)
	Register(ctx context.Context, req remote.RegisterRequest) (*model.AuthResponse, error)
}

// TokenSource produces an anti-abuse token for an action.
type TokenSource func(ctx context.Context, action string) (string, error)

// ErrNoAntiAbuseToken is returned by ContextTokenSource when the context
// carries no token.
var ErrNoAntiAbuseToken = errors.New("no anti-abuse token")

type antiAbuseKey struct{}

// ContextWithAntiAbuseToken attaches a token for ContextTokenSource. An
// empty token leaves ctx unchanged.
func ContextWithAntiAbuseToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, antiAbuseKey{}, token)
}

// ContextTokenSource is a TokenSource returning the token attached to ctx.
func ContextTokenSource(ctx context.Context, _ string) (string, error) {
	token, ok := ctx.Value(antiAbuseKey{}).(string)
	if !ok || token == "" {
		return "", ErrNoAntiAbuseToken
	}
	return token, nil
}

// ValidationError lists every field that failed local validation.
type ValidationError struct {
	Fields []validation.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed: " + validation.Join(e.Fields)
}

// Credentials are the login form fields.
type Credentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Profile is the registration form.
type Profile struct {
	Name           string `json:"name" validate:"required,min=2"`
	Email          string `json:"email" validate:"required,contains=@"`
	Password       string `json:"password" validate:"required,min=6"`
	Phone          string `json:"phone,omitempty"`
	AntiAbuseToken string `json:"recaptchaToken,omitempty"`
}

// View is the token-free form of the session for API responses and events.
type View struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user"`
	LastError     string      `json:"lastError,omitempty"`
}

// Option configures a Store.
type Option func(*Store)

// WithTokenSource sets the anti-abuse token capability.
func WithTokenSource(src TokenSource) Option {
	return func(s *Store) {
		s.tokens = src
	}
}

// WithListener registers a callback invoked after every session change.
func WithListener(fn func(View)) Option {
	return func(s *Store) {
		s.listener = fn
	}
}

// Store owns one shopper's session. User and token are always set and
// cleared together.
type Store struct {
	opMu sync.Mutex

	mu      sync.RWMutex
	user    *model.User
	token   string
	lastErr string

	slot     *store.Slot[model.SessionSnapshot]
	auth     Authenticator
	tokens   TokenSource
	listener func(View)
	logger   *zap.Logger
}

// New creates an anonymous session store persisting under key.
func New(snapshots store.Store, key string, auth Authenticator, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		slot:   store.NewSlot[model.SessionSnapshot](snapshots, key),
		auth:   auth,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates with email and password. When antiAbuseToken is empty
// the configured TokenSource is asked for one.
func (s *Store) Login(ctx context.Context, email, password, antiAbuseToken string) error {
	creds := Credentials{Email: strings.TrimSpace(email), Password: password}
	if fields := validation.Struct(creds); fields != nil {
		return s.fail(&ValidationError{Fields: fields}, MsgLoginFailed)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	resp, err := s.auth.Login(ctx, remote.LoginRequest{
		Email:          creds.Email,
		Password:       creds.Password,
		RecaptchaToken: s.antiAbuseToken(ctx, ActionLogin, antiAbuseToken),
	})
	if err != nil {
		return s.fail(err, MsgLoginFailed)
	}
	if err := s.authenticate(ctx, resp); err != nil {
		return s.fail(err, MsgLoginFailed)
	}
	s.logger.Info("shopper logged in", zap.String("user_id", resp.User.ID))
	return nil
}

// Register validates the profile locally, then creates the account
// remotely. Invalid profiles fail with *ValidationError and no remote call.
func (s *Store) Register(ctx context.Context, profile Profile) error {
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Email = strings.TrimSpace(profile.Email)
	profile.Phone = strings.TrimSpace(profile.Phone)
	if fields := validation.Struct(profile); fields != nil {
		return s.fail(&ValidationError{Fields: fields}, MsgRegistrationFailed)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	resp, err := s.auth.Register(ctx, remote.RegisterRequest{
		Name:           profile.Name,
		Email:          profile.Email,
		Password:       profile.Password,
		Phone:          profile.Phone,
		RecaptchaToken: s.antiAbuseToken(ctx, ActionRegister, profile.AntiAbuseToken),
	})
	if err != nil {
		return s.fail(err, MsgRegistrationFailed)
	}
	if err := s.authenticate(ctx, resp); err != nil {
		return s.fail(err, MsgRegistrationFailed)
	}
	s.logger.Info("shopper registered", zap.String("user_id", resp.User.ID))
	return nil
}

// Logout deletes the session snapshot and then clears the session. When the
// snapshot cannot be deleted the session stays signed in.
func (s *Store) Logout(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.slot.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.set(nil, "", "")
	s.notify()
	return nil
}

// Restore adopts a complete persisted session. Incomplete or corrupt
// snapshots are deleted and the session stays anonymous.
func (s *Store) Restore(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	saved, found := s.slot.LoadOrReset(ctx, s.logger)
	if found && saved.Complete() {
		s.set(saved.User, saved.Token, "")
		return
	}

	s.set(nil, "", "")
	if found {
		s.logger.Warn("discarding incomplete session snapshot", zap.String("key", s.slot.Key()))
		if err := s.slot.Clear(ctx); err != nil {
			s.logger.Warn("deleting incomplete session snapshot", zap.Error(err))
		}
	}
}

// Resync converges on the persisted session after another context changed
// it. It never writes the snapshot.
func (s *Store) Resync(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	saved, found, err := s.slot.Load(ctx)
	if err != nil && !errors.Is(err, store.ErrCorruptSnapshot) {
		s.logger.Warn("resyncing session", zap.String("key", s.slot.Key()), zap.Error(err))
		return
	}

	var user *model.User
	var token string
	if err == nil && found && saved.Complete() {
		user, token = saved.User, saved.Token
	}

	s.mu.RLock()
	unchanged := s.token == token && sameUser(s.user, user)
	s.mu.RUnlock()
	if unchanged {
		return
	}

	s.mu.Lock()
	s.user, s.token = user, token
	s.mu.Unlock()
	s.logger.Debug("session resynced", zap.Bool("authenticated", user != nil))
	s.notify()
}

// IsAuthenticated reports whether both user and token are present.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.user != nil && s.token != ""
}

// User returns a copy of the signed-in user, or nil.
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Token returns the bearer token, empty when anonymous.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// LastError returns the message of the last failed login or registration.
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastErr
}

// ClearError resets LastError.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}

// View returns the token-free session view.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		Authenticated: s.user != nil && s.token != "",
		LastError:     s.lastErr,
	}
	if s.user != nil {
		u := *s.user
		v.User = &u
	}
	return v
}

// authenticate persists the new session and then adopts it.
func (s *Store) authenticate(ctx context.Context, resp *model.AuthResponse) error {
	user := *resp.User
	snapshot := model.SessionSnapshot{User: &user, Token: resp.Token}
	if err := s.slot.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	s.set(&user, resp.Token, "")
	s.notify()
	return nil
}

// fail records the failure message and returns err. The session itself is
// left untouched.
func (s *Store) fail(err error, fallback string) error {
	msg := fallback
	var remoteErr *remote.RemoteError
	var validationErr *ValidationError
	switch {
	case errors.As(err, &remoteErr) && remoteErr.Message != "":
		msg = remoteErr.Message
	case errors.As(err, &validationErr):
		msg = validation.Join(validationErr.Fields)
	}

	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()

	s.logger.Debug("authentication failed", zap.String("reason", msg), zap.Error(err))
	s.notify()
	return err
}

func (s *Store) antiAbuseToken(ctx context.Context, action, supplied string) string {
	if supplied != "" || s.tokens == nil {
		return supplied
	}

	token, err := s.tokens(ctx, action)
	if err != nil {
		s.logger.Warn("anti-abuse token unavailable, continuing without it",
			zap.String("action", action),
			zap.Error(err),
		)
		return ""
	}
	return token
}

func (s *Store) set(user *model.User, token, lastErr string) {
	s.mu.Lock()
	s.user, s.token, s.lastErr = user, token, lastErr
	s.mu.Unlock()
}

func (s *Store) notify() {
	if s.listener != nil {
		s.listener(s.View())
	}
}

func sameUser(a, b *model.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
