package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mindwell/apiserver/internal/apperror"
	"github.com/mindwell/apiserver/internal/store"
	"github.com/mindwell/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

// SessionRepository defines persistence operations for login sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.AuthSession) (types.AuthSession, error)
	GetByToken(ctx context.Context, token string) (types.AuthSession, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RegisterInput holds the fields of a registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput holds the fields of a login request.
type LoginInput struct {
	Email      string
	Password   string
	DeviceInfo string
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	User      types.Identity
	Token     string
	ExpiresAt time.Time
}

// AuthService handles registration, login and bearer token verification.
//
// Logout removes the persisted session record only. Tokens are verified by
// signature and expiry, so a token stays usable until it expires even after
// logout.
type AuthService struct {
	users    UserRepository
	sessions SessionRepository
	secret   []byte
	tokenTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(users UserRepository, sessions SessionRepository, jwtSecret string, tokenTTL time.Duration, logger *slog.Logger) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a new account with a bcrypt hashed password.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return types.User{}, apperror.BadRequest("Name, email, and password are required.")
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, apperror.Conflict("Email already in use.")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, apperror.Conflict("Email already in use.")
		}
		return types.User{}, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials, issues a signed token and records a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return LoginResult{}, apperror.BadRequest("Email and password are required.")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, apperror.Unauthorized("Invalid email or password.")
		}
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return LoginResult{}, apperror.Unauthorized("Invalid email or password.")
	}

	now := s.now()
	token, err := issueToken(user.ID, s.secret, now, s.tokenTTL)
	if err != nil {
		return LoginResult{}, err
	}

	expiresAt := now.Add(s.tokenTTL)
	if _, err := s.sessions.Create(ctx, types.AuthSession{
		UserID:     user.ID,
		Token:      token,
		ExpiresAt:  expiresAt,
		DeviceInfo: in.DeviceInfo,
		LastActive: now,
	}); err != nil {
		return LoginResult{}, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return LoginResult{User: user.Identity(), Token: token, ExpiresAt: expiresAt}, nil
}

// Logout deletes the session record for token. It succeeds when no live
// record exists; expired records are removed as well.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := s.sessions.DeleteByToken(ctx, token); err != nil {
		return err
	}
	if session.UserID != "" {
		s.logger.Info("user logged out", "user_id", session.UserID, "session_id", session.ID)
	} else {
		s.logger.Debug("logout without a live session")
	}
	return nil
}

// Authenticate verifies token and resolves the user it was issued to.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.Identity, error) {
	subject, err := parseTokenSubject(token, s.secret)
	if err != nil {
		return types.Identity{}, apperror.Unauthorized("Invalid or expired token")
	}

	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, apperror.Unauthorized("User not found")
		}
		return types.Identity{}, err
	}
	return user.Identity(), nil
}

// SweepExpiredSessions removes session records whose expiry has passed.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("expired sessions removed", "count", removed)
	}
	return removed, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
