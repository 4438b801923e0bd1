package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/techshop-api/internal/common"
)

const defaultAccessTTL = 24 * time.Hour

// Service handles registration, login and access token verification.
type Service struct {
	users     UserStore
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	issuer    string
	audience  string
	clockSkew time.Duration
	params    *argon2id.Params
}

// Config configures the auth service.
type Config struct {
	Users          UserStore
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
	// HashParams overrides the argon2id parameters; tests use cheaper ones.
	HashParams *argon2id.Params
}

// LoginResult is a user together with a fresh access token.
type LoginResult struct {
	User         User
	AccessToken  string
	AccessExpiry time.Time
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Users == nil {
		return nil, errors.New("auth: user store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "techshop-api"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "techshop-storefront"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}
	params := cfg.HashParams
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &Service{
		users:     cfg.Users,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
		params:    params,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a user and signs them in.
func (s *Service) Register(ctx context.Context, name, email, password string) (LoginResult, error) {
	name = strings.TrimSpace(name)
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if name == "" {
		return LoginResult{}, common.BadRequest("name is required", nil)
	}
	if normalizedEmail == "" || !strings.Contains(normalizedEmail, "@") {
		return LoginResult{}, common.BadRequest("a valid email is required", nil)
	}
	if len(password) < 8 {
		return LoginResult{}, common.BadRequest("password must be at least 8 characters", nil)
	}
	hash, err := argon2id.CreateHash(password, s.params)
	if err != nil {
		return LoginResult{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	created, err := s.users.CreateUser(ctx, User{
		Name:         name,
		Email:        normalizedEmail,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, ErrEmailTaken) {
		return LoginResult{}, common.NewAppError("EMAIL_ALREADY_USED", "User already exists", http.StatusConflict, err)
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("create user: %w", err)
	}
	return s.issue(created)
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	invalid := common.NewAppError("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized, ErrInvalidCredentials)
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" || password == "" {
		return LoginResult{}, invalid
	}
	u, err := s.users.UserByEmail(ctx, normalizedEmail)
	if errors.Is(err, ErrUserNotFound) {
		return LoginResult{}, invalid
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}
	ok, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalid
	}
	return s.issue(u)
}

// Profile returns the user behind an id.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	u, err := s.users.UserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, common.NotFound("User not found", err)
	}
	return u, err
}

func (s *Service) issue(u User) (LoginResult, error) {
	token, expiry, err := s.signAccessToken(u.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	return LoginResult{User: u, AccessToken: token, AccessExpiry: expiry}, nil
}

// ParseAccessToken verifies an HS256 access token against the configured
// issuer, audience and clock and returns its subject.
func (s *Service) ParseAccessToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errNoToken
	}
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithRequiredClaim(jwt.SubjectKey),
	}
	if s.clockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(s.clockSkew))
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	parsed, err := jwt.ParseString(token, opts...)
	if err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	if strings.TrimSpace(parsed.Subject()) == "" {
		return "", errors.New("auth: token missing subject")
	}
	return parsed.Subject(), nil
}

func (s *Service) signAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}
