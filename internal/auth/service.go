package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNoSession          = errors.New("no active session")
	ErrInvalidProfile     = errors.New("invalid profile update")
	ErrWeakPassword       = errors.New("weak password")
)

const (
	bootstrapUserID   = "bootstrap-admin"
	minPasswordLength = 6
)

// Service owns the account lifecycle and the persisted session. Every call
// re-reads its collections; nothing is cached between calls.
type Service struct {
	users    UserStore
	sessions SessionStore
	pepper   string
	cost     int
	boot     BootstrapAccount
	log      *slog.Logger
	nowFunc  func() time.Time
	newID    func() string

	mu sync.Mutex
}

// BootstrapAccount is provisioned as an admin the first time someone logs in
// with its email while no accounts exist.
type BootstrapAccount struct {
	Name     string
	Email    string
	Password string
}

type ServiceConfig struct {
	PasswordPepper string
	BcryptCost     int
	Bootstrap      BootstrapAccount
	Sessions       SessionStore
	Logger         *slog.Logger
}

func NewService(userStore UserStore, cfg ServiceConfig) (*Service, error) {
	if userStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.PasswordPepper == "" {
		return nil, fmt.Errorf("password pepper is required")
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		users:    userStore,
		sessions: cfg.Sessions,
		pepper:   cfg.PasswordPepper,
		cost:     cost,
		boot:     cfg.Bootstrap,
		log:      logger,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(s.pepper+":"+password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (s *Service) VerifyPassword(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(s.pepper+":"+password)) == nil
}

func (s *Service) Login(email, password string) (AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.users.GetByEmail(email)
	if errors.Is(err, ErrUserNotFound) {
		acct, err = s.bootstrapLocked(email, password)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	// Records without a stored password are accepted as-is.
	if acct.Password != "" && !s.VerifyPassword(password, acct.Password) {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.startSessionLocked(acct.Public())
}

// bootstrapLocked creates the bootstrap admin when the user collection is
// empty and email is the bootstrap address. Otherwise it returns
// ErrUserNotFound. A wrong password is rejected before anything is stored.
func (s *Service) bootstrapLocked(email, password string) (Account, error) {
	if s.boot.Email == "" || email != s.boot.Email {
		return Account{}, ErrUserNotFound
	}
	existing, err := s.users.List()
	if err != nil {
		return Account{}, fmt.Errorf("list users: %w", err)
	}
	if len(existing) > 0 {
		return Account{}, ErrUserNotFound
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.boot.Password)) != 1 {
		return Account{}, ErrInvalidCredentials
	}

	hash, err := s.HashPassword(s.boot.Password)
	if err != nil {
		return Account{}, err
	}
	acct := Account{
		User: User{
			ID:        bootstrapUserID,
			Name:      s.boot.Name,
			Email:     s.boot.Email,
			Role:      RoleAdmin,
			CreatedAt: s.nowFunc().UTC(),
		},
		Password: hash,
	}
	if err := s.users.Put(acct); err != nil {
		return Account{}, fmt.Errorf("create bootstrap user: %w", err)
	}
	s.log.Info("bootstrap user created", "email", acct.Email)
	return acct, nil
}

func (s *Service) Register(name, email, password string) (AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.users.GetByEmail(email)
	if err == nil {
		return AuthResult{}, ErrDuplicateAccount
	}
	if !errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, err
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return AuthResult{}, err
	}
	acct := Account{
		User: User{
			ID:        s.newID(),
			Name:      name,
			Email:     email,
			Role:      RoleUser,
			CreatedAt: s.nowFunc().UTC(),
		},
		Password: hash,
	}
	if err := s.users.Put(acct); err != nil {
		return AuthResult{}, fmt.Errorf("store user: %w", err)
	}
	return s.startSessionLocked(acct.Public())
}

func (s *Service) startSessionLocked(u User) (AuthResult, error) {
	token, err := generateToken(32)
	if err != nil {
		return AuthResult{}, fmt.Errorf("generate token: %w", err)
	}
	if err := s.sessions.Save(Session{Token: token, User: u}); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: u, Token: token}, nil
}

// Logout clears the session. Calling it without a session is not an error.
func (s *Service) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sessions.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// CurrentUser reads the session snapshot only. It can be stale with respect
// to edits made through another session.
func (s *Service) CurrentUser() (User, bool, error) {
	sess, err := s.sessions.Load()
	if err != nil {
		return User{}, false, err
	}
	if sess.User.ID == "" {
		return User{}, false, nil
	}
	return sess.User, true, nil
}

func (s *Service) IsAuthenticated() (bool, error) {
	sess, err := s.sessions.Load()
	if err != nil {
		return false, err
	}
	return sess.Token != "", nil
}

func (s *Service) CurrentSession() (Session, error) {
	sess, err := s.sessions.Load()
	if err != nil {
		return Session{}, err
	}
	if sess.Token == "" || sess.User.ID == "" {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

func (s *Service) ValidateToken(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrInvalidToken
	}
	sess, err := s.CurrentSession()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, err
	}
	if subtle.ConstantTimeCompare([]byte(sess.Token), []byte(token)) != 1 {
		return Session{}, ErrInvalidToken
	}
	return sess, nil
}

func (s *Service) UpdateProfile(userID string, upd ProfileUpdate) (User, error) {
	if err := validateProfileUpdate(upd); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.users.GetByID(userID)
	if err != nil {
		return User{}, err
	}

	if upd.Email != nil && *upd.Email != acct.Email {
		other, err := s.users.GetByEmail(*upd.Email)
		switch {
		case err == nil && other.ID != acct.ID:
			return User{}, ErrDuplicateAccount
		case err != nil && !errors.Is(err, ErrUserNotFound):
			return User{}, err
		}
		acct.Email = *upd.Email
	}
	if upd.Name != nil {
		acct.Name = *upd.Name
	}
	if upd.Password != nil {
		hash, err := s.HashPassword(*upd.Password)
		if err != nil {
			return User{}, err
		}
		acct.Password = hash
	}

	if err := s.users.Put(acct); err != nil {
		return User{}, fmt.Errorf("store user: %w", err)
	}

	updated := acct.Public()
	sess, err := s.sessions.Load()
	if err != nil {
		return User{}, err
	}
	if sess.User.ID == userID {
		if err := s.sessions.SaveUser(updated); err != nil {
			return User{}, err
		}
	}
	return updated, nil
}

func validateProfileUpdate(upd ProfileUpdate) error {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidProfile)
	}
	if upd.Email != nil && strings.TrimSpace(*upd.Email) == "" {
		return fmt.Errorf("%w: email must not be empty", ErrInvalidProfile)
	}
	if upd.Password != nil && *upd.Password == "" {
		return fmt.Errorf("%w: password must not be empty", ErrInvalidProfile)
	}
	return nil
}

// ValidatePassword applies the profile form rule for a new password.
func ValidatePassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrWeakPassword, minPasswordLength)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", ErrWeakPassword)
	}
	return nil
}

func generateToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token length too short")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
