package userstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/google/uuid"
)

// Memory is an in-process UserStore. The zero value is not usable; call
// NewMemory.
type Memory struct {
	mu    sync.Mutex
	users map[string]authgate.User
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users: make(map[string]authgate.User),
		now:   time.Now,
	}
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (authgate.User, error) {
	if err := ctx.Err(); err != nil {
		return authgate.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return authgate.User{}, authgate.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) Create(ctx context.Context, user authgate.User) (authgate.User, error) {
	if err := ctx.Err(); err != nil {
		return authgate.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Email]; ok {
		return authgate.User{}, authgate.ErrUserExists
	}
	now := m.now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.Email] = user
	return user, nil
}

func (m *Memory) Update(ctx context.Context, email string, update authgate.UserUpdate) (authgate.User, error) {
	if err := ctx.Err(); err != nil {
		return authgate.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return authgate.User{}, authgate.ErrUserNotFound
	}
	if update.ExpectedOTP != nil && (u.OTPCode == "" || u.OTPCode != *update.ExpectedOTP) {
		return authgate.User{}, authgate.ErrInvalidOTP
	}
	applyUpdate(&u, update, m.now().UTC())
	m.users[email] = u
	return u, nil
}

// SetActive toggles the active flag. It exists for administration and tests.
func (m *Memory) SetActive(ctx context.Context, email string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[email]
	if !ok {
		return authgate.ErrUserNotFound
	}
	u.Active = active
	m.users[email] = u
	return nil
}

func applyUpdate(u *authgate.User, update authgate.UserUpdate, now time.Time) {
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Verified != nil {
		u.Verified = *update.Verified
	}
	if update.OTPCode != nil {
		u.OTPCode = *update.OTPCode
	}
	if update.OTPExpiresAt != nil {
		u.OTPExpiresAt = *update.OTPExpiresAt
	}
	u.UpdatedAt = now
}
