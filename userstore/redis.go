package userstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "user"

const (
	fieldID              = "id"
	fieldEmail           = "email"
	fieldFirstName       = "first_name"
	fieldLastName        = "last_name"
	fieldUniversity      = "university"
	fieldPasswordHash    = "password_hash"
	fieldVerified        = "is_verified"
	fieldStudentVerified = "is_student_verified"
	fieldActive          = "is_active"
	fieldOTPCode         = "otp_code"
	fieldOTPExpiresAt    = "otp_expires_at"
	fieldCreatedAt       = "created_at"
	fieldUpdatedAt       = "updated_at"
)

// KEYS[1] user key; ARGV field/value pairs. Returns 0 when the key exists.
var createUserLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// KEYS[1] user key
// ARGV[1] "1" when the update is conditional on the stored otp_code
// ARGV[2] expected otp_code
// ARGV[3..] field/value pairs
//
// Returns -1 when the user does not exist, -2 when the code does not match,
// otherwise the HGETALL reply after the write.
var updateUserLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if ARGV[1] == '1' then
  local current = redis.call('HGET', KEYS[1], 'otp_code')
  if (not current) or current == '' or current ~= ARGV[2] then
    return -2
  end
end
if #ARGV > 2 then
  redis.call('HSET', KEYS[1], unpack(ARGV, 3))
end
return redis.call('HGETALL', KEYS[1])
`)

// Redis stores each user as a hash. Accounts never expire.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Redis) key(email string) string {
	return s.prefix + ":" + email
}

func (s *Redis) FindByEmail(ctx context.Context, email string) (authgate.User, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		return authgate.User{}, fmt.Errorf("%w: %v", authgate.ErrUserStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return authgate.User{}, authgate.ErrUserNotFound
	}
	return decodeUser(fields)
}

func (s *Redis) Create(ctx context.Context, user authgate.User) (authgate.User, error) {
	now := s.now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	created, err := createUserLua.Run(ctx, s.redis, []string{s.key(user.Email)}, encodeUser(user)...).Int()
	if err != nil {
		return authgate.User{}, fmt.Errorf("%w: %v", authgate.ErrUserStoreUnavailable, err)
	}
	if created == 0 {
		return authgate.User{}, authgate.ErrUserExists
	}
	return user, nil
}

func (s *Redis) Update(ctx context.Context, email string, update authgate.UserUpdate) (authgate.User, error) {
	args := []interface{}{"0", ""}
	if update.ExpectedOTP != nil {
		args = []interface{}{"1", *update.ExpectedOTP}
	}
	if update.PasswordHash != nil {
		args = append(args, fieldPasswordHash, *update.PasswordHash)
	}
	if update.Verified != nil {
		args = append(args, fieldVerified, formatBool(*update.Verified))
	}
	if update.OTPCode != nil {
		args = append(args, fieldOTPCode, *update.OTPCode)
	}
	if update.OTPExpiresAt != nil {
		args = append(args, fieldOTPExpiresAt, formatTime(*update.OTPExpiresAt))
	}
	args = append(args, fieldUpdatedAt, formatTime(s.now().UTC()))

	reply, err := updateUserLua.Run(ctx, s.redis, []string{s.key(email)}, args...).Result()
	if err != nil {
		return authgate.User{}, fmt.Errorf("%w: %v", authgate.ErrUserStoreUnavailable, err)
	}

	switch v := reply.(type) {
	case int64:
		if v == -1 {
			return authgate.User{}, authgate.ErrUserNotFound
		}
		return authgate.User{}, authgate.ErrInvalidOTP
	case []interface{}:
		fields, err := pairsToMap(v)
		if err != nil {
			return authgate.User{}, err
		}
		return decodeUser(fields)
	default:
		return authgate.User{}, fmt.Errorf("%w: unexpected update reply %T", authgate.ErrUserStoreUnavailable, reply)
	}
}

// SetActive toggles the active flag of an existing account.
func (s *Redis) SetActive(ctx context.Context, email string, active bool) error {
	n, err := s.redis.Exists(ctx, s.key(email)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", authgate.ErrUserStoreUnavailable, err)
	}
	if n == 0 {
		return authgate.ErrUserNotFound
	}
	if err := s.redis.HSet(ctx, s.key(email), fieldActive, formatBool(active)).Err(); err != nil {
		return fmt.Errorf("%w: %v", authgate.ErrUserStoreUnavailable, err)
	}
	return nil
}

func encodeUser(u authgate.User) []interface{} {
	return []interface{}{
		fieldID, u.ID,
		fieldEmail, u.Email,
		fieldFirstName, u.FirstName,
		fieldLastName, u.LastName,
		fieldUniversity, u.University,
		fieldPasswordHash, u.PasswordHash,
		fieldVerified, formatBool(u.Verified),
		fieldStudentVerified, formatBool(u.StudentVerified),
		fieldActive, formatBool(u.Active),
		fieldOTPCode, u.OTPCode,
		fieldOTPExpiresAt, formatTime(u.OTPExpiresAt),
		fieldCreatedAt, formatTime(u.CreatedAt),
		fieldUpdatedAt, formatTime(u.UpdatedAt),
	}
}

func decodeUser(f map[string]string) (authgate.User, error) {
	u := authgate.User{
		ID:              f[fieldID],
		Email:           f[fieldEmail],
		FirstName:       f[fieldFirstName],
		LastName:        f[fieldLastName],
		University:      f[fieldUniversity],
		PasswordHash:    f[fieldPasswordHash],
		Verified:        f[fieldVerified] == "1",
		StudentVerified: f[fieldStudentVerified] == "1",
		Active:          f[fieldActive] == "1",
		OTPCode:         f[fieldOTPCode],
	}

	var err error
	if u.OTPExpiresAt, err = parseTime(f[fieldOTPExpiresAt]); err != nil {
		return authgate.User{}, err
	}
	if u.CreatedAt, err = parseTime(f[fieldCreatedAt]); err != nil {
		return authgate.User{}, err
	}
	if u.UpdatedAt, err = parseTime(f[fieldUpdatedAt]); err != nil {
		return authgate.User{}, err
	}
	return u, nil
}

func pairsToMap(reply []interface{}) (map[string]string, error) {
	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("%w: odd hash reply length %d", authgate.ErrUserStoreUnavailable, len(reply))
	}
	out := make(map[string]string, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		k, ok1 := reply[i].(string)
		v, ok2 := reply[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: non-string hash reply", authgate.ErrUserStoreUnavailable)
		}
		out[k] = v
	}
	return out, nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Times are stored as unix microseconds; the zero time is stored as "".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", authgate.ErrUserStoreUnavailable, s)
	}
	return time.UnixMicro(n).UTC(), nil
}
