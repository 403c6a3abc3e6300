package flows

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

var (
	errNotReady     = errors.New("not ready")
	errInvalid      = errors.New("invalid request")
	errPolicy       = errors.New("password policy")
	errExists       = errors.New("exists")
	errNotFound     = errors.New("not found")
	errInvalidOTP   = errors.New("invalid otp")
	errCreds        = errors.New("invalid credentials")
	errUnverified   = errors.New("unverified")
	errInactive     = errors.New("inactive")
	errLimited      = errors.New("rate limited")
	errStoreOffline = errors.New("store offline")
)

var flowNow = time.Unix(1_700_000_000, 0)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]UserRecord
	err   error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]UserRecord{}}
}

func (f *fakeUsers) find(_ context.Context, email string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return UserRecord{}, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return UserRecord{}, errNotFound
	}
	return u, nil
}

func (f *fakeUsers) create(_ context.Context, nu NewUser) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[nu.Email]; ok {
		return UserRecord{}, errExists
	}
	u := UserRecord{
		ID:           "id-" + nu.Email,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Active:       true,
		OTPCode:      nu.OTPCode,
		OTPExpiresAt: nu.OTPExpiresAt,
	}
	f.users[nu.Email] = u
	return u, nil
}

func (f *fakeUsers) update(_ context.Context, email string, c UserChange) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return UserRecord{}, errNotFound
	}
	if c.ExpectedOTP != nil && (u.OTPCode == "" || u.OTPCode != *c.ExpectedOTP) {
		return UserRecord{}, errInvalidOTP
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	if c.Verified != nil {
		u.Verified = *c.Verified
	}
	if c.OTPCode != nil {
		u.OTPCode = *c.OTPCode
	}
	if c.OTPExpiresAt != nil {
		u.OTPExpiresAt = *c.OTPExpiresAt
	}
	f.users[email] = u
	return u, nil
}

type sentMail struct {
	to, code string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) send(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, code: code})
	return m.err
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

type counters struct {
	mu     sync.Mutex
	values map[int]int
}

func (c *counters) inc(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = map[int]int{}
	}
	c.values[id]++
}

func (c *counters) get(id int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[id]
}

func fakeHash(p string) (string, error) { return "hash:" + p, nil }

func fakeVerify(p, encoded string) (bool, error) { return encoded == "hash:"+p, nil }

func checkMinLength(p string) error {
	if len(p) < 8 {
		return errors.New("too short")
	}
	return nil
}

func exactMatch(stored, submitted string, expiresAt, now time.Time) bool {
	return stored != "" && stored == submitted && !now.After(expiresAt)
}

func fixedCode(code string) func(int) (string, error) {
	return func(int) (string, error) { return code, nil }
}

func issueFake(subject string) (AccessToken, error) {
	return AccessToken{Token: "tok:" + subject, ExpiresAt: flowNow.Add(30 * time.Minute)}, nil
}

type harness struct {
	users    *fakeUsers
	mail     *fakeMailer
	metrics  *counters
	limited  bool
	rateHits []string
	mailErrs int
}

func newHarness() *harness {
	return &harness{users: newFakeUsers(), mail: &fakeMailer{}, metrics: &counters{}}
}

func (h *harness) base() Base {
	return Base{
		Now: func() time.Time { return flowNow },
		CheckRate: func(context.Context, string) error {
			if h.limited {
				return errLimited
			}
			return nil
		},
		MapStoreError: func(err error) error { return errStoreOffline },
		FindUser:      h.users.find,
		UpdateUser:    h.users.update,
		MetricInc:     h.metrics.inc,
		EmitRateLimit: func(_ context.Context, route, _ string) { h.rateHits = append(h.rateHits, route) },
		MailFailed:    func(context.Context, string, string, error) { h.mailErrs++ },
	}
}

func (h *harness) signupDeps(code string) SignupDeps {
	return SignupDeps{
		Base:                h.base(),
		Route:               "signup",
		CodeDigits:          6,
		CodeTTL:             5 * time.Minute,
		AllowedUniversities: []string{"Rivers State University (RSU)"},
		MaxNameLength:       64,
		CheckPassword:       checkMinLength,
		HashPassword:        fakeHash,
		CreateUser:          h.users.create,
		GenerateCode:        fixedCode(code),
		SendCode:            h.mail.send,
		Metrics:             SignupMetrics{SignupSuccess: 1, SignupDuplicate: 2, SignupFailure: 3},
		Events:              SignupEvents{SignupSuccess: "ok", SignupDuplicate: "dup", SignupFailure: "fail"},
		Errors: SignupErrors{
			EngineNotReady: errNotReady,
			InvalidRequest: errInvalid,
			PasswordPolicy: errPolicy,
			UserExists:     errExists,
			UserNotFound:   errNotFound,
		},
	}
}

func (h *harness) otpDeps(code string) OTPDeps {
	return OTPDeps{
		Base:         h.base(),
		Route:        "verify-otp",
		CodeDigits:   6,
		CodeTTL:      5 * time.Minute,
		CodeMatches:  exactMatch,
		GenerateCode: fixedCode(code),
		SendCode:     h.mail.send,
		IssueToken:   issueFake,
		Metrics:      OTPMetrics{OTPVerifySuccess: 10, OTPVerifyFailure: 11, OTPResent: 12, OTPResendNotNeeded: 13, OTPResendFailure: 14},
		Errors:       OTPErrors{EngineNotReady: errNotReady, InvalidOTP: errInvalidOTP, UserNotFound: errNotFound},
	}
}

func (h *harness) loginDeps() LoginDeps {
	return LoginDeps{
		Base:           h.base(),
		Route:          "login",
		VerifyPassword: fakeVerify,
		HashPassword:   fakeHash,
		IssueToken:     issueFake,
		Metrics:        LoginMetrics{LoginSuccess: 20, LoginFailure: 21, LoginUnverified: 22, PasswordRehash: 23},
		Errors: LoginErrors{
			EngineNotReady:     errNotReady,
			InvalidCredentials: errCreds,
			AccountUnverified:  errUnverified,
			AccountInactive:    errInactive,
			UserNotFound:       errNotFound,
		},
	}
}

func (h *harness) resetDeps(code string) PasswordResetDeps {
	return PasswordResetDeps{
		Base:          h.base(),
		Route:         "reset-password",
		CodeDigits:    6,
		CodeTTL:       5 * time.Minute,
		CodeMatches:   exactMatch,
		GenerateCode:  fixedCode(code),
		SendCode:      h.mail.send,
		CheckPassword: checkMinLength,
		HashPassword:  fakeHash,
		Metrics:       PasswordResetMetrics{PasswordResetRequest: 30, PasswordResetSuccess: 31, PasswordResetFailure: 32},
		Errors: PasswordResetErrors{
			EngineNotReady: errNotReady,
			InvalidOTP:     errInvalidOTP,
			PasswordPolicy: errPolicy,
			UserNotFound:   errNotFound,
		},
	}
}

func validSignup() SignupInput {
	return SignupInput{
		Email:      "  Ada@Example.com ",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		University: "Rivers State University (RSU)",
		Password:   "correct horse",
	}
}

func TestSignupCreatesUnverifiedUserAndSendsCode(t *testing.T) {
	h := newHarness()
	if err := RunSignup(context.Background(), validSignup(), h.signupDeps("123456")); err != nil {
		t.Fatalf("RunSignup: %v", err)
	}

	u, err := h.users.find(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("expected normalized email to be stored: %v", err)
	}
	if u.Verified || u.OTPCode != "123456" || !u.OTPExpiresAt.Equal(flowNow.Add(5*time.Minute)) {
		t.Fatalf("unexpected stored user %+v", u)
	}
	if u.PasswordHash != "hash:correct horse" {
		t.Fatalf("expected hashed password, got %q", u.PasswordHash)
	}
	if got := h.mail.last(); got.to != "ada@example.com" || got.code != "123456" {
		t.Fatalf("unexpected mail %+v", got)
	}
	if h.metrics.get(1) != 1 {
		t.Fatalf("expected success metric")
	}
}

func TestSignupRejectsDuplicate(t *testing.T) {
	h := newHarness()
	deps := h.signupDeps("123456")
	if err := RunSignup(context.Background(), validSignup(), deps); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if err := RunSignup(context.Background(), validSignup(), deps); !errors.Is(err, errExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if h.metrics.get(2) != 1 {
		t.Fatalf("expected duplicate metric")
	}
}

func TestSignupValidation(t *testing.T) {
	cases := map[string]func(*SignupInput){
		"bad email":      func(in *SignupInput) { in.Email = "not-an-email" },
		"display name":   func(in *SignupInput) { in.Email = "Ada <ada@example.com>" },
		"no first name":  func(in *SignupInput) { in.FirstName = "  " },
		"no last name":   func(in *SignupInput) { in.LastName = "" },
		"long name":      func(in *SignupInput) { in.FirstName = strings.Repeat("a", 65) },
		"bad university": func(in *SignupInput) { in.University = "Elsewhere" },
		"no password":    func(in *SignupInput) { in.Password = "" },
	}
	for name, mutate := range cases {
		h := newHarness()
		in := validSignup()
		mutate(&in)
		if err := RunSignup(context.Background(), in, h.signupDeps("123456")); !errors.Is(err, errInvalid) {
			t.Fatalf("%s: expected invalid request, got %v", name, err)
		}
		if len(h.users.users) != 0 {
			t.Fatalf("%s: expected nothing stored", name)
		}
	}

	h := newHarness()
	in := validSignup()
	in.Password = "short"
	if err := RunSignup(context.Background(), in, h.signupDeps("123456")); !errors.Is(err, errPolicy) {
		t.Fatalf("expected password policy error, got %v", err)
	}
}

func TestSignupMailFailureDoesNotFail(t *testing.T) {
	h := newHarness()
	h.mail.err = errors.New("smtp down")
	if err := RunSignup(context.Background(), validSignup(), h.signupDeps("123456")); err != nil {
		t.Fatalf("expected signup to succeed despite mail failure, got %v", err)
	}
	if h.mailErrs != 1 {
		t.Fatalf("expected mail failure to be reported once, got %d", h.mailErrs)
	}
}

func TestRateLimitShortCircuitsEveryFlow(t *testing.T) {
	h := newHarness()
	h.limited = true
	hashed := 0
	sd := h.signupDeps("123456")
	sd.HashPassword = func(p string) (string, error) { hashed++; return fakeHash(p) }
	h.users.err = errors.New("store must not be reached")

	ctx := context.Background()
	if err := RunSignup(ctx, validSignup(), sd); !errors.Is(err, errLimited) {
		t.Fatalf("signup: expected rate limit, got %v", err)
	}
	if _, err := RunVerifyOTP(ctx, "a@example.com", "1", h.otpDeps("")); !errors.Is(err, errLimited) {
		t.Fatalf("verify: expected rate limit, got %v", err)
	}
	if _, err := RunResendOTP(ctx, "a@example.com", h.otpDeps("")); !errors.Is(err, errLimited) {
		t.Fatalf("resend: expected rate limit, got %v", err)
	}
	if _, err := RunLogin(ctx, "a@example.com", "pw", h.loginDeps()); !errors.Is(err, errLimited) {
		t.Fatalf("login: expected rate limit, got %v", err)
	}
	if err := RunForgotPassword(ctx, "a@example.com", h.resetDeps("")); !errors.Is(err, errLimited) {
		t.Fatalf("forgot: expected rate limit, got %v", err)
	}
	if err := RunResetPassword(ctx, "a@example.com", "1", "new password", h.resetDeps("")); !errors.Is(err, errLimited) {
		t.Fatalf("reset: expected rate limit, got %v", err)
	}
	if hashed != 0 || len(h.mail.sent) != 0 {
		t.Fatalf("expected no work after denial: hashed=%d mails=%d", hashed, len(h.mail.sent))
	}
	if len(h.rateHits) != 6 {
		t.Fatalf("expected 6 rate limit events, got %v", h.rateHits)
	}
}

func signedUp(t *testing.T, h *harness, code string) {
	t.Helper()
	if err := RunSignup(context.Background(), validSignup(), h.signupDeps(code)); err != nil {
		t.Fatalf("RunSignup: %v", err)
	}
}

func TestVerifyOTPConsumesCodeOnce(t *testing.T) {
	h := newHarness()
	signedUp(t, h, "424242")
	ctx := context.Background()

	tok, err := RunVerifyOTP(ctx, " ADA@example.com", " 424242 ", h.otpDeps(""))
	if err != nil {
		t.Fatalf("RunVerifyOTP: %v", err)
	}
	if tok.Token != "tok:ada@example.com" {
		t.Fatalf("unexpected token %+v", tok)
	}
	u, _ := h.users.find(ctx, "ada@example.com")
	if !u.Verified || u.OTPCode != "" || !u.OTPExpiresAt.IsZero() {
		t.Fatalf("expected verified user with cleared code, got %+v", u)
	}

	if _, err := RunVerifyOTP(ctx, "ada@example.com", "424242", h.otpDeps("")); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("expected reused code to be rejected, got %v", err)
	}
}

func TestVerifyOTPRejections(t *testing.T) {
	h := newHarness()
	signedUp(t, h, "424242")
	ctx := context.Background()

	if _, err := RunVerifyOTP(ctx, "ada@example.com", "000000", h.otpDeps("")); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("wrong code: expected invalid otp, got %v", err)
	}
	if _, err := RunVerifyOTP(ctx, "nobody@example.com", "424242", h.otpDeps("")); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("unknown user: expected invalid otp, got %v", err)
	}
	if _, err := RunVerifyOTP(ctx, "ada@example.com", "", h.otpDeps("")); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("empty code: expected invalid otp, got %v", err)
	}

	late := h.otpDeps("")
	late.Now = func() time.Time { return flowNow.Add(5*time.Minute + time.Second) }
	if _, err := RunVerifyOTP(ctx, "ada@example.com", "424242", late); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("expired code: expected invalid otp, got %v", err)
	}
	if h.metrics.get(11) != 4 {
		t.Fatalf("expected 4 verify failures, got %d", h.metrics.get(11))
	}
}

func TestVerifyOTPConcurrentUseAllowsOne(t *testing.T) {
	h := newHarness()
	signedUp(t, h, "777777")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := RunVerifyOTP(context.Background(), "ada@example.com", "777777", h.otpDeps("")); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if success != 1 {
		t.Fatalf("expected exactly one successful verification, got %d", success)
	}
}

func TestResendOTP(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := RunResendOTP(ctx, "ada@example.com", h.otpDeps("111111")); !errors.Is(err, errNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	signedUp(t, h, "424242")
	already, err := RunResendOTP(ctx, "ada@example.com", h.otpDeps("111111"))
	if err != nil || already {
		t.Fatalf("expected a new code to be sent: already=%v err=%v", already, err)
	}
	if got := h.mail.last(); got.code != "111111" {
		t.Fatalf("expected new code to be mailed, got %+v", got)
	}
	if _, err := RunVerifyOTP(ctx, "ada@example.com", "424242", h.otpDeps("")); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("expected superseded code to be rejected, got %v", err)
	}
	if _, err := RunVerifyOTP(ctx, "ada@example.com", "111111", h.otpDeps("")); err != nil {
		t.Fatalf("expected new code to verify: %v", err)
	}

	sent := len(h.mail.sent)
	already, err = RunResendOTP(ctx, "ada@example.com", h.otpDeps("222222"))
	if err != nil || !already {
		t.Fatalf("expected already verified: already=%v err=%v", already, err)
	}
	if len(h.mail.sent) != sent {
		t.Fatalf("expected no mail for verified account")
	}
}

func verifiedUser(t *testing.T, h *harness) {
	t.Helper()
	signedUp(t, h, "424242")
	if _, err := RunVerifyOTP(context.Background(), "ada@example.com", "424242", h.otpDeps("")); err != nil {
		t.Fatalf("RunVerifyOTP: %v", err)
	}
}

func TestLogin(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	signedUp(t, h, "424242")

	if _, err := RunLogin(ctx, "ada@example.com", "correct horse", h.loginDeps()); !errors.Is(err, errUnverified) {
		t.Fatalf("expected unverified, got %v", err)
	}
	if _, err := RunVerifyOTP(ctx, "ada@example.com", "424242", h.otpDeps("")); err != nil {
		t.Fatalf("RunVerifyOTP: %v", err)
	}

	tok, err := RunLogin(ctx, "Ada@Example.com", "correct horse", h.loginDeps())
	if err != nil || tok.Token == "" {
		t.Fatalf("expected login success: tok=%+v err=%v", tok, err)
	}
	if _, err := RunLogin(ctx, "ada@example.com", "wrong horse", h.loginDeps()); !errors.Is(err, errCreds) {
		t.Fatalf("wrong password: expected invalid credentials, got %v", err)
	}

	equalized := 0
	deps := h.loginDeps()
	deps.EqualizeTiming = func(string) { equalized++ }
	if _, err := RunLogin(ctx, "nobody@example.com", "correct horse", deps); !errors.Is(err, errCreds) {
		t.Fatalf("unknown user: expected invalid credentials, got %v", err)
	}
	if equalized != 1 {
		t.Fatalf("expected timing equalization for unknown user")
	}
}

func TestLoginRejectsInactive(t *testing.T) {
	h := newHarness()
	verifiedUser(t, h)
	u := h.users.users["ada@example.com"]
	u.Active = false
	h.users.users["ada@example.com"] = u

	if _, err := RunLogin(context.Background(), "ada@example.com", "correct horse", h.loginDeps()); !errors.Is(err, errInactive) {
		t.Fatalf("expected inactive, got %v", err)
	}
}

func TestLoginUpgradesStaleHash(t *testing.T) {
	h := newHarness()
	verifiedUser(t, h)

	deps := h.loginDeps()
	deps.UpgradeOnLogin = true
	deps.NeedsUpgrade = func(string) (bool, error) { return true, nil }
	deps.HashPassword = func(p string) (string, error) { return "v2:" + p, nil }
	deps.VerifyPassword = func(p, encoded string) (bool, error) {
		return encoded == "hash:"+p || encoded == "v2:"+p, nil
	}

	if _, err := RunLogin(context.Background(), "ada@example.com", "correct horse", deps); err != nil {
		t.Fatalf("RunLogin: %v", err)
	}
	if got := h.users.users["ada@example.com"].PasswordHash; got != "v2:correct horse" {
		t.Fatalf("expected rehashed password, got %q", got)
	}
	if h.metrics.get(23) != 1 {
		t.Fatalf("expected rehash metric")
	}
}

func TestLoginStoreFailure(t *testing.T) {
	h := newHarness()
	h.users.err = errors.New("connection refused")
	if _, err := RunLogin(context.Background(), "ada@example.com", "pw", h.loginDeps()); !errors.Is(err, errStoreOffline) {
		t.Fatalf("expected mapped store error, got %v", err)
	}
}

func TestForgotPasswordDoesNotRevealUnknownEmail(t *testing.T) {
	h := newHarness()
	if err := RunForgotPassword(context.Background(), "nobody@example.com", h.resetDeps("999999")); err != nil {
		t.Fatalf("expected success for unknown email, got %v", err)
	}
	if len(h.mail.sent) != 0 {
		t.Fatalf("expected no mail for unknown email")
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	h := newHarness()
	verifiedUser(t, h)
	ctx := context.Background()

	if err := RunForgotPassword(ctx, "ada@example.com", h.resetDeps("999999")); err != nil {
		t.Fatalf("RunForgotPassword: %v", err)
	}
	if got := h.mail.last(); got.code != "999999" {
		t.Fatalf("expected reset code mailed, got %+v", got)
	}

	if err := RunResetPassword(ctx, "ada@example.com", "999999", "short", h.resetDeps("")); !errors.Is(err, errPolicy) {
		t.Fatalf("expected password policy error, got %v", err)
	}
	if err := RunResetPassword(ctx, "ada@example.com", "000000", "new password!", h.resetDeps("")); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("expected wrong code to fail, got %v", err)
	}
	if err := RunResetPassword(ctx, "ada@example.com", " 999999 ", "new password!", h.resetDeps("")); err != nil {
		t.Fatalf("RunResetPassword: %v", err)
	}
	if err := RunResetPassword(ctx, "ada@example.com", "999999", "another password", h.resetDeps("")); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("expected reused reset code to fail, got %v", err)
	}

	if _, err := RunLogin(ctx, "ada@example.com", "new password!", h.loginDeps()); err != nil {
		t.Fatalf("expected login with new password: %v", err)
	}
	if _, err := RunLogin(ctx, "ada@example.com", "correct horse", h.loginDeps()); !errors.Is(err, errCreds) {
		t.Fatalf("expected old password to fail, got %v", err)
	}
}

func TestResetPasswordExpiredCode(t *testing.T) {
	h := newHarness()
	verifiedUser(t, h)
	ctx := context.Background()
	if err := RunForgotPassword(ctx, "ada@example.com", h.resetDeps("999999")); err != nil {
		t.Fatalf("RunForgotPassword: %v", err)
	}

	deps := h.resetDeps("")
	deps.Now = func() time.Time { return flowNow.Add(6 * time.Minute) }
	if err := RunResetPassword(ctx, "ada@example.com", "999999", "new password!", deps); !errors.Is(err, errInvalidOTP) {
		t.Fatalf("expected expired code to fail, got %v", err)
	}
}

func TestFlowsRequireDependencies(t *testing.T) {
	ctx := context.Background()
	if err := RunSignup(ctx, validSignup(), SignupDeps{Errors: SignupErrors{EngineNotReady: errNotReady}}); !errors.Is(err, errNotReady) {
		t.Fatalf("signup: expected not ready, got %v", err)
	}
	if _, err := RunLogin(ctx, "a", "b", LoginDeps{Errors: LoginErrors{EngineNotReady: errNotReady}}); !errors.Is(err, errNotReady) {
		t.Fatalf("login: expected not ready, got %v", err)
	}
	if _, err := RunVerifyOTP(ctx, "a", "b", OTPDeps{Errors: OTPErrors{EngineNotReady: errNotReady}}); !errors.Is(err, errNotReady) {
		t.Fatalf("verify: expected not ready, got %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ada@Example.COM\t"); got != "ada@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}
