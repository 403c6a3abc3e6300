package authgate

import (
	"context"

	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/otp"
)

type passwordPolicyChecker interface {
	CheckPolicy(password string) error
}

type passwordUpgrader interface {
	NeedsUpgrade(encoded string) (bool, error)
}

func (e *Engine) baseFlowDeps() internalflows.Base {
	base := internalflows.Base{
		Now:           e.now,
		CheckRate:     e.checkRate,
		MapStoreError: mapStoreError,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		MailFailed:    e.mailFailed,
	}
	if e.users != nil {
		base.FindUser = func(ctx context.Context, email string) (internalflows.UserRecord, error) {
			u, err := e.users.FindByEmail(ctx, email)
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toFlowUser(u), nil
		}
		base.UpdateUser = func(ctx context.Context, email string, c internalflows.UserChange) (internalflows.UserRecord, error) {
			u, err := e.users.Update(ctx, email, UserUpdate{
				PasswordHash: c.PasswordHash,
				Verified:     c.Verified,
				OTPCode:      c.OTPCode,
				OTPExpiresAt: c.OTPExpiresAt,
				ExpectedOTP:  c.ExpectedOTP,
			})
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toFlowUser(u), nil
		}
	}
	return base
}

func (e *Engine) checkPasswordFunc() func(string) error {
	if c, ok := e.hasher.(passwordPolicyChecker); ok {
		return c.CheckPolicy
	}
	return nil
}

func (e *Engine) issueToken(subject string) (internalflows.AccessToken, error) {
	tok, expires, err := e.tokens.Issue(subject)
	if err != nil {
		return internalflows.AccessToken{}, err
	}
	return internalflows.AccessToken{Token: tok, ExpiresAt: expires}, nil
}

func (e *Engine) signupFlowDeps() internalflows.SignupDeps {
	deps := internalflows.SignupDeps{
		Base:                e.baseFlowDeps(),
		Route:               RouteSignup,
		CodeDigits:          e.config.OTP.Digits,
		CodeTTL:             e.config.OTP.TTL,
		AllowedUniversities: e.config.Signup.AllowedUniversities,
		MaxNameLength:       e.config.Signup.MaxNameLength,
		CheckPassword:       e.checkPasswordFunc(),
		GenerateCode:        otp.Generate,
		Metrics: internalflows.SignupMetrics{
			SignupSuccess:   int(MetricSignupSuccess),
			SignupDuplicate: int(MetricSignupDuplicate),
			SignupFailure:   int(MetricSignupFailure),
		},
		Events: internalflows.SignupEvents{
			SignupSuccess:   auditEventSignupSuccess,
			SignupDuplicate: auditEventSignupDuplicate,
			SignupFailure:   auditEventSignupFailure,
		},
		Errors: internalflows.SignupErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidRequest: ErrInvalidRequest,
			PasswordPolicy: ErrPasswordPolicy,
			UserExists:     ErrUserExists,
			UserNotFound:   ErrUserNotFound,
		},
	}
	if e.hasher != nil {
		deps.HashPassword = e.hasher.Hash
	}
	if e.mailer != nil {
		deps.SendCode = e.mailer.SendVerificationCode
	}
	if e.users != nil {
		deps.CreateUser = func(ctx context.Context, nu internalflows.NewUser) (internalflows.UserRecord, error) {
			u, err := e.users.Create(ctx, User{
				Email:        nu.Email,
				FirstName:    nu.FirstName,
				LastName:     nu.LastName,
				University:   nu.University,
				PasswordHash: nu.PasswordHash,
				Active:       true,
				OTPCode:      nu.OTPCode,
				OTPExpiresAt: nu.OTPExpiresAt,
			})
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toFlowUser(u), nil
		}
	}
	return deps
}

func (e *Engine) otpFlowDeps(route string) internalflows.OTPDeps {
	deps := internalflows.OTPDeps{
		Base:         e.baseFlowDeps(),
		Route:        route,
		CodeDigits:   e.config.OTP.Digits,
		CodeTTL:      e.config.OTP.TTL,
		CodeMatches:  otp.Matches,
		GenerateCode: otp.Generate,
		Metrics: internalflows.OTPMetrics{
			OTPVerifySuccess:   int(MetricOTPVerifySuccess),
			OTPVerifyFailure:   int(MetricOTPVerifyFailure),
			OTPResent:          int(MetricOTPResent),
			OTPResendNotNeeded: int(MetricOTPResendNotNeeded),
			OTPResendFailure:   int(MetricOTPResendFailure),
		},
		Events: internalflows.OTPEvents{
			OTPVerify: auditEventOTPVerify,
			OTPResend: auditEventOTPResend,
		},
		Errors: internalflows.OTPErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidOTP:     ErrInvalidOTP,
			UserNotFound:   ErrUserNotFound,
		},
	}
	if e.mailer != nil {
		deps.SendCode = e.mailer.SendVerificationCode
	}
	if e.tokens != nil {
		deps.IssueToken = e.issueToken
	}
	return deps
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		Base:           e.baseFlowDeps(),
		Route:          RouteLogin,
		UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:    int(MetricLoginSuccess),
			LoginFailure:    int(MetricLoginFailure),
			LoginUnverified: int(MetricLoginUnverified),
			PasswordRehash:  int(MetricPasswordRehash),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			AccountUnverified:  ErrAccountUnverified,
			AccountInactive:    ErrAccountInactive,
			UserNotFound:       ErrUserNotFound,
		},
	}
	if e.hasher != nil {
		deps.VerifyPassword = e.hasher.Verify
		deps.HashPassword = e.hasher.Hash
		deps.EqualizeTiming = e.equalizeTiming
		if u, ok := e.hasher.(passwordUpgrader); ok {
			deps.NeedsUpgrade = u.NeedsUpgrade
		}
	}
	if e.tokens != nil {
		deps.IssueToken = e.issueToken
	}
	return deps
}

func (e *Engine) passwordResetFlowDeps(route string) internalflows.PasswordResetDeps {
	deps := internalflows.PasswordResetDeps{
		Base:          e.baseFlowDeps(),
		Route:         route,
		CodeDigits:    e.config.OTP.Digits,
		CodeTTL:       e.config.OTP.TTL,
		CodeMatches:   otp.Matches,
		GenerateCode:  otp.Generate,
		CheckPassword: e.checkPasswordFunc(),
		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest: int(MetricPasswordResetRequest),
			PasswordResetSuccess: int(MetricPasswordResetSuccess),
			PasswordResetFailure: int(MetricPasswordResetFailure),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidOTP:     ErrInvalidOTP,
			PasswordPolicy: ErrPasswordPolicy,
			UserNotFound:   ErrUserNotFound,
		},
	}
	if e.hasher != nil {
		deps.HashPassword = e.hasher.Hash
	}
	if e.mailer != nil {
		deps.SendCode = e.mailer.SendPasswordResetCode
	}
	return deps
}

func toFlowUser(u User) internalflows.UserRecord {
	return internalflows.UserRecord{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Verified:     u.Verified,
		Active:       u.Active,
		OTPCode:      u.OTPCode,
		OTPExpiresAt: u.OTPExpiresAt,
	}
}
