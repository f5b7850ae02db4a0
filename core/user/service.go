package user

import (
	"context"
	"crypto/subtle"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound             = errors.New("user not found")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrInvalidCode          = errors.New("invalid or expired code")
	ErrAuthenticationFailed = errors.New("invalid email or password")
)

type (
	Repository interface {
		// CreateUser assigns the user ID; it returns ErrEmailExists when the email is taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// UpdateUser saves every mutable field of usr.
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo    Repository
		codes   CodeStore
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
	}
)

func NewService(repo Repository, codes CodeStore, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		codes:   codes,
		mailSvc: mailSvc,
		conf:    conf,
		logger:  logger,
	}
}

// SendCode emails a one-time code for purpose to email.
// Registration codes are refused to known emails, reset codes to unknown ones.
func (svc *Service) SendCode(ctx context.Context, sc SendCode) error {
	_, err := svc.repo.GetUserByEmail(ctx, sc.Email)
	switch {
	case err == nil:
		if sc.Purpose == PurposeRegister {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
	case errors.Cause(err) == ErrNotFound:
		if sc.Purpose == PurposeReset {
			return ErrNotFound
		}
	default:
		return errors.Wrap(err, "getting user by email")
	}

	code, err := GenerateCode(svc.conf.OTP.Length)
	if err != nil {
		return errors.Wrap(err, "generating code")
	}
	if err = svc.codes.SaveCode(ctx, codeKey(sc.Purpose, sc.Email), code, svc.conf.OTP.TTL); err != nil {
		return errors.Wrap(err, "saving code")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: sc.Email}},
		Subject:      "Your verification code",
		TemplateName: "otp",
		TemplateData: map[string]interface{}{
			"Code":     code,
			"ValidFor": svc.conf.OTP.TTL.String(),
		},
	})
	return nil
}

func (svc *Service) checkCode(ctx context.Context, purpose, email, code string, consume bool) error {
	key := codeKey(purpose, email)
	if consume {
		return codeError(svc.codes.ConsumeCode(ctx, key, code))
	}

	stored, err := svc.codes.GetCode(ctx, key)
	if err != nil {
		return codeError(err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 0 {
		return ErrInvalidCode
	}
	return nil
}

func codeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Cause(err) == ErrCodeNotFound:
		return ErrInvalidCode
	default:
		return errors.Wrap(err, "checking code")
	}
}

// VerifyCode checks a code without using it up; Register and ResetPassword consume it.
func (svc *Service) VerifyCode(ctx context.Context, vc VerifyCode) error {
	return svc.checkCode(ctx, vc.Purpose, vc.Email, vc.OTP, false)
}

func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	if _, err := svc.repo.GetUserByEmail(ctx, nu.Email); err == nil {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "getting user by email")
	}
	if err := svc.checkCode(ctx, PurposeRegister, nu.Email, nu.OTP, true); err != nil {
		return User{}, err
	}

	now := NowFunc().UTC()
	usr := User{
		Name:         nu.Name,
		Email:        nu.Email,
		StudentClass: nu.StudentClass,
		Role:         RoleStudent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

// Authenticate checks the credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "getting user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}

	usr.LastLogin = null.TimeFrom(NowFunc().UTC())
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	usr, err := svc.repo.GetUserByEmail(ctx, rp.Email)
	if err != nil {
		return err
	}
	if err = svc.checkCode(ctx, PurposeReset, rp.Email, rp.OTP, true); err != nil {
		return err
	}
	return svc.SetPassword(ctx, usr, rp.Password)
}

func (svc *Service) SetPassword(ctx context.Context, usr User, pwd string) error {
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}

// SaveAdmin creates the admin account for email, or promotes and updates the existing user.
func (svc *Service) SaveAdmin(ctx context.Context, name, email, pwd string) (User, error) {
	return svc.SaveUser(ctx, name, email, pwd, true)
}

// SaveUser creates the account for email, or updates the existing user's name and password.
// Existing admins keep their role.
func (svc *Service) SaveUser(ctx context.Context, name, email, pwd string, isAdmin bool) (User, error) {
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)
	now := NowFunc().UTC()

	usr, err := svc.repo.GetUserByEmail(ctx, email)
	if err != nil && errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "getting user by email")
	}
	exists := err == nil
	if !exists {
		usr = User{Email: email, Role: RoleStudent, CreatedAt: now}
	}
	if name != "" {
		usr.Name = name
	}
	if isAdmin {
		usr.Role = RoleAdmin
	}
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	if exists {
		usr, err = svc.repo.UpdateUser(ctx, usr)
	} else {
		usr, err = svc.repo.CreateUser(ctx, usr)
	}
	if err != nil {
		return User{}, errors.Wrap(err, "saving user")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}
