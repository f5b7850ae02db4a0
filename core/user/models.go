package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/pimentor/backend/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Code purposes
const (
	PurposeRegister = "register"
	PurposeReset    = "reset"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	StudentClass string    `json:"student_class"`
	Role         string    `json:"role"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NewUser contains information needed to register a new student.
type NewUser struct {
	Name         string `json:"name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	StudentClass string `json:"student_class" validate:"max=50"`
	OTP          string `json:"otp" validate:"required"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.StudentClass = core.CleanString(nu.StudentClass)
	nu.OTP = core.CleanString(nu.OTP)
	return validate.Struct(nu)
}

type SendCode struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required,oneof=register reset"`
}

func (sc *SendCode) Validate(validate *validator.Validate) error {
	sc.Email = core.CleanString(sc.Email, true /* lower */)
	sc.Purpose = core.CleanString(sc.Purpose, true /* lower */)
	if sc.Purpose == "" {
		sc.Purpose = PurposeRegister
	}
	return validate.Struct(sc)
}

type VerifyCode struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required,oneof=register reset"`
	OTP     string `json:"otp" validate:"required"`
}

func (vc *VerifyCode) Validate(validate *validator.Validate) error {
	vc.Email = core.CleanString(vc.Email, true /* lower */)
	vc.Purpose = core.CleanString(vc.Purpose, true /* lower */)
	if vc.Purpose == "" {
		vc.Purpose = PurposeRegister
	}
	vc.OTP = core.CleanString(vc.OTP)
	return validate.Struct(vc)
}

type ResetPassword struct {
	Email    string `json:"email" validate:"required,email"`
	OTP      string `json:"otp" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.Email = core.CleanString(rp.Email, true /* lower */)
	rp.OTP = core.CleanString(rp.OTP)
	return validate.Struct(rp)
}
