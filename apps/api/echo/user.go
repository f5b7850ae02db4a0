package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/user"
)

type authApi struct {
	svc      *user.Service
	conf     *core.Config
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, opts Options) {
	api := authApi{
		svc:      opts.UserSvc,
		conf:     opts.Conf,
		validate: opts.Validate,
	}

	// TODO: rate limit `/send-otp` & `/verify-otp` per email
	ag := g.Group("/auth")
	ag.POST("/send-otp", api.sendCode)
	ag.POST("/verify-otp", api.verifyCode)
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/reset-password", api.resetPassword)
}

// Handlers

func (api *authApi) sendCode(ctx echo.Context) error {
	var data user.SendCode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendCode")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.SendCode(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "sending code")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "A verification code has been sent to " + data.Email + "."})
}

func (api *authApi) verifyCode(ctx echo.Context) error {
	var data user.VerifyCode
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyCode")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.VerifyCode(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "verifying code")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Code verified."})
}

func (api *authApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return api.respondWithToken(ctx, http.StatusCreated, usr)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	return api.respondWithToken(ctx, http.StatusOK, usr)
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data user.ResetPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *authApi) respondWithToken(ctx echo.Context, code int, usr user.User) error {
	token, err := GenerateToken(GetUserClaims(usr, api.conf), api.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(code, LoginResponse{Token: token, User: usr})
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
