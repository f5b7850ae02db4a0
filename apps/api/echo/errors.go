package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/doubt"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/core/notification"
	"github.com/pimentor/backend/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "invalid email or password")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errAccessDenied         = echo.NewHTTPError(http.StatusForbidden, "access denied: please purchase this course")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errCourseNotFound       = echo.NewHTTPError(http.StatusNotFound, "course not found")
	errLectureNotFound      = echo.NewHTTPError(http.StatusNotFound, "lecture not found")
	errAlreadyEnrolled      = echo.NewHTTPError(http.StatusConflict, "already enrolled in this course")
	errInvalidCode          = echo.NewHTTPError(http.StatusBadRequest, "invalid or expired code")
)

// domainHTTPError maps the service errors a client can act on.
func domainHTTPError(err error) (*echo.HTTPError, bool) {
	switch err {
	case enrollment.ErrAlreadyEnrolled:
		return errAlreadyEnrolled, true
	case enrollment.ErrCourseNotFound, course.ErrNotFound:
		return errCourseNotFound, true
	case course.ErrLectureNotFound:
		return errLectureNotFound, true
	case enrollment.ErrNotFound, doubt.ErrNotFound, notification.ErrNotFound, user.ErrNotFound:
		return errHttpNotFound, true
	case doubt.ErrAccessDenied:
		return errAccessDenied, true
	case user.ErrInvalidCode:
		return errInvalidCode, true
	case user.ErrAuthenticationFailed:
		return errAuthenticationFailed, true
	}
	return nil, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if herr, ok := domainHTTPError(cause); ok {
			cause = herr
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Name = claims.Name
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
