package echoapi

import (
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/doubt"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/core/notification"
	"github.com/pimentor/backend/core/user"
)

type purchaseApi struct {
	usrSvc   *user.Service
	crsSvc   *course.Service
	enrSvc   *enrollment.Service
	doubtSvc *doubt.Service
	notifSvc *notification.Service
	validate *validator.Validate
}

func registerPurchaseAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts Options) {
	api := purchaseApi{
		usrSvc:   opts.UserSvc,
		crsSvc:   opts.CourseSvc,
		enrSvc:   opts.EnrollmentSvc,
		doubtSvc: opts.DoubtSvc,
		notifSvc: opts.NotificationSvc,
		validate: opts.Validate,
	}

	pg := g.Group("/purchase", jwt)
	pg.POST("/buy", api.buy)
	pg.GET("/my-courses", api.myCourses)
	pg.GET("/verify-access/:courseId", api.verifyAccess)
	pg.GET("/all-courses", api.allCourses)

	// content: active enrollment required
	pg.GET("/course-chapters/:courseId", api.courseChapters)
	pg.GET("/course-content/:courseId/:chapterName", api.courseContent)
	pg.GET("/lecture-details/:lectureId", api.lectureDetails)

	pg.POST("/ask-doubt", api.askDoubt)
	pg.GET("/my-doubts/:lectureId", api.lectureDoubts)
	pg.GET("/my-dashboard-doubts", api.dashboardDoubts)
	pg.GET("/notifications", api.notifications)
}

// Handlers

func (api *purchaseApi) buy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data enrollment.EnrollRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}

	enr, err := api.enrSvc.Enroll(ctx.Request().Context(), claims.Subject, data.CourseID, data.PaymentID)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *purchaseApi) myCourses(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	views, err := api.enrSvc.ListByUser(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *purchaseApi) verifyAccess(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	ok, err := api.enrSvc.HasAccess(ctx.Request().Context(), claims.Subject, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "checking access")
	}
	return ctx.JSON(http.StatusOK, AccessResponse{Authorized: ok})
}

func (api *purchaseApi) allCourses(ctx echo.Context) error {
	courses, err := api.crsSvc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

// requireAccess fails with errAccessDenied unless the context user may use courseID right now.
func (api *purchaseApi) requireAccess(ctx echo.Context, courseID string) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	ok, err := api.enrSvc.HasAccess(ctx.Request().Context(), claims.Subject, courseID)
	if err != nil {
		return errors.Wrap(err, "checking access")
	}
	if !ok {
		return errAccessDenied
	}
	return nil
}

func (api *purchaseApi) courseChapters(ctx echo.Context) error {
	courseID := ctx.Param("courseId")
	if err := api.requireAccess(ctx, courseID); err != nil {
		return err
	}
	chapters, err := api.crsSvc.ListChapters(ctx.Request().Context(), courseID)
	if err != nil {
		return errors.Wrap(err, "listing chapters")
	}
	return ctx.JSON(http.StatusOK, chapters)
}

func (api *purchaseApi) courseContent(ctx echo.Context) error {
	courseID := ctx.Param("courseId")
	if err := api.requireAccess(ctx, courseID); err != nil {
		return err
	}
	chapter, err := url.PathUnescape(ctx.Param("chapterName"))
	if err != nil {
		return errHttpNotFound
	}
	lectures, err := api.crsSvc.ListChapterLectures(ctx.Request().Context(), courseID, chapter)
	if err != nil {
		return errors.Wrap(err, "listing chapter lectures")
	}
	return ctx.JSON(http.StatusOK, lectures)
}

func (api *purchaseApi) lectureDetails(ctx echo.Context) error {
	lec, err := api.crsSvc.GetLecture(ctx.Request().Context(), ctx.Param("lectureId"))
	if err != nil {
		return errors.Wrap(err, "getting lecture")
	}
	if err = api.requireAccess(ctx, lec.CourseID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, lec)
}

func (api *purchaseApi) askDoubt(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	var data doubt.NewDoubt
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDoubt")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.doubtSvc.Ask(ctx.Request().Context(), usr.ID, usr.Name, data)
	if err != nil {
		return errors.Wrap(err, "asking doubt")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *purchaseApi) lectureDoubts(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	doubts, err := api.doubtSvc.ListByLecture(ctx.Request().Context(), claims.Subject, ctx.Param("lectureId"))
	if err != nil {
		return errors.Wrap(err, "listing lecture doubts")
	}
	return ctx.JSON(http.StatusOK, doubts)
}

func (api *purchaseApi) dashboardDoubts(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	doubts, err := api.doubtSvc.ListByStudent(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing doubts")
	}
	return ctx.JSON(http.StatusOK, doubts)
}

func (api *purchaseApi) notifications(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	notifs, err := api.notifSvc.ListForUser(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, notifs)
}

type AccessResponse struct {
	Authorized bool `json:"authorized"`
}
