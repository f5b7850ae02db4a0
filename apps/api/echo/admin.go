package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/doubt"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/core/notification"
)

type adminApi struct {
	crsSvc   *course.Service
	enrSvc   *enrollment.Service
	doubtSvc *doubt.Service
	notifSvc *notification.Service
	validate *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts Options) {
	api := adminApi{
		crsSvc:   opts.CourseSvc,
		enrSvc:   opts.EnrollmentSvc,
		doubtSvc: opts.DoubtSvc,
		notifSvc: opts.NotificationSvc,
		validate: opts.Validate,
	}

	ag := g.Group("/admin", jwt, adminMiddleware())
	ag.GET("/all-courses", api.allCourses)
	ag.POST("/course", api.upsertCourse)
	ag.DELETE("/course/:courseId", api.deleteCourse)

	ag.GET("/course/:courseId/lectures", api.listLectures)
	ag.POST("/course/:courseId/lecture", api.addLecture)
	ag.DELETE("/course/:courseId/lecture/:lectureId", api.deleteLecture)

	ag.GET("/doubts/:courseId", api.pendingDoubts)
	ag.POST("/resolve-doubt", api.resolveDoubt)

	ag.POST("/send-notification", api.sendNotification)
	ag.GET("/active-notifications", api.listNotifications)
	ag.DELETE("/notification/:id", api.deleteNotification)

	ag.GET("/course-enrollments/:courseId", api.courseEnrollments)
	ag.POST("/backfill-expiries", api.backfillExpiries)
}

// Handlers

func (api *adminApi) allCourses(ctx echo.Context) error {
	courses, err := api.crsSvc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *adminApi) upsertCourse(ctx echo.Context) error {
	var data course.UpsertCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpsertCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.crsSvc.Upsert(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *adminApi) deleteCourse(ctx echo.Context) error {
	if err := api.crsSvc.Delete(ctx.Request().Context(), ctx.Param("courseId")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) listLectures(ctx echo.Context) error {
	lectures, err := api.crsSvc.ListLectures(ctx.Request().Context(), ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "listing lectures")
	}
	return ctx.JSON(http.StatusOK, lectures)
}

func (api *adminApi) addLecture(ctx echo.Context) error {
	var data course.NewLecture
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLecture")
	}
	data.CourseID = ctx.Param("courseId")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lec, err := api.crsSvc.AddLecture(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding lecture")
	}
	return ctx.JSON(http.StatusCreated, lec)
}

func (api *adminApi) deleteLecture(ctx echo.Context) error {
	lec, err := api.crsSvc.GetLecture(ctx.Request().Context(), ctx.Param("lectureId"))
	if err != nil {
		return errors.Wrap(err, "getting lecture")
	}
	if lec.CourseID != ctx.Param("courseId") {
		return errLectureNotFound
	}

	if err = api.crsSvc.DeleteLecture(ctx.Request().Context(), lec.ID); err != nil {
		return errors.Wrap(err, "deleting lecture")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) pendingDoubts(ctx echo.Context) error {
	doubts, err := api.doubtSvc.ListPending(ctx.Request().Context(), ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "listing pending doubts")
	}
	return ctx.JSON(http.StatusOK, doubts)
}

func (api *adminApi) resolveDoubt(ctx echo.Context) error {
	var data doubt.ResolveDoubt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResolveDoubt")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.doubtSvc.Resolve(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "resolving doubt")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *adminApi) sendNotification(ctx echo.Context) error {
	var data notification.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotification")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	n, err := api.notifSvc.Broadcast(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "broadcasting notification")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *adminApi) listNotifications(ctx echo.Context) error {
	notifs, err := api.notifSvc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *adminApi) deleteNotification(ctx echo.Context) error {
	if err := api.notifSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) courseEnrollments(ctx echo.Context) error {
	enrs, err := api.enrSvc.ListCourseEnrollments(ctx.Request().Context(), ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "listing course enrollments")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *adminApi) backfillExpiries(ctx echo.Context) error {
	n, err := api.enrSvc.BackfillMissingExpiries(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "backfilling expiries")
	}
	return ctx.JSON(http.StatusOK, BackfillResponse{Updated: n})
}

type BackfillResponse struct {
	Updated int `json:"updated"`
}
