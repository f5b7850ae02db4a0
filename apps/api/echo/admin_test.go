package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	. "github.com/pimentor/backend/apps/api/echo"
	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/doubt"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/core/notification"
	"github.com/pimentor/backend/storage/database/inmem"
	"github.com/pimentor/backend/testutil"
)

func Test_adminApi_permissions(t *testing.T) {
	f := setup(t)
	student := testutil.CreateUser(t, f.usrRepo, "Asha", "asha@test.in", "", false)
	token := getToken(t, student, f.conf)

	f.run(t, []httpTest{
		{name: "auth required", path: "/api/admin/all-courses", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin required", path: "/api/admin/all-courses", token: token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "admin required: backfill", method: http.MethodPost, path: "/api/admin/backfill-expiries", token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "admin required: notification", method: http.MethodPost, path: "/api/admin/send-notification", token: token,
			body: []byte(`{"heading": "x", "description": "y"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
	})
}

func Test_adminApi_courses(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.in", "", true)
	token := getToken(t, admin, f.conf)

	rec := f.serve(http.MethodPost, "/api/admin/course", token,
		[]byte(`{"course_id": "neet", "title": "NEET 2026", "price": 999, "live_validity_date": "2026-06-30", "recorded_duration_days": "90"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var crs course.Course
	decode(t, rec, &crs)
	assert.Equal(t, "neet", crs.CourseID)
	assert.Equal(t, 90, crs.RecordedDurationDays)
	assert.True(t, testutil.Date(2026, time.June, 30).Equal(crs.LiveValidityDate.Time))

	rec = f.serve(http.MethodPost, "/api/admin/course/neet/lecture", token,
		[]byte(`{"title": "Cells", "video_url": "https://videos.test/cells", "chapter_name": "Biology", "topic_name": "Cells"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var lec course.Lecture
	decode(t, rec, &lec)
	assert.Equal(t, "neet", lec.CourseID)
	assert.Equal(t, course.DefaultLectureDuration, lec.Duration)
	assert.True(t, lec.Locked)

	testutil.CreateCourse(t, f.crsRepo, "jee", null.Time{}, 30)
	other := testutil.CreateLecture(t, f.crsRepo, "jee", "Algebra", 1)

	f.run(t, []httpTest{
		{
			name: "course: invalid", method: http.MethodPost, path: "/api/admin/course", token: token,
			body: []byte(`{"course_id": "", "title": "x"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"course_id": "this field is required"}),
		},
		{
			name: "lecture: unknown course", method: http.MethodPost, path: "/api/admin/course/upsc/lecture", token: token,
			body:     []byte(`{"title": "x", "video_url": "https://videos.test/x", "chapter_name": "A", "topic_name": "B"}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"}),
		},
		{name: "lectures", path: "/api/admin/course/neet/lectures", token: token, wantData: marchallList(t, lec)},
		{
			name: "lecture of another course", method: http.MethodDelete, path: "/api/admin/course/neet/lecture/" + other.ID, token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "lecture not found"}),
		},
		{name: "delete lecture", method: http.MethodDelete, path: "/api/admin/course/neet/lecture/" + lec.ID, token: token, wantCode: http.StatusNoContent},
		{name: "lectures: none left", path: "/api/admin/course/neet/lectures", token: token, wantData: marchallList(t)},
		{name: "delete course", method: http.MethodDelete, path: "/api/admin/course/jee", token: token, wantCode: http.StatusNoContent},
		{name: "lectures: cascaded", path: "/api/admin/course/jee/lectures", token: token, wantData: marchallList(t)},
	})

	rec = f.serve(http.MethodGet, "/api/admin/all-courses", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var courses []course.Course
	decode(t, rec, &courses)
	require.Len(t, courses, 1)
	assert.Equal(t, "neet", courses[0].CourseID)
}

func Test_adminApi_doubtsAndNotifications(t *testing.T) {
	f := setup(t)
	testutil.FreezeTime(t, &enrollment.NowFunc, testutil.Date(2026, time.January, 1))
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.in", "", true)
	student := testutil.CreateUser(t, f.usrRepo, "Asha", "asha@test.in", "", false)
	adminToken, token := getToken(t, admin, f.conf), getToken(t, student, f.conf)

	testutil.CreateCourse(t, f.crsRepo, "jee", null.Time{}, 30)
	lec := testutil.CreateLecture(t, f.crsRepo, "jee", "Algebra", 1)
	rec := f.serve(http.MethodPost, "/api/purchase/buy", token, []byte(`{"course_id": "jee", "payment_id": "pay_1"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.serve(http.MethodPost, "/api/purchase/ask-doubt", token, marchallObj(t, doubt.NewDoubt{LectureID: lec.ID, Question: "Why?"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var d doubt.Doubt
	decode(t, rec, &d)

	f.run(t, []httpTest{
		{name: "pending doubts", path: "/api/admin/doubts/jee", token: adminToken, wantData: marchallList(t, d)},
		{name: "pending doubts: other course", path: "/api/admin/doubts/neet", token: adminToken, wantData: marchallList(t)},
		{
			name: "resolve: no answer", method: http.MethodPost, path: "/api/admin/resolve-doubt", token: adminToken,
			body:     marchallObj(t, doubt.ResolveDoubt{DoubtID: d.ID}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"answer": "this field is required"}),
		},
		{
			name: "resolve: unknown", method: http.MethodPost, path: "/api/admin/resolve-doubt", token: adminToken,
			body:     marchallObj(t, doubt.ResolveDoubt{DoubtID: "nope", Answer: "Because."}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	})

	rec = f.serve(http.MethodPost, "/api/admin/resolve-doubt", adminToken, marchallObj(t, doubt.ResolveDoubt{DoubtID: d.ID, Answer: "Because."}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &d)
	assert.Equal(t, doubt.StatusResolved, d.Status)
	assert.Equal(t, "Because.", d.Answer)

	rec = f.serve(http.MethodGet, "/api/admin/doubts/jee", adminToken)
	checkCodeAndData(t, httpTest{wantData: marchallList(t)}, rec)

	// notifications
	sent := len(f.mailSvc.SentMessages())
	rec = f.serve(http.MethodPost, "/api/admin/send-notification", adminToken,
		[]byte(`{"heading": "Live class", "description": "Tonight at 8", "target_courses": ["JEE"]}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var n notification.Notification
	decode(t, rec, &n)
	assert.Equal(t, []string{"jee"}, n.TargetCourses)

	msgs := f.mailSvc.SentMessages()
	require.Len(t, msgs, sent+1)
	require.Len(t, msgs[sent].Bcc, 1)
	assert.Equal(t, "asha@test.in", msgs[sent].Bcc[0].Address)

	f.run(t, []httpTest{
		{name: "active notifications", path: "/api/admin/active-notifications", token: adminToken, wantData: marchallList(t, n)},
		{name: "student notifications", path: "/api/purchase/notifications", token: token, wantData: marchallList(t, n)},
		{name: "delete", method: http.MethodDelete, path: "/api/admin/notification/" + n.ID, token: adminToken, wantCode: http.StatusNoContent},
		{
			name: "delete: gone", method: http.MethodDelete, path: "/api/admin/notification/" + n.ID, token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "student notifications: none", path: "/api/purchase/notifications", token: token, wantData: marchallList(t)},
	})
}

func Test_adminApi_backfillExpiries(t *testing.T) {
	f := setup(t)
	testutil.FreezeTime(t, &enrollment.NowFunc, testutil.Date(2026, time.March, 1))
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.in", "", true)
	student := testutil.CreateUser(t, f.usrRepo, "Asha", "asha@test.in", "", false)
	adminToken, token := getToken(t, admin, f.conf), getToken(t, student, f.conf)

	testutil.CreateCourse(t, f.crsRepo, "neet", null.Time{}, 90)
	legacy := inmemdb.InsertLegacyEnrollment(f.db, enrollment.Enrollment{
		UserID: student.ID, CourseID: "neet", PaymentID: "pay_old", PurchasedAt: testutil.Date(2026, time.January, 1),
	})

	f.run(t, []httpTest{
		// no expiry yet: no access
		{name: "before backfill", path: "/api/purchase/verify-access/neet", token: token, wantData: marchallObj(t, AccessResponse{})},
		{
			name: "backfill", method: http.MethodPost, path: "/api/admin/backfill-expiries", token: adminToken,
			wantData: marchallObj(t, BackfillResponse{Updated: 1}),
		},
		{
			name: "backfill: again", method: http.MethodPost, path: "/api/admin/backfill-expiries", token: adminToken,
			wantData: marchallObj(t, BackfillResponse{Updated: 0}),
		},
		{name: "after backfill", path: "/api/purchase/verify-access/neet", token: token, wantData: marchallObj(t, AccessResponse{Authorized: true})},
	})

	rec := f.serve(http.MethodGet, "/api/admin/course-enrollments/neet", adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enrs []enrollment.CourseEnrollment
	decode(t, rec, &enrs)
	require.Len(t, enrs, 1)
	assert.Equal(t, legacy.ID, enrs[0].EnrollmentID)
	assert.Equal(t, "asha@test.in", enrs[0].Email)
	assert.True(t, enrs[0].Active)
	assert.True(t, testutil.Date(2026, time.April, 1).Equal(enrs[0].ExpiryDate.Time))
}
