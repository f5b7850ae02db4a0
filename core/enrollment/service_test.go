package enrollment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/pimentor/backend/core"
	"github.com/pimentor/backend/core/course"
	"github.com/pimentor/backend/core/enrollment"
	"github.com/pimentor/backend/core/user"
	"github.com/pimentor/backend/storage/database/inmem"
	"github.com/pimentor/backend/testutil"
)

type fixture struct {
	db      *inmemdb.DB
	svc     *enrollment.Service
	repo    enrollment.Repository
	crsRepo course.Repository
	student user.User
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)

	db := inmemdb.Open()
	repo := inmemdb.NewEnrollmentRepository(db)
	crsRepo := inmemdb.NewCourseRepository(db)
	catalog := course.NewService(crsRepo, logger)

	return fixture{
		db:      db,
		svc:     enrollment.NewService(repo, catalog, enrollment.NewPolicy(conf.Enrollment), logger),
		repo:    repo,
		crsRepo: crsRepo,
		student: testutil.CreateUser(t, inmemdb.NewUserRepository(db), "Student", "student@test.in", "", false),
	}
}

func TestService_Enroll(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateCourse(t, f.crsRepo, "jee-live", null.TimeFrom(testutil.Date(2026, time.June, 30)), 365)
	testutil.CreateCourse(t, f.crsRepo, "neet-recorded", null.Time{}, 180)

	tests := []struct {
		name       string
		now        time.Time
		courseID   string
		paymentID  string
		wantErr    error
		wantExpiry time.Time
		wantPurge  time.Time
	}{
		{
			name: "scenario A", now: testutil.Date(2026, time.March, 1), courseID: "jee-live", paymentID: "pay_A",
			wantExpiry: testutil.Date(2026, time.June, 30), wantPurge: testutil.Date(2026, time.July, 10),
		},
		{
			name: "scenario C", now: testutil.Date(2026, time.January, 10), courseID: "neet-recorded", paymentID: "pay_C",
			wantExpiry: testutil.Date(2026, time.July, 9), wantPurge: testutil.Date(2026, time.July, 19),
		},
		{name: "unknown course", now: testutil.Date(2026, time.March, 1), courseID: "nope", paymentID: "pay", wantErr: enrollment.ErrCourseNotFound},
		{name: "scenario E: already enrolled", now: testutil.Date(2026, time.April, 1), courseID: "jee-live", paymentID: "pay_E", wantErr: enrollment.ErrAlreadyEnrolled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.FreezeTime(t, &enrollment.NowFunc, tt.now)

			enr, err := f.svc.Enroll(ctx, f.student.ID, tt.courseID, tt.paymentID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, enr.ID)
			assert.Equal(t, tt.paymentID, enr.PaymentID)
			assert.True(t, enr.PurchasedAt.Equal(tt.now))
			assert.True(t, enr.ExpiryDate.Valid && enr.ExpiryDate.Time.Equal(tt.wantExpiry), "expiry %v", enr.ExpiryDate.Time)
			assert.True(t, enr.PurgeDate.Valid && enr.PurgeDate.Time.Equal(tt.wantPurge), "purge %v", enr.PurgeDate.Time)

			stored, err := f.repo.GetEnrollment(ctx, f.student.ID, tt.courseID)
			require.NoError(t, err)
			assert.Equal(t, enr, stored)
		})
	}

	t.Run("scenario E leaves the original untouched", func(t *testing.T) {
		stored, err := f.repo.GetEnrollment(ctx, f.student.ID, "jee-live")
		require.NoError(t, err)
		assert.Equal(t, "pay_A", stored.PaymentID)
		assert.True(t, stored.PurchasedAt.Equal(testutil.Date(2026, time.March, 1)))
	})
}

func TestService_Enroll_scenarioB(t *testing.T) {
	f := setup(t)
	testutil.CreateCourse(t, f.crsRepo, "jee-live", null.TimeFrom(testutil.Date(2026, time.June, 30)), 365)
	testutil.FreezeTime(t, &enrollment.NowFunc, testutil.Date(2026, time.August, 1))

	enr, err := f.svc.Enroll(context.Background(), f.student.ID, "jee-live", "pay_B")
	require.NoError(t, err)
	assert.True(t, enr.ExpiryDate.Time.Equal(testutil.Date(2027, time.August, 1)))
	assert.True(t, enr.PurgeDate.Time.Equal(testutil.Date(2027, time.August, 11)))
}

func TestService_Enroll_snapshot(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	crs := testutil.CreateCourse(t, f.crsRepo, "maths", null.Time{}, 30)

	enr, err := f.svc.Enroll(ctx, f.student.ID, "maths", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, crs.Title, enr.Title)
	assert.Equal(t, crs.ClassName, enr.ClassName)
	assert.Equal(t, crs.Price, enr.Price)

	// later price changes do not touch the sale
	crs.Price = 999
	crs.Title = "Maths v2"
	_, err = f.crsRepo.UpsertCourse(ctx, crs)
	require.NoError(t, err)

	stored, err := f.repo.GetEnrollment(ctx, f.student.ID, "maths")
	require.NoError(t, err)
	assert.Equal(t, float64(499), stored.Price)
	assert.Equal(t, "Course maths", stored.Title)
}

func TestService_Enroll_validation(t *testing.T) {
	f := setup(t)
	testutil.CreateCourse(t, f.crsRepo, "maths", null.Time{}, 30)

	_, err := f.svc.Enroll(context.Background(), f.student.ID, "maths", "   ")
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "err = %v", err)
	assert.Equal(t, []core.FieldError{{Field: "payment_id", Error: "this field is required"}}, vErr.Fields)

	_, err = f.repo.GetEnrollment(context.Background(), f.student.ID, "maths")
	assert.Equal(t, enrollment.ErrNotFound, err)
}

func TestService_Enroll_concurrent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateCourse(t, f.crsRepo, "physics", null.Time{}, 365)

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		dup     int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Enroll(ctx, f.student.ID, "physics", "pay_concurrent")
			mu.Lock()
			defer mu.Unlock()
			switch errors.Cause(err) {
			case nil:
				success++
			case enrollment.ErrAlreadyEnrolled:
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, attempts-1, dup)

	enrs, err := f.repo.QueryUserEnrollments(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
}

func TestService_HasAccess(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateCourse(t, f.crsRepo, "chem", null.Time{}, 30)

	purchase := testutil.Date(2026, time.January, 1)
	testutil.FreezeTime(t, &enrollment.NowFunc, purchase)
	enr, err := f.svc.Enroll(ctx, f.student.ID, "chem", "pay_1")
	require.NoError(t, err)
	expiry := enr.ExpiryDate.Time

	testutil.CreateCourse(t, f.crsRepo, "jee-live", null.Time{}, 30)
	mixed, err := f.svc.Enroll(ctx, f.student.ID, "JEE-Live", "pay_2")
	require.NoError(t, err)
	assert.Equal(t, "jee-live", mixed.CourseID)
	got, err := f.svc.Get(ctx, f.student.ID, " JEE-Live ")
	require.NoError(t, err)
	assert.Equal(t, mixed.ID, got.ID)

	legacy := inmemdb.InsertLegacyEnrollment(f.db, enrollment.Enrollment{
		UserID: f.student.ID, CourseID: "legacy", PaymentID: "pay_old", PurchasedAt: purchase,
	})
	require.False(t, legacy.ExpiryDate.Valid)

	tests := []struct {
		name     string
		courseID string
		now      time.Time
		want     bool
	}{
		{name: "right after purchase", courseID: "chem", now: purchase, want: true},
		{name: "just before expiry", courseID: "chem", now: expiry.Add(-time.Millisecond), want: true},
		{name: "scenario D: at expiry", courseID: "chem", now: expiry, want: false},
		{name: "within purge grace", courseID: "chem", now: expiry.Add(5 * 24 * time.Hour), want: false},
		{name: "not enrolled", courseID: "bio", now: purchase, want: false},
		{name: "id as purchased", courseID: "JEE-Live", now: purchase, want: true},
		{name: "padded mixed case id", courseID: " Chem ", now: purchase, want: true},
		{name: "mixed case id after expiry", courseID: "JEE-LIVE", now: expiry, want: false},
		{name: "legacy record without expiry", courseID: "legacy", now: purchase, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.FreezeTime(t, &enrollment.NowFunc, tt.now)
			got, err := f.svc.HasAccess(ctx, f.student.ID, tt.courseID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_ListByUser(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateCourse(t, f.crsRepo, "short", null.Time{}, 1)
	testutil.CreateCourse(t, f.crsRepo, "long", null.Time{}, 365)

	testutil.FreezeTime(t, &enrollment.NowFunc, testutil.Date(2026, time.January, 1))
	_, err := f.svc.Enroll(ctx, f.student.ID, "short", "pay_1")
	require.NoError(t, err)
	testutil.FreezeTime(t, &enrollment.NowFunc, testutil.Date(2026, time.January, 5))
	_, err = f.svc.Enroll(ctx, f.student.ID, "long", "pay_2")
	require.NoError(t, err)

	views, err := f.svc.ListByUser(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "long", views[0].CourseID) // newest first
	assert.True(t, views[0].Active)
	assert.Equal(t, "short", views[1].CourseID)
	assert.False(t, views[1].Active)

	empty, err := f.svc.ListByUser(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_ListCourseEnrollments(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateCourse(t, f.crsRepo, "bio", null.Time{}, 365)
	other := testutil.CreateUser(t, inmemdb.NewUserRepository(f.db), "Other", "other@test.in", "", false)

	_, err := f.svc.Enroll(ctx, f.student.ID, "bio", "pay_1")
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, other.ID, "bio", "pay_2")
	require.NoError(t, err)

	enrs, err := f.svc.ListCourseEnrollments(ctx, "bio")
	require.NoError(t, err)
	require.Len(t, enrs, 2)
	emails := []string{enrs[0].Email, enrs[1].Email}
	assert.ElementsMatch(t, []string{"student@test.in", "other@test.in"}, emails)
	for _, enr := range enrs {
		assert.True(t, enr.Active)
	}

	enrs, err = f.svc.ListCourseEnrollments(ctx, "BIO")
	require.NoError(t, err)
	assert.Len(t, enrs, 2)
}

func TestService_BackfillMissingExpiries(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	testutil.CreateCourse(t, f.crsRepo, "live", null.TimeFrom(testutil.Date(2026, time.June, 30)), 365)
	testutil.CreateCourse(t, f.crsRepo, "recorded", null.Time{}, 180)

	// the clock is far from the purchase dates: backfill must not use it
	testutil.FreezeTime(t, &enrollment.NowFunc, testutil.Date(2030, time.January, 1))

	a := inmemdb.InsertLegacyEnrollment(f.db, enrollment.Enrollment{
		UserID: f.student.ID, CourseID: "live", PaymentID: "p1", PurchasedAt: testutil.Date(2026, time.March, 1),
	})
	c := inmemdb.InsertLegacyEnrollment(f.db, enrollment.Enrollment{
		UserID: f.student.ID, CourseID: "recorded", PaymentID: "p2", PurchasedAt: testutil.Date(2026, time.January, 10),
	})
	gone := inmemdb.InsertLegacyEnrollment(f.db, enrollment.Enrollment{
		UserID: f.student.ID, CourseID: "deleted-course", PaymentID: "p3", PurchasedAt: testutil.Date(2026, time.January, 1),
	})
	done := inmemdb.InsertLegacyEnrollment(f.db, enrollment.Enrollment{
		UserID: f.student.ID, CourseID: "done", PaymentID: "p4", PurchasedAt: testutil.Date(2026, time.January, 1),
		ExpiryDate: null.TimeFrom(testutil.Date(2026, time.February, 1)),
		PurgeDate:  null.TimeFrom(testutil.Date(2026, time.February, 11)),
	})

	n, err := f.svc.BackfillMissingExpiries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want := map[string][2]time.Time{
		a.CourseID:    {testutil.Date(2026, time.June, 30), testutil.Date(2026, time.July, 10)},
		c.CourseID:    {testutil.Date(2026, time.July, 9), testutil.Date(2026, time.July, 19)},
		gone.CourseID: {testutil.Date(2027, time.January, 1), testutil.Date(2027, time.January, 11)},
		done.CourseID: {testutil.Date(2026, time.February, 1), testutil.Date(2026, time.February, 11)},
	}
	snapshot := func() map[string]enrollment.Enrollment {
		enrs, err := f.repo.QueryUserEnrollments(ctx, f.student.ID)
		require.NoError(t, err)
		byCourse := make(map[string]enrollment.Enrollment, len(enrs))
		for _, enr := range enrs {
			byCourse[enr.CourseID] = enr
		}
		return byCourse
	}

	first := snapshot()
	for courseID, dates := range want {
		enr := first[courseID]
		assert.True(t, enr.ExpiryDate.Time.Equal(dates[0]), "%s expiry %v", courseID, enr.ExpiryDate.Time)
		assert.True(t, enr.PurgeDate.Time.Equal(dates[1]), "%s purge %v", courseID, enr.PurgeDate.Time)
	}

	n, err = f.svc.BackfillMissingExpiries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, first, snapshot())
}
