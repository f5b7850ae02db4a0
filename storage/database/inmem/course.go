package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/pimentor/backend/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) UpsertCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if orig, ok := repo.db.courses[crs.CourseID]; ok {
		crs.CreatedAt = orig.CreatedAt
	}
	repo.db.courses[crs.CourseID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, courseID string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if crs, ok := repo.db.courses[courseID]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		courses = append(courses, *crs)
	}
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].CreatedAt.Equal(courses[j].CreatedAt) {
			return courses[i].CourseID < courses[j].CourseID
		}
		return courses[i].CreatedAt.After(courses[j].CreatedAt)
	})
	return courses, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, courseID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[courseID]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.courses, courseID)
	for id, lec := range repo.db.lectures {
		if lec.CourseID == courseID {
			repo.db.deleteLecture(id)
		}
	}
	return nil
}

// deleteLecture cascades to the lecture doubts; the caller holds the write lock.
func (db *DB) deleteLecture(id string) {
	delete(db.lectures, id)
	for did, d := range db.doubts {
		if d.LectureID == id {
			delete(db.doubts, did)
		}
	}
}

func (repo *courseRepository) CreateLecture(_ context.Context, lec course.Lecture) (course.Lecture, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[lec.CourseID]; !ok {
		return course.Lecture{}, course.ErrNotFound
	}
	lec.ID = uuid.New().String()
	repo.db.lectures[lec.ID] = &lec
	return lec, nil
}

func (repo *courseRepository) GetLecture(_ context.Context, id string) (course.Lecture, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if lec, ok := repo.db.lectures[id]; ok {
		return *lec, nil
	}
	return course.Lecture{}, course.ErrLectureNotFound
}

func (repo *courseRepository) queryLectures(courseID, chapter string) []course.Lecture {
	lectures := make([]course.Lecture, 0)
	for _, lec := range repo.db.lectures {
		if lec.CourseID == courseID && (chapter == "" || lec.ChapterName == chapter) {
			lectures = append(lectures, *lec)
		}
	}
	sort.Slice(lectures, func(i, j int) bool {
		if lectures[i].Order == lectures[j].Order {
			return lectures[i].CreatedAt.Before(lectures[j].CreatedAt)
		}
		return lectures[i].Order < lectures[j].Order
	})
	return lectures
}

func (repo *courseRepository) QueryLectures(_ context.Context, courseID, chapter string) ([]course.Lecture, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.queryLectures(courseID, chapter), nil
}

func (repo *courseRepository) QueryChapters(_ context.Context, courseID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]bool)
	chapters := make([]string, 0)
	for _, lec := range repo.queryLectures(courseID, "") {
		if !seen[lec.ChapterName] {
			seen[lec.ChapterName] = true
			chapters = append(chapters, lec.ChapterName)
		}
	}
	return chapters, nil
}

func (repo *courseRepository) DeleteLecture(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.lectures[id]; !ok {
		return course.ErrLectureNotFound
	}
	repo.db.deleteLecture(id)
	return nil
}
