package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var enrollmentDetailCols = []string{"id", "student_id", "course_id", "status", "enrolled_at", "completed_at", "student_username", "student_name", "student_email"}

func TestEnrollmentRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows(enrollmentDetailCols).
		AddRow("enr-1", "stu-1", "course-1", models.EnrollmentStatusEnrolled, time.Now(), nil, "ada", "Ada Lovelace", "ada@example.com").
		AddRow("enr-2", "stu-2", "course-1", models.EnrollmentStatusEnrolled, time.Now(), nil, "alan", "Alan Turing", "alan@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.course_id = $1 AND e.status = $2 ORDER BY u.full_name")).
		WithArgs("course-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(rows)

	enrollments, err := repo.ListByCourse(context.Background(), "course-1", models.EnrollmentStatusEnrolled)
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Equal(t, "Ada Lovelace", enrollments[0].StudentName)
	assert.Equal(t, "course-1", enrollments[1].CourseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
