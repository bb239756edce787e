package router

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-gradebook-api/internal/handler"
	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	"github.com/noah-isme/lms-gradebook-api/pkg/config"
)

type stubCourses struct{}

func (stubCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if id != "c1" {
		return nil, sql.ErrNoRows
	}
	return &models.Course{ID: "c1", Code: "CS101", InstructorID: "inst-1"}, nil
}

type stubGradebooks struct{}

func (stubGradebooks) CachedGradebook(ctx context.Context, courseID string) (*models.Gradebook, bool, error) {
	return &models.Gradebook{CourseID: courseID}, false, nil
}

func (stubGradebooks) StudentReport(ctx context.Context, courseID, studentID string) (*models.StudentGradeReport, error) {
	return &models.StudentGradeReport{}, nil
}

func buildRouter(t *testing.T) (*gin.Engine, *service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := service.NewAuthService(nil, service.AuthConfig{AccessTokenSecret: "test-secret"})
	metrics := service.NewMetricsService()
	access := service.NewAccessService(stubCourses{}, nil, nil, nil)

	r := gin.New()
	Register(r, &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}, Dependencies{
		Auth:             auth,
		Access:           access,
		Metrics:          metrics,
		MetricsHandler:   handler.NewMetricsHandler(metrics, nil),
		GradebookHandler: handler.NewGradebookHandler(stubGradebooks{}, nil, nil),
	})
	return r, auth
}

func token(t *testing.T, auth *service.AuthService, id string, role models.UserRole) string {
	t.Helper()
	tok, err := auth.IssueToken(models.UserSummary{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(r *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterPublicEndpoints(t *testing.T) {
	r, _ := buildRouter(t)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/docs/index.html", "").Code)
}

func TestRegisterRoutesTable(t *testing.T) {
	r, _ := buildRouter(t)

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /api/v1/courses/:courseId/gradebook",
		"GET /api/v1/courses/:courseId/gradebook/export",
		"POST /api/v1/courses/:courseId/grades/recalculate",
		"GET /api/v1/courses/:courseId/grades/me",
		"GET /api/v1/courses/:courseId/students/:studentId/grades",
		"PUT /api/v1/courses/:courseId/grade-scale",
		"DELETE /api/v1/courses/:courseId/grade-categories/:categoryId",
		"POST /api/v1/enrollments/:id/grade/override",
		"DELETE /api/v1/enrollments/:id/grade/override",
		"GET /api/v1/enrollments/:id/grade/history",
		"POST /api/v1/assignments/:id/submissions",
		"POST /api/v1/submissions/:id/grade",
		"POST /api/v1/quizzes/:id/attempts",
		"GET /api/v1/quiz-attempts/:id",
		"PUT /api/v1/quiz-attempts/:id/responses",
		"POST /api/v1/quiz-attempts/:id/submit",
	} {
		assert.True(t, registered[want], want)
	}
}

func TestGradebookAccess(t *testing.T) {
	r, auth := buildRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/courses/c1/gradebook", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/courses/c1/gradebook", token(t, auth, "s1", models.RoleStudent)).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/courses/c1/gradebook", token(t, auth, "inst-2", models.RoleInstructor)).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/courses/c9/gradebook", token(t, auth, "inst-1", models.RoleInstructor)).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/courses/c1/gradebook", token(t, auth, "inst-1", models.RoleInstructor)).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/courses/c1/gradebook", token(t, auth, "admin", models.RoleAdmin)).Code)
}

func TestMyGradesIsStudentOnly(t *testing.T) {
	r, auth := buildRouter(t)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/courses/c1/grades/me", token(t, auth, "s1", models.RoleStudent)).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/courses/c1/grades/me", token(t, auth, "inst-1", models.RoleInstructor)).Code)
}
