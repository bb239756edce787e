package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/lms-gradebook-api/internal/handler"
	"github.com/noah-isme/lms-gradebook-api/internal/middleware"
	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	"github.com/noah-isme/lms-gradebook-api/pkg/config"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Auth    *service.AuthService
	Access  *service.AccessService
	Metrics *service.MetricsService

	MetricsHandler     *handler.MetricsHandler
	GradebookHandler   *handler.GradebookHandler
	GradeConfigHandler *handler.GradeConfigHandler
	CourseGradeHandler *handler.CourseGradeHandler
	SubmissionHandler  *handler.SubmissionHandler
	QuizHandler        *handler.QuizHandler
}

// Register wires the HTTP routes into the gin engine.
func Register(r *gin.Engine, cfg *config.Config, deps Dependencies) {
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.MetricsHandler.Health)
	r.GET("/ready", deps.MetricsHandler.Ready)
	r.GET("/metrics", deps.MetricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(deps.Auth), middleware.WithResponseMeta())

	instructor := middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent)
	ownsCourse := middleware.CourseInstructor(deps.Access, middleware.CourseParam("courseId"))

	api.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin), deps.MetricsHandler.Summary)

	// Course-level gradebook and configuration
	courses := api.Group("/courses/:courseId")
	courses.GET("/grades/me", student, deps.GradebookHandler.MyGrades)

	managed := courses.Group("", instructor, ownsCourse)
	managed.GET("/gradebook", deps.GradebookHandler.Gradebook)
	managed.GET("/gradebook/export", deps.GradebookHandler.Export)
	managed.POST("/grades/recalculate", deps.GradebookHandler.Recalculate)
	managed.GET("/students/:studentId/grades", deps.GradebookHandler.StudentGrades)
	managed.GET("/grade-scale", deps.GradeConfigHandler.GetScale)
	managed.PUT("/grade-scale", deps.GradeConfigHandler.UpsertScale)
	managed.GET("/grade-categories", deps.GradeConfigHandler.ListCategories)
	managed.POST("/grade-categories", deps.GradeConfigHandler.CreateCategory)
	managed.PUT("/grade-categories/:categoryId", deps.GradeConfigHandler.UpdateCategory)
	managed.DELETE("/grade-categories/:categoryId", deps.GradeConfigHandler.DeleteCategory)

	// Per-enrollment course grade
	enrollments := api.Group("/enrollments/:id/grade", instructor,
		middleware.CourseInstructor(deps.Access, middleware.CourseFrom("id", deps.Access.CourseOfEnrollment)))
	enrollments.POST("/calculate", deps.CourseGradeHandler.Calculate)
	enrollments.POST("/override", deps.CourseGradeHandler.Override)
	enrollments.DELETE("/override", deps.CourseGradeHandler.RemoveOverride)
	enrollments.GET("/history", deps.CourseGradeHandler.History)

	// Submissions
	api.POST("/assignments/:id/submissions", student, deps.SubmissionHandler.Submit)
	api.POST("/submissions/:id/grade", instructor,
		middleware.CourseInstructor(deps.Access, middleware.CourseFrom("id", deps.Access.CourseOfSubmission)),
		deps.SubmissionHandler.Grade)

	// Quiz attempts; ownership is enforced by the quiz service
	api.POST("/quizzes/:id/attempts", student, deps.QuizHandler.StartAttempt)
	attempts := api.Group("/quiz-attempts/:id", student)
	attempts.GET("", deps.QuizHandler.GetAttempt)
	attempts.PUT("/responses", deps.QuizHandler.SaveResponses)
	attempts.POST("/submit", deps.QuizHandler.Submit)
}
