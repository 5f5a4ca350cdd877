package app

import (
	"frubric_backend/docs"
	"frubric_backend/internal/config"
	"frubric_backend/internal/middleware"
	"frubric_backend/internal/model"
	"frubric_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/api/health", c.health.HealthCheck)

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerTeacherRoutes(authGroup, c)
		a.registerGraderRoutes(authGroup, c)
		a.registerStudentRoutes(authGroup, c)
	}
}

// 教师：评分区域、定义、编辑会话、备份与学习成果
func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	teacher := rg.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.POST("/areas", c.definition.CreateArea)
		teacher.GET("/areas/:id", c.definition.GetArea)
		teacher.POST("/areas/:id/definitions", c.definition.CreateDefinition)
		teacher.POST("/areas/:id/restore", c.backup.Restore)
		teacher.POST("/areas/:id/import", c.backup.Import)

		teacher.GET("/definitions/:id", c.definition.GetDefinition)
		teacher.POST("/definitions/:id/status", c.definition.SetStatus)
		teacher.POST("/definitions/:id/copy", c.definition.CopyDefinition)
		teacher.POST("/definitions/:id/backup", c.backup.Backup)
		teacher.GET("/definitions/:id/export", c.backup.Export)

		teacher.POST("/outcomes", c.outcome.Create)
		teacher.GET("/outcomes", c.outcome.List)

		editor := teacher.Group("/editor/sessions")
		{
			editor.POST("", c.editor.Open)
			editor.GET("/:sid", c.editor.Get)
			editor.DELETE("/:sid", c.editor.Close)
			editor.POST("/:sid/submit", c.editor.Submit)

			editor.POST("/:sid/criteria", c.editor.AddCriterion)
			editor.PUT("/:sid/criteria/:cid", c.editor.EditCriterion)
			editor.DELETE("/:sid/criteria/:cid", c.editor.RemoveCriterion)
			editor.POST("/:sid/criteria/:cid/total-check", c.editor.CheckTotal)

			editor.POST("/:sid/criteria/:cid/levels", c.editor.AddLevel)
			editor.PUT("/:sid/criteria/:cid/levels/:lid", c.editor.EditLevel)
			editor.DELETE("/:sid/criteria/:cid/levels/:lid", c.editor.DeleteLevel)

			editor.POST("/:sid/criteria/:cid/levels/:lid/descriptors", c.editor.AddDescriptor)
			editor.PUT("/:sid/criteria/:cid/levels/:lid/descriptors/:did", c.editor.EditDescriptor)
			editor.DELETE("/:sid/criteria/:cid/levels/:lid/descriptors/:did", c.editor.DeleteDescriptor)
		}
	}
}

// 评分人：教师同样可以评分
func (a *App) registerGraderRoutes(rg *gin.RouterGroup, c *controllers) {
	grader := rg.Group("/grader")
	grader.Use(middleware.RoleMiddleware(model.Grader, model.Teacher))
	{
		grader.POST("/definitions/:id/instances", c.grading.CreateInstance)
		grader.GET("/instances/:id", c.grading.GetInstance)
		grader.POST("/instances/:id/fill", c.grading.Fill)
		grader.GET("/items/:itemId/outcomes", c.outcome.ItemGrades)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	student := rg.Group("/student")
	student.Use(middleware.RoleMiddleware(model.Student, model.Grader, model.Teacher))
	{
		student.GET("/items/:itemId/grade", c.grading.StudentGrade)
	}
}
