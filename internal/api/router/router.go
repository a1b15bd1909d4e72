// Package router 注册筛选流水线的HTTP路由。
package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"hiregenius-go/internal/api/handler"
)

// RegisterRoutes 注册 API 路由。
// 健康检查不走认证，其余路由都在认证中间件之后
func RegisterRoutes(h *server.Hertz, screeningHandler *handler.ScreeningHandler, authMiddleware app.HandlerFunc) {
	h.GET("/api/v1/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1", authMiddleware)

	// 简历提交事件
	api.POST("/resume/upload", screeningHandler.HandleResumeUpload)

	// 岗位管理与投递
	api.POST("/jobs", screeningHandler.HandleCreateJob)
	api.GET("/jobs", screeningHandler.HandleListJobs)
	api.POST("/jobs/:job_id/apply", screeningHandler.HandleApplyToJob)
	api.POST("/jobs/:job_id/match", screeningHandler.HandleMatchJob)
	api.GET("/jobs/:job_id/similar-candidates", screeningHandler.HandleSimilarCandidates)

	// 测验
	api.GET("/jobs/:job_id/quiz", screeningHandler.HandleGetQuiz)
	api.POST("/jobs/:job_id/quiz", screeningHandler.HandleGenerateQuiz)
	api.POST("/quiz/submit", screeningHandler.HandleSubmitQuiz)

	// 排名
	api.GET("/jobs/:job_id/ranking", screeningHandler.HandleGetRanking)
	api.GET("/jobs/:job_id/top-candidate", screeningHandler.HandleGetTopCandidate)
}
