// Package handler 实现筛选流水线的HTTP处理器。
package handler

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"

	"hiregenius-go/internal/api/middleware"
	"hiregenius-go/internal/constants"
	"hiregenius-go/internal/logger"
	"hiregenius-go/internal/processor"
	"hiregenius-go/internal/tracing"
	"hiregenius-go/internal/types"
)

// ScreeningHandler 筛选流水线处理器，把HTTP请求翻译成服务层调用
type ScreeningHandler struct {
	service *processor.ScreeningService
}

// NewScreeningHandler 创建筛选处理器
func NewScreeningHandler(service *processor.ScreeningService) *ScreeningHandler {
	return &ScreeningHandler{service: service}
}

// writeError 将服务层错误映射为HTTP状态码。
// NotFound -> 404, Conflict -> 409, Forbidden -> 403, 数据损坏 -> 500
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	var status int
	switch {
	case errors.Is(err, processor.ErrJobNotFound),
		errors.Is(err, processor.ErrCandidateNotFound),
		errors.Is(err, processor.ErrQuizNotFound),
		errors.Is(err, processor.ErrRankingNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, processor.ErrDuplicateApplication):
		status = consts.StatusConflict
	case errors.Is(err, processor.ErrForbidden):
		status = consts.StatusForbidden
	default:
		status = consts.StatusInternalServerError
		logger.Ctx(ctx).Error().Err(err).Msg("请求处理失败")
	}

	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	c.JSON(status, map[string]string{"error": err.Error()})
}

// principal 读取认证主体，缺失时写401并返回false
func principal(c *app.RequestContext) (types.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(consts.StatusUnauthorized, map[string]string{"error": "未认证"})
	}
	return p, ok
}

// HandleCreateJob 创建岗位
// POST /api/v1/jobs
func (h *ScreeningHandler) HandleCreateJob(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体解析失败"})
		return
	}
	if req.Title == "" || req.Description == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "title 和 description 不能为空"})
		return
	}

	job, err := h.service.CreateJob(ctx, p, req.Title, req.Description)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id": job.JobID,
		"title":  job.Title,
	})
}

// HandleListJobs 列出全部岗位。
// 候选人视角每个岗位附带简历相似度分(match_score)与是否已投递(has_applied)
// GET /api/v1/jobs
func (h *ScreeningHandler) HandleListJobs(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	listings, err := h.service.ListJobsForPrincipal(ctx, p)
	if err != nil {
		writeError(ctx, c, err)
		return
	}

	type jobView struct {
		JobID       string   `json:"job_id"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		MatchScore  *float64 `json:"match_score,omitempty"`
		HasApplied  *bool    `json:"has_applied,omitempty"`
	}
	views := make([]jobView, 0, len(listings))
	for _, listing := range listings {
		view := jobView{
			JobID:       listing.Job.JobID,
			Title:       listing.Job.Title,
			Description: listing.Job.Description,
			MatchScore:  listing.MatchScore,
		}
		if p.Role == constants.RoleCandidate {
			hasApplied := listing.HasApplied
			view.HasApplied = &hasApplied
		}
		views = append(views, view)
	}
	c.JSON(consts.StatusOK, map[string]interface{}{"jobs": views})
}

// HandleSimilarCandidates 按JD语义相似度检索最接近的候选人
// GET /api/v1/jobs/:job_id/similar-candidates
func (h *ScreeningHandler) HandleSimilarCandidates(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	jobID := c.Param("job_id")
	results, err := h.service.SimilarCandidates(ctx, p, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":     jobID,
		"candidates": results,
	})
}

// HandleResumeUpload 简历上传，可选附带岗位投递
// POST /api/v1/resume/upload (multipart: file, 可选 job_id)
func (h *ScreeningHandler) HandleResumeUpload(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "文件未找到"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "打开文件失败"})
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "读取文件失败"})
		return
	}

	jobID := c.PostForm("job_id")
	result, err := h.service.SubmitResume(ctx, p, fileData, fileHeader.Filename, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}

// HandleApplyToJob 用已有画像投递岗位(复用简历提交流程的投递分支)
// POST /api/v1/jobs/:job_id/apply
func (h *ScreeningHandler) HandleApplyToJob(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id 不能为空"})
		return
	}

	result, err := h.service.ApplyToJob(ctx, p, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}

// HandleMatchJob 重算岗位全部投递者的匹配结果
// POST /api/v1/jobs/:job_id/match
func (h *ScreeningHandler) HandleMatchJob(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	jobID := c.Param("job_id")
	processed, err := h.service.MatchJob(ctx, p, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":    jobID,
		"processed": processed,
	})
}

// quizQuestionView 不含正确答案的题目视图，下发给候选人
type quizQuestionView struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// HandleGetQuiz 获取岗位测验，不存在时自动出题。
// 候选人视图中剥离正确答案；招聘方可见完整题目
// GET /api/v1/jobs/:job_id/quiz
func (h *ScreeningHandler) HandleGetQuiz(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	jobID := c.Param("job_id")
	view, err := h.service.EnsureQuiz(ctx, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}

	if p.Role == constants.RoleRecruiter {
		c.JSON(consts.StatusOK, view)
		return
	}

	stripped := make([]quizQuestionView, 0, len(view.Questions))
	for _, q := range view.Questions {
		stripped = append(stripped, quizQuestionView{Question: q.Question, Options: q.Options})
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":    view.JobID,
		"questions": stripped,
	})
}

// HandleGenerateQuiz 为岗位重新出题(追加新版本)
// POST /api/v1/jobs/:job_id/quiz
func (h *ScreeningHandler) HandleGenerateQuiz(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	jobID := c.Param("job_id")
	view, err := h.service.GenerateQuiz(ctx, p, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, view)
}

// HandleSubmitQuiz 提交答卷。候选人身份取自认证主体，
// 请求体内不接收候选人ID
// POST /api/v1/quiz/submit
func (h *ScreeningHandler) HandleSubmitQuiz(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req struct {
		JobID   string   `json:"job_id"`
		Answers []string `json:"answers"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体解析失败"})
		return
	}
	if req.JobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id 不能为空"})
		return
	}

	result, err := h.service.SubmitQuiz(ctx, p, req.JobID, req.Answers)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}

// HandleGetRanking 获取岗位完整排名
// GET /api/v1/jobs/:job_id/ranking
func (h *ScreeningHandler) HandleGetRanking(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	jobID := c.Param("job_id")
	entries, err := h.service.Rankings(ctx, p, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":  jobID,
		"ranking": entries,
	})
}

// HandleGetTopCandidate 获取岗位排名第一的候选人
// GET /api/v1/jobs/:job_id/top-candidate
func (h *ScreeningHandler) HandleGetTopCandidate(ctx context.Context, c *app.RequestContext) {
	p, ok := principal(c)
	if !ok {
		return
	}

	jobID := c.Param("job_id")
	top, err := h.service.TopCandidate(ctx, p, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, top)
}
