package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hiregenius-go/internal/config"
	"hiregenius-go/internal/constants"
	"hiregenius-go/internal/logger"
	"hiregenius-go/internal/parser"
	"hiregenius-go/internal/scoring"
	"hiregenius-go/internal/storage"
	"hiregenius-go/internal/storage/models"
	"hiregenius-go/internal/tracing"
	"hiregenius-go/internal/types"
)

// isConflict 判断存储层错误是否为唯一键冲突
func isConflict(err error) bool {
	return errors.Is(err, storage.ErrDuplicateKey)
}

// SubmitResumeResult 简历提交事件的处理结果
type SubmitResumeResult struct {
	CandidateID string                  `json:"candidate_id"`
	Profile     *types.CandidateProfile `json:"profile"`
	VectorSlot  int64                   `json:"vector_slot"` // 向量化降级时为-1
	Applied     bool                    `json:"applied"`     // 是否附带完成了岗位投递
	MatchScore  *float64                `json:"match_score,omitempty"`
}

// SubmitQuizResult 答卷提交事件的处理结果
type SubmitQuizResult struct {
	QuizID           string  `json:"quiz_id"`
	QuizScore        float64 `json:"quiz_score"`
	MatchScore       float64 `json:"match_score"`
	FinalScore       float64 `json:"final_score"`
	Invited          bool    `json:"invited"`
	NotificationSent bool    `json:"notification_sent"`
}

// QuizView 对外暴露的测验视图
type QuizView struct {
	JobID     string               `json:"job_id"`
	Questions []types.QuizQuestion `json:"questions"`
	Fallback  bool                 `json:"fallback"` // 是否为兜底题目
}

// requireRecruiter 校验请求主体为招聘方角色
func requireRecruiter(principal types.Principal) error {
	if principal.Role != constants.RoleRecruiter {
		return fmt.Errorf("role %q: %w", principal.Role, ErrForbidden)
	}
	return nil
}

// requireCandidate 校验请求主体为候选人角色
func requireCandidate(principal types.Principal) error {
	if principal.Role != constants.RoleCandidate {
		return fmt.Errorf("role %q: %w", principal.Role, ErrForbidden)
	}
	return nil
}

func newUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// llmTimeout 解析配置中的超时字符串，缺省60秒
func (s *ScreeningService) llmTimeout(raw string) time.Duration {
	return config.GetDuration(raw, 60*time.Second)
}

// CreateJob 创建岗位并预热JD缓存，仅限招聘方
func (s *ScreeningService) CreateJob(ctx context.Context, principal types.Principal, title, description string) (*models.Job, error) {
	if err := requireRecruiter(principal); err != nil {
		return nil, err
	}

	job := &models.Job{
		JobID:           newUUID(),
		Title:           title,
		Description:     description,
		CreatedByUserID: principal.UserID,
	}
	if err := s.components.Store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("创建岗位失败: %w", err)
	}

	if s.components.Cache != nil {
		if err := s.components.Cache.CacheJobDescription(ctx, job.JobID, job.Description); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.JobID).Msg("预热JD缓存失败")
		}
	}
	return job, nil
}

// ListJobs 列出全部岗位
func (s *ScreeningService) ListJobs(ctx context.Context) ([]models.Job, error) {
	return s.components.Store.ListJobs(ctx)
}

// JobListing 岗位列表条目。候选人视角附带简历相似度分与投递状态
type JobListing struct {
	Job        models.Job
	MatchScore *float64 // 简历与JD的余弦相似度百分比，保留1位小数；无画像或向量化失败时为nil
	HasApplied bool
}

// ListJobsForPrincipal 列出全部岗位。
// 候选人视角在每个岗位上附加简历相似度分和是否已投递；
// 尚无画像或向量化失败时退化为普通列表，不报错
func (s *ScreeningService) ListJobsForPrincipal(ctx context.Context, principal types.Principal) ([]JobListing, error) {
	jobs, err := s.components.Store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询岗位列表失败: %w", err)
	}

	listings := make([]JobListing, len(jobs))
	for i, job := range jobs {
		listings[i] = JobListing{Job: job}
	}
	if principal.Role != constants.RoleCandidate || len(jobs) == 0 {
		return listings, nil
	}

	candidate, err := s.components.Store.GetCandidateByUserID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return listings, nil
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}
	if candidate.ResumeText == "" {
		return listings, nil
	}

	apps, err := s.components.Store.ListApplicationsByCandidate(ctx, candidate.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("查询投递记录失败: %w", err)
	}
	applied := make(map[string]bool, len(apps))
	for _, app := range apps {
		applied[app.JobID] = true
	}
	for i := range listings {
		listings[i].HasApplied = applied[listings[i].Job.JobID]
	}

	s.attachJobSimilarity(ctx, candidate, listings)
	return listings, nil
}

// attachJobSimilarity 计算简历与各岗位JD的余弦相似度并写进列表条目。
// 一次批量向量化: 首条为简历文本，其余依次为各岗位JD。失败只记日志
func (s *ScreeningService) attachJobSimilarity(ctx context.Context, candidate *models.Candidate, listings []JobListing) {
	if s.components.Embedder == nil {
		return
	}

	texts := make([]string, 0, len(listings)+1)
	texts = append(texts, parser.TruncateRunes(candidate.ResumeText, constants.ResumePromptMaxChars))
	for _, listing := range listings {
		texts = append(texts, listing.Job.Description)
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.extractorTimeout())
	defer cancel()
	vectors, err := s.components.Embedder.EmbedStrings(embedCtx, texts)
	if err != nil || len(vectors) != len(texts) {
		logger.Ctx(ctx).Warn().Err(err).Str("candidate_id", candidate.CandidateID).Msg("岗位相似度向量化失败，跳过打分")
		return
	}

	for i := range listings {
		score := scoring.CosineSimilarity(vectors[0], vectors[i+1]) * 100
		score = math.Round(score*10) / 10
		listings[i].MatchScore = &score
	}
}

// SimilarCandidates 按JD语义相似度检索最接近的候选人，仅限招聘方。
// 结果按距离升序，重复上传占多个槽位的候选人取最小距离去重
func (s *ScreeningService) SimilarCandidates(ctx context.Context, principal types.Principal, jobID string) ([]types.SimilarCandidate, error) {
	if err := requireRecruiter(principal); err != nil {
		return nil, err
	}

	job, err := s.components.Store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.extractorTimeout())
	defer cancel()
	vectors, err := s.components.Embedder.EmbedStrings(embedCtx, []string{s.jobDescription(ctx, job)})
	if err != nil {
		return nil, fmt.Errorf("岗位描述向量化失败: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("岗位描述向量化返回空结果")
	}

	topK := constants.DefaultSimilarTopK
	if s.cfg != nil && s.cfg.VectorIndex.TopK > 0 {
		topK = s.cfg.VectorIndex.TopK
	}
	results, err := s.components.VectorIndex.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("相似候选人检索失败: %w", err)
	}
	return results, nil
}

// jobDescription 读取岗位描述，优先走Redis缓存
func (s *ScreeningService) jobDescription(ctx context.Context, job *models.Job) string {
	if s.components.Cache == nil {
		return job.Description
	}
	if text, err := s.components.Cache.GetCachedJobDescription(ctx, job.JobID); err == nil && text != "" {
		return text
	}
	if err := s.components.Cache.CacheJobDescription(ctx, job.JobID, job.Description); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.JobID).Msg("回填JD缓存失败")
	}
	return job.Description
}

// SubmitResume 处理简历提交事件。
// 流程: 提取文本 -> 结构化画像 -> 候选人画像落库(联系方式仅首次写入)
// -> 向量入索引(无条件追加) -> 可选的岗位投递与匹配评估 -> 归档原始文件。
// 向量化与匹配评估失败均被吸收，不阻断提交
func (s *ScreeningService) SubmitResume(ctx context.Context, principal types.Principal, fileData []byte, filename string, jobID string) (*SubmitResumeResult, error) {
	if err := requireCandidate(principal); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ScreeningService.SubmitResume")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", principal.UserID),
		attribute.String("resume.filename", tracing.SafeAttributeValue("filename", filename, tracing.DefaultMaxLength)),
	)

	resumeText, err := s.components.TextExtractor.ExtractText(ctx, fileData, filename)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, fmt.Errorf("简历文本提取失败: %w", err)
	}

	extractCtx, cancelExtract := context.WithTimeout(ctx, s.extractorTimeout())
	profile, err := s.components.ProfileExtractor.ExtractProfile(extractCtx, resumeText)
	cancelExtract()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, fmt.Errorf("画像提取失败: %w", err)
	}

	// 同一用户的画像写入串行化，避免并发上传互相覆盖
	unlock := s.locks.Lock("resume:" + principal.UserID)
	candidateID, err := s.upsertCandidate(ctx, principal, profile, fileData, filename)
	unlock()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}
	span.SetAttributes(attribute.String("candidate.id", candidateID))

	result := &SubmitResumeResult{
		CandidateID: candidateID,
		Profile:     profile,
		VectorSlot:  s.indexResumeVector(ctx, candidateID, resumeText),
	}

	if jobID != "" {
		if err := s.applyToJob(ctx, jobID, candidateID, resumeText, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return nil, err
		}
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *ScreeningService) extractorTimeout() time.Duration {
	if s.cfg == nil {
		return 60 * time.Second
	}
	return s.llmTimeout(s.cfg.ProfileExtractor.ExtractionTimeout)
}

// upsertCandidate 创建或更新候选人画像。
// 联系方式(email/phone)只在首次创建时写入，保留候选人后续人工修正的余地
func (s *ScreeningService) upsertCandidate(ctx context.Context, principal types.Principal, profile *types.CandidateProfile, fileData []byte, filename string) (string, error) {
	store := s.components.Store

	existing, err := store.GetCandidateByUserID(ctx, principal.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("查询候选人失败: %w", err)
	}

	candidateID := ""
	if existing != nil {
		candidateID = existing.CandidateID
	} else {
		candidateID = newUUID()
	}

	objectKey := s.archiveResumeFile(ctx, candidateID, fileData, filename)

	skillsJSON, _ := models.StringSliceToJSON(profile.Skills)
	companiesJSON, _ := models.StringSliceToJSON(profile.Companies)

	candidate := &models.Candidate{
		CandidateID:     candidateID,
		UserID:          principal.UserID,
		Name:            profile.Name,
		Email:           profile.Email,
		Phone:           profile.Phone,
		SkillsJSON:      skillsJSON,
		TotalExperience: profile.TotalExperience,
		CurrentRole:     profile.CurrentRole,
		CompaniesJSON:   companiesJSON,
		ResumeText:      profile.RawText,
		ResumeObjectKey: objectKey,
	}

	if existing == nil {
		if err := store.CreateCandidate(ctx, candidate); err != nil {
			return "", fmt.Errorf("创建候选人画像失败: %w", err)
		}
		return candidateID, nil
	}
	if err := store.UpdateCandidateProfile(ctx, candidate); err != nil {
		return "", fmt.Errorf("更新候选人画像失败: %w", err)
	}
	return candidateID, nil
}

// archiveResumeFile 将原始简历文件归档到对象存储，失败只记日志
func (s *ScreeningService) archiveResumeFile(ctx context.Context, candidateID string, fileData []byte, filename string) string {
	if s.components.FileStore == nil {
		return ""
	}
	ext := filepath.Ext(filename)
	objectKey, err := s.components.FileStore.UploadResumeFile(ctx, candidateID, ext, bytes.NewReader(fileData), int64(len(fileData)))
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("candidate_id", candidateID).Msg("简历原始文件归档失败")
		return ""
	}
	return objectKey
}

// indexResumeVector 将简历文本向量化并追加进相似度索引。
// 追加策略: 重复上传会插入新向量而不是替换旧向量，旧槽位保留，
// 检索时按候选人去重取最小距离。任一步失败降级为-1，不阻断提交
func (s *ScreeningService) indexResumeVector(ctx context.Context, candidateID string, resumeText string) int64 {
	if s.components.Embedder == nil {
		return -1
	}

	text := parser.TruncateRunes(resumeText, constants.ResumePromptMaxChars)

	embedCtx, cancel := context.WithTimeout(ctx, s.extractorTimeout())
	defer cancel()
	vectors, err := s.components.Embedder.EmbedStrings(embedCtx, []string{text})
	if err != nil || len(vectors) == 0 {
		logger.Ctx(ctx).Warn().Err(err).Str("candidate_id", candidateID).Msg("简历向量化失败，跳过索引插入")
		return -1
	}

	slot, err := s.components.VectorIndex.Add(ctx, candidateID, vectors[0])
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("candidate_id", candidateID).Msg("向量索引插入失败")
		return -1
	}

	if err := s.components.Store.SetCandidateVectorSlot(ctx, candidateID, slot); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("candidate_id", candidateID).Int64("slot", slot).Msg("记录向量槽位失败")
	}
	return slot
}

// applyToJob 简历提交附带岗位时的投递流程。
// 岗位不存在返回NotFound，重复投递返回Conflict；
// 匹配评估是尽力而为的，失败不影响投递成功
func (s *ScreeningService) applyToJob(ctx context.Context, jobID, candidateID, resumeText string, result *SubmitResumeResult) error {
	job, err := s.components.Store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
		}
		return fmt.Errorf("查询岗位失败: %w", err)
	}

	unlock := s.locks.Lock("pair:" + jobID + ":" + candidateID)
	defer unlock()

	app := &models.Application{
		ApplicationID: newUUID(),
		JobID:         jobID,
		CandidateID:   candidateID,
		Status:        constants.ApplicationStatusApplied,
	}
	if err := s.components.Store.CreateApplication(ctx, app); err != nil {
		if isConflict(err) {
			return fmt.Errorf("job %s candidate %s: %w", jobID, candidateID, ErrDuplicateApplication)
		}
		return fmt.Errorf("创建投递记录失败: %w", err)
	}
	result.Applied = true

	// 匹配评估: 降级结果(零分+固定理由)同样落库，保持"当前匹配"语义
	evaluation := s.evaluateAndStoreMatch(ctx, job, candidateID, resumeText)
	if evaluation != nil {
		result.MatchScore = &evaluation.OverallMatchScore
	}
	return nil
}

// ApplyToJob 用已有画像投递岗位，不需要重新上传简历。
// 候选人尚无画像时返回NotFound
func (s *ScreeningService) ApplyToJob(ctx context.Context, principal types.Principal, jobID string) (*SubmitResumeResult, error) {
	if err := requireCandidate(principal); err != nil {
		return nil, err
	}

	candidate, err := s.components.Store.GetCandidateByUserID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", principal.UserID, ErrCandidateNotFound)
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}

	result := &SubmitResumeResult{CandidateID: candidate.CandidateID, VectorSlot: -1}
	if candidate.VectorSlot != nil {
		result.VectorSlot = *candidate.VectorSlot
	}
	if err := s.applyToJob(ctx, jobID, candidate.CandidateID, candidate.ResumeText, result); err != nil {
		return nil, err
	}
	return result, nil
}

// evaluateAndStoreMatch 计算并落库匹配结果，存储失败时返回nil
func (s *ScreeningService) evaluateAndStoreMatch(ctx context.Context, job *models.Job, candidateID string, resumeText string) *types.MatchEvaluation {
	evalTimeout := 60 * time.Second
	if s.cfg != nil {
		evalTimeout = s.llmTimeout(s.cfg.MatchEvaluator.EvalTimeout)
	}
	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	evaluation, err := s.components.MatchEvaluator.EvaluateMatch(evalCtx, s.jobDescription(ctx, job), resumeText)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.JobID).Str("candidate_id", candidateID).Msg("匹配评估失败，跳过落库")
		return nil
	}
	if evaluation.Degraded {
		logger.Ctx(ctx).Warn().Str("job_id", job.JobID).Str("candidate_id", candidateID).
			Str("reasoning", evaluation.Reasoning).Msg("匹配评估降级")
		tracing.RecordLLMDegradation(trace.SpanFromContext(ctx), "match_evaluation", evaluation.Reasoning)
	}

	record := &models.MatchResult{
		JobID:                     job.JobID,
		CandidateID:               candidateID,
		SkillMatchPercentage:      evaluation.SkillMatchPercentage,
		ExperienceMatchPercentage: evaluation.ExperienceMatchPercentage,
		OverallMatchScore:         evaluation.OverallMatchScore,
		Reasoning:                 evaluation.Reasoning,
	}
	if err := s.components.Store.UpsertMatchResult(ctx, record); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.JobID).Str("candidate_id", candidateID).Msg("匹配结果落库失败")
		return nil
	}
	return evaluation
}

// MatchJob 重算岗位全部投递者的匹配结果，返回处理的人数。仅限招聘方
func (s *ScreeningService) MatchJob(ctx context.Context, principal types.Principal, jobID string) (int, error) {
	if err := requireRecruiter(principal); err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "ScreeningService.MatchJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	job, err := s.components.Store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
		}
		return 0, fmt.Errorf("查询岗位失败: %w", err)
	}

	apps, err := s.components.Store.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("查询投递记录失败: %w", err)
	}

	processed := 0
	for _, app := range apps {
		candidate, err := s.components.Store.GetCandidateByID(ctx, app.CandidateID)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("candidate_id", app.CandidateID).Msg("投递者画像缺失，跳过匹配")
			continue
		}
		if s.evaluateAndStoreMatch(ctx, job, candidate.CandidateID, candidate.ResumeText) != nil {
			processed++
		}
	}

	span.SetAttributes(attribute.Int("match.processed", processed))
	span.SetStatus(codes.Ok, "")
	return processed, nil
}

// EnsureQuiz 获取岗位的最新测验，不存在时自动出题。
// 出题为空时落一套固定兜底题目，保证该读取路径永不因LLM失败而报错
func (s *ScreeningService) EnsureQuiz(ctx context.Context, jobID string) (*QuizView, error) {
	job, err := s.components.Store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}

	if s.components.Cache != nil {
		if questions, fallback, err := s.components.Cache.GetCachedLatestQuiz(ctx, jobID); err == nil && len(questions) > 0 {
			return &QuizView{JobID: jobID, Questions: questions, Fallback: fallback}, nil
		}
	}

	// 同一岗位的自动出题串行化，避免并发读触发重复生成
	unlock := s.locks.Lock("quiz:" + jobID)
	defer unlock()

	quiz, err := s.components.Store.GetLatestQuiz(ctx, jobID)
	if err == nil {
		questions, decodeErr := decodeStoredQuestions(quiz.QuestionsJSON)
		if decodeErr != nil {
			return nil, fmt.Errorf("quiz %s: %w", quiz.QuizID, ErrQuizDataCorrupt)
		}
		s.cacheQuiz(ctx, jobID, questions, quiz.Fallback)
		return &QuizView{JobID: jobID, Questions: questions, Fallback: quiz.Fallback}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询测验失败: %w", err)
	}

	return s.provisionQuiz(ctx, job)
}

// GenerateQuiz 显式为岗位重新出题(追加新行)，仅限招聘方
func (s *ScreeningService) GenerateQuiz(ctx context.Context, principal types.Principal, jobID string) (*QuizView, error) {
	if err := requireRecruiter(principal); err != nil {
		return nil, err
	}

	job, err := s.components.Store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}

	unlock := s.locks.Lock("quiz:" + jobID)
	defer unlock()
	return s.provisionQuiz(ctx, job)
}

// provisionQuiz 出一套新题并落库；生成为空时使用兜底题目
func (s *ScreeningService) provisionQuiz(ctx context.Context, job *models.Job) (*QuizView, error) {
	genTimeout := 60 * time.Second
	if s.cfg != nil {
		genTimeout = s.llmTimeout(s.cfg.QuizGenerator.GenerateTimeout)
	}
	genCtx, cancel := context.WithTimeout(ctx, genTimeout)
	questions, err := s.components.QuizGenerator.GenerateQuiz(genCtx, s.jobDescription(ctx, job))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("测验生成失败: %w", err)
	}

	fallback := false
	if len(questions) == 0 {
		questions = parser.FallbackQuizQuestions()
		fallback = true
		logger.Ctx(ctx).Warn().Str("job_id", job.JobID).Msg("LLM出题为空，使用兜底题目")
	}

	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("序列化测验题目失败: %w", err)
	}
	quiz := &models.Quiz{
		QuizID:        newUUID(),
		JobID:         job.JobID,
		QuestionsJSON: datatypes.JSON(questionsJSON),
		Fallback:      fallback,
	}
	if err := s.components.Store.CreateQuiz(ctx, quiz); err != nil {
		return nil, fmt.Errorf("保存测验失败: %w", err)
	}

	if s.components.Cache != nil {
		if err := s.components.Cache.InvalidateLatestQuiz(ctx, job.JobID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.JobID).Msg("失效测验缓存失败")
		}
	}
	s.cacheQuiz(ctx, job.JobID, questions, fallback)

	return &QuizView{JobID: job.JobID, Questions: questions, Fallback: fallback}, nil
}

func (s *ScreeningService) cacheQuiz(ctx context.Context, jobID string, questions []types.QuizQuestion, fallback bool) {
	if s.components.Cache == nil {
		return
	}
	if err := s.components.Cache.CacheLatestQuiz(ctx, jobID, questions, fallback); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("job_id", jobID).Msg("写入测验缓存失败")
	}
}

// SubmitQuiz 处理答卷提交事件。
// 候选人身份从认证主体解析，不信任客户端传入的候选人ID。
// 流程: 最新测验 -> 按位计分 -> 追加答卷记录 -> 读取匹配分(缺失按0)
// -> 加权总分 -> 追加排名记录 -> 达线则尽力发送面试邀请
func (s *ScreeningService) SubmitQuiz(ctx context.Context, principal types.Principal, jobID string, answers []string) (*SubmitQuizResult, error) {
	if err := requireCandidate(principal); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ScreeningService.SubmitQuiz")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", jobID),
		attribute.String("user.id", principal.UserID),
	)

	store := s.components.Store

	candidate, err := store.GetCandidateByUserID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", principal.UserID, ErrCandidateNotFound)
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}

	job, err := store.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}

	unlock := s.locks.Lock("pair:" + jobID + ":" + candidate.CandidateID)
	defer unlock()

	quiz, err := store.GetLatestQuiz(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrQuizNotFound)
		}
		return nil, fmt.Errorf("查询测验失败: %w", err)
	}

	questions, err := decodeStoredQuestions(quiz.QuestionsJSON)
	if err != nil {
		// 测验损坏没有安全兜底，直接失败
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, fmt.Errorf("quiz %s: %v: %w", quiz.QuizID, err, ErrQuizDataCorrupt)
	}

	quizScore := scoring.QuizScore(answers, types.QuizAnswerKey(questions))

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("序列化答案失败: %w", err)
	}
	quizResult := &models.QuizResult{
		QuizID:      quiz.QuizID,
		JobID:       jobID,
		CandidateID: candidate.CandidateID,
		AnswersJSON: datatypes.JSON(answersJSON),
		Score:       quizScore,
	}
	if err := store.CreateQuizResult(ctx, quizResult); err != nil {
		return nil, fmt.Errorf("保存答卷记录失败: %w", err)
	}

	// 匹配分缺失按0处理，不视为错误
	matchScore := 0.0
	if match, err := store.GetMatchResult(ctx, jobID, candidate.CandidateID); err == nil {
		matchScore = match.OverallMatchScore
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询匹配结果失败: %w", err)
	}

	finalScore := scoring.FinalScore(matchScore, quizScore)
	invited := scoring.ShouldInvite(finalScore)

	ranking := &models.FinalRanking{
		JobID:       jobID,
		CandidateID: candidate.CandidateID,
		MatchScore:  matchScore,
		QuizScore:   quizScore,
		FinalScore:  finalScore,
		Invited:     invited,
	}
	if err := store.CreateFinalRanking(ctx, ranking); err != nil {
		return nil, fmt.Errorf("保存排名记录失败: %w", err)
	}

	result := &SubmitQuizResult{
		QuizID:     quiz.QuizID,
		QuizScore:  quizScore,
		MatchScore: matchScore,
		FinalScore: finalScore,
		Invited:    invited,
	}
	if invited {
		result.NotificationSent = s.notifyInvite(ctx, candidate, job)
	}

	span.SetAttributes(
		attribute.Float64("score.final", finalScore),
		attribute.Bool("invited", invited),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// notifyInvite 发送面试邀请，失败只计数和记日志，不影响请求结果
func (s *ScreeningService) notifyInvite(ctx context.Context, candidate *models.Candidate, job *models.Job) bool {
	if s.components.Notifier == nil {
		return false
	}

	sent := s.components.Notifier.SendInterviewInvite(ctx, candidate.Email, candidate.Name, job.Title)
	if !sent {
		tracing.RecordNotificationFailure(trace.SpanFromContext(ctx), "email")
		logger.Ctx(ctx).Warn().
			Str("candidate_id", candidate.CandidateID).
			Str("job_id", job.JobID).
			Msg("面试邀请发送失败")
		if s.components.Cache != nil {
			if _, err := s.components.Cache.IncrNotifyFailureCount(ctx); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("累加通知失败计数失败")
			}
		}
	}
	return sent
}

// Rankings 返回岗位的完整排名(按总分降序，同分保持提交顺序)。仅限招聘方。
// 尚无排名记录时返回NotFound
func (s *ScreeningService) Rankings(ctx context.Context, principal types.Principal, jobID string) ([]types.RankingEntry, error) {
	if err := requireRecruiter(principal); err != nil {
		return nil, err
	}

	store := s.components.Store
	if _, err := store.GetJobByID(ctx, jobID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}

	rows, err := store.ListLatestFinalRankingsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("查询排名失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrRankingNotFound)
	}

	entries := make([]types.RankingEntry, 0, len(rows))
	for _, row := range rows {
		entry := types.RankingEntry{
			CandidateID: row.CandidateID,
			MatchScore:  row.MatchScore,
			QuizScore:   row.QuizScore,
			FinalScore:  row.FinalScore,
			Invited:     row.Invited,
		}
		if candidate, err := store.GetCandidateByID(ctx, row.CandidateID); err == nil {
			entry.CandidateName = candidate.Name
			entry.CandidateEmail = candidate.Email
		}
		entries = append(entries, entry)
	}
	return scoring.Rank(entries), nil
}

// TopCandidate 返回岗位排名第一的候选人。仅限招聘方
func (s *ScreeningService) TopCandidate(ctx context.Context, principal types.Principal, jobID string) (*types.RankingEntry, error) {
	entries, err := s.Rankings(ctx, principal, jobID)
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// decodeStoredQuestions 解析落库的测验题目JSON。
// 兼容三种历史形态: 题目数组、字符串二次编码的数组、{"questions": [...]}包装对象。
// 解析失败或结果为空视为数据损坏
func decodeStoredQuestions(raw datatypes.JSON) ([]types.QuizQuestion, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return nil, fmt.Errorf("测验题目为空")
	}

	// 字符串形态: 先解出内层JSON文本
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("解析字符串编码的题目失败: %w", err)
		}
		data = bytes.TrimSpace([]byte(inner))
		if len(data) == 0 {
			return nil, fmt.Errorf("测验题目为空")
		}
	}

	var questions []types.QuizQuestion
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("解析题目数组失败: %w", err)
		}
	case '{':
		var wrapped struct {
			Questions []types.QuizQuestion `json:"questions"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("解析题目包装对象失败: %w", err)
		}
		questions = wrapped.Questions
	default:
		return nil, fmt.Errorf("无法识别的题目JSON形态")
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("题目列表为空")
	}
	for i, q := range questions {
		if q.Question == "" || len(q.Options) == 0 {
			return nil, fmt.Errorf("第 %d 题缺少题干或选项", i+1)
		}
	}
	return questions, nil
}
