package processor

import (
	"context"
	"io"

	"hiregenius-go/internal/storage/models"
	"hiregenius-go/internal/types"
)

// ProfileExtractor 从简历文本提取结构化候选人画像
type ProfileExtractor interface {
	ExtractProfile(ctx context.Context, resumeText string) (*types.CandidateProfile, error)
}

// MatchEvaluator 评估候选人画像与岗位描述的匹配度
type MatchEvaluator interface {
	EvaluateMatch(ctx context.Context, jobDescription string, resumeText string) (*types.MatchEvaluation, error)
}

// QuizGenerator 根据岗位描述生成测验题目
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, jobDescription string) ([]types.QuizQuestion, error)
}

// ResumeTextExtractor 从简历文件内容提取纯文本
type ResumeTextExtractor interface {
	ExtractText(ctx context.Context, data []byte, filename string) (string, error)
}

// Notifier 面试邀请通知接口，返回是否发送成功
type Notifier interface {
	SendInterviewInvite(ctx context.Context, toEmail string, candidateName string, jobTitle string) bool
}

// VectorIndex 候选人向量索引
type VectorIndex interface {
	Add(ctx context.Context, candidateID string, vector []float64) (int64, error)
	Search(ctx context.Context, vector []float64, topK int) ([]types.SimilarCandidate, error)
}

// ScreeningStore 筛选流水线依赖的存储访问接口，由 storage.MySQL 实现。
// 抽出接口便于测试时用内存实现替换
type ScreeningStore interface {
	GetCandidateByUserID(ctx context.Context, userID string) (*models.Candidate, error)
	GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error)
	CreateCandidate(ctx context.Context, candidate *models.Candidate) error
	UpdateCandidateProfile(ctx context.Context, candidate *models.Candidate) error
	SetCandidateVectorSlot(ctx context.Context, candidateID string, slot int64) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)

	CreateApplication(ctx context.Context, app *models.Application) error
	ListApplicationsByJob(ctx context.Context, jobID string) ([]models.Application, error)
	ListApplicationsByCandidate(ctx context.Context, candidateID string) ([]models.Application, error)

	UpsertMatchResult(ctx context.Context, result *models.MatchResult) error
	GetMatchResult(ctx context.Context, jobID, candidateID string) (*models.MatchResult, error)

	CreateQuiz(ctx context.Context, quiz *models.Quiz) error
	GetLatestQuiz(ctx context.Context, jobID string) (*models.Quiz, error)

	CreateQuizResult(ctx context.Context, result *models.QuizResult) error
	CreateFinalRanking(ctx context.Context, ranking *models.FinalRanking) error
	ListLatestFinalRankingsByJob(ctx context.Context, jobID string) ([]models.FinalRanking, error)
}

// ResumeFileStore 简历原始文件的对象存储接口，由 storage.MinIO 实现
type ResumeFileStore interface {
	UploadResumeFile(ctx context.Context, candidateID, fileExt string, reader io.Reader, fileSize int64) (string, error)
}

// ScreeningCache 筛选流水线的缓存接口，由 storage.Redis 实现
type ScreeningCache interface {
	CacheJobDescription(ctx context.Context, jobID string, text string) error
	GetCachedJobDescription(ctx context.Context, jobID string) (string, error)
	CacheLatestQuiz(ctx context.Context, jobID string, questions []types.QuizQuestion, fallback bool) error
	GetCachedLatestQuiz(ctx context.Context, jobID string) ([]types.QuizQuestion, bool, error)
	InvalidateLatestQuiz(ctx context.Context, jobID string) error
	IncrNotifyFailureCount(ctx context.Context) (int64, error)
}

