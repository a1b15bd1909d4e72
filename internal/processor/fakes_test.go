package processor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"gorm.io/gorm"

	"hiregenius-go/internal/storage"
	"hiregenius-go/internal/storage/models"
	"hiregenius-go/internal/types"
)

// fakeStore 内存版ScreeningStore，行为对齐MySQL实现:
// 缺记录返回gorm.ErrRecordNotFound，唯一键冲突返回storage.ErrDuplicateKey，
// 画像更新不触碰联系方式字段
type fakeStore struct {
	mu            sync.Mutex
	candidates    map[string]*models.Candidate // candidateID -> 画像
	jobs          map[string]*models.Job
	apps          map[string]*models.Application // jobID:candidateID -> 投递
	matches       map[string]*models.MatchResult // jobID:candidateID -> 匹配
	quizzes       []*models.Quiz
	quizResults   []*models.QuizResult
	rankings      []*models.FinalRanking
	nextRankingID uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		candidates: make(map[string]*models.Candidate),
		jobs:       make(map[string]*models.Job),
		apps:       make(map[string]*models.Application),
		matches:    make(map[string]*models.MatchResult),
	}
}

func pairKey(jobID, candidateID string) string {
	return jobID + ":" + candidateID
}

func (f *fakeStore) GetCandidateByUserID(ctx context.Context, userID string) (*models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.candidates {
		if c.UserID == userID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.candidates[candidateID]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.candidates {
		if c.UserID == candidate.UserID {
			return fmt.Errorf("候选人画像已存在: %w", storage.ErrDuplicateKey)
		}
	}
	copied := *candidate
	f.candidates[candidate.CandidateID] = &copied
	return nil
}

func (f *fakeStore) UpdateCandidateProfile(ctx context.Context, candidate *models.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.candidates[candidate.CandidateID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	// 与MySQL实现一致: 联系方式不在更新列中
	existing.Name = candidate.Name
	existing.SkillsJSON = candidate.SkillsJSON
	existing.TotalExperience = candidate.TotalExperience
	existing.CurrentRole = candidate.CurrentRole
	existing.CompaniesJSON = candidate.CompaniesJSON
	existing.ResumeText = candidate.ResumeText
	existing.ResumeObjectKey = candidate.ResumeObjectKey
	return nil
}

func (f *fakeStore) SetCandidateVectorSlot(ctx context.Context, candidateID string, slot int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.candidates[candidateID]; ok {
		c.VectorSlot = &slot
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeStore) CreateJob(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.JobID] = &copied
	return nil
}

func (f *fakeStore) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		copied := *j
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) ListJobs(ctx context.Context) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := make([]models.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (f *fakeStore) CreateApplication(ctx context.Context, app *models.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(app.JobID, app.CandidateID)
	if _, ok := f.apps[key]; ok {
		return fmt.Errorf("候选人已投递该岗位: %w", storage.ErrDuplicateKey)
	}
	copied := *app
	f.apps[key] = &copied
	return nil
}

func (f *fakeStore) ListApplicationsByJob(ctx context.Context, jobID string) ([]models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var apps []models.Application
	for _, a := range f.apps {
		if a.JobID == jobID {
			apps = append(apps, *a)
		}
	}
	return apps, nil
}

func (f *fakeStore) ListApplicationsByCandidate(ctx context.Context, candidateID string) ([]models.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var apps []models.Application
	for _, a := range f.apps {
		if a.CandidateID == candidateID {
			apps = append(apps, *a)
		}
	}
	return apps, nil
}

func (f *fakeStore) UpsertMatchResult(ctx context.Context, result *models.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *result
	f.matches[pairKey(result.JobID, result.CandidateID)] = &copied
	return nil
}

func (f *fakeStore) GetMatchResult(ctx context.Context, jobID, candidateID string) (*models.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.matches[pairKey(jobID, candidateID)]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *quiz
	f.quizzes = append(f.quizzes, &copied)
	return nil
}

func (f *fakeStore) GetLatestQuiz(ctx context.Context, jobID string) (*models.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.quizzes) - 1; i >= 0; i-- {
		if f.quizzes[i].JobID == jobID {
			copied := *f.quizzes[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) CreateQuizResult(ctx context.Context, result *models.QuizResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *result
	f.quizResults = append(f.quizResults, &copied)
	return nil
}

func (f *fakeStore) CreateFinalRanking(ctx context.Context, ranking *models.FinalRanking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRankingID++
	copied := *ranking
	copied.RankingID = f.nextRankingID
	f.rankings = append(f.rankings, &copied)
	return nil
}

func (f *fakeStore) ListLatestFinalRankingsByJob(ctx context.Context, jobID string) ([]models.FinalRanking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// 每个候选人只保留最新一行，整体按插入顺序返回
	latest := make(map[string]*models.FinalRanking)
	for _, r := range f.rankings {
		if r.JobID == jobID {
			latest[r.CandidateID] = r
		}
	}
	var rows []models.FinalRanking
	for _, r := range f.rankings {
		if r.JobID == jobID && latest[r.CandidateID] == r {
			rows = append(rows, *r)
		}
	}
	return rows, nil
}

var _ ScreeningStore = (*fakeStore)(nil)

// --- 组件假实现 ---

type fakeTextExtractor struct {
	text string
	err  error
}

func (f *fakeTextExtractor) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return string(data), nil
}

type fakeProfileExtractor struct {
	profile *types.CandidateProfile
}

func (f *fakeProfileExtractor) ExtractProfile(ctx context.Context, resumeText string) (*types.CandidateProfile, error) {
	p := *f.profile
	p.RawText = resumeText
	return &p, nil
}

type fakeMatchEvaluator struct {
	evaluation *types.MatchEvaluation
	err        error
	calls      int
}

func (f *fakeMatchEvaluator) EvaluateMatch(ctx context.Context, jobDescription string, resumeText string) (*types.MatchEvaluation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.evaluation
	return &copied, nil
}

type fakeQuizGenerator struct {
	questions []types.QuizQuestion
	calls     int
}

func (f *fakeQuizGenerator) GenerateQuiz(ctx context.Context, jobDescription string) ([]types.QuizQuestion, error) {
	f.calls++
	return f.questions, nil
}

type fakeNotifier struct {
	ok        bool
	sentEmail []string
}

func (f *fakeNotifier) SendInterviewInvite(ctx context.Context, toEmail string, candidateName string, jobTitle string) bool {
	f.sentEmail = append(f.sentEmail, toEmail)
	return f.ok
}

type fakeEmbedder struct {
	vector  []float64
	byText  map[string][]float64 // 指定文本的专属向量，未命中时退回vector
	err     error
	batches [][]string
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, texts)
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := f.byText[text]; ok {
			out[i] = v
			continue
		}
		out[i] = f.vector
	}
	return out, nil
}

type fakeVectorIndex struct {
	mu       sync.Mutex
	ids      []string
	results  []types.SimilarCandidate
	lastTopK int
}

func (f *fakeVectorIndex) Add(ctx context.Context, candidateID string, vector []float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, candidateID)
	return int64(len(f.ids) - 1), nil
}

func (f *fakeVectorIndex) Search(ctx context.Context, vector []float64, topK int) ([]types.SimilarCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTopK = topK
	return f.results, nil
}

type fakeFileStore struct {
	uploads int
}

func (f *fakeFileStore) UploadResumeFile(ctx context.Context, candidateID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	f.uploads++
	return "resume/" + candidateID + "/original" + fileExt, nil
}

type cachedQuiz struct {
	questions []types.QuizQuestion
	fallback  bool
}

type fakeCache struct {
	mu            sync.Mutex
	jdCache       map[string]string
	quizCache     map[string]cachedQuiz
	notifyFailure int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		jdCache:   make(map[string]string),
		quizCache: make(map[string]cachedQuiz),
	}
}

func (f *fakeCache) CacheJobDescription(ctx context.Context, jobID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jdCache[jobID] = text
	return nil
}

func (f *fakeCache) GetCachedJobDescription(ctx context.Context, jobID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if text, ok := f.jdCache[jobID]; ok {
		return text, nil
	}
	return "", storage.ErrNotFound
}

func (f *fakeCache) CacheLatestQuiz(ctx context.Context, jobID string, questions []types.QuizQuestion, fallback bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quizCache[jobID] = cachedQuiz{questions: questions, fallback: fallback}
	return nil
}

func (f *fakeCache) GetCachedLatestQuiz(ctx context.Context, jobID string) ([]types.QuizQuestion, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if q, ok := f.quizCache[jobID]; ok {
		return q.questions, q.fallback, nil
	}
	return nil, false, storage.ErrNotFound
}

func (f *fakeCache) InvalidateLatestQuiz(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.quizCache, jobID)
	return nil
}

func (f *fakeCache) IncrNotifyFailureCount(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyFailure++
	return f.notifyFailure, nil
}
