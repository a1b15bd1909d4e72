package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"hiregenius-go/internal/constants"
	"hiregenius-go/internal/parser"
	"hiregenius-go/internal/storage/models"
	"hiregenius-go/internal/types"
)

var (
	recruiterPrincipal = types.Principal{UserID: "user-recruiter", Role: constants.RoleRecruiter}
	candidatePrincipal = types.Principal{UserID: "user-candidate", Role: constants.RoleCandidate}
)

// testEnv 打包一组假组件，便于单测逐项断言
type testEnv struct {
	store     *fakeStore
	evaluator *fakeMatchEvaluator
	generator *fakeQuizGenerator
	notifier  *fakeNotifier
	cache     *fakeCache
	index     *fakeVectorIndex
	fileStore *fakeFileStore
	service   *ScreeningService
}

func quizQuestions(n int) []types.QuizQuestion {
	questions := make([]types.QuizQuestion, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, types.QuizQuestion{
			Question:      fmt.Sprintf("问题 %d", i+1),
			Options:       []string{"A. 甲", "B. 乙", "C. 丙", "D. 丁"},
			CorrectAnswer: "A",
		})
	}
	return questions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store: newFakeStore(),
		evaluator: &fakeMatchEvaluator{
			evaluation: &types.MatchEvaluation{
				SkillMatchPercentage:      85.0,
				ExperienceMatchPercentage: 75.0,
				OverallMatchScore:         80.0,
				Reasoning:                 "技能与经验均较匹配",
			},
		},
		generator: &fakeQuizGenerator{questions: quizQuestions(constants.QuizQuestionCount)},
		notifier:  &fakeNotifier{ok: true},
		cache:     newFakeCache(),
		index:     &fakeVectorIndex{},
		fileStore: &fakeFileStore{},
	}

	service, err := NewScreeningService(nil,
		WithStore(env.store),
		WithTextExtractor(&fakeTextExtractor{}),
		WithProfileExtractor(&fakeProfileExtractor{profile: &types.CandidateProfile{
			Name:            "Jane Doe",
			Email:           "jane.doe@example.com",
			Phone:           "212-555-0199",
			Skills:          []string{"Go", "MySQL"},
			TotalExperience: 3.5,
			CurrentRole:     "Backend Engineer",
			Companies:       []string{"Acme Corp"},
		}}),
		WithMatchEvaluator(env.evaluator),
		WithQuizGenerator(env.generator),
		WithEmbedder(&fakeEmbedder{vector: []float64{0.1, 0.2, 0.3}}),
		WithNotifier(env.notifier),
		WithVectorIndex(env.index),
		WithFileStore(env.fileStore),
		WithCache(env.cache),
	)
	require.NoError(t, err, "装配筛选服务不应失败")
	env.service = service
	return env
}

// createJob 以招聘方身份建一个岗位，返回jobID
func (env *testEnv) createJob(t *testing.T) string {
	t.Helper()
	job, err := env.service.CreateJob(context.Background(), recruiterPrincipal, "Go后端工程师", "负责筛选流水线的后端开发，要求熟悉Go与MySQL")
	require.NoError(t, err)
	return job.JobID
}

// submitResume 以候选人身份提交一份简历，可选附带岗位投递
func (env *testEnv) submitResume(t *testing.T, jobID string) *SubmitResumeResult {
	t.Helper()
	result, err := env.service.SubmitResume(context.Background(), candidatePrincipal,
		[]byte("Jane Doe\njane.doe@example.com\n212-555-0199\n资深Go工程师"), "resume.txt", jobID)
	require.NoError(t, err)
	return result
}

func TestNewScreeningServiceMissingDependency(t *testing.T) {
	_, err := NewScreeningService(nil, WithStore(newFakeStore()))
	require.Error(t, err, "缺少必选组件时装配应失败")
	assert.Contains(t, err.Error(), "text extractor")
}

func TestCreateJobRequiresRecruiter(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.CreateJob(context.Background(), candidatePrincipal, "岗位", "描述")
	assert.ErrorIs(t, err, ErrForbidden, "候选人不应能创建岗位")

	job, err := env.service.CreateJob(context.Background(), recruiterPrincipal, "岗位", "描述")
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, "描述", env.cache.jdCache[job.JobID], "创建岗位应预热JD缓存")
}

func TestSubmitResumeCreatesCandidateProfile(t *testing.T) {
	env := newTestEnv(t)

	result := env.submitResume(t, "")
	assert.NotEmpty(t, result.CandidateID)
	assert.False(t, result.Applied, "未指定岗位时不应产生投递")
	assert.GreaterOrEqual(t, result.VectorSlot, int64(0), "向量应成功入索引")

	stored, err := env.store.GetCandidateByID(context.Background(), result.CandidateID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", stored.Name)
	assert.Equal(t, "jane.doe@example.com", stored.Email)
	assert.Equal(t, "212-555-0199", stored.Phone)
	assert.InDelta(t, 3.5, stored.TotalExperience, 1e-9, "工作年限应落库")
	assert.Equal(t, "Backend Engineer", stored.CurrentRole, "当前职位应落库")
	var companies []string
	require.NoError(t, json.Unmarshal(stored.CompaniesJSON, &companies))
	assert.Equal(t, []string{"Acme Corp"}, companies, "任职公司列表应落库")
	assert.NotEmpty(t, stored.ResumeText, "简历原文必须落库")
	assert.Equal(t, 1, env.fileStore.uploads, "原始文件应被归档")
}

func TestSubmitResumeRequiresCandidateRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.SubmitResume(context.Background(), recruiterPrincipal, []byte("text"), "resume.txt", "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitResumePreservesContactOnReupload(t *testing.T) {
	env := newTestEnv(t)

	first := env.submitResume(t, "")

	// 第二次上传时画像提取出了不同的联系方式
	env.service.components.ProfileExtractor = &fakeProfileExtractor{profile: &types.CandidateProfile{
		Name:   "Jane Doe",
		Email:  "other@example.com",
		Phone:  "000",
		Skills: []string{"Rust"},
	}}
	second := env.submitResume(t, "")
	assert.Equal(t, first.CandidateID, second.CandidateID, "同一用户重复上传应复用候选人ID")

	stored, err := env.store.GetCandidateByID(context.Background(), first.CandidateID)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", stored.Email, "联系方式只在首次创建时写入")
	assert.Equal(t, "212-555-0199", stored.Phone)

	var skills []string
	require.NoError(t, json.Unmarshal(stored.SkillsJSON, &skills))
	assert.Equal(t, []string{"Rust"}, skills, "画像内容应更新为最新简历")
}

func TestSubmitResumeAppendsVectorPerUpload(t *testing.T) {
	env := newTestEnv(t)

	env.submitResume(t, "")
	env.submitResume(t, "")

	// 追加策略: 重复上传产生两个槽位，不替换旧向量
	assert.Len(t, env.index.ids, 2)
}

func TestSubmitResumeEmbeddingFailureDegrades(t *testing.T) {
	env := newTestEnv(t)
	env.service.components.Embedder = &fakeEmbedder{err: fmt.Errorf("embedding service down")}

	result := env.submitResume(t, "")
	assert.Equal(t, int64(-1), result.VectorSlot, "向量化失败应降级为-1而不是报错")

	stored, err := env.store.GetCandidateByID(context.Background(), result.CandidateID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ResumeText, "降级不应影响画像落库")
}

func TestSubmitResumeWithJobApplies(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)

	result := env.submitResume(t, jobID)
	assert.True(t, result.Applied)
	require.NotNil(t, result.MatchScore)
	assert.InDelta(t, 80.0, *result.MatchScore, 1e-9)

	match, err := env.store.GetMatchResult(context.Background(), jobID, result.CandidateID)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, match.OverallMatchScore, 1e-9)
	assert.InDelta(t, 85.0, match.SkillMatchPercentage, 1e-9, "技能匹配率应落库")
	assert.InDelta(t, 75.0, match.ExperienceMatchPercentage, 1e-9, "经验匹配率应落库")
	assert.Equal(t, "技能与经验均较匹配", match.Reasoning, "评估理由应落库")
}

func TestDegradedMatchEvaluationPersistedAsZeros(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)
	env.evaluator.evaluation = &types.MatchEvaluation{
		Reasoning: parser.MatchReasoningQueryError,
		Degraded:  true,
	}

	result := env.submitResume(t, jobID)
	require.NotNil(t, result.MatchScore)
	assert.InDelta(t, 0.0, *result.MatchScore, 1e-9, "降级评估应按零分计")

	match, err := env.store.GetMatchResult(context.Background(), jobID, result.CandidateID)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, match.SkillMatchPercentage, 1e-9)
	assert.InDelta(t, 0.0, match.ExperienceMatchPercentage, 1e-9)
	assert.InDelta(t, 0.0, match.OverallMatchScore, 1e-9)
	assert.Equal(t, parser.MatchReasoningQueryError, match.Reasoning, "降级理由应原样落库")
}

func TestSubmitResumeUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.SubmitResume(context.Background(), candidatePrincipal, []byte("text"), "resume.txt", "missing-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDuplicateApplicationConflict(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)

	env.submitResume(t, jobID)
	_, err := env.service.SubmitResume(context.Background(), candidatePrincipal,
		[]byte("updated resume"), "resume.txt", jobID)
	assert.ErrorIs(t, err, ErrDuplicateApplication, "同一候选人重复投递同一岗位应返回冲突")
}

func TestMatchEvaluationFailureDoesNotBlockApplication(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)
	env.evaluator.err = fmt.Errorf("llm unreachable")

	result := env.submitResume(t, jobID)
	assert.True(t, result.Applied, "匹配评估失败不应阻断投递")
	assert.Nil(t, result.MatchScore)

	_, err := env.store.GetMatchResult(context.Background(), jobID, result.CandidateID)
	assert.Error(t, err, "评估失败时不应落库匹配结果")
}

func TestMatchJobRecomputesAllApplicants(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)
	env.submitResume(t, jobID)

	// 再补一个没有画像的投递，验证会被跳过
	require.NoError(t, env.store.CreateApplication(context.Background(), &models.Application{
		ApplicationID: "app-ghost",
		JobID:         jobID,
		CandidateID:   "ghost-candidate",
		Status:        constants.ApplicationStatusApplied,
	}))

	env.evaluator.calls = 0
	processed, err := env.service.MatchJob(context.Background(), recruiterPrincipal, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, processed, "缺画像的投递者应被跳过")
	assert.Equal(t, 1, env.evaluator.calls)

	_, err = env.service.MatchJob(context.Background(), candidatePrincipal, jobID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.service.MatchJob(context.Background(), recruiterPrincipal, "missing-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListJobsForPrincipalCandidateView(t *testing.T) {
	env := newTestEnv(t)

	jobA, err := env.service.CreateJob(context.Background(), recruiterPrincipal, "Go后端工程师", "后端开发岗位")
	require.NoError(t, err)
	jobB, err := env.service.CreateJob(context.Background(), recruiterPrincipal, "前端工程师", "前端开发岗位")
	require.NoError(t, err)

	resumeText := "Jane Doe\njane.doe@example.com\n212-555-0199\n资深Go工程师"
	env.submitResume(t, jobA.JobID)

	// 简历与岗位A同向(相似度70.7)，与岗位B正交(相似度0)
	env.service.components.Embedder = &fakeEmbedder{
		vector: []float64{1, 0},
		byText: map[string][]float64{
			resumeText: {1, 0},
			"后端开发岗位":   {1, 1},
			"前端开发岗位":   {0, 1},
		},
	}

	listings, err := env.service.ListJobsForPrincipal(context.Background(), candidatePrincipal)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	byJob := make(map[string]JobListing, len(listings))
	for _, l := range listings {
		byJob[l.Job.JobID] = l
	}

	entryA := byJob[jobA.JobID]
	assert.True(t, entryA.HasApplied, "已投递的岗位应标记has_applied")
	require.NotNil(t, entryA.MatchScore)
	assert.InDelta(t, 70.7, *entryA.MatchScore, 1e-9, "相似度分应取百分比并保留1位小数")

	entryB := byJob[jobB.JobID]
	assert.False(t, entryB.HasApplied)
	require.NotNil(t, entryB.MatchScore)
	assert.InDelta(t, 0.0, *entryB.MatchScore, 1e-9)
}

func TestListJobsForPrincipalPlainListFallbacks(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)

	// 招聘方视角: 不做相似度打分
	listings, err := env.service.ListJobsForPrincipal(context.Background(), recruiterPrincipal)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Nil(t, listings[0].MatchScore)
	assert.False(t, listings[0].HasApplied)

	// 尚无画像的候选人: 退化为普通列表，不报错
	listings, err = env.service.ListJobsForPrincipal(context.Background(), candidatePrincipal)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Nil(t, listings[0].MatchScore)

	// 有画像但向量化失败: 保留投递标记，跳过打分
	env.submitResume(t, jobID)
	env.service.components.Embedder = &fakeEmbedder{err: fmt.Errorf("embedding service down")}
	listings, err = env.service.ListJobsForPrincipal(context.Background(), candidatePrincipal)
	require.NoError(t, err, "向量化失败不应阻断岗位列表")
	require.Len(t, listings, 1)
	assert.True(t, listings[0].HasApplied)
	assert.Nil(t, listings[0].MatchScore, "向量化失败时不附相似度分")
}

func TestSimilarCandidatesSearchesIndex(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)
	env.index.results = []types.SimilarCandidate{
		{CandidateID: "cand-a", Distance: 0.1},
		{CandidateID: "cand-b", Distance: 0.4},
	}

	results, err := env.service.SimilarCandidates(context.Background(), recruiterPrincipal, jobID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cand-a", results[0].CandidateID, "检索结果应按距离升序透传")
	assert.Equal(t, constants.DefaultSimilarTopK, env.index.lastTopK, "未配置topK时使用默认值")

	_, err = env.service.SimilarCandidates(context.Background(), candidatePrincipal, jobID)
	assert.ErrorIs(t, err, ErrForbidden, "候选人不应能检索相似候选人")

	_, err = env.service.SimilarCandidates(context.Background(), recruiterPrincipal, "missing-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestEnsureQuizAutoProvisions(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)

	view, err := env.service.EnsureQuiz(context.Background(), jobID)
	require.NoError(t, err)
	assert.Len(t, view.Questions, constants.QuizQuestionCount)
	assert.False(t, view.Fallback)
	assert.Equal(t, 1, env.generator.calls)
	require.Len(t, env.store.quizzes, 1, "自动出题应落库一套测验")

	// 第二次读取命中缓存，不再触发生成
	view2, err := env.service.EnsureQuiz(context.Background(), jobID)
	require.NoError(t, err)
	assert.Len(t, view2.Questions, constants.QuizQuestionCount)
	assert.Equal(t, 1, env.generator.calls, "已有测验时不应重复生成")
}

func TestEnsureQuizFallbackOnEmptyGeneration(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)
	env.generator.questions = nil

	view, err := env.service.EnsureQuiz(context.Background(), jobID)
	require.NoError(t, err, "LLM出题为空时应使用兜底题目而不是报错")
	assert.True(t, view.Fallback)
	assert.Len(t, view.Questions, 3)
	require.Len(t, env.store.quizzes, 1)
	assert.True(t, env.store.quizzes[0].Fallback, "兜底标记应落库")
}

func TestEnsureQuizCacheHitKeepsFallbackFlag(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)
	env.generator.questions = nil

	view, err := env.service.EnsureQuiz(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, view.Fallback)

	// 第二次读取命中缓存，兜底标记不能丢
	view2, err := env.service.EnsureQuiz(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.generator.calls, "缓存命中不应重新出题")
	assert.True(t, view2.Fallback, "缓存命中时应保留兜底标记")
}

func TestEnsureQuizUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.service.EnsureQuiz(context.Background(), "missing-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestGenerateQuizAppendsNewVersion(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)

	_, err := env.service.EnsureQuiz(context.Background(), jobID)
	require.NoError(t, err)

	env.generator.questions = quizQuestions(5)
	view, err := env.service.GenerateQuiz(context.Background(), recruiterPrincipal, jobID)
	require.NoError(t, err)
	assert.Len(t, view.Questions, 5)
	assert.Len(t, env.store.quizzes, 2, "重新出题应追加新行而不是覆盖")

	latest, err := env.store.GetLatestQuiz(context.Background(), jobID)
	require.NoError(t, err)
	questions, err := decodeStoredQuestions(latest.QuestionsJSON)
	require.NoError(t, err)
	assert.Len(t, questions, 5, "最新一套测验应生效")

	_, err = env.service.GenerateQuiz(context.Background(), candidatePrincipal, jobID)
	assert.ErrorIs(t, err, ErrForbidden)
}

// submitFullPipeline 跑通 建岗位->投简历->出题 的前置流程
func submitFullPipeline(t *testing.T, env *testEnv) (jobID, candidateID string) {
	t.Helper()
	jobID = env.createJob(t)
	result := env.submitResume(t, jobID)
	_, err := env.service.EnsureQuiz(context.Background(), jobID)
	require.NoError(t, err)
	return jobID, result.CandidateID
}

func TestSubmitQuizAboveThresholdNotifies(t *testing.T) {
	env := newTestEnv(t)
	jobID, candidateID := submitFullPipeline(t, env)

	// 匹配分80，全对答卷100: 0.6*80 + 0.4*100 = 88
	answers := make([]string, constants.QuizQuestionCount)
	for i := range answers {
		answers[i] = "A"
	}
	result, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, answers)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, result.QuizScore, 1e-9)
	assert.InDelta(t, 80.0, result.MatchScore, 1e-9)
	assert.InDelta(t, 88.0, result.FinalScore, 1e-9)
	assert.True(t, result.Invited)
	assert.True(t, result.NotificationSent)
	assert.Equal(t, []string{"jane.doe@example.com"}, env.notifier.sentEmail)

	require.Len(t, env.store.rankings, 1)
	assert.Equal(t, candidateID, env.store.rankings[0].CandidateID)
	assert.True(t, env.store.rankings[0].Invited)
}

func TestSubmitQuizThresholdBoundary(t *testing.T) {
	// 匹配分50 + 答对一半: 0.6*50 + 0.4*50 = 50.0，恰好达线（含）
	env := newTestEnv(t)
	jobID, candidateID := submitFullPipeline(t, env)
	env.store.matches[pairKey(jobID, candidateID)].OverallMatchScore = 50.0

	answers := make([]string, constants.QuizQuestionCount)
	for i := range answers {
		if i < constants.QuizQuestionCount/2 {
			answers[i] = "A"
		} else {
			answers[i] = "B"
		}
	}
	result, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, answers)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, result.FinalScore, 1e-9)
	assert.True(t, result.Invited, "总分恰为阈值时应发送邀请")
	assert.True(t, result.NotificationSent)
}

func TestSubmitQuizBelowThresholdNoInvite(t *testing.T) {
	// 匹配分49.75 + 答对一半: 0.6*49.75 + 0.4*50 = 49.85，差线
	env := newTestEnv(t)
	jobID, candidateID := submitFullPipeline(t, env)
	env.store.matches[pairKey(jobID, candidateID)].OverallMatchScore = 49.75

	answers := make([]string, constants.QuizQuestionCount)
	for i := range answers {
		if i < constants.QuizQuestionCount/2 {
			answers[i] = "A"
		} else {
			answers[i] = "B"
		}
	}
	result, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, answers)
	require.NoError(t, err)
	assert.InDelta(t, 49.85, result.FinalScore, 1e-9)
	assert.False(t, result.Invited, "总分低于阈值时不应发送邀请")
	assert.False(t, result.NotificationSent)
	assert.Empty(t, env.notifier.sentEmail)
}

func TestSubmitQuizMissingMatchScoreTreatedAsZero(t *testing.T) {
	env := newTestEnv(t)
	jobID, candidateID := submitFullPipeline(t, env)
	delete(env.store.matches, pairKey(jobID, candidateID))

	answers := make([]string, constants.QuizQuestionCount)
	for i := range answers {
		answers[i] = "A"
	}
	result, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, answers)
	require.NoError(t, err, "匹配分缺失不视为错误")
	assert.InDelta(t, 0.0, result.MatchScore, 1e-9)
	assert.InDelta(t, 40.0, result.FinalScore, 1e-9, "缺失的匹配分按0计算")
}

func TestSubmitQuizNotificationFailureCounted(t *testing.T) {
	env := newTestEnv(t)
	jobID, _ := submitFullPipeline(t, env)
	env.notifier.ok = false

	answers := make([]string, constants.QuizQuestionCount)
	for i := range answers {
		answers[i] = "A"
	}
	result, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, answers)
	require.NoError(t, err, "通知失败不应影响提交结果")
	assert.True(t, result.Invited)
	assert.False(t, result.NotificationSent)
	assert.Equal(t, int64(1), env.cache.notifyFailure, "通知失败应累加计数")
}

func TestSubmitQuizIdentityFromPrincipal(t *testing.T) {
	env := newTestEnv(t)
	jobID, candidateID := submitFullPipeline(t, env)

	// 未上传过简历的另一个用户提交答卷，应报候选人缺失而不是冒用他人身份
	stranger := types.Principal{UserID: "user-stranger", Role: constants.RoleCandidate}
	_, err := env.service.SubmitQuiz(context.Background(), stranger, jobID, []string{"A"})
	assert.ErrorIs(t, err, ErrCandidateNotFound)

	result, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, []string{"A"})
	require.NoError(t, err)
	_ = result
	require.Len(t, env.store.quizResults, 1)
	assert.Equal(t, candidateID, env.store.quizResults[0].CandidateID, "答卷归属取自认证主体")
}

func TestSubmitQuizNoQuizYet(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)
	env.submitResume(t, jobID)

	_, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, []string{"A"})
	assert.ErrorIs(t, err, ErrQuizNotFound, "岗位尚未出题时提交答卷应返回NotFound")
}

func TestSubmitQuizCorruptStoredQuiz(t *testing.T) {
	corruptPayloads := []struct {
		name string
		raw  string
	}{
		{"非法JSON", `{not json`},
		{"空数组", `[]`},
		{"缺题干", `[{"question": "", "options": ["A"], "correct_answer": "A"}]`},
		{"缺选项", `[{"question": "Q1", "options": [], "correct_answer": "A"}]`},
	}
	for _, tc := range corruptPayloads {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			jobID := env.createJob(t)
			env.submitResume(t, jobID)
			require.NoError(t, env.store.CreateQuiz(context.Background(), &models.Quiz{
				QuizID:        "quiz-corrupt",
				JobID:         jobID,
				QuestionsJSON: datatypes.JSON(tc.raw),
			}))

			_, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, []string{"A"})
			assert.ErrorIs(t, err, ErrQuizDataCorrupt, "损坏的测验数据必须显式失败")
		})
	}
}

func TestDecodeStoredQuestionsLegacyShapes(t *testing.T) {
	want := quizQuestions(2)
	arrayJSON, err := json.Marshal(want)
	require.NoError(t, err)

	wrapped, err := json.Marshal(map[string]interface{}{"questions": want})
	require.NoError(t, err)

	stringEncoded, err := json.Marshal(string(arrayJSON))
	require.NoError(t, err)

	shapes := []struct {
		name string
		raw  []byte
	}{
		{"题目数组", arrayJSON},
		{"包装对象", wrapped},
		{"字符串二次编码", stringEncoded},
	}
	for _, tc := range shapes {
		t.Run(tc.name, func(t *testing.T) {
			questions, err := decodeStoredQuestions(datatypes.JSON(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, want, questions)
		})
	}
}

func TestRankingsOrderedWithStableTies(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)

	// 直接按提交顺序写入三条排名记录，含一个同分对
	seed := []struct {
		candidateID string
		finalScore  float64
	}{
		{"cand-a", 90.0},
		{"cand-b", 70.0},
		{"cand-c", 90.0},
	}
	for _, s := range seed {
		require.NoError(t, env.store.CreateFinalRanking(context.Background(), &models.FinalRanking{
			JobID:       jobID,
			CandidateID: s.candidateID,
			FinalScore:  s.finalScore,
			Invited:     s.finalScore >= constants.PassThreshold,
		}))
	}

	entries, err := env.service.Rankings(context.Background(), recruiterPrincipal, jobID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "cand-a", entries[0].CandidateID, "同分时保持提交顺序")
	assert.Equal(t, "cand-c", entries[1].CandidateID)
	assert.Equal(t, "cand-b", entries[2].CandidateID)
	assert.Equal(t, []int{1, 2, 3}, []int{entries[0].Rank, entries[1].Rank, entries[2].Rank})
}

func TestRankingsUsesLatestSubmissionPerCandidate(t *testing.T) {
	env := newTestEnv(t)
	jobID, candidateID := submitFullPipeline(t, env)

	allCorrect := make([]string, constants.QuizQuestionCount)
	allWrong := make([]string, constants.QuizQuestionCount)
	for i := range allCorrect {
		allCorrect[i] = "A"
		allWrong[i] = "B"
	}

	_, err := env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, allCorrect)
	require.NoError(t, err)
	_, err = env.service.SubmitQuiz(context.Background(), candidatePrincipal, jobID, allWrong)
	require.NoError(t, err)

	entries, err := env.service.Rankings(context.Background(), recruiterPrincipal, jobID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "同一候选人重复提交只保留最新一条")
	assert.Equal(t, candidateID, entries[0].CandidateID)
	assert.InDelta(t, 48.0, entries[0].FinalScore, 1e-9, "重复提交后以最新答卷计分")
	assert.Equal(t, "Jane Doe", entries[0].CandidateName, "排名应补全候选人姓名")
}

func TestRankingsEmptyAndGating(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)

	_, err := env.service.Rankings(context.Background(), recruiterPrincipal, jobID)
	assert.ErrorIs(t, err, ErrRankingNotFound, "尚无排名记录时返回NotFound")

	_, err = env.service.Rankings(context.Background(), candidatePrincipal, jobID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.service.Rankings(context.Background(), recruiterPrincipal, "missing-job")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestTopCandidate(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.createJob(t)

	require.NoError(t, env.store.CreateFinalRanking(context.Background(), &models.FinalRanking{
		JobID: jobID, CandidateID: "cand-low", FinalScore: 40.0,
	}))
	require.NoError(t, env.store.CreateFinalRanking(context.Background(), &models.FinalRanking{
		JobID: jobID, CandidateID: "cand-high", FinalScore: 95.0, Invited: true,
	}))

	top, err := env.service.TopCandidate(context.Background(), recruiterPrincipal, jobID)
	require.NoError(t, err)
	assert.Equal(t, "cand-high", top.CandidateID)
	assert.Equal(t, 1, top.Rank)
}
