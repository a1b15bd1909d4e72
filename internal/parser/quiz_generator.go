package parser

import (
	"context"
	"encoding/json"
	"fmt"

	"hiregenius-go/internal/constants"
	"hiregenius-go/internal/logger"
	"hiregenius-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// quizResponseShape LLM的测验响应有两种已知形态:
// 裸数组 [...]，或包装对象 {"questions": [...]}
// 解析时显式归一化为题目列表
type quizResponseShape struct {
	Questions []types.QuizQuestion `json:"questions"`
}

// FallbackQuizQuestions 返回通用兜底题目，在LLM出题失败时使用
func FallbackQuizQuestions() []types.QuizQuestion {
	return []types.QuizQuestion{
		{
			Question:      "What is the primary skill required for this role?",
			Options:       []string{"Technical expertise", "Communication", "Problem solving", "All of the above"},
			CorrectAnswer: "All of the above",
		},
		{
			Question:      "Which of the following is most important for a team player?",
			Options:       []string{"Working alone", "Collaboration", "Ignoring feedback", "Avoiding meetings"},
			CorrectAnswer: "Collaboration",
		},
		{
			Question:      "What is the best way to handle a tight deadline?",
			Options:       []string{"Panic", "Prioritize tasks", "Ignore it", "Blame others"},
			CorrectAnswer: "Prioritize tasks",
		},
	}
}

// LLMQuizGenerator 封装LLM客户端，根据岗位描述生成技术测验题目
type LLMQuizGenerator struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
}

// LLMQuizGeneratorOption 是测验生成器的配置选项
type LLMQuizGeneratorOption func(*LLMQuizGenerator)

// WithQuizPromptTemplate 设置自定义提示词模板
func WithQuizPromptTemplate(template string) LLMQuizGeneratorOption {
	return func(g *LLMQuizGenerator) {
		g.promptTemplate = template
	}
}

// NewLLMQuizGenerator 创建一个新的测验生成器实例
func NewLLMQuizGenerator(llmModel model.ToolCallingChatModel, options ...LLMQuizGeneratorOption) *LLMQuizGenerator {
	generator := &LLMQuizGenerator{
		llmModel: llmModel,
	}

	generator.generatePromptTemplate()

	for _, opt := range options {
		opt(generator)
	}

	return generator
}

func (g *LLMQuizGenerator) generatePromptTemplate() {
	g.promptTemplate = `You are an expert technical interviewer. Generate exactly %d multiple-choice questions to screen candidates for the job described below.

Return ONLY a valid JSON array. Each element must be an object with exactly these fields:
- "question": the question text (string)
- "options": exactly %d answer options (array of strings)
- "correct_answer": the correct option, which must be identical to one of the entries in "options"

Do not include any text outside the JSON array.

Job description:
"""
%s
"""`
}

// GenerateQuiz 根据岗位描述生成测验题目
// 上游失败被吸收: LLM调用失败、响应无法解析或校验不通过时返回空列表而非错误，
// 由调用方决定是否使用兜底题目
func (g *LLMQuizGenerator) GenerateQuiz(ctx context.Context, jobDescription string) ([]types.QuizQuestion, error) {
	if g.llmModel == nil {
		return nil, fmt.Errorf("LLMQuizGenerator: llmModel is not initialized")
	}

	jd := TruncateRunes(jobDescription, constants.QuizPromptMaxChars)

	systemMsg := einoschema.SystemMessage("You are a precise quiz generation assistant that always responds with valid JSON.")
	userMsg := einoschema.UserMessage(fmt.Sprintf(g.promptTemplate, constants.QuizQuestionCount, constants.QuizOptionCount, jd))

	response, err := g.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("测验生成LLM调用失败，返回空题目列表")
		return []types.QuizQuestion{}, nil
	}
	if response == nil || response.Content == "" {
		logger.Ctx(ctx).Warn().Msg("测验生成LLM返回空响应")
		return []types.QuizQuestion{}, nil
	}

	content := normalizeLLMResponse(response.Content)
	questions := parseQuizResponse(ctx, content)
	if len(questions) == 0 {
		return []types.QuizQuestion{}, nil
	}

	// 校验不通过的题目整组丢弃，避免给候选人出残缺的测验
	if err := validateQuizQuestions(questions); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("测验题目校验失败，丢弃整组题目")
		return []types.QuizQuestion{}, nil
	}

	return questions, nil
}

// parseQuizResponse 将LLM响应归一化为题目列表，兼容裸数组和包装对象两种形态
func parseQuizResponse(ctx context.Context, content string) []types.QuizQuestion {
	jsonStr := extractJSONValue(content)
	if jsonStr == "" {
		logger.Ctx(ctx).Warn().Str("content", truncateForLog(content, 200)).Msg("测验响应中未找到JSON")
		return nil
	}

	// 形态一: 裸数组
	if jsonStr[0] == '[' {
		var questions []types.QuizQuestion
		if err := json.Unmarshal([]byte(jsonStr), &questions); err != nil {
			fixed := sanitizeJSON(jsonStr)
			if jsonErr := json.Unmarshal([]byte(fixed), &questions); jsonErr != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("测验数组JSON解析失败")
				return nil
			}
		}
		return questions
	}

	// 形态二: {"questions": [...]}
	var wrapped quizResponseShape
	if err := json.Unmarshal([]byte(jsonStr), &wrapped); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &wrapped); jsonErr != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("测验包装对象JSON解析失败")
			return nil
		}
	}
	return wrapped.Questions
}

// validateQuizQuestions 校验题目列表: 题干非空、选项数正确、正确答案必须是选项之一
func validateQuizQuestions(questions []types.QuizQuestion) error {
	for i, q := range questions {
		if q.Question == "" {
			return fmt.Errorf("第 %d 题题干为空", i+1)
		}
		if len(q.Options) != constants.QuizOptionCount {
			return fmt.Errorf("第 %d 题选项数为 %d, 期望 %d", i+1, len(q.Options), constants.QuizOptionCount)
		}
		found := false
		for _, opt := range q.Options {
			if opt == q.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("第 %d 题的正确答案不在选项列表中", i+1)
		}
	}
	return nil
}
