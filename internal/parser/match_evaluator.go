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

// 降级结果的固定理由文案，调用方和测试依赖这两个值区分失败原因
const (
	MatchReasoningQueryError = "Error querying LLM"
	MatchReasoningParseError = "Error parsing LLM response"
)

// llmMatchPayload LLM返回的匹配评估JSON结构
type llmMatchPayload struct {
	SkillMatchPercentage      float64 `json:"skill_match_percentage"`
	ExperienceMatchPercentage float64 `json:"experience_match_percentage"`
	OverallMatchScore         float64 `json:"overall_match_score"`
	Reasoning                 string  `json:"reasoning"`
}

// LLMMatchEvaluator 封装LLM客户端，评估候选人画像与岗位描述的匹配度
type LLMMatchEvaluator struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
}

// LLMMatchEvaluatorOption 是匹配评估器的配置选项
type LLMMatchEvaluatorOption func(*LLMMatchEvaluator)

// WithMatchPromptTemplate 设置自定义提示词模板
func WithMatchPromptTemplate(template string) LLMMatchEvaluatorOption {
	return func(e *LLMMatchEvaluator) {
		e.promptTemplate = template
	}
}

// NewLLMMatchEvaluator 创建一个新的匹配评估器实例
func NewLLMMatchEvaluator(llmModel model.ToolCallingChatModel, options ...LLMMatchEvaluatorOption) *LLMMatchEvaluator {
	evaluator := &LLMMatchEvaluator{
		llmModel: llmModel,
	}

	evaluator.generatePromptTemplate()

	for _, opt := range options {
		opt(evaluator)
	}

	return evaluator
}

func (e *LLMMatchEvaluator) generatePromptTemplate() {
	e.promptTemplate = `You are an expert technical recruiter. Compare the candidate's resume with the job description.

Return ONLY a valid JSON object with exactly these fields:
- "skill_match_percentage": a number from 0 to 100 for how well the candidate's skills cover the job requirements
- "experience_match_percentage": a number from 0 to 100 for how well the candidate's experience fits the role
- "overall_match_score": a number from 0 to 100 reflecting the overall fit
- "reasoning": a short explanation of the assessment (string)

Do not include any text outside the JSON object.

Job description:
"""
%s
"""

Candidate resume:
"""
%s
"""`
}

// degradedResult 构造降级评估结果: 三个分项全部置零、固定理由文案
func degradedResult(reasoning string) *types.MatchEvaluation {
	return &types.MatchEvaluation{
		SkillMatchPercentage:      0,
		ExperienceMatchPercentage: 0,
		OverallMatchScore:         0,
		Reasoning:                 reasoning,
		Degraded:                  true,
	}
}

// EvaluateMatch 评估候选人与岗位的匹配度
// 上游失败被吸收为降级结果而非错误: LLM调用失败时理由为 MatchReasoningQueryError，
// 响应无法解析时为 MatchReasoningParseError，两者的三个分项均为0
func (e *LLMMatchEvaluator) EvaluateMatch(ctx context.Context, jobDescription string, resumeText string) (*types.MatchEvaluation, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("LLMMatchEvaluator: llmModel is not initialized")
	}

	// 截断两侧输入，控制调用成本
	jd := TruncateRunes(jobDescription, constants.MatchPromptMaxChars)
	resume := TruncateRunes(resumeText, constants.MatchPromptMaxChars)

	systemMsg := einoschema.SystemMessage("You are a precise recruiting assistant that always responds with valid JSON.")
	userMsg := einoschema.UserMessage(fmt.Sprintf(e.promptTemplate, jd, resume))

	response, err := e.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("匹配评估LLM调用失败，返回降级结果")
		return degradedResult(MatchReasoningQueryError), nil
	}
	if response == nil || response.Content == "" {
		logger.Ctx(ctx).Warn().Msg("匹配评估LLM返回空响应，返回降级结果")
		return degradedResult(MatchReasoningQueryError), nil
	}

	content := normalizeLLMResponse(response.Content)
	jsonStr := extractJSONObject(content)
	if jsonStr == "" {
		logger.Ctx(ctx).Warn().Str("content", truncateForLog(content, 200)).Msg("匹配评估响应中未找到JSON对象")
		return degradedResult(MatchReasoningParseError), nil
	}

	var payload llmMatchPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &payload); jsonErr != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("匹配评估JSON解析失败")
			return degradedResult(MatchReasoningParseError), nil
		}
	}

	return &types.MatchEvaluation{
		SkillMatchPercentage:      payload.SkillMatchPercentage,
		ExperienceMatchPercentage: payload.ExperienceMatchPercentage,
		OverallMatchScore:         payload.OverallMatchScore,
		Reasoning:                 payload.Reasoning,
	}, nil
}
