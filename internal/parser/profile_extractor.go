package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"hiregenius-go/internal/constants"
	"hiregenius-go/internal/logger"
	"hiregenius-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

var (
	emailRegex = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// 电话候选: 以数字或+开头，中间允许分隔符，两端为数字
	phoneRegex = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	digitRegex = regexp.MustCompile(`\D`)
)

// ExtractEmail 用正则从简历文本提取首个邮箱地址，未找到时返回占位值 "Unknown"
func ExtractEmail(text string) string {
	if match := emailRegex.FindString(text); match != "" {
		return match
	}
	return constants.UnknownContactValue
}

// ExtractPhone 用正则从简历文本提取电话号码
// 匹配项去除非数字字符后不足最小位数的(如年份)会被跳过，全部不满足时返回空串
func ExtractPhone(text string) string {
	for _, match := range phoneRegex.FindAllString(text, -1) {
		digits := digitRegex.ReplaceAllString(match, "")
		if len(digits) >= constants.PhoneMinDigits {
			return strings.TrimSpace(match)
		}
	}
	return ""
}

// llmProfilePayload LLM返回的画像JSON结构。
// total_experience用原始JSON承接，LLM偶尔会返回带引号的数字
type llmProfilePayload struct {
	Name            string          `json:"name"`
	Skills          []string        `json:"skills"`
	TotalExperience json.RawMessage `json:"total_experience"`
	CurrentRole     string          `json:"current_role"`
	Companies       []string        `json:"companies"`
}

// parseExperienceYears 把LLM返回的经验年限归一成非负浮点数。
// 兼容数字和字符串两种形态，解析失败或为负时取0
func parseExperienceYears(raw json.RawMessage) float64 {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0
	}
	text = strings.Trim(text, `"`)
	years, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || years < 0 {
		return 0
	}
	return years
}

// LLMProfileExtractor 封装LLM客户端，从简历文本提取结构化候选人画像
type LLMProfileExtractor struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
}

// LLMProfileExtractorOption 是画像提取器的配置选项
type LLMProfileExtractorOption func(*LLMProfileExtractor)

// WithProfilePromptTemplate 设置自定义提示词模板
func WithProfilePromptTemplate(template string) LLMProfileExtractorOption {
	return func(e *LLMProfileExtractor) {
		e.promptTemplate = template
	}
}

// NewLLMProfileExtractor 创建一个新的画像提取器实例
func NewLLMProfileExtractor(llmModel model.ToolCallingChatModel, options ...LLMProfileExtractorOption) *LLMProfileExtractor {
	extractor := &LLMProfileExtractor{
		llmModel: llmModel,
	}

	extractor.generatePromptTemplate()

	for _, opt := range options {
		opt(extractor)
	}

	return extractor
}

func (e *LLMProfileExtractor) generatePromptTemplate() {
	e.promptTemplate = `You are an expert resume parser. Extract structured information from the resume text below.

Return ONLY a valid JSON object with exactly these fields:
- "name": the candidate's full name (string)
- "skills": a list of technical and professional skills (array of strings)
- "total_experience": total work experience in years (number)
- "current_role": the candidate's current or most recent job title (string)
- "companies": a list of companies the candidate has worked at (array of strings)

Do not include any text outside the JSON object.

Resume text:
"""
%s
"""`
}

// ExtractProfile 从简历文本提取结构化画像
// 联系方式始终走正则提取；LLM调用失败时降级为仅含正则联系方式的默认画像，不向上抛错
func (e *LLMProfileExtractor) ExtractProfile(ctx context.Context, resumeText string) (*types.CandidateProfile, error) {
	profile := &types.CandidateProfile{
		Name:            constants.UnknownContactValue,
		Email:           ExtractEmail(resumeText),
		Phone:           ExtractPhone(resumeText),
		Skills:          []string{},
		TotalExperience: 0,
		CurrentRole:     "",
		Companies:       []string{},
		RawText:         resumeText,
	}

	if e.llmModel == nil {
		return nil, fmt.Errorf("LLMProfileExtractor: llmModel is not initialized")
	}

	// 截断简历文本，控制调用成本
	truncated := TruncateRunes(resumeText, constants.ResumePromptMaxChars)

	systemMsg := einoschema.SystemMessage("You are a precise resume parsing assistant that always responds with valid JSON.")
	userMsg := einoschema.UserMessage(fmt.Sprintf(e.promptTemplate, truncated))

	response, err := e.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		// 上游降级: 保留正则提取的联系方式，其余字段取默认值
		logger.Ctx(ctx).Warn().Err(err).Msg("画像提取LLM调用失败，降级为默认画像")
		return profile, nil
	}
	if response == nil || response.Content == "" {
		logger.Ctx(ctx).Warn().Msg("画像提取LLM返回空响应，降级为默认画像")
		return profile, nil
	}

	content := normalizeLLMResponse(response.Content)
	jsonStr := extractJSONObject(content)
	if jsonStr == "" {
		logger.Ctx(ctx).Warn().Str("content", truncateForLog(content, 200)).Msg("画像提取响应中未找到JSON对象，降级为默认画像")
		return profile, nil
	}

	var payload llmProfilePayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		// 解析失败 -> 自动修复再试一次
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &payload); jsonErr != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("画像JSON解析失败，降级为默认画像")
			return profile, nil
		}
	}

	if payload.Name != "" {
		profile.Name = payload.Name
	}
	if payload.Skills != nil {
		profile.Skills = payload.Skills
	}
	profile.TotalExperience = parseExperienceYears(payload.TotalExperience)
	profile.CurrentRole = payload.CurrentRole
	if payload.Companies != nil {
		profile.Companies = payload.Companies
	}

	return profile, nil
}
