package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"hiregenius-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// Groq的OpenAI兼容chat completions端点
	groqChatCompletionsURL = "https://api.groq.com/openai/v1/chat/completions"
	defaultGroqModelName   = "llama-3.3-70b-versatile"
)

// GroqChatModel 实现 model.ToolCallingChatModel 接口，
// 通过OpenAI兼容API与Groq托管的模型交互
type GroqChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float64
	maxTokens   int
	jsonMode    bool // 是否要求模型输出JSON对象
	httpClient  *http.Client
	boundTools  []groqTool
}

// GroqModelOption 配置GroqChatModel的选项
type GroqModelOption func(*GroqChatModel)

// WithTemperature 设置采样温度
func WithTemperature(t float64) GroqModelOption {
	return func(m *GroqChatModel) {
		m.temperature = t
	}
}

// WithMaxTokens 设置最大输出token数
func WithMaxTokens(n int) GroqModelOption {
	return func(m *GroqChatModel) {
		m.maxTokens = n
	}
}

// WithJSONMode 要求模型以JSON对象格式输出(response_format=json_object)
func WithJSONMode(enabled bool) GroqModelOption {
	return func(m *GroqChatModel) {
		m.jsonMode = enabled
	}
}

// NewGroqChatModel 创建一个新的 GroqChatModel 实例
func NewGroqChatModel(apiKey string, modelName string, apiURL string, opts ...GroqModelOption) (*GroqChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultGroqModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = groqChatCompletionsURL
	}

	m := &GroqChatModel{
		apiKey:      apiKey,
		modelName:   mn,
		apiURL:      url,
		temperature: 0.1,
		httpClient:  &http.Client{},
		boundTools:  make([]groqTool, 0),
	}
	for _, opt := range opts {
		opt(m)
	}

	logger.Info().Str("api_url", url).Str("model", mn).Msg("初始化Groq LLM客户端")
	return m, nil
}

// --- OpenAI兼容的请求/响应结构 ---

type groqToolFunctionParams struct {
	Type       string                 `json:"type"` // 通常为 "object"
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

type groqFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  groqToolFunctionParams `json:"parameters"`
}

type groqTool struct {
	Type     string       `json:"type"` // 必须为 "function"
	Function groqFunction `json:"function"`
}

type groqResponseFormat struct {
	Type string `json:"type"` // "json_object" 或 "text"
}

type groqChatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []*schema.Message   `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Tools          []groqTool          `json:"tools,omitempty"`
	ResponseFormat *groqResponseFormat `json:"response_format,omitempty"`
}

type groqMessage struct {
	Role      string             `json:"role"`
	Content   *string            `json:"content"` // tool_calls存在时content可能为null
	ToolCalls []groqToolCallData `json:"tool_calls,omitempty"`
}

type groqToolCallData struct {
	Id       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type groqChatChoice struct {
	Index        int         `json:"index"`
	Message      groqMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type groqCompletionResponse struct {
	Id      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []groqChatChoice `json:"choices"`
}

// Generate 实现 model.ChatModel 接口
func (g *GroqChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	reqPayload := groqChatCompletionRequest{
		Model:       g.modelName,
		Messages:    messages,
		Temperature: g.temperature,
	}
	if g.maxTokens > 0 {
		reqPayload.MaxTokens = g.maxTokens
	}
	if len(g.boundTools) > 0 {
		reqPayload.Tools = g.boundTools
	}
	if g.jsonMode {
		reqPayload.ResponseFormat = &groqResponseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var groqResp groqCompletionResponse
	if err := json.Unmarshal(bodyBytes, &groqResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(groqResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := groqResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}

	if len(apiMessage.ToolCalls) > 0 {
		resultMessage.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			resultMessage.ToolCalls[i] = schema.ToolCall{
				ID: tc.Id,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	if resultMessage.Role == "" {
		resultMessage.Role = schema.RoleType("assistant")
	}

	logger.Ctx(ctx).Debug().
		Str("model", groqResp.Model).
		Str("finish_reason", groqResp.Choices[0].FinishReason).
		Int("content_len", len(responseContent)).
		Msg("Groq chat completion完成")

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口
// 筛选流水线不需要流式输出
func (g *GroqChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("GroqChatModel 的 Stream 方法未实现")
}

// BindTools 实现 model.ChatModel 接口
func (g *GroqChatModel) BindTools(tools []*schema.ToolInfo) error {
	g.boundTools = make([]groqTool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}
		g.boundTools = append(g.boundTools, groqTool{
			Type: "function",
			Function: groqFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters:  groqToolFunctionParams{Type: "object", Properties: map[string]interface{}{}},
			},
		})
	}
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (g *GroqChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := g.BindTools(tools); err != nil {
		return nil, err
	}
	return g, nil
}

var _ model.ChatModel = (*GroqChatModel)(nil)
var _ model.ToolCallingChatModel = (*GroqChatModel)(nil)
