package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGroqChatModelValidation(t *testing.T) {
	_, err := NewGroqChatModel("", "llama-3.3-70b-versatile", "")
	require.Error(t, err, "空API密钥应被拒绝")

	m, err := NewGroqChatModel("sk-test", "", "")
	require.NoError(t, err)
	assert.Equal(t, defaultGroqModelName, m.modelName, "未指定模型时应使用默认模型")
	assert.Equal(t, groqChatCompletionsURL, m.apiURL, "未指定URL时应使用默认端点")
}

func TestGroqChatModelGenerate(t *testing.T) {
	var capturedReq groqChatCompletionRequest
	var capturedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capturedReq))

		content := `{"result": "ok"}`
		resp := groqCompletionResponse{
			Id:    "chatcmpl-test",
			Model: "llama-3.3-70b-versatile",
			Choices: []groqChatChoice{
				{
					Message:      groqMessage{Role: "assistant", Content: &content},
					FinishReason: "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	m, err := NewGroqChatModel("sk-test", "llama-3.3-70b-versatile", server.URL,
		WithTemperature(0.3), WithMaxTokens(512), WithJSONMode(true))
	require.NoError(t, err)

	messages := []*schema.Message{
		schema.SystemMessage("You respond with JSON."),
		schema.UserMessage("hello"),
	}
	result, err := m.Generate(context.Background(), messages)
	require.NoError(t, err, "Generate不应失败")
	require.NotNil(t, result)

	assert.Equal(t, schema.RoleType("assistant"), result.Role)
	assert.Equal(t, `{"result": "ok"}`, result.Content)

	// 请求侧断言
	assert.Equal(t, "Bearer sk-test", capturedAuth, "应携带Bearer鉴权头")
	assert.Equal(t, "llama-3.3-70b-versatile", capturedReq.Model)
	assert.InDelta(t, 0.3, capturedReq.Temperature, 0.001)
	assert.Equal(t, 512, capturedReq.MaxTokens)
	require.NotNil(t, capturedReq.ResponseFormat, "JSON模式下应设置response_format")
	assert.Equal(t, "json_object", capturedReq.ResponseFormat.Type)
	require.Len(t, capturedReq.Messages, 2)
}

func TestGroqChatModelGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	}))
	defer server.Close()

	m, err := NewGroqChatModel("sk-test", "", server.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hello")})
	require.Error(t, err, "非200状态码应返回错误")
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestGroqChatModelGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": "x", "choices": []}`))
	}))
	defer server.Close()

	m, err := NewGroqChatModel("sk-test", "", server.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hello")})
	require.Error(t, err, "空choices应返回错误")
}

func TestGroqChatModelGenerateToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "x",
			"choices": [{
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "lookup", "arguments": "{\"q\": \"go\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer server.Close()

	m, err := NewGroqChatModel("sk-test", "", server.URL)
	require.NoError(t, err)

	result, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hello")})
	require.NoError(t, err)

	assert.Empty(t, result.Content, "content为null时应映射为空串")
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "call_1", result.ToolCalls[0].ID)
	assert.Equal(t, "lookup", result.ToolCalls[0].Function.Name)
}

func TestGroqChatModelStreamNotImplemented(t *testing.T) {
	m, err := NewGroqChatModel("sk-test", "", "")
	require.NoError(t, err)

	_, err = m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hello")})
	require.Error(t, err, "Stream未实现，应返回错误")
}
