package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{name: "不超限原样返回", input: "hello", max: 10, expected: "hello"},
		{name: "恰好等于上限", input: "hello", max: 5, expected: "hello"},
		{name: "ASCII截断", input: "hello world", max: 5, expected: "hello"},
		{name: "中文按字符数截断", input: "资深Go工程师", max: 4, expected: "资深Go"},
		{name: "上限为零返回空串", input: "hello", max: 0, expected: ""},
		{name: "空串", input: "", max: 5, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateRunes(tt.input, tt.max)
			assert.Equal(t, tt.expected, got, "截断结果不符合预期")
			assert.True(t, utf8.ValidString(got), "截断结果必须是合法UTF-8")
		})
	}
}

func TestTruncateRunesNeverSplitsMultibyteRune(t *testing.T) {
	// 纯多字节文本在任意上限下截断都不能产生非法UTF-8
	text := strings.Repeat("候选人简历文本。", 20)
	for max := 0; max <= utf8.RuneCountInString(text)+1; max++ {
		got := TruncateRunes(text, max)
		assert.True(t, utf8.ValidString(got), "上限为%d时截出了非法UTF-8", max)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), max, "截断后字符数不应超过上限")
	}
}

func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "short", truncateForLog("short", 10), "不超限时不加省略号")
	assert.Equal(t, "候选人简...", truncateForLog("候选人简历文本", 4), "超限时按字符截断并加省略号")
	assert.True(t, utf8.ValidString(truncateForLog("多字节字符不能切半截", 3)))
}
