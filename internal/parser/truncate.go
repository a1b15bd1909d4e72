package parser

import "unicode/utf8"

// TruncateRunes 在字符边界上截断文本，避免把多字节字符切出半截
// 送进提示词。max按字符数计
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// truncateForLog 截断日志中的长文本
func truncateForLog(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return TruncateRunes(s, max) + "..."
}
