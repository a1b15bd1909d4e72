package parser

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"hiregenius-go/internal/logger"
)

// pdfParseTimeout 单个 PDF 解析的超时上限
const pdfParseTimeout = 30 * time.Second

// EinoResumeTextExtractor 基于 Eino PDF Parser 的简历文本提取器。
// PDF 走 Eino 解析，纯文本文件直接透传。
type EinoResumeTextExtractor struct {
	parser *pdf.PDFParser
}

// NewEinoResumeTextExtractor 初始化简历文本提取器。
// ToPages 置为 false：我们需要整份简历的连续文本，而不是按页切分。
func NewEinoResumeTextExtractor(ctx context.Context) (*EinoResumeTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Eino PDF 解析器失败: %w", err)
	}
	return &EinoResumeTextExtractor{parser: p}, nil
}

// ExtractText 从简历文件内容中提取纯文本。
// filename 仅用于判断扩展名与日志标识，实际内容来自 data。
func (e *EinoResumeTextExtractor) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("简历文件内容为空: %s", filename)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" {
		// 非 PDF 按纯文本处理，拒绝无法解码的二进制内容
		if !utf8.Valid(data) {
			return "", fmt.Errorf("不支持的简历文件格式: %s", filename)
		}
		return string(data), nil
	}

	startTime := time.Now()
	ctx, cancel := context.WithTimeout(ctx, pdfParseTimeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(filename),
	)
	duration := time.Since(startTime)
	if err != nil {
		logger.Warn().Err(err).Str("filename", filename).
			Dur("duration", duration).Msg("PDF 解析失败")
		return "", fmt.Errorf("PDF 解析失败 (%s): %w", filename, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("PDF 解析无结果: %s", filename)
	}

	// 理论上 ToPages=false 只返回一个文档，这里仍做合并兜底
	var builder strings.Builder
	for i, doc := range docs {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(doc.Content)
	}
	text := builder.String()

	logger.Debug().Str("filename", filename).Int("text_length", len(text)).
		Dur("duration", duration).Msg("PDF 文本提取完成")
	return text, nil
}
