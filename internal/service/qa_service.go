package service

import (
	"context"
	"fmt"
	"strings"

	"policyqa-go/internal/config"
	"policyqa-go/internal/model"
	"policyqa-go/internal/pipeline"
	"policyqa-go/pkg/llm"
	"policyqa-go/pkg/log"
)

// DefaultRules 是未配置 llm.prompt.rules 时使用的系统规则。
const DefaultRules = `You are a precise assistant answering from policy documents.
Follow STRICT rules:
1) Answer ONLY using the provided context snippets.
2) If the answer is not present, say "I couldn't find that in the documents."
3) Include citations like [Doc: {doc_name}, p.{page}] where relevant.
4) Be concise and quote exact policy language for critical numbers.`

// sourcePreviewChars 是答案引用来源的预览长度。
const sourcePreviewChars = 160

// QAService 定义了检索与问答的接口。
type QAService interface {
	Search(ctx context.Context, userID, question string, topK int) ([]model.Snippet, error)
	Ask(ctx context.Context, userID, question string, topK int) (*model.Answer, error)
}

type qaService struct {
	pipeline  *pipeline.Pipeline
	llmClient llm.Client
	prompt    config.LLMPromptConfig
}

// NewQAService 创建一个新的 QAService 实例。
func NewQAService(p *pipeline.Pipeline, llmClient llm.Client, prompt config.LLMPromptConfig) QAService {
	return &qaService{pipeline: p, llmClient: llmClient, prompt: prompt}
}

func (s *qaService) Search(ctx context.Context, userID, question string, topK int) ([]model.Snippet, error) {
	return s.pipeline.Query(ctx, userID, question, topK)
}

// Ask 检索上下文并调用 LLM 生成带引用的答案。
func (s *qaService) Ask(ctx context.Context, userID, question string, topK int) (*model.Answer, error) {
	log.Infof("[QAService] 开始问答, UserID: %s, topK: %d", userID, topK)

	// 1. 检索
	snippets, err := s.pipeline.Query(ctx, userID, question, topK)
	if err != nil {
		return nil, err
	}

	// 2. 生成
	log.Infof("[QAService] 步骤2: 调用 LLM, 上下文片段数: %d", len(snippets))
	answer, err := s.llmClient.Chat(ctx, s.buildMessages(question, snippets), nil)
	if err != nil {
		log.Errorf("[QAService] 调用 LLM 失败: %v", err)
		return nil, fmt.Errorf("生成答案失败: %w", err)
	}

	sources := make([]model.Source, len(snippets))
	for i, sn := range snippets {
		sources[i] = model.Source{
			DocumentName: sn.DocumentName,
			Page:         sn.Page,
			Score:        sn.Score,
			Preview:      previewWithEllipsis(sn.Text, sourcePreviewChars),
		}
	}
	return &model.Answer{Question: question, Answer: answer, Sources: sources}, nil
}

func (s *qaService) buildMessages(question string, snippets []model.Snippet) []llm.Message {
	rules := s.prompt.Rules
	if rules == "" {
		rules = DefaultRules
	}
	contextText := BuildContext(snippets)
	if contextText == "" {
		contextText = s.prompt.NoResultText
		if contextText == "" {
			contextText = "(no snippets retrieved)"
		}
	}

	var user strings.Builder
	user.WriteString("Question: ")
	user.WriteString(question)
	user.WriteString("\n\nContext Snippets:\n")
	user.WriteString(contextText)
	user.WriteString("\n\nAnswer (with citations):")

	return []llm.Message{
		{Role: "system", Content: rules},
		{Role: "user", Content: user.String()},
	}
}

// BuildContext 把检索片段编号后拼接为上下文，片段之间以 --- 分隔。
func BuildContext(snippets []model.Snippet) string {
	parts := make([]string, len(snippets))
	for i, sn := range snippets {
		parts[i] = fmt.Sprintf("[%d] DOC=%s PAGE=%d\n%s\n", i+1, sn.DocumentName, sn.Page, sn.Text)
	}
	return strings.Join(parts, "\n---\n")
}

func previewWithEllipsis(text string, n int) string {
	preview := model.Truncate(text, n)
	if preview != text {
		preview += "…"
	}
	return preview
}
