package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"pdfrag/src/log"
)

const (
	// FallbackAnswer is returned without calling the completion backend when
	// retrieval found nothing.
	FallbackAnswer = "I couldn't find any relevant information in this document to answer your question."

	// InsufficientInformation is the phrase the model is told to emit when the
	// context does not support an answer. Nothing enforces it.
	InsufficientInformation = "I don't have enough information to answer this question."

	contextSeparator = "\n\n"
)

const answerTemplate = `You are a helpful assistant that answers questions based on the provided context.

Context:
{{.context}}

Question: {{.question}}

Answer the question based only on the provided context. If the answer cannot be determined from the context, say "{{.insufficient}}"`

// AnswerComposer builds a grounded prompt from ranked chunks and asks the
// completion backend for an answer.
type AnswerComposer struct {
	completer Completer
	template  prompts.PromptTemplate
}

func NewAnswerComposer(completer Completer) *AnswerComposer {
	return &AnswerComposer{
		completer: completer,
		template:  prompts.NewPromptTemplate(answerTemplate, []string{"context", "question", "insufficient"}),
	}
}

// BuildPrompt renders the prompt for question over chunks in the given order.
func (a *AnswerComposer) BuildPrompt(question string, chunks []ScoredChunk) (string, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.Text
	}

	prompt, err := a.template.Format(map[string]any{
		"context":      strings.Join(texts, contextSeparator),
		"question":     question,
		"insufficient": InsufficientInformation,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return prompt, nil
}

// Compose answers question from chunks. An empty chunk list short-circuits to
// FallbackAnswer.
func (a *AnswerComposer) Compose(ctx context.Context, question string, chunks []ScoredChunk) (string, error) {
	if len(chunks) == 0 {
		log.Debug("no chunks retrieved, returning fallback answer")
		return FallbackAnswer, nil
	}

	prompt, err := a.BuildPrompt(question, chunks)
	if err != nil {
		return "", err
	}

	answer, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}
