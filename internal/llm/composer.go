package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"textbook-rag/internal/models"
)

const (
	gujaratiNotFound = "માફ કરશો, મને તમારી પાઠ્યપુસ્તક અથવા અપલોડ કરેલી સામગ્રીમાં આ માહિતી મળી નથી. (Sorry, I couldn't find this information in your textbook or uploaded material.)"
	englishNotFound  = "Sorry, I couldn't find this in your textbook or uploaded material."
)

const gujaratiSystemPrompt = `You are a kind Gujarati teacher for primary school students.

CRITICAL RULES:
1. You MUST answer ONLY using the provided textbook context.
2. If the context is corrupted, unclear, or doesn't contain the answer, respond: "માફ કરશો, મને આ પ્રશ્નનો જવાબ પાઠ્યપુસ્તકમાં સ્પષ્ટ રીતે મળ્યો નથી."
3. Always respond in Gujarati (ગુજરાતી ભાષામાં)
4. Keep answers simple and detailed for primary students
5. Do NOT use your general knowledge - ONLY the textbook context
6. Provide complete, comprehensive answers but keep it as simple as possible, easy to understand for a child aged 5-8 years of age

If the context below is unreadable or doesn't answer the question, you MUST say so.`

const gujaratiUserPrompt = `પાઠ્યપુસ્તક અને અપલોડ કરેલી સામગ્રીમાંથી સંદર્ભ (Context from Textbook and Uploaded Material):
%s

પ્રશ્ન (Question): %s

કૃપા કરીને વિગતવાર જવાબ આપો (Please provide a detailed answer):`

const englishSystemPrompt = "You are a kind teacher for primary school students of India. " +
	"Synthesize and rephrase the provided context to answer the user's question in a simple, clear, and comprehensive manner. " +
	"Do not copy sentences verbatim. " +
	"Provide complete, detailed answers but keep them simple and easy to understand for children of age 5-8 years. " +
	"If the answer cannot be found in the provided context, politely say: '" + englishNotFound + "'"

const englishUserPrompt = "Context from textbook and uploaded material:\n%s\n\nQuestion: %s\n\nPlease provide a detailed answer:"

// NotFoundMessage is the fixed answer given when no context was found.
func NotFoundMessage(lang models.Language) string {
	if lang == models.Gujarati {
		return gujaratiNotFound
	}
	return englishNotFound
}

// BuildMessages creates the system and user messages for a question.
func BuildMessages(lang models.Language, passages, question string) []Message {
	if lang == models.Gujarati {
		return []Message{
			{Role: RoleSystem, Content: gujaratiSystemPrompt},
			{Role: RoleUser, Content: fmt.Sprintf(gujaratiUserPrompt, passages, question)},
		}
	}
	return []Message{
		{Role: RoleSystem, Content: englishSystemPrompt},
		{Role: RoleUser, Content: fmt.Sprintf(englishUserPrompt, passages, question)},
	}
}

// Composer turns retrieved context into an answer.
type Composer struct {
	Provider    Provider
	Temperature float64
	TopP        float64
	MaxTokens   int
	Logger      *slog.Logger
}

// NewComposer creates a composer with deterministic sampling.
func NewComposer(p Provider, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		Provider:    p,
		Temperature: 0,
		TopP:        0.9,
		Logger:      logger,
	}
}

// Answer returns the provider's answer verbatim. Blank passages short-circuit
// to the localized not-found message without calling the provider. Provider
// errors are returned as is.
func (c *Composer) Answer(ctx context.Context, lang models.Language, passages, question string) (string, error) {
	if strings.TrimSpace(passages) == "" {
		c.Logger.Info("no context found", "language", lang)
		return NotFoundMessage(lang), nil
	}

	answer, err := c.Provider.Complete(ctx, CompletionRequest{
		Messages:    BuildMessages(lang, passages, question),
		Temperature: c.Temperature,
		TopP:        c.TopP,
		MaxTokens:   c.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	c.Logger.Debug("generated answer", "language", lang, "answer_chars", len([]rune(answer)))
	return answer, nil
}
