package actions

import (
	"context"
	"strings"
)

// FallbackAnswer replaces an empty chatbot answer.
const FallbackAnswer = "I'm sorry, I couldn't process that request."

// Assistant relays operator questions to the backend chatbot.
type Assistant struct {
	backend Backend
}

func NewAssistant(backend Backend) *Assistant {
	return &Assistant{backend: backend}
}

func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", &ValidationError{Message: "Please enter a question"}
	}
	answer, err := a.backend.AskChatbot(ctx, question)
	if err != nil {
		return "", &ActionError{Kind: "chatbot", Err: err}
	}
	if strings.TrimSpace(answer) == "" {
		return FallbackAnswer, nil
	}
	return answer, nil
}
