package memory

import (
	"context"
	"fmt"

	"github.com/polaris-ecosystems/rfp-agent/internal/aiclient"
	"github.com/polaris-ecosystems/rfp-agent/internal/model"
)

// AISummarizer implements Summarizer over the shared AI Client's call_text
// surface, with a bounded prompt per spec section 4.10 ("summarize via AI
// (bounded prompt)"). Compress falls back to deterministic truncation
// whenever this returns an error, so failures here are never fatal to a
// compression pass.
type AISummarizer struct {
	AI      *aiclient.Client
	Config  aiclient.PurposeConfig
	Purpose string
}

// Summarize asks the model for a single-paragraph summary of combined,
// bounded to 500 words, suitable for a compressed memory's content field.
func (s *AISummarizer) Summarize(ctx context.Context, combined string, memType Type) (string, error) {
	if s == nil || s.AI == nil {
		return "", fmt.Errorf("memory: AISummarizer not configured")
	}

	purpose := s.Purpose
	if purpose == "" {
		purpose = "memory_compression"
	}

	prompt := fmt.Sprintf(
		"Summarize the following %s memories into a single coherent paragraph of at most 500 words, preserving names, dates, and decisions. Do not invent facts not present below.\n\n%s",
		memType, combined,
	)
	messages := []*model.Message{
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: prompt}}},
	}

	out, _, err := s.AI.CallText(ctx, aiclient.CallTextOptions{
		Purpose:  purpose,
		Config:   s.Config,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("memory: ai summarize: %w", err)
	}
	return out, nil
}
