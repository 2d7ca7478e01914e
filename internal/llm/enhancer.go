/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-translator/internal/config"
	"github.com/sashabaranov/go-openai"
)

// EnhanceInstruction is the system prompt sent with every enhancement request
const EnhanceInstruction = "You are a translation and transcription expert. Correct and enhance any terminology in the following text while preserving the original meaning. just translate what input you receive."

// ErrEmptyCompletion is returned when the chat model answers without content
var ErrEmptyCompletion = errors.New("chat completion returned no content")

// Enhancer rewrites a transcript with corrected terminology
type Enhancer interface {
	Enhance(ctx context.Context, text string) (string, error)
}

// ChatEnhancer implements Enhancer with an OpenAI-compatible chat model
type ChatEnhancer struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewChatEnhancer creates an enhancer from configuration
func NewChatEnhancer(client *openai.Client, cfg config.EnhancerConfig) *ChatEnhancer {
	return &ChatEnhancer{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Enhance implements the Enhancer interface
func (e *ChatEnhancer) Enhance(ctx context.Context, text string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: EnhanceInstruction},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
