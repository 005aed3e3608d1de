// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/nomnom/ai"
	"github.com/poiesic/nomnom/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return newGeneratorWithModel(client, config.GenerationModel), nil
}

func newGeneratorWithModel(client llms.Model, model string) *Generator {
	return &Generator{
		client: client,
		model:  model,
		logger: slog.Default().With("component", "openai-generator"),
	}
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate streams the model's answer to prompt. Each chunk delivered by
// the client is forwarded as one fragment; the call runs at the fixed
// temperature. Closing the stream cancels the HTTP request.
func (g *Generator) Generate(ctx context.Context, prompt *core.Prompt) (*ai.Stream, error) {
	content, err := messageContent(prompt)
	if err != nil {
		return nil, err
	}

	return ai.NewStream(ctx, func(ctx context.Context, emit ai.EmitFunc) error {
		g.logger.Debug("starting generation", "model", g.model, "messages", len(content))

		chunks := 0
		_, err := g.client.GenerateContent(ctx, content,
			llms.WithTemperature(ai.Temperature),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				chunks++
				return emit(string(chunk))
			}),
		)
		if err != nil {
			g.logger.Debug("generation ended with error", "chunks", chunks, "err", err)
			return err
		}

		g.logger.Debug("generation complete", "chunks", chunks)
		return nil
	}), nil
}

func messageContent(prompt *core.Prompt) ([]llms.MessageContent, error) {
	if prompt == nil || len(prompt.Messages) == 0 {
		return nil, fmt.Errorf("%w: prompt has no messages", core.ErrConfiguration)
	}

	content := make([]llms.MessageContent, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		var role llms.ChatMessageType
		switch m.Role {
		case core.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case core.RoleHuman:
			role = llms.ChatMessageTypeHuman
		case core.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			return nil, fmt.Errorf("%w: %w: %v", core.ErrConfiguration, core.ErrInvalidRole, m.Role)
		}
		content = append(content, llms.TextParts(role, m.Content))
	}
	return content, nil
}
