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


package rag

import (
	"fmt"
	"strings"

	"github.com/poiesic/nomnom/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// Template variable names.
const (
	VarContext  = "context"
	VarHistory  = "history"
	VarQuestion = "question"
)

// contextProbe is substituted for the context slot when a template is
// checked, to prove the slot is actually rendered.
const contextProbe = "\x00context-probe\x00"

// Composer fills the system template and question message for one request.
// Values are substituted as data and never parsed as template text, so a
// question containing template syntax is passed through literally.
type Composer struct {
	template prompts.ChatPromptTemplate
}

// NewComposer validates systemTemplate once and returns a composer for it.
// A template that fails to render or drops the context slot is a
// configuration error.
func NewComposer(systemTemplate string) (*Composer, error) {
	vars := []string{VarContext, VarHistory}
	if err := prompts.CheckValidTemplate(systemTemplate, prompts.TemplateFormatGoTemplate, vars); err != nil {
		return nil, fmt.Errorf("%w: system template: %w", core.ErrConfiguration, err)
	}
	rendered, err := prompts.RenderTemplate(systemTemplate, prompts.TemplateFormatGoTemplate, map[string]any{
		VarContext: contextProbe,
		VarHistory: "",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: system template: %w", core.ErrConfiguration, err)
	}
	if !strings.Contains(rendered, contextProbe) {
		return nil, fmt.Errorf("%w: system template has no {{.%s}} slot", core.ErrConfiguration, VarContext)
	}

	return &Composer{
		template: prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
			prompts.NewSystemMessagePromptTemplate(systemTemplate, vars),
			prompts.NewHumanMessagePromptTemplate(QuestionTemplate, []string{VarQuestion}),
		}),
	}, nil
}


// Compose builds the prompt for one request. Identical inputs always yield
// an identical prompt.
func (c *Composer) Compose(context, history, question string) (*core.Prompt, error) {
	messages, err := c.template.FormatMessages(map[string]any{
		VarContext:  context,
		VarHistory:  history,
		VarQuestion: question,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: compose prompt: %w", core.ErrConfiguration, err)
	}

	prompt := &core.Prompt{
		Context:  context,
		History:  history,
		Question: question,
		Messages: make([]core.Message, 0, len(messages)),
	}
	for _, m := range messages {
		role, err := roleOf(m.GetType())
		if err != nil {
			return nil, err
		}
		if role == core.RoleSystem && prompt.SystemInstructions == "" {
			prompt.SystemInstructions = m.GetContent()
		}
		prompt.Messages = append(prompt.Messages, core.Message{Role: role, Content: m.GetContent()})
	}
	return prompt, nil
}

func roleOf(t llms.ChatMessageType) (core.Role, error) {
	switch t {
	case llms.ChatMessageTypeSystem:
		return core.RoleSystem, nil
	case llms.ChatMessageTypeHuman:
		return core.RoleHuman, nil
	case llms.ChatMessageTypeAI:
		return core.RoleAssistant, nil
	default:
		return 0, fmt.Errorf("%w: unsupported message type %q", core.ErrConfiguration, t)
	}
}
