// Package prompt renders the instruction prompts sent to the completion
// service for both the reply and the feedback flows.
package prompt

import (
	"context"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/wingchat/backend/internal/model/chat"
	"github.com/zhouzirui/wingchat/backend/internal/model/persona"
)

// HistoryLimit is the number of trailing turns kept in any rendered transcript.
const HistoryLimit = 10

// Prompt is a rendered prompt. Text targets the raw completion endpoint and
// Messages the chat endpoint; both carry the same content.
type Prompt struct {
	Text     string
	Messages []*schema.Message
}

// ReplyInput describes one generate-reply request.
type ReplyInput struct {
	Mode      string
	Goal      string
	History   []chat.Turn
	Character *persona.Persona
}

// FeedbackInput describes one evaluation request.
type FeedbackInput struct {
	Goal      string
	History   []chat.Turn
	Character *persona.Persona
}

// Builder renders prompts from a Templates set. It holds no mutable state
// and may be shared between requests.
type Builder struct {
	templates     Templates
	characterPlay einoprompt.ChatTemplate
	assistant     einoprompt.ChatTemplate
	feedback      einoprompt.ChatTemplate
}

// NewBuilder compiles the chat templates used for each flow.
func NewBuilder(t Templates) (*Builder, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	return &Builder{
		templates: t,
		characterPlay: einoprompt.FromMessages(
			schema.FString,
			schema.SystemMessage(t.CharacterPlay),
			schema.MessagesPlaceholder("history", true),
		),
		assistant: einoprompt.FromMessages(
			schema.FString,
			schema.SystemMessage(t.Assistant),
			schema.MessagesPlaceholder("history", true),
		),
		feedback: einoprompt.FromMessages(
			schema.FString,
			schema.SystemMessage(t.Rubric),
			schema.UserMessage(t.FeedbackRequest),
		),
	}, nil
}

// Templates returns the template set the builder was created with.
func (b *Builder) Templates() Templates {
	return b.templates
}

// BuildReply renders the prompt asking the model for the next chat message.
func (b *Builder) BuildReply(ctx context.Context, in ReplyInput) (*Prompt, error) {
	mode, err := chat.ParseMode(in.Mode)
	if err != nil {
		return nil, Invalid("mode", "%v", err)
	}

	history := chat.Recent(chat.Usable(in.History), HistoryLimit)
	goal := strings.TrimSpace(in.Goal)
	vars := map[string]any{
		"style":   b.templates.Style,
		"history": toMessages(history),
	}

	var tpl einoprompt.ChatTemplate
	switch mode {
	case chat.ModeCharacterPlay:
		if in.Character.Empty() || strings.TrimSpace(in.Character.Name) == "" {
			return nil, Invalid("character", "character is required in %s mode", mode)
		}
		if goal == "" {
			goal = b.templates.Defaults.Goal
		}
		vars["character_name"] = strings.TrimSpace(in.Character.Name)
		vars["character_description"] = orDefault(in.Character.Description, b.templates.Defaults.PartnerDescription)
		tpl = b.characterPlay

	case chat.ModeAssistant:
		if goal == "" {
			return nil, Invalid("goal", "goal is required in %s mode", mode)
		}
		if len(history) == 0 {
			return nil, Invalid("messages", "conversation history is empty")
		}
		last := history[len(history)-1]
		if last.Role != chat.RoleUser {
			return nil, Invalid("messages", "the latest message must come from the chat partner")
		}

		name, description := b.templates.Defaults.PartnerName, b.templates.Defaults.PartnerDescription
		if !in.Character.Empty() {
			name = orDefault(in.Character.Name, name)
			description = orDefault(in.Character.Description, description)
		}
		vars["partner_name"] = name
		vars["partner_description"] = description
		vars["last_message"] = singleLine(last.Content)
		tpl = b.assistant
	}
	vars["goal"] = goal

	messages, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format %s prompt: %w", mode, err)
	}
	return &Prompt{Text: RenderLlama3(messages), Messages: messages}, nil
}

func toMessages(turns []chat.Turn) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(t.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(t.Content, nil))
		}
	}
	return out
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
