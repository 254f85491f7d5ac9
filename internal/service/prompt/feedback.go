package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/wingchat/backend/internal/model/chat"
)

// UserSpeaker labels the human's lines in a feedback transcript.
const UserSpeaker = "使用者"

// BuildFeedback renders the rubric prompt used to score the user's side of a conversation.
func (b *Builder) BuildFeedback(ctx context.Context, in FeedbackInput) (*Prompt, error) {
	history := chat.Recent(chat.Usable(in.History), HistoryLimit)
	if len(history) == 0 {
		return nil, Invalid("messages", "conversation history is empty")
	}
	if in.Character == nil || strings.TrimSpace(in.Character.Name) == "" {
		return nil, Invalid("character.name", "character name is required")
	}
	if strings.TrimSpace(in.Character.Description) == "" {
		return nil, Invalid("character.description", "character description is required")
	}

	name := strings.TrimSpace(in.Character.Name)
	vars := map[string]any{
		"goal":                  orDefault(in.Goal, b.templates.Defaults.FeedbackGoal),
		"character_name":        name,
		"character_description": strings.TrimSpace(in.Character.Description),
		"transcript":            Transcript(history, name),
	}

	messages, err := b.feedback.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format feedback prompt: %w", err)
	}
	return &Prompt{Text: RenderLlama3(messages), Messages: messages}, nil
}

// Transcript renders turns as "speaker: content" lines, one line per turn.
func Transcript(turns []chat.Turn, partner string) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := partner
		if t.Role == chat.RoleUser {
			speaker = UserSpeaker
		}
		lines = append(lines, speaker+": "+singleLine(t.Content))
	}
	return strings.Join(lines, "\n")
}
