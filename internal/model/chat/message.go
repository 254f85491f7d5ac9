package chat

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/wingchat/backend/internal/model/persona"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one caller-supplied message of the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Mode selects the reply flow.
type Mode string

const (
	// ModeCharacterPlay lets the model speak as the persona.
	ModeCharacterPlay Mode = "character_play"
	// ModeAssistant makes the model draft a reply on behalf of the human user.
	ModeAssistant Mode = "assistant"
)

// ParseMode normalises a caller-supplied mode. An empty value selects
// character play, matching the first version of the endpoint which had no mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeCharacterPlay:
		return ModeCharacterPlay, nil
	case ModeAssistant:
		return ModeAssistant, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", raw)
	}
}

// Usable drops turns that carry no content or an unknown role, keeping order.
func Usable(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		switch t.Role {
		case RoleUser, RoleAssistant:
			out = append(out, t)
		}
	}
	return out
}

// Recent returns at most limit trailing turns.
func Recent(turns []Turn, limit int) []Turn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}

// ReplyRequest is the payload of the generate-reply operation.
type ReplyRequest struct {
	Character   *persona.Persona `json:"character,omitempty"`
	CharacterID string           `json:"characterId,omitempty"`
	Goal        string           `json:"goal"`
	Messages    []Turn           `json:"messages"`
	Mode        string           `json:"mode"`
}

// EvaluationRequest is the payload of the generate-evaluation operation.
type EvaluationRequest struct {
	Character   *persona.Persona `json:"character,omitempty"`
	CharacterID string           `json:"characterId,omitempty"`
	Goal        string           `json:"goal,omitempty"`
	Messages    []Turn           `json:"messages"`
}
