package prompt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/wingchat/backend/internal/model/chat"
	"github.com/zhouzirui/wingchat/backend/internal/model/persona"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(DefaultTemplates())
	require.NoError(t, err)
	return b
}

func neighbour() *persona.Persona {
	return &persona.Persona{Name: "健談的鄰居", Description: "一位友善、開朗且健談的鄰居"}
}

func alternating(n int) []chat.Turn {
	turns := make([]chat.Turn, 0, n)
	for i := 1; i <= n; i++ {
		role := chat.RoleUser
		if i%2 == 0 {
			role = chat.RoleAssistant
		}
		turns = append(turns, chat.Turn{Role: role, Content: fmt.Sprintf("turn-%02d", i)})
	}
	return turns
}

func TestBuildReplyCharacterPlay(t *testing.T) {
	b := newTestBuilder(t)

	p, err := b.BuildReply(context.Background(), ReplyInput{
		Goal:      "約對方週末去爬山",
		History:   []chat.Turn{{Role: chat.RoleUser, Content: "嗨 最近好嗎"}},
		Character: neighbour(),
	})
	require.NoError(t, err)

	require.Len(t, p.Messages, 2)
	require.Equal(t, schema.System, p.Messages[0].Role)
	require.Contains(t, p.Messages[0].Content, "健談的鄰居")
	require.Contains(t, p.Messages[0].Content, "約對方週末去爬山")
	require.Contains(t, p.Messages[0].Content, "不要重複")

	require.True(t, strings.HasPrefix(p.Text, BeginOfText+StartHeader+"system"+EndHeader+"\n\n"))
	require.Contains(t, p.Text, StartHeader+"user"+EndHeader+"\n\n嗨 最近好嗎"+EndOfTurn)
	require.True(t, strings.HasSuffix(p.Text, StartHeader+"assistant"+EndHeader+"\n\n"))
}

func TestBuildReplyDefaultsBlankGoal(t *testing.T) {
	b := newTestBuilder(t)

	p, err := b.BuildReply(context.Background(), ReplyInput{
		Mode:      "character_play",
		Goal:      "   ",
		Character: neighbour(),
	})
	require.NoError(t, err)
	require.Contains(t, p.Messages[0].Content, DefaultTemplates().Defaults.Goal)
}

func TestBuildReplyKeepsLastTenTurns(t *testing.T) {
	b := newTestBuilder(t)
	history := alternating(15)
	history = append(history[:3], append([]chat.Turn{{Role: chat.RoleUser, Content: "  "}, {Role: chat.RoleSystem, Content: "ignored"}}, history[3:]...)...)

	p, err := b.BuildReply(context.Background(), ReplyInput{History: history, Character: neighbour()})
	require.NoError(t, err)

	require.Len(t, p.Messages, 1+HistoryLimit)
	for i := 1; i <= 5; i++ {
		require.NotContains(t, p.Text, fmt.Sprintf("turn-%02d", i))
	}
	for i := 6; i <= 15; i++ {
		require.Contains(t, p.Text, fmt.Sprintf("turn-%02d", i))
	}
	require.NotContains(t, p.Text, "ignored")
}

func TestBuildReplyAssistantMode(t *testing.T) {
	b := newTestBuilder(t)

	p, err := b.BuildReply(context.Background(), ReplyInput{
		Mode: "assistant",
		Goal: "邀請對方吃晚餐",
		History: []chat.Turn{
			{Role: chat.RoleUser, Content: "今天好累喔\n剛下班"},
		},
	})
	require.NoError(t, err)

	system := p.Messages[0].Content
	require.Contains(t, system, "邀請對方吃晚餐")
	require.Contains(t, system, "對方剛剛說：今天好累喔 剛下班")
	require.Contains(t, system, DefaultTemplates().Defaults.PartnerName)
	require.Contains(t, system, DefaultTemplates().Defaults.PartnerDescription)
}

func TestBuildReplyValidation(t *testing.T) {
	b := newTestBuilder(t)
	partnerSpoke := []chat.Turn{{Role: chat.RoleUser, Content: "在嗎"}}

	cases := []struct {
		name  string
		in    ReplyInput
		field string
	}{
		{"character play without character", ReplyInput{Mode: "character_play", History: partnerSpoke}, "character"},
		{"character play with blank character", ReplyInput{Character: &persona.Persona{Description: "只有描述"}}, "character"},
		{"assistant without goal", ReplyInput{Mode: "assistant", History: partnerSpoke}, "goal"},
		{"assistant without history", ReplyInput{Mode: "assistant", Goal: "聊天"}, "messages"},
		{"assistant answering itself", ReplyInput{Mode: "assistant", Goal: "聊天", History: alternating(2)}, "messages"},
		{"unknown mode", ReplyInput{Mode: "narrator", Character: neighbour()}, "mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.BuildReply(context.Background(), tc.in)
			require.Error(t, err)
			require.True(t, IsValidation(err))

			var v *ValidationError
			require.ErrorAs(t, err, &v)
			require.Equal(t, tc.field, v.Field)
		})
	}
}

func TestBuildFeedback(t *testing.T) {
	b := newTestBuilder(t)

	p, err := b.BuildFeedback(context.Background(), FeedbackInput{
		History:   alternating(14),
		Character: neighbour(),
	})
	require.NoError(t, err)
	require.Len(t, p.Messages, 2)

	system, user := p.Messages[0], p.Messages[1]
	require.Equal(t, schema.System, system.Role)
	require.Contains(t, system.Content, DefaultTemplates().Defaults.FeedbackGoal)
	require.Contains(t, system.Content, "健談的鄰居")
	require.Contains(t, system.Content, "表達清晰度")
	require.Contains(t, system.Content, "目標達成技巧")

	require.Equal(t, schema.User, user.Role)
	require.Contains(t, user.Content, "使用者: turn-05")
	require.Contains(t, user.Content, "健談的鄰居: turn-14")
	require.NotContains(t, user.Content, "turn-04")
}

func TestBuildFeedbackValidation(t *testing.T) {
	b := newTestBuilder(t)
	history := alternating(2)

	_, err := b.BuildFeedback(context.Background(), FeedbackInput{Character: neighbour()})
	require.True(t, IsValidation(err))

	_, err = b.BuildFeedback(context.Background(), FeedbackInput{History: history})
	require.True(t, IsValidation(err))

	_, err = b.BuildFeedback(context.Background(), FeedbackInput{History: history, Character: &persona.Persona{Name: "小美"}})
	var v *ValidationError
	require.ErrorAs(t, err, &v)
	require.Equal(t, "character.description", v.Field)
}

func TestTranscriptKeepsOneLinePerTurn(t *testing.T) {
	got := Transcript([]chat.Turn{
		{Role: chat.RoleUser, Content: "第一句\n第二句"},
		{Role: chat.RoleAssistant, Content: "好喔"},
	}, "小美")
	require.Equal(t, "使用者: 第一句 第二句\n小美: 好喔", got)
}

func TestLoadTemplatesOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: custom\ndefaults:\n  goal: 認識新朋友\n"), 0o600))

	tpl, err := LoadTemplates(path)
	require.NoError(t, err)
	require.Equal(t, "custom", tpl.Version)
	require.Equal(t, "認識新朋友", tpl.Defaults.Goal)
	require.Equal(t, DefaultTemplates().Rubric, tpl.Rubric)

	b, err := NewBuilder(tpl)
	require.NoError(t, err)
	p, err := b.BuildReply(context.Background(), ReplyInput{Character: neighbour()})
	require.NoError(t, err)
	require.Contains(t, p.Messages[0].Content, "認識新朋友")
}

func TestLoadTemplatesErrors(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("style: [unterminated"), 0o600))
	_, err = LoadTemplates(path)
	require.Error(t, err)

	tpl, err := LoadTemplates("")
	require.NoError(t, err)
	require.Equal(t, DefaultTemplates(), tpl)
}

func TestNewBuilderRejectsEmptyTemplates(t *testing.T) {
	_, err := NewBuilder(Templates{})
	require.Error(t, err)
}
