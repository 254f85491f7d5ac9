package feedback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/zhouzirui/wingchat/backend/internal/model/evaluation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const wellFormed = `1. 整體表現總結：
使用者開場自然，能主動延續話題，但在提出邀約時略顯猶豫，可以更直接表達想法。

2. 各項評分：
- 表達清晰度 (Clarity)：82 分，理由：句子簡潔，意思清楚
- 同理心展現 (Empathy)：75 分，理由：有回應對方的疲累，但可以再多關心
- 自信程度 (Confidence)：64 分，理由：邀約時用了很多不確定的語氣
- 言談適當性 (Appropriateness)：90 分，理由：用詞禮貌且符合情境
- 目標達成技巧 (Goal Achievement)：70 分，理由：有提出邀約但沒有確認時間

3. 優點：
- 主動關心對方
- 語氣輕鬆自然

4. 改進建議：
- 邀約時給出具體時間
- 減少猶豫的語助詞
- 多問開放式問題`

func TestParseWellFormed(t *testing.T) {
	ev := NewParser(zap.NewNop()).Parse(wellFormed)

	require.Equal(t, "使用者開場自然，能主動延續話題，但在提出邀約時略顯猶豫，可以更直接表達想法。", ev.Summary)

	want := map[evaluation.Criterion]int{
		evaluation.Clarity:         82,
		evaluation.Empathy:         75,
		evaluation.Confidence:      64,
		evaluation.Appropriateness: 90,
		evaluation.GoalAchievement: 70,
	}
	for c, score := range want {
		require.NotNil(t, ev.Scores[c].Score, c)
		require.Equal(t, score, *ev.Scores[c].Score, c)
	}
	require.Equal(t, "句子簡潔，意思清楚", ev.Scores[evaluation.Clarity].Justification)
	require.Equal(t, "有提出邀約但沒有確認時間", ev.Scores[evaluation.GoalAchievement].Justification)

	require.Equal(t, []string{"主動關心對方", "語氣輕鬆自然"}, ev.Strengths)
	require.Equal(t, []string{"邀約時給出具體時間", "減少猶豫的語助詞", "多問開放式問題"}, ev.Improvements)
}

func TestParseMissingStrengthsSection(t *testing.T) {
	raw := strings.Replace(wellFormed, "3. 優點：\n- 主動關心對方\n- 語氣輕鬆自然\n\n", "", 1)

	ev := NewParser(zap.NewNop()).Parse(raw)

	require.Equal(t, []string{evaluation.DefaultStrength}, ev.Strengths)
	require.Contains(t, ev.Summary, "使用者開場自然")
	require.Equal(t, 82, *ev.Scores[evaluation.Clarity].Score)
	require.Equal(t, 70, *ev.Scores[evaluation.GoalAchievement].Score)
	require.Len(t, ev.Improvements, 3)
}

func TestParseClampsScores(t *testing.T) {
	raw := `2. 各項評分：
- 表達清晰度：150 分，理由：超出範圍
- 同理心展現：-20 分，理由：負數
- 自信程度：99999999999999999999 分，理由：溢位`

	ev := NewParser(nil).Parse(raw)

	require.Equal(t, 100, *ev.Scores[evaluation.Clarity].Score)
	require.Equal(t, 0, *ev.Scores[evaluation.Empathy].Score)
	require.Equal(t, 100, *ev.Scores[evaluation.Confidence].Score)
}

func TestParseJustificationWithoutScore(t *testing.T) {
	raw := `2. 各項評分：
- 目標達成技巧：無法評分，理由：沒有設定明確目標`

	ev := NewParser(nil).Parse(raw)

	got := ev.Scores[evaluation.GoalAchievement]
	require.Nil(t, got.Score)
	require.Equal(t, "沒有設定明確目標", got.Justification)
}

func TestParseScoreOnlyLines(t *testing.T) {
	raw := `[Feedback Summary]
Good opener.

[Scores]
Clarity: 80
Empathy: 70
Confidence: 75
Appropriateness: 85
Goal Achievement: 90`

	ev := NewParser(nil).Parse(raw)

	require.Equal(t, "Good opener.", ev.Summary)
	require.Equal(t, 90, *ev.Scores[evaluation.GoalAchievement].Score)
	require.Equal(t, evaluation.DefaultJustification, ev.Scores[evaluation.Clarity].Justification)
}

func TestParseMarkdownHeadings(t *testing.T) {
	raw := `## 1. 整體表現總結：表現穩定，回覆有禮貌
## 2. 各項評分
1. **表達清晰度**：**88** 分，理由：**清楚**
3. 自信程度：60 分，理由：略顯保守
## 3. 優點
* 很有禮貌
• 回覆迅速
## 4. 改進建議
- 多分享自己的經驗`

	ev := NewParser(nil).Parse(raw)

	require.Equal(t, "表現穩定，回覆有禮貌", ev.Summary)
	require.Equal(t, 88, *ev.Scores[evaluation.Clarity].Score)
	require.Equal(t, "清楚", ev.Scores[evaluation.Clarity].Justification)
	require.Equal(t, 60, *ev.Scores[evaluation.Confidence].Score)
	require.Equal(t, []string{"很有禮貌", "回覆迅速"}, ev.Strengths)
	require.Equal(t, []string{"多分享自己的經驗"}, ev.Improvements)
}

func TestParseScoresWithoutSectionTwo(t *testing.T) {
	raw := "同理心：77 分，理由：有接住對方的情緒"

	ev := NewParser(nil).Parse(raw)

	require.Equal(t, 77, *ev.Scores[evaluation.Empathy].Score)
	require.Equal(t, evaluation.DefaultSummary, ev.Summary)
}

func TestParseAlwaysReturnsFixedKeys(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"完全不照格式的回答",
		"1.\n2.\n3.\n4.",
		"4. 改進建議：\n1. 優點：\n- x",
		"```json\n{\"score\": 10}\n```",
		strings.Repeat("- 表達清晰度：", 50),
	}
	p := NewParser(nil)
	for _, raw := range inputs {
		ev := p.Parse(raw)
		require.Len(t, ev.Scores, len(evaluation.Criteria), raw)
		for _, c := range evaluation.Criteria {
			_, ok := ev.Scores[c]
			require.True(t, ok, "missing %s for %q", c, raw)
		}
		require.NotEmpty(t, ev.Summary)
		require.NotEmpty(t, ev.Strengths)
		require.NotEmpty(t, ev.Improvements)
	}
}

func TestParseRecoversFromRulePanic(t *testing.T) {
	p := NewParser(nil)
	p.rules = append([]rule{{name: "explode", apply: func(*document, *evaluation.UserEvaluation) { panic("boom") }}}, p.rules...)

	ev := p.Parse(wellFormed)

	require.Equal(t, 82, *ev.Scores[evaluation.Clarity].Score)
	require.Len(t, ev.Strengths, 2)
}

func TestParseIgnoresEchoedScoreRange(t *testing.T) {
	raw := `[Scores]
Clarity (0-100): 80, justification: clear
Empathy（0 到 100）：65 分，理由：有回應情緒
Confidence [0~100]: reason: hesitant
Goal Achievement (0-100): 75 reason: ok`

	ev := NewParser(nil).Parse(raw)

	require.Equal(t, 80, *ev.Scores[evaluation.Clarity].Score)
	require.Equal(t, "clear", ev.Scores[evaluation.Clarity].Justification)
	require.Equal(t, 65, *ev.Scores[evaluation.Empathy].Score)
	require.Nil(t, ev.Scores[evaluation.Confidence].Score)
	require.Equal(t, "hesitant", ev.Scores[evaluation.Confidence].Justification)
	require.Equal(t, 75, *ev.Scores[evaluation.GoalAchievement].Score)
}

func TestParseNumberedImprovementsWithoutStrengths(t *testing.T) {
	raw := `1. 整體表現總結：
整體流暢。

2. 各項評分：
- 表達清晰度 (Clarity)：80 分，理由：清楚

4. 改進建議：
1. 多提問
2. 放慢
3. 多微笑`

	ev := NewParser(nil).Parse(raw)

	require.Equal(t, "整體流暢。", ev.Summary)
	require.Equal(t, 80, *ev.Scores[evaluation.Clarity].Score)
	require.Equal(t, []string{evaluation.DefaultStrength}, ev.Strengths)
	require.Equal(t, []string{"多提問", "放慢", "多微笑"}, ev.Improvements)
}
