package evaluation

// Criterion names one rubric dimension.
type Criterion string

const (
	Clarity         Criterion = "clarity"
	Empathy         Criterion = "empathy"
	Confidence      Criterion = "confidence"
	Appropriateness Criterion = "appropriateness"
	GoalAchievement Criterion = "goalAchievement"
)

// Criteria lists the rubric dimensions in the order the model is asked to score them.
var Criteria = []Criterion{Clarity, Empathy, Confidence, Appropriateness, GoalAchievement}

// Placeholders used when the model output lacks a field.
const (
	DefaultSummary       = "AI 未提供整體總結"
	DefaultJustification = "AI 未提供此項說明"
	DefaultStrength      = "無明確的其他優點"
	DefaultImprovement   = "無明確的其他改進建議"
)

// Score is one rubric entry. A nil Score means the model gave no number.
type Score struct {
	Score         *int   `json:"score"`
	Justification string `json:"justification"`
}

// UserEvaluation is the structured rubric answer returned to the caller.
type UserEvaluation struct {
	Summary      string              `json:"summary"`
	Scores       map[Criterion]Score `json:"scores"`
	Strengths    []string            `json:"strengths"`
	Improvements []string            `json:"improvements"`
}

// New returns an evaluation holding only placeholders, with every criterion present.
func New() UserEvaluation {
	scores := make(map[Criterion]Score, len(Criteria))
	for _, c := range Criteria {
		scores[c] = Score{Justification: DefaultJustification}
	}
	return UserEvaluation{
		Summary:      DefaultSummary,
		Scores:       scores,
		Strengths:    []string{DefaultStrength},
		Improvements: []string{DefaultImprovement},
	}
}

// Clamp bounds a raw score to [0, 100].
func Clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// IntPtr is a small helper for building scores.
func IntPtr(n int) *int { return &n }
