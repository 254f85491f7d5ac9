package persona

import "strings"

// Persona describes a chat partner: the character the model plays, or the
// person the user is talking to in assistant mode.
type Persona struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Title       string `json:"title,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	IsDefault   bool   `json:"isDefault,omitempty"`
}

// Empty reports whether neither a name nor a description was supplied.
func (p *Persona) Empty() bool {
	return p == nil || (strings.TrimSpace(p.Name) == "" && strings.TrimSpace(p.Description) == "")
}

// Seed provides the characters the frontend ships with.
func Seed() []Persona {
	return []Persona{
		{
			ID:          "default_assistant_char",
			Name:        "通用助手 (預設)",
			Description: "一位友善的通用型 AI 助手，適合一般聊天建議。",
			IsDefault:   true,
		},
		{
			ID:          "default_training_char",
			Name:        "健談的鄰居 (預設)",
			Description: "一位友善、開朗且健談的鄰居，喜歡閒聊家常。",
			IsDefault:   true,
		},
		{
			ID:          "interviewer_hr",
			Name:        "HR 面試官 (嚴謹型)",
			Title:       "面試練習",
			Description: "一位嚴謹、注重細節的 HR 面試官。語氣專業，會針對履歷提問，並追問細節。目標是評估你的專業素養和溝通能力。",
		},
	}
}
