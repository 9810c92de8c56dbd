package domain

// ProblemType selects how a submission is graded.
type ProblemType string

const (
	MultipleChoice ProblemType = "MULTIPLE_CHOICE"
	ShortAnswer    ProblemType = "SHORT_ANSWER_QUESTION"
	FillInTheBlank ProblemType = "FILL_IN_THE_BLANK"
)

// Choice is a selectable option.
type Choice struct {
	ID   int    `json:"choiceId" yaml:"choiceId"`
	Text string `json:"choiceText" yaml:"choiceText"`
}

// AnswerKey is one correct answer. Multiple choice and short answer problems
// use a single key; fill in the blank has one key per blank position.
type AnswerKey struct {
	BlankPosition   int    `json:"blankPosition,omitempty" yaml:"blankPosition"`
	CorrectChoiceID int    `json:"correctChoiceId,omitempty" yaml:"correctChoiceId"`
	CorrectText     string `json:"correctAnswerText,omitempty" yaml:"correctAnswerText"`
}

// Problem is immutable for the lifetime of a game.
type Problem struct {
	ID         int64       `json:"problemId" yaml:"problemId"`
	Title      string      `json:"title" yaml:"title"`
	Type       ProblemType `json:"problemType" yaml:"problemType"`
	Category   string      `json:"category,omitempty" yaml:"category"`
	Difficulty string      `json:"difficulty,omitempty" yaml:"difficulty"`
	Content    string      `json:"problemContent" yaml:"problemContent"`
	Choices    []Choice    `json:"problemChoices,omitempty" yaml:"problemChoices"`
	Answers    []AnswerKey `json:"problemAnswers" yaml:"problemAnswers"`
}

// ProblemView is a problem with its answer keys stripped, safe to send to players.
type ProblemView struct {
	ID         int64       `json:"problemId"`
	Title      string      `json:"title"`
	Type       ProblemType `json:"problemType"`
	Category   string      `json:"category,omitempty"`
	Difficulty string      `json:"difficulty,omitempty"`
	Content    string      `json:"problemContent"`
	Choices    []Choice    `json:"problemChoices,omitempty"`
}

// View strips the answer keys.
func (p Problem) View() ProblemView {
	choices := make([]Choice, len(p.Choices))
	copy(choices, p.Choices)
	return ProblemView{
		ID:         p.ID,
		Title:      p.Title,
		Type:       p.Type,
		Category:   p.Category,
		Difficulty: p.Difficulty,
		Content:    p.Content,
		Choices:    choices,
	}
}

// Views strips the answer keys from every problem.
func Views(problems []Problem) []ProblemView {
	out := make([]ProblemView, 0, len(problems))
	for _, p := range problems {
		out = append(out, p.View())
	}
	return out
}
