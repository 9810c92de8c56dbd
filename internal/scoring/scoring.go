// Package scoring grades submissions and turns a grade into points.
package scoring

import "arena-quiz-service/internal/domain"

const (
	// MaxSubmitTime is the answer window in seconds.
	MaxSubmitTime = 30
	// BaseScore is awarded per second left in the window.
	BaseScore = 10
	// StreakBonus is awarded per consecutive correct answer before this one.
	StreakBonus = 75

	// choicePosition is the answer slot a multiple choice selection is read from.
	choicePosition = 1
)

// IsCorrect grades a submission against a problem's answer keys.
func IsCorrect(problem domain.Problem, answer domain.Answer) bool {
	if len(problem.Answers) == 0 {
		return false
	}
	switch problem.Type {
	case domain.MultipleChoice:
		return multipleChoice(problem.Answers, answer)
	case domain.ShortAnswer:
		return shortAnswer(problem.Answers, answer)
	case domain.FillInTheBlank:
		return fillInTheBlank(problem.Answers, answer)
	default:
		return false
	}
}

func multipleChoice(keys []domain.AnswerKey, answer domain.Answer) bool {
	chosen, ok := answer.Choices[choicePosition]
	return ok && chosen == keys[0].CorrectChoiceID
}

// shortAnswer compares the text exactly as authored; no case folding or trimming.
func shortAnswer(keys []domain.AnswerKey, answer domain.Answer) bool {
	return keys[0].CorrectText == answer.Text
}

// fillInTheBlank requires every blank to be present and correct.
func fillInTheBlank(keys []domain.AnswerKey, answer domain.Answer) bool {
	for _, key := range keys {
		chosen, ok := answer.Choices[key.BlankPosition]
		if !ok || chosen != key.CorrectChoiceID {
			return false
		}
	}
	return true
}

// Score computes the points for a graded submission. A submission past the
// window fails with ErrSubmitTimeExceeded whether or not it was correct.
func Score(correct bool, streak, submitTime int) (int, error) {
	if submitTime > MaxSubmitTime {
		return 0, domain.NewError(domain.CodeSubmitTimeExceeded, "submitTime", submitTime)
	}
	if !correct {
		return 0, nil
	}
	if submitTime < 0 {
		submitTime = 0
	}
	return BaseScore*(MaxSubmitTime-submitTime) + streak*StreakBonus, nil
}
