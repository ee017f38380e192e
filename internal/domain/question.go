package domain

import "strings"

// QuestionKind discriminates the question variants the grader handles.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalse      QuestionKind = "true-false"
	KindMultiSelect    QuestionKind = "multi-select"
	KindSequence       QuestionKind = "sequence"
	KindCaseStudy      QuestionKind = "case-study"
	KindShortAnswer    QuestionKind = "short-answer"
	KindFillBlank      QuestionKind = "fill-blank"
)

// Option represents a selectable answer for option-based questions.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is a tagged variant. Kind decides which fields are meaningful:
// option kinds (multiple-choice, true-false, case-study, multi-select,
// sequence) use Options; text kinds (short-answer, fill-blank) use Accepted.
// For multi-select every option marked Correct must be chosen; for sequence
// the Options order is the correct order.
type Question struct {
	ID       string       `json:"id"`
	Kind     QuestionKind `json:"kind"`
	Prompt   string       `json:"prompt"`
	Context  string       `json:"context,omitempty"` // case-study background
	Options  []Option     `json:"options,omitempty"`
	Accepted []string     `json:"accepted,omitempty"`
	Points   float64      `json:"points"` // defaults to 1 if zero
}

// multi-value answers (multi-select, sequence) join option IDs with commas.
const answerSeparator = ","

// Grade checks an answer against the question. It reports (answered,
// correct); an empty answer is a skip and is never correct or wrong.
func Grade(q Question, answer string) (answered, correct bool) {
	if strings.TrimSpace(answer) == "" {
		return false, false
	}

	switch q.Kind {
	case KindMultipleChoice, KindTrueFalse, KindCaseStudy:
		return true, gradeSingleChoice(q, answer)
	case KindMultiSelect:
		return true, gradeMultiSelect(q, answer)
	case KindSequence:
		return true, gradeSequence(q, answer)
	case KindShortAnswer, KindFillBlank:
		return true, gradeText(q, answer)
	default:
		// Unknown kinds grade as wrong rather than panicking on bad data.
		return true, false
	}
}

func gradeSingleChoice(q Question, answer string) bool {
	for _, opt := range q.Options {
		if opt.ID == strings.TrimSpace(answer) {
			return opt.Correct
		}
	}
	return false
}

func gradeMultiSelect(q Question, answer string) bool {
	chosen := make(map[string]bool)
	for _, id := range strings.Split(answer, answerSeparator) {
		if id = strings.TrimSpace(id); id != "" {
			chosen[id] = true
		}
	}
	want := 0
	for _, opt := range q.Options {
		if opt.Correct {
			want++
			if !chosen[opt.ID] {
				return false
			}
		} else if chosen[opt.ID] {
			return false
		}
	}
	return want > 0 && len(chosen) == want
}

func gradeSequence(q Question, answer string) bool {
	given := strings.Split(answer, answerSeparator)
	if len(given) != len(q.Options) {
		return false
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(given[i]) != opt.ID {
			return false
		}
	}
	return len(q.Options) > 0
}

func gradeText(q Question, answer string) bool {
	got := normalizeText(answer)
	for _, accepted := range q.Accepted {
		if normalizeText(accepted) == got {
			return true
		}
	}
	return false
}

// normalizeText lowercases and collapses internal whitespace so grading
// tolerates spacing and casing differences.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
