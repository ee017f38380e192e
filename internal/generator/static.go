package generator

import (
	"context"
	"fmt"

	"quiz-competition-service/internal/domain"
)

// StaticGenerator produces deterministic true/false question sets without
// calling the external endpoint. Used by the demo configuration and tests.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (g *StaticGenerator) Generate(_ context.Context, prefs domain.Preferences) ([]domain.Question, error) {
	count := prefs.QuestionCount
	if count <= 0 {
		count = 5
	}
	questions := make([]domain.Question, 0, count)
	for i := 0; i < count; i++ {
		questions = append(questions, domain.Question{
			ID:     fmt.Sprintf("q%d", i+1),
			Kind:   domain.KindTrueFalse,
			Prompt: fmt.Sprintf("%s statement %d is true.", prefs.Topic, i+1),
			Options: []domain.Option{
				{ID: "true", Text: "True", Correct: true},
				{ID: "false", Text: "False"},
			},
			Points: 1,
		})
	}
	return questions, nil
}
