package domain

import "sort"

// Tally is the outcome of grading a full answer sheet.
type Tally struct {
	Score    float64
	Correct  int
	Wrong    int
	Skipped  int
	Answered int
}

// ScoreAnswers grades every question against the answer sheet and computes
// the total score. Each correct answer earns the question's points (1 if
// unset). With negative marking enabled, an answered-but-wrong question
// deducts prefs.Penalty; skipped questions never incur a penalty.
func ScoreAnswers(questions []Question, answers map[string]string, prefs Preferences) Tally {
	var t Tally
	for _, q := range questions {
		answered, correct := Grade(q, answers[q.ID])
		if !answered {
			t.Skipped++
			continue
		}
		t.Answered++
		if correct {
			t.Correct++
			points := q.Points
			if points == 0 {
				points = 1
			}
			t.Score += points
		} else {
			t.Wrong++
			if prefs.NegativeMarking {
				t.Score -= prefs.Penalty
			}
		}
	}
	return t
}

// RankParticipants is the single authoritative ranking: score descending,
// then time taken ascending, stable on the incoming order. Declined
// participants are excluded. Ranks are assigned 1..N on the returned slice;
// the input is not mutated.
func RankParticipants(parts []Participant) []Participant {
	ranked := make([]Participant, 0, len(parts))
	for i := range parts {
		if parts[i].Status != ParticipantDeclined {
			ranked = append(ranked, parts[i])
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].TimeTakenSec < ranked[j].TimeTakenSec
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// BuildResults derives the write-once result snapshots for a finished
// competition from its ranked participants.
func BuildResults(comp Competition, ranked []Participant) []Result {
	total := len(comp.Questions)
	maxScore := 0.0
	for _, q := range comp.Questions {
		points := q.Points
		if points == 0 {
			points = 1
		}
		maxScore += points
	}

	results := make([]Result, 0, len(ranked))
	for i := range ranked {
		p := ranked[i]
		pct := 0.0
		if maxScore > 0 {
			pct = p.Score / maxScore * 100
		}
		completedAt := p.JoinedAt
		if p.CompletedAt != nil {
			completedAt = *p.CompletedAt
		}
		results = append(results, Result{
			CompetitionID:   comp.ID,
			UserID:          p.UserID,
			DisplayName:     p.DisplayName,
			FinalRank:       p.Rank,
			Score:           p.Score,
			CorrectAnswers:  p.CorrectAnswers,
			TotalQuestions:  total,
			PercentageScore: pct,
			AccuracyRate:    p.AccuracyRate(),
			TimeTakenSec:    p.TimeTakenSec,
			CompletedAt:     completedAt,
		})
	}
	return results
}
