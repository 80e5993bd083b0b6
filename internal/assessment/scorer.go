package assessment

import "math"

// ScoreResult is the outcome of scoring a single question.
type ScoreResult struct {
	Correct      bool `json:"correct"`
	PointsEarned int  `json:"points_earned"`
}

// ScoreQuestion grades one submitted answer against a question. All question
// types are all-or-nothing: multiple-select requires exact set equality with
// the correct set, no partial credit. An answer referencing an index outside
// the option list is simply incorrect, never an error.
func ScoreQuestion(q Question, ans Answer) ScoreResult {
	for _, idx := range ans {
		if idx < 0 || idx >= len(q.Options) {
			return ScoreResult{}
		}
	}
	var correct bool
	switch q.Type {
	case QuestionMultipleChoice, QuestionTrueFalse:
		correct = len(ans) == 1 && len(q.CorrectAnswers) == 1 && ans[0] == q.CorrectAnswers[0]
	case QuestionMultipleSelect:
		correct = sameIndexSet(ans, q.CorrectAnswers)
	}
	if !correct {
		return ScoreResult{}
	}
	return ScoreResult{Correct: true, PointsEarned: q.Points}
}

// ScoreAnswers grades a full answer set: every question is scored, missing
// answers earn zero. Returns the overall percentage (rounded to the nearest
// integer) and the raw earned/total points.
func ScoreAnswers(questions []Question, ans AnswerSet) (score, earned, total int) {
	for _, q := range questions {
		total += q.Points
		earned += ScoreQuestion(q, ans[q.ID]).PointsEarned
	}
	if total == 0 {
		return 0, 0, 0
	}
	score = int(math.Round(100 * float64(earned) / float64(total)))
	return score, earned, total
}

func sameIndexSet(a, b []int) bool {
	if len(b) == 0 {
		return false
	}
	seen := map[int]int{}
	for _, i := range a {
		seen[i]++
	}
	if len(seen) != len(a) { // duplicate selections never match
		return false
	}
	for _, i := range b {
		seen[i]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}
