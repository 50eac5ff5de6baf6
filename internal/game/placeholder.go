package game

import (
	"fmt"

	"github.com/victornm/quizarena/internal/domain"
)

var placeholderSet = []domain.Question{
	{
		QuestionText:  "What is the capital of France?",
		Options:       []string{"Berlin", "Madrid", "Paris", "Rome"},
		CorrectAnswer: "Paris",
		Category:      "Geography",
	},
	{
		QuestionText:  "How many continents are there on Earth?",
		Options:       []string{"5", "6", "7", "8"},
		CorrectAnswer: "7",
		Category:      "Geography",
	},
	{
		QuestionText:  "Which planet is known as the Red Planet?",
		Options:       []string{"Venus", "Mars", "Jupiter", "Mercury"},
		CorrectAnswer: "Mars",
		Category:      "Science",
	},
	{
		QuestionText:  "What is 7 x 8?",
		Options:       []string{"54", "56", "58", "64"},
		CorrectAnswer: "56",
		Category:      "Math",
	},
	{
		QuestionText:  "Which gas do plants absorb from the air?",
		Options:       []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"},
		CorrectAnswer: "Carbon dioxide",
		Category:      "Science",
	},
}

// placeholderQuestions is played when the question bank has nothing to offer.
func placeholderQuestions(count int) []domain.Question {
	n := min(max(count, 1), len(placeholderSet))

	qs := make([]domain.Question, n)
	for i := range qs {
		q := placeholderSet[i]
		q.QuestionID = fmt.Sprintf("placeholder-%d", i+1)
		q.Options = append([]string(nil), q.Options...)
		q.Difficulty = "easy"
		qs[i] = q
	}

	return qs
}
