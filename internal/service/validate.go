package service

import (
	"slices"
	"strconv"
	"strings"

	"github.com/evreg/signupd/internal/model"
)

// checkboxSeparator joins multiple checkbox selections in one answer.
const checkboxSeparator = ";"

func validQuestionType(t string) bool {
	switch t {
	case model.QuestionText, model.QuestionTextarea, model.QuestionNumber,
		model.QuestionSelect, model.QuestionCheckbox:
		return true
	}
	return false
}

// validateAnswers checks the submitted answers against the event's
// declared questions: every answer must reference a known question,
// required questions must be answered, and typed questions must parse.
func validateAnswers(questions []model.Question, answers []model.Answer) error {
	byQuestion := make(map[string]string, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.Answer
	}

	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
		answer, ok := byQuestion[q.ID]
		answer = strings.TrimSpace(answer)
		if !ok || answer == "" {
			if q.Required {
				return invalid(q.Question, "an answer is required")
			}
			continue
		}
		switch q.Type {
		case model.QuestionNumber:
			if _, err := strconv.ParseFloat(answer, 64); err != nil {
				return invalid(q.Question, "answer must be numeric")
			}
		case model.QuestionSelect:
			if !slices.Contains(q.Options, answer) {
				return invalid(q.Question, "answer is not one of the listed options")
			}
		case model.QuestionCheckbox:
			for _, choice := range strings.Split(answer, checkboxSeparator) {
				if !slices.Contains(q.Options, choice) {
					return invalid(q.Question, "answer is not one of the listed options")
				}
			}
		}
	}

	for id := range byQuestion {
		if !known[id] {
			return invalid("answers", "unknown question id "+id)
		}
	}
	return nil
}

// validateEventRequest checks organizer input for a new event.
func validateEventRequest(req model.CreateEventRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return invalid("title", "event title is required")
	}
	if req.OpenQuotaSize < 0 {
		return invalid("open_quota_size", "capacity cannot be negative")
	}
	if len(req.Quotas) == 0 {
		return invalid("quotas", "at least one quota is required")
	}
	for _, q := range req.Quotas {
		if strings.TrimSpace(q.Title) == "" {
			return invalid("quotas", "quota title is required")
		}
		if q.Size != nil && *q.Size < 0 {
			return invalid("quotas", "capacity cannot be negative")
		}
	}
	for _, q := range req.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return invalid("questions", "question text is required")
		}
		if !validQuestionType(q.Type) {
			return invalid("questions", "unknown question type "+q.Type)
		}
		needsOptions := q.Type == model.QuestionSelect || q.Type == model.QuestionCheckbox
		if needsOptions && len(q.Options) == 0 {
			return invalid("questions", "options are required for "+q.Type+" questions")
		}
	}
	return nil
}
