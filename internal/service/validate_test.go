package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evreg/signupd/internal/model"
)

func intp(v int) *int { return &v }

func TestValidateAnswers(t *testing.T) {
	questions := []model.Question{
		{ID: "q1", Question: "Allergies", Type: model.QuestionText},
		{ID: "q2", Question: "Group size", Type: model.QuestionNumber, Required: true},
		{ID: "q3", Question: "Meal", Type: model.QuestionSelect, Options: []string{"meat", "veg"}, Required: true},
		{ID: "q4", Question: "Workshops", Type: model.QuestionCheckbox, Options: []string{"go", "rust", "zig"}},
	}

	tests := []struct {
		name    string
		answers []model.Answer
		wantErr string
	}{
		{
			name: "valid full set",
			answers: []model.Answer{
				{QuestionID: "q1", Answer: "none"},
				{QuestionID: "q2", Answer: "3"},
				{QuestionID: "q3", Answer: "veg"},
				{QuestionID: "q4", Answer: "go;rust"},
			},
		},
		{
			name: "optional questions may be skipped",
			answers: []model.Answer{
				{QuestionID: "q2", Answer: "1"},
				{QuestionID: "q3", Answer: "meat"},
			},
		},
		{
			name: "missing required answer",
			answers: []model.Answer{
				{QuestionID: "q3", Answer: "meat"},
			},
			wantErr: "an answer is required",
		},
		{
			name: "blank required answer",
			answers: []model.Answer{
				{QuestionID: "q2", Answer: "  "},
				{QuestionID: "q3", Answer: "meat"},
			},
			wantErr: "an answer is required",
		},
		{
			name: "non-numeric number answer",
			answers: []model.Answer{
				{QuestionID: "q2", Answer: "many"},
				{QuestionID: "q3", Answer: "meat"},
			},
			wantErr: "must be numeric",
		},
		{
			name: "unlisted select option",
			answers: []model.Answer{
				{QuestionID: "q2", Answer: "2"},
				{QuestionID: "q3", Answer: "fish"},
			},
			wantErr: "not one of the listed options",
		},
		{
			name: "unlisted checkbox option",
			answers: []model.Answer{
				{QuestionID: "q2", Answer: "2"},
				{QuestionID: "q3", Answer: "veg"},
				{QuestionID: "q4", Answer: "go;cobol"},
			},
			wantErr: "not one of the listed options",
		},
		{
			name: "unknown question id",
			answers: []model.Answer{
				{QuestionID: "q2", Answer: "2"},
				{QuestionID: "q3", Answer: "veg"},
				{QuestionID: "q9", Answer: "stray"},
			},
			wantErr: "unknown question id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAnswers(questions, tt.answers)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateEventRequest(t *testing.T) {
	valid := model.CreateEventRequest{
		Title:  "Spring meetup",
		Quotas: []model.CreateQuotaRequest{{Title: "Members", Size: intp(20)}},
		Questions: []model.CreateQuestionRequest{
			{Question: "Meal", Type: model.QuestionSelect, Options: []string{"meat", "veg"}},
		},
	}
	require.NoError(t, validateEventRequest(valid))

	t.Run("missing title", func(t *testing.T) {
		req := valid
		req.Title = "  "
		require.Error(t, validateEventRequest(req))
	})

	t.Run("negative open quota", func(t *testing.T) {
		req := valid
		req.OpenQuotaSize = -1
		require.Error(t, validateEventRequest(req))
	})

	t.Run("no quotas", func(t *testing.T) {
		req := valid
		req.Quotas = nil
		require.Error(t, validateEventRequest(req))
	})

	t.Run("negative quota size", func(t *testing.T) {
		req := valid
		req.Quotas = []model.CreateQuotaRequest{{Title: "Members", Size: intp(-2)}}
		require.Error(t, validateEventRequest(req))
	})

	t.Run("nil quota size means unlimited and is fine", func(t *testing.T) {
		req := valid
		req.Quotas = []model.CreateQuotaRequest{{Title: "Members"}}
		require.NoError(t, validateEventRequest(req))
	})

	t.Run("unknown question type", func(t *testing.T) {
		req := valid
		req.Questions = []model.CreateQuestionRequest{{Question: "x", Type: "dropdown"}}
		require.Error(t, validateEventRequest(req))
	})

	t.Run("select without options", func(t *testing.T) {
		req := valid
		req.Questions = []model.CreateQuestionRequest{{Question: "Meal", Type: model.QuestionSelect}}
		require.Error(t, validateEventRequest(req))
	})
}

func TestRegistrationWindow(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	t.Run("open inside window", func(t *testing.T) {
		e := model.Event{RegistrationStart: &start, RegistrationEnd: &end}
		assert.True(t, e.RegistrationOpen(now))
	})

	t.Run("closed before start", func(t *testing.T) {
		e := model.Event{RegistrationStart: &start, RegistrationEnd: &end}
		assert.False(t, e.RegistrationOpen(start.Add(-time.Minute)))
	})

	t.Run("closed after end", func(t *testing.T) {
		e := model.Event{RegistrationStart: &start, RegistrationEnd: &end}
		assert.False(t, e.RegistrationOpen(end.Add(time.Minute)))
	})

	t.Run("boundaries are inclusive", func(t *testing.T) {
		e := model.Event{RegistrationStart: &start, RegistrationEnd: &end}
		assert.True(t, e.RegistrationOpen(start))
		assert.True(t, e.RegistrationOpen(end))
	})

	t.Run("missing edge disables registration", func(t *testing.T) {
		assert.False(t, model.Event{RegistrationEnd: &end}.RegistrationOpen(now))
		assert.False(t, model.Event{RegistrationStart: &start}.RegistrationOpen(now))
		assert.False(t, model.Event{}.RegistrationOpen(now))
	})
}

func TestRequireContactFields(t *testing.T) {
	strp := func(s string) *string { return &s }

	ok := model.ConfirmSignupRequest{
		Email:     strp("a@example.com"),
		FirstName: strp("Aino"),
		LastName:  strp("Korhonen"),
	}
	require.NoError(t, requireContactFields(ok))

	t.Run("missing email", func(t *testing.T) {
		req := ok
		req.Email = nil
		require.Error(t, requireContactFields(req))
	})

	t.Run("malformed email", func(t *testing.T) {
		req := ok
		req.Email = strp("not-an-address")
		require.Error(t, requireContactFields(req))
	})

	t.Run("blank first name", func(t *testing.T) {
		req := ok
		req.FirstName = strp("   ")
		require.Error(t, requireContactFields(req))
	})

	t.Run("missing last name", func(t *testing.T) {
		req := ok
		req.LastName = nil
		require.Error(t, requireContactFields(req))
	})
}
