package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type mockQuizRepo struct {
	quizzes   map[string]*models.Quiz // keyed by ID
	questions map[string][]models.Question
	attempts  []models.QuizAttempt
}

func (m *mockQuizRepo) CreateQuiz(ctx context.Context, quiz *models.Quiz, questions []models.Question) error {
	if m.quizzes == nil {
		m.quizzes = make(map[string]*models.Quiz)
		m.questions = make(map[string][]models.Question)
	}
	quiz.ID = fmt.Sprintf("quiz%d", len(m.quizzes)+1)
	for i := range questions {
		questions[i].ID = fmt.Sprintf("%s-q%d", quiz.ID, i+1)
		questions[i].QuizID = quiz.ID
		questions[i].Position = i + 1
	}
	stored := *quiz
	m.quizzes[quiz.ID] = &stored
	m.questions[quiz.ID] = questions
	return nil
}

func (m *mockQuizRepo) UpdateQuiz(ctx context.Context, quiz *models.Quiz, questions []models.Question) error {
	stored := *quiz
	m.quizzes[quiz.ID] = &stored
	if questions != nil {
		for i := range questions {
			questions[i].ID = fmt.Sprintf("%s-q%d", quiz.ID, i+1)
			questions[i].QuizID = quiz.ID
			questions[i].Position = i + 1
		}
		m.questions[quiz.ID] = questions
	}
	return nil
}

func (m *mockQuizRepo) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	if q, ok := m.quizzes[id]; ok {
		return q, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockQuizRepo) FindByLessonID(ctx context.Context, lessonID string) (*models.Quiz, error) {
	for _, q := range m.quizzes {
		if q.LessonID == lessonID {
			return q, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockQuizRepo) ListQuestions(ctx context.Context, quizID string) ([]models.Question, error) {
	list := make([]models.Question, len(m.questions[quizID]))
	copy(list, m.questions[quizID])
	return list, nil
}

func (m *mockQuizRepo) CountAttempts(ctx context.Context, enrollmentID, quizID string) (int, error) {
	count := 0
	for _, a := range m.attempts {
		if a.EnrollmentID == enrollmentID && a.QuizID == quizID {
			count++
		}
	}
	return count, nil
}

func (m *mockQuizRepo) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	attempt.ID = fmt.Sprintf("attempt%d", len(m.attempts)+1)
	attempt.SubmittedAt = time.Now().UTC()
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *mockQuizRepo) ListAttempts(ctx context.Context, enrollmentID, quizID string) ([]models.QuizAttempt, error) {
	var list []models.QuizAttempt
	for _, a := range m.attempts {
		if a.EnrollmentID == enrollmentID && a.QuizID == quizID {
			list = append(list, a)
		}
	}
	return list, nil
}

type mockCompleter struct {
	completed []string
}

func (m *mockCompleter) MarkComplete(ctx context.Context, enrollment *models.Enrollment, lessonID string) (*models.LessonProgress, error) {
	m.completed = append(m.completed, lessonID)
	return &models.LessonProgress{EnrollmentID: enrollment.ID, LessonID: lessonID, IsCompleted: true}, nil
}

func fiveQuestionQuiz() UpsertQuizRequest {
	questions := make([]QuizQuestionRequest, 5)
	for i := range questions {
		questions[i] = QuizQuestionRequest{
			QuestionText:  fmt.Sprintf("Question %d", i+1),
			QuestionType:  "multiple_choice",
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
		}
	}
	return UpsertQuizRequest{Title: "Checkpoint", PassingScore: 70, AllowRetake: true, Questions: questions}
}

func newQuizFixture(t *testing.T) (*QuizService, *mockQuizRepo, *mockCompleter, *models.Quiz, *models.Enrollment) {
	t.Helper()
	repo := &mockQuizRepo{}
	lessons := &mockLessons{
		lessons: map[string]*models.Lesson{"lesson1": {ID: "lesson1", Type: models.LessonTypeQuiz}},
		courses: map[string]string{"lesson1": "course1"},
	}
	courses := &mockPayCourses{courses: map[string]*models.Course{
		"course1": {ID: "course1", InstructorID: "inst1", Status: models.CourseStatusPublished},
	}}
	completer := &mockCompleter{}
	svc := NewQuizService(repo, lessons, courses, completer, validator.New(), zap.NewNop())

	quiz, err := svc.Create(context.Background(), "inst1", "lesson1", fiveQuestionQuiz())
	require.NoError(t, err)
	enrollment := &models.Enrollment{ID: "en1", UserID: "user1", CourseID: "course1"}
	return svc, repo, completer, quiz, enrollment
}

func answersFor(quiz *models.Quiz, correct int) map[string]string {
	answers := make(map[string]string)
	for i := 0; i < 5; i++ {
		answer := "B"
		if i < correct {
			answer = "A"
		}
		answers[fmt.Sprintf("%s-q%d", quiz.ID, i+1)] = answer
	}
	return answers
}

func TestEvaluateScoring(t *testing.T) {
	quiz := &models.Quiz{ID: "quiz1", PassingScore: 80}
	questions := []models.Question{
		{ID: "q1", CorrectAnswer: "A"},
		{ID: "q2", CorrectAnswer: "B"},
		{ID: "q3", CorrectAnswer: "C"},
	}

	eval := Evaluate(quiz, questions, models.AnswerMap{"q1": "A", "q2": "B", "q3": "wrong"})
	assert.Equal(t, 66.67, eval.Score)
	assert.Equal(t, 2, eval.CorrectCount)
	assert.False(t, eval.Passed)

	// missing answers count as incorrect
	eval = Evaluate(quiz, questions, models.AnswerMap{"q1": "A"})
	assert.Equal(t, 33.33, eval.Score)

	// answer matching is case sensitive
	eval = Evaluate(quiz, questions, models.AnswerMap{"q1": "a", "q2": "B", "q3": "C"})
	assert.Equal(t, 2, eval.CorrectCount)

	// a quiz with no questions scores zero and fails
	eval = Evaluate(quiz, nil, models.AnswerMap{})
	assert.Equal(t, 0.0, eval.Score)
	assert.False(t, eval.Passed)
}

func TestRecordAttemptPassCompletesLesson(t *testing.T) {
	svc, _, completer, quiz, enrollment := newQuizFixture(t)

	attempt, err := svc.RecordAttempt(context.Background(), enrollment, quiz.ID, SubmitAttemptRequest{Answers: answersFor(quiz, 4)})
	require.NoError(t, err)
	assert.Equal(t, 80.0, attempt.Score)
	assert.True(t, attempt.IsPassed)
	assert.Equal(t, 1, attempt.AttemptNumber)
	assert.Equal(t, []string{"lesson1"}, completer.completed)
}

func TestRecordAttemptFailDoesNotCompleteLesson(t *testing.T) {
	svc, _, completer, quiz, enrollment := newQuizFixture(t)

	attempt, err := svc.RecordAttempt(context.Background(), enrollment, quiz.ID, SubmitAttemptRequest{Answers: answersFor(quiz, 3)})
	require.NoError(t, err)
	assert.Equal(t, 60.0, attempt.Score)
	assert.False(t, attempt.IsPassed)
	assert.Empty(t, completer.completed)
}

func TestRecordAttemptNumbersIncrease(t *testing.T) {
	svc, _, _, quiz, enrollment := newQuizFixture(t)

	first, err := svc.RecordAttempt(context.Background(), enrollment, quiz.ID, SubmitAttemptRequest{Answers: answersFor(quiz, 2)})
	require.NoError(t, err)
	second, err := svc.RecordAttempt(context.Background(), enrollment, quiz.ID, SubmitAttemptRequest{Answers: answersFor(quiz, 5)})
	require.NoError(t, err)

	assert.Equal(t, 1, first.AttemptNumber)
	assert.Equal(t, 2, second.AttemptNumber)
}

func TestRecordAttemptRetakeBlocked(t *testing.T) {
	svc, repo, _, quiz, enrollment := newQuizFixture(t)
	repo.quizzes[quiz.ID].AllowRetake = false

	_, err := svc.RecordAttempt(context.Background(), enrollment, quiz.ID, SubmitAttemptRequest{Answers: answersFor(quiz, 2)})
	require.NoError(t, err)
	_, err = svc.RecordAttempt(context.Background(), enrollment, quiz.ID, SubmitAttemptRequest{Answers: answersFor(quiz, 5)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRetakeNotAllowed.Code, errCode(t, err))
	assert.Len(t, repo.attempts, 1)
}

func TestRecordAttemptRejectsForeignEnrollment(t *testing.T) {
	svc, _, _, quiz, enrollment := newQuizFixture(t)
	enrollment.CourseID = "other-course"

	_, err := svc.RecordAttempt(context.Background(), enrollment, quiz.ID, SubmitAttemptRequest{Answers: answersFor(quiz, 5)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}

func TestCreateQuizOnePerLesson(t *testing.T) {
	svc, _, _, _, _ := newQuizFixture(t)

	_, err := svc.Create(context.Background(), "inst1", "lesson1", fiveQuestionQuiz())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
}

func TestCreateQuizForeignInstructor(t *testing.T) {
	svc, _, _, _, _ := newQuizFixture(t)

	lessons := svc.lessons.(*mockLessons)
	lessons.lessons["lesson2"] = &models.Lesson{ID: "lesson2", Type: models.LessonTypeQuiz}
	lessons.courses["lesson2"] = "course1"

	_, err := svc.Create(context.Background(), "inst2", "lesson2", fiveQuestionQuiz())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(t, err))
}

func TestGetForStudentStripsAnswerKeys(t *testing.T) {
	svc, _, _, _, _ := newQuizFixture(t)

	studentQuiz, err := svc.GetForStudent(context.Background(), "lesson1")
	require.NoError(t, err)
	require.Len(t, studentQuiz.Questions, 5)
	for _, q := range studentQuiz.Questions {
		assert.Empty(t, q.CorrectAnswer)
		assert.Nil(t, q.Explanation)
	}
}

func TestUpdateQuizReplacesQuestions(t *testing.T) {
	svc, repo, _, quiz, _ := newQuizFixture(t)

	req := fiveQuestionQuiz()
	req.Title = "Revised checkpoint"
	req.PassingScore = 90
	req.Questions = req.Questions[:2]

	updated, err := svc.Update(context.Background(), "inst1", "lesson1", req)
	require.NoError(t, err)
	assert.Equal(t, "Revised checkpoint", updated.Title)
	assert.Equal(t, 90.0, updated.PassingScore)
	assert.Len(t, repo.questions[quiz.ID], 2)
}
