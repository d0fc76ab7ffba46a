package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type quizRepo interface {
	CreateQuiz(ctx context.Context, quiz *models.Quiz, questions []models.Question) error
	UpdateQuiz(ctx context.Context, quiz *models.Quiz, questions []models.Question) error
	FindByID(ctx context.Context, id string) (*models.Quiz, error)
	FindByLessonID(ctx context.Context, lessonID string) (*models.Quiz, error)
	ListQuestions(ctx context.Context, quizID string) ([]models.Question, error)
	CountAttempts(ctx context.Context, enrollmentID, quizID string) (int, error)
	CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	ListAttempts(ctx context.Context, enrollmentID, quizID string) ([]models.QuizAttempt, error)
}

type lessonCompleter interface {
	MarkComplete(ctx context.Context, enrollment *models.Enrollment, lessonID string) (*models.LessonProgress, error)
}

// QuizQuestionRequest is one question in a quiz create/update payload.
type QuizQuestionRequest struct {
	QuestionText  string   `json:"question_text" validate:"required"`
	QuestionType  string   `json:"question_type" validate:"required,oneof=multiple_choice true_false"`
	Options       []string `json:"options" validate:"required,min=2"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Explanation   *string  `json:"explanation"`
}

// UpsertQuizRequest creates or replaces a lesson's quiz.
type UpsertQuizRequest struct {
	Title        string                `json:"title" validate:"required"`
	PassingScore float64               `json:"passing_score" validate:"required,gte=0,lte=100"`
	AllowRetake  bool                  `json:"allow_retake"`
	Questions    []QuizQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

// SubmitAttemptRequest carries a student's answers keyed by question ID.
type SubmitAttemptRequest struct {
	Answers map[string]string `json:"answers" validate:"required"`
}

// StudentQuiz is the quiz as presented to a student: no answer keys, no
// explanations.
type StudentQuiz struct {
	Quiz      models.Quiz       `json:"quiz"`
	Questions []models.Question `json:"questions"`
}

// AttemptReview pairs an attempt with its per-question breakdown.
type AttemptReview struct {
	Attempt models.QuizAttempt      `json:"attempt"`
	Results []models.QuestionResult `json:"results"`
}

// QuizService owns quiz authoring, grading and attempt history. Grading is
// exact-string matching against the stored answer key; unanswered questions
// count as incorrect.
type QuizService struct {
	quizzes   quizRepo
	lessons   lessonReader
	courses   courseReader
	progress  lessonCompleter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuizService constructs QuizService.
func NewQuizService(quizzes quizRepo, lessons lessonReader, courses courseReader, progress lessonCompleter, validate *validator.Validate, logger *zap.Logger) *QuizService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{
		quizzes:   quizzes,
		lessons:   lessons,
		courses:   courses,
		progress:  progress,
		validator: validate,
		logger:    logger,
	}
}

// Evaluate scores one answer set against the question list. A quiz with no
// questions scores zero and fails.
func Evaluate(quiz *models.Quiz, questions []models.Question, answers models.AnswerMap) models.QuizEvaluation {
	total := len(questions)
	if total == 0 {
		return models.QuizEvaluation{}
	}
	correct := 0
	for i := range questions {
		if questions[i].IsCorrect(answers[questions[i].ID]) {
			correct++
		}
	}
	score := round2(100 * float64(correct) / float64(total))
	return models.QuizEvaluation{
		Score:        score,
		CorrectCount: correct,
		TotalCount:   total,
		Passed:       score >= quiz.PassingScore,
	}
}

// requestQuestions converts payload questions to models.
func requestQuestions(items []QuizQuestionRequest) []models.Question {
	questions := make([]models.Question, len(items))
	for i, item := range items {
		questions[i] = models.Question{
			QuestionText:  item.QuestionText,
			QuestionType:  models.QuestionType(item.QuestionType),
			Options:       item.Options,
			CorrectAnswer: item.CorrectAnswer,
			Explanation:   item.Explanation,
		}
	}
	return questions
}

// instructorOwnsLesson verifies the caller teaches the course the lesson
// belongs to.
func (s *QuizService) instructorOwnsLesson(ctx context.Context, instructorID, lessonID string) error {
	courseID, err := s.lessons.CourseIDForLesson(ctx, lessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson course")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.InstructorID != instructorID {
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}
	return nil
}

// Create attaches a quiz to a lesson. One quiz per lesson.
func (s *QuizService) Create(ctx context.Context, instructorID, lessonID string, req UpsertQuizRequest) (*models.Quiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}
	if err := s.instructorOwnsLesson(ctx, instructorID, lessonID); err != nil {
		return nil, err
	}
	if _, err := s.quizzes.FindByLessonID(ctx, lessonID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "lesson already has a quiz")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lesson quiz")
	}

	quiz := &models.Quiz{
		LessonID:     lessonID,
		Title:        req.Title,
		PassingScore: req.PassingScore,
		AllowRetake:  req.AllowRetake,
	}
	if err := s.quizzes.CreateQuiz(ctx, quiz, requestQuestions(req.Questions)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create quiz")
	}
	s.logger.Info("quiz created", zap.String("quiz_id", quiz.ID), zap.String("lesson_id", lessonID))
	return quiz, nil
}

// Update rewrites a lesson's quiz and replaces its question set. Recorded
// attempts keep their historical scores.
func (s *QuizService) Update(ctx context.Context, instructorID, lessonID string, req UpsertQuizRequest) (*models.Quiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}
	if err := s.instructorOwnsLesson(ctx, instructorID, lessonID); err != nil {
		return nil, err
	}
	quiz, err := s.quizzes.FindByLessonID(ctx, lessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}

	quiz.Title = req.Title
	quiz.PassingScore = req.PassingScore
	quiz.AllowRetake = req.AllowRetake
	if err := s.quizzes.UpdateQuiz(ctx, quiz, requestQuestions(req.Questions)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update quiz")
	}
	return quiz, nil
}

// GetForStudent returns a lesson's quiz with answer keys and explanations
// stripped.
func (s *QuizService) GetForStudent(ctx context.Context, lessonID string) (*StudentQuiz, error) {
	quiz, err := s.quizzes.FindByLessonID(ctx, lessonID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	questions, err := s.quizzes.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	for i := range questions {
		questions[i].CorrectAnswer = ""
		questions[i].Explanation = nil
	}
	return &StudentQuiz{Quiz: *quiz, Questions: questions}, nil
}

// RecordAttempt grades a submission and persists it. A passing attempt
// completes the quiz's lesson, cascading into the progress aggregate.
func (s *QuizService) RecordAttempt(ctx context.Context, enrollment *models.Enrollment, quizID string, req SubmitAttemptRequest) (*models.QuizAttempt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attempt payload")
	}

	quiz, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	courseID, err := s.lessons.CourseIDForLesson(ctx, quiz.LessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson course")
	}
	if courseID != enrollment.CourseID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz does not belong to this course")
	}

	prior, err := s.quizzes.CountAttempts(ctx, enrollment.ID, quiz.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attempts")
	}
	if prior > 0 && !quiz.AllowRetake {
		return nil, appErrors.ErrRetakeNotAllowed
	}

	questions, err := s.quizzes.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	evaluation := Evaluate(quiz, questions, req.Answers)

	attempt := &models.QuizAttempt{
		EnrollmentID:  enrollment.ID,
		QuizID:        quiz.ID,
		AttemptNumber: prior + 1,
		Answers:       req.Answers,
		Score:         evaluation.Score,
		IsPassed:      evaluation.Passed,
	}
	if err := s.quizzes.CreateAttempt(ctx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attempt")
	}

	s.logger.Info("quiz attempt recorded",
		zap.String("quiz_id", quiz.ID),
		zap.String("enrollment_id", enrollment.ID),
		zap.Int("attempt", attempt.AttemptNumber),
		zap.Float64("score", attempt.Score),
		zap.Bool("passed", attempt.IsPassed))

	if attempt.IsPassed && s.progress != nil {
		if _, err := s.progress.MarkComplete(ctx, enrollment, quiz.LessonID); err != nil {
			// The attempt is recorded; the lesson completion can be retried.
			s.logger.Error("failed to complete quiz lesson",
				zap.String("quiz_id", quiz.ID),
				zap.String("lesson_id", quiz.LessonID),
				zap.Error(err))
		}
	}
	return attempt, nil
}

// ListAttempts returns the enrollment's attempt history for a quiz.
func (s *QuizService) ListAttempts(ctx context.Context, enrollment *models.Enrollment, quizID string) ([]models.QuizAttempt, error) {
	attempts, err := s.quizzes.ListAttempts(ctx, enrollment.ID, quizID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attempts")
	}
	return attempts, nil
}

// AttemptResults expands an attempt into its per-question breakdown.
func (s *QuizService) AttemptResults(ctx context.Context, attempt *models.QuizAttempt) ([]models.QuestionResult, error) {
	questions, err := s.quizzes.ListQuestions(ctx, attempt.QuizID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	results := make([]models.QuestionResult, len(questions))
	for i := range questions {
		q := &questions[i]
		answer := attempt.Answers[q.ID]
		results[i] = models.QuestionResult{
			QuestionID:    q.ID,
			QuestionText:  q.QuestionText,
			QuestionType:  q.QuestionType,
			Options:       q.Options,
			StudentAnswer: answer,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     q.IsCorrect(answer),
			Explanation:   q.Explanation,
		}
	}
	return results, nil
}
