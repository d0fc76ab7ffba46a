package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/internal/service"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// QuizHandler exposes quiz authoring and attempt endpoints.
type QuizHandler struct {
	quizzes     *service.QuizService
	enrollments *service.EnrollmentService
	metrics     *service.MetricsService
}

// NewQuizHandler constructs QuizHandler.
func NewQuizHandler(quizzes *service.QuizService, enrollments *service.EnrollmentService, metrics *service.MetricsService) *QuizHandler {
	return &QuizHandler{quizzes: quizzes, enrollments: enrollments, metrics: metrics}
}

// Create godoc
// @Summary Attach a quiz to a lesson
// @Tags Instructor
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.UpsertQuizRequest true "Quiz payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /instructor/lessons/{id}/quiz [post]
func (h *QuizHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.UpsertQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	quiz, err := h.quizzes.Create(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, quiz)
}

// Update godoc
// @Summary Replace a lesson's quiz
// @Tags Instructor
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.UpsertQuizRequest true "Quiz payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /instructor/lessons/{id}/quiz [put]
func (h *QuizHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	var req service.UpsertQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	quiz, err := h.quizzes.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quiz, nil)
}

// GetForStudent godoc
// @Summary Lesson quiz, answer keys stripped
// @Tags Quizzes
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /lessons/{id}/quiz [get]
func (h *QuizHandler) GetForStudent(c *gin.Context) {
	quiz, err := h.quizzes.GetForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quiz, nil)
}

// SubmitAttempt godoc
// @Summary Submit and grade a quiz attempt
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param quizID path string true "Quiz ID"
// @Param payload body service.SubmitAttemptRequest true "Answers payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/quizzes/{quizID}/attempts [post]
func (h *QuizHandler) SubmitAttempt(c *gin.Context) {
	enrollment, ok := h.ownedEnrollment(c)
	if !ok {
		return
	}
	var req service.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	attempt, err := h.quizzes.RecordAttempt(c.Request.Context(), enrollment, c.Param("quizID"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordQuizAttempt(attempt.IsPassed)

	results, err := h.quizzes.AttemptResults(c.Request.Context(), attempt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, service.AttemptReview{Attempt: *attempt, Results: results})
}

// ListAttempts godoc
// @Summary Attempt history for a quiz
// @Tags Quizzes
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param quizID path string true "Quiz ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/quizzes/{quizID}/attempts [get]
func (h *QuizHandler) ListAttempts(c *gin.Context) {
	enrollment, ok := h.ownedEnrollment(c)
	if !ok {
		return
	}
	attempts, err := h.quizzes.ListAttempts(c.Request.Context(), enrollment, c.Param("quizID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempts, nil)
}

func (h *QuizHandler) ownedEnrollment(c *gin.Context) (*models.Enrollment, bool) {
	claims := claimsFromContext(c)
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return enrollment, true
}
