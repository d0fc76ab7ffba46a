package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/internal/service"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// EnrollmentHandler exposes enrollment and lesson progress endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	progress    *service.ProgressService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, progress *service.ProgressService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, progress: progress}
}

// Enroll godoc
// @Summary Enroll in a course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// List godoc
// @Summary List own enrollments
// @Tags Enrollments
// @Produce json
// @Param completed query bool false "Filter by completion"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	filter := models.EnrollmentFilter{
		UserID:   claims.UserID,
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 12),
	}
	if raw := c.Query("completed"); raw != "" {
		if completed, err := strconv.ParseBool(raw); err == nil {
			filter.IsCompleted = &completed
		}
	}

	enrollments, total, err := h.enrollments.ListByStudent(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// positionRequest carries a playback position in seconds.
type positionRequest struct {
	Position int `json:"position"`
}

// UpdatePosition godoc
// @Summary Record a lesson playback position
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param lessonID path string true "Lesson ID"
// @Param payload body positionRequest true "Position payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/lessons/{lessonID}/position [put]
func (h *EnrollmentHandler) UpdatePosition(c *gin.Context) {
	enrollment, ok := h.ownedEnrollment(c)
	if !ok {
		return
	}
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	progress, err := h.progress.UpdatePosition(c.Request.Context(), enrollment, c.Param("lessonID"), req.Position)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.enrollments.TouchLastAccessed(c.Request.Context(), enrollment.ID)
	response.JSON(c, http.StatusOK, progress, nil)
}

// CompleteLesson godoc
// @Summary Mark a lesson complete
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param lessonID path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/lessons/{lessonID}/complete [post]
func (h *EnrollmentHandler) CompleteLesson(c *gin.Context) {
	enrollment, ok := h.ownedEnrollment(c)
	if !ok {
		return
	}
	progress, err := h.progress.MarkComplete(c.Request.Context(), enrollment, c.Param("lessonID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.enrollments.TouchLastAccessed(c.Request.Context(), enrollment.ID)
	response.JSON(c, http.StatusOK, progress, nil)
}

// Progress godoc
// @Summary Enrollment progress summary
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/progress [get]
func (h *EnrollmentHandler) Progress(c *gin.Context) {
	enrollment, ok := h.ownedEnrollment(c)
	if !ok {
		return
	}
	summary, err := h.progress.Summary(c.Request.Context(), enrollment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func (h *EnrollmentHandler) ownedEnrollment(c *gin.Context) (*models.Enrollment, bool) {
	claims := claimsFromContext(c)
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return enrollment, true
}
