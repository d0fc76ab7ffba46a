package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/internal/service"
	"github.com/skillforge/skillforge-api/pkg/response"
)

// CatalogHandler exposes the public storefront and the instructor publish
// lifecycle.
type CatalogHandler struct {
	catalog *service.CatalogService
	reviews *service.ReviewService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService, reviews *service.ReviewService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, reviews: reviews}
}

// List godoc
// @Summary Browse published courses
// @Tags Catalog
// @Produce json
// @Param search query string false "Title search"
// @Param instructorId query string false "Filter by instructor"
// @Param maxPrice query number false "Maximum price"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field"
// @Param order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		Search:       c.Query("search"),
		InstructorID: c.Query("instructorId"),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "limit", 12),
		SortBy:       c.Query("sort"),
		SortOrder:    c.Query("order"),
	}
	if raw := c.Query("maxPrice"); raw != "" {
		if price, err := strconv.ParseFloat(raw, 64); err == nil {
			filter.MaxPrice = &price
		}
	}

	courses, total, err := h.catalog.Browse(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Course detail with curriculum
// @Tags Catalog
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	content, err := h.catalog.GetContent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, content, nil)
}

// Publish godoc
// @Summary Publish a course
// @Tags Instructor
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /instructor/courses/{id}/publish [post]
func (h *CatalogHandler) Publish(c *gin.Context) {
	claims := claimsFromContext(c)
	course, err := h.catalog.Publish(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Unpublish godoc
// @Summary Unpublish a course
// @Tags Instructor
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /instructor/courses/{id}/unpublish [post]
func (h *CatalogHandler) Unpublish(c *gin.Context) {
	claims := claimsFromContext(c)
	course, err := h.catalog.Unpublish(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// ListReviews godoc
// @Summary List course reviews
// @Tags Reviews
// @Produce json
// @Param id path string true "Course ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/reviews [get]
func (h *CatalogHandler) ListReviews(c *gin.Context) {
	page := queryInt(c, "page", 1)
	size := queryInt(c, "limit", 20)
	reviews, total, err := h.reviews.ListByCourse(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, &models.Pagination{Page: page, PageSize: size, TotalCount: total})
}
