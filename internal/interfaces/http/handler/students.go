package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	feesapp "github.com/schoolerp/backend/internal/application/fees"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/interfaces/http/dto"
	"github.com/schoolerp/backend/internal/interfaces/http/middleware"
)

// StudentsHandler handles student lookup endpoints for the collection screen
type StudentsHandler struct {
	BaseHandler
	collection *feesapp.CollectionService
	queries    *feesapp.QueryService
}

// NewStudentsHandler creates a new StudentsHandler
func NewStudentsHandler(collection *feesapp.CollectionService, queries *feesapp.QueryService) *StudentsHandler {
	return &StudentsHandler{
		collection: collection,
		queries:    queries,
	}
}

// ClassFilter holds the query parameters for a class roster
type ClassFilter struct {
	Grade   int    `form:"grade" binding:"required,min=1,max=12"`
	Section string `form:"section" binding:"required"`
}

// Search matches students by name or admission number
func (h *StudentsHandler) Search(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var q dto.ListRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	q.Normalize()

	filter := shared.DefaultFilter()
	filter.Page = q.Page
	filter.PageSize = q.PageSize

	page, err := h.queries.SearchStudents(c.Request.Context(), schoolID, q.Search, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetClass returns the roster for one grade-section with per-student dues
func (h *StudentsHandler) GetClass(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var q ClassFilter
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	roster, err := h.queries.GetStudentsByClass(c.Request.Context(), schoolID, q.Grade, q.Section)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, roster)
}

// GetFeeStatus returns one student's ledger projection with the tail of
// their transaction log.
func (h *StudentsHandler) GetFeeStatus(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid student ID")
		return
	}

	resp, err := h.queries.GetStudentFeeStatus(c.Request.Context(), schoolID, studentID, resolveAcademicYear(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetLedger returns the student's ledger for an academic year, seeding it on
// first touch.
func (h *StudentsHandler) GetLedger(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid student ID")
		return
	}

	year := resolveAcademicYear(c)
	if _, err := fees.ParseAcademicYear(year); err != nil {
		h.BadRequest(c, "academic_year must be like 2025-2026")
		return
	}

	ledger, err := h.collection.GetOrCreateLedger(c.Request.Context(), schoolID, studentID, year)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ledger)
}
