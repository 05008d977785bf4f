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

// StructuresHandler handles the fee structure catalog endpoints
type StructuresHandler struct {
	BaseHandler
	structures *feesapp.StructureService
}

// NewStructuresHandler creates a new StructuresHandler
func NewStructuresHandler(structures *feesapp.StructureService) *StructuresHandler {
	return &StructuresHandler{structures: structures}
}

// Create publishes a new fee structure. Admin only.
func (h *StructuresHandler) Create(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req feesapp.CreateStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.structures.CreateStructure(c.Request.Context(), schoolID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// List returns the structures for an academic year, active and retired alike
func (h *StructuresHandler) List(c *gin.Context) {
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

	year := resolveAcademicYear(c)
	if _, err := fees.ParseAcademicYear(year); err != nil {
		h.BadRequest(c, "academic_year must be like 2025-2026")
		return
	}

	filter := shared.DefaultFilter()
	filter.Page = q.Page
	filter.PageSize = q.PageSize

	page, err := h.structures.ListStructures(c.Request.Context(), schoolID, year, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Deactivate retires a structure so a replacement can be published. Admin only.
func (h *StructuresHandler) Deactivate(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	structureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid structure ID")
		return
	}

	resp, err := h.structures.DeactivateStructure(c.Request.Context(), schoolID, structureID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}
