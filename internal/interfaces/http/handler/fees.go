package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	feesapp "github.com/schoolerp/backend/internal/application/fees"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/interfaces/http/middleware"
)

// FeesHandler handles fee collection API endpoints
type FeesHandler struct {
	BaseHandler
	collection *feesapp.CollectionService
	queries    *feesapp.QueryService
}

// NewFeesHandler creates a new FeesHandler
func NewFeesHandler(collection *feesapp.CollectionService, queries *feesapp.QueryService) *FeesHandler {
	return &FeesHandler{
		collection: collection,
		queries:    queries,
	}
}

// TransactionFilter holds the query parameters for a collector's history
type TransactionFilter struct {
	From     string `form:"from" binding:"required"`
	To       string `form:"to" binding:"required"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// DailySummaryFilter holds the query parameters for the daily summary
type DailySummaryFilter struct {
	Date string `form:"date"`
}

// ValidateCollection runs the validation pass without touching the ledger,
// so the collection screen can show warnings before the accountant commits.
func (h *FeesHandler) ValidateCollection(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req feesapp.ValidateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.collection.ValidateCollection(c.Request.Context(), schoolID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// CollectFee records a payment against one month's slot
func (h *FeesHandler) CollectFee(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	collectorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req feesapp.CollectFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	// Audit metadata: prefer what the client reports, fall back to the
	// connection's view of the request.
	if req.OriginIP == "" {
		req.OriginIP = c.ClientIP()
	}
	if req.OriginDevice == "" {
		req.OriginDevice = c.Request.UserAgent()
	}

	resp, err := h.collection.CollectFee(c.Request.Context(), schoolID, collectorID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// WaiveMonth waives one month's fee for a student. Admin only.
func (h *FeesHandler) WaiveMonth(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	waivedBy, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req feesapp.WaiveMonthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.collection.WaiveMonth(c.Request.Context(), schoolID, waivedBy, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// ReverseTransaction records a compensating reversal for a payment. Admin only.
func (h *FeesHandler) ReverseTransaction(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	reversedBy, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req feesapp.ReverseTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.collection.ReverseTransaction(c.Request.Context(), schoolID, reversedBy, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetMyTransactions returns the authenticated collector's transaction
// history for a date range, newest first.
func (h *FeesHandler) GetMyTransactions(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	collectorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var q TransactionFilter
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	from, err := time.Parse("2006-01-02", q.From)
	if err != nil {
		h.BadRequest(c, "from must be a date like 2025-04-01")
		return
	}
	to, err := time.Parse("2006-01-02", q.To)
	if err != nil {
		h.BadRequest(c, "to must be a date like 2025-04-30")
		return
	}
	// The range is inclusive of the "to" calendar day
	to = to.AddDate(0, 0, 1)

	filter := shared.DefaultFilter()
	if q.Page > 0 {
		filter.Page = q.Page
	}
	if q.PageSize > 0 {
		filter.PageSize = q.PageSize
	}

	page, err := h.queries.GetAccountantTransactions(c.Request.Context(), schoolID, collectorID, from, to, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetDailySummary returns the authenticated collector's per-method totals
// for one calendar day, net of reversals. Defaults to today when no date is
// given.
func (h *FeesHandler) GetDailySummary(c *gin.Context) {
	schoolID, err := getSchoolID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	collectorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var q DailySummaryFilter
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	date := time.Now()
	if q.Date != "" {
		parsed, err := time.Parse("2006-01-02", q.Date)
		if err != nil {
			h.BadRequest(c, "date must be like 2025-04-05")
			return
		}
		date = parsed
	}

	resp, err := h.queries.GetDailyCollectionSummary(c.Request.Context(), schoolID, collectorID, date)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// resolveAcademicYear returns the academic_year query parameter, defaulting
// to the year containing today.
func resolveAcademicYear(c *gin.Context) string {
	if year := c.Query("academic_year"); year != "" {
		return year
	}
	return fees.ResolveAcademicYear(time.Now())
}
