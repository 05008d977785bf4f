package fees

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/student"
	"github.com/schoolerp/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
)

// QueryService serves the read side of fee collection: student lookups for
// the collection screen, per-student status, collector histories, and the
// daily reconciliation summary. It never writes.
type QueryService struct {
	structureRepo fees.FeeStructureRepository
	ledgerRepo    fees.FeeLedgerRepository
	txRepo        fees.FeeTransactionRepository
	studentRepo   student.Repository
	now           func() time.Time
}

// NewQueryService creates a new QueryService
func NewQueryService(
	structureRepo fees.FeeStructureRepository,
	ledgerRepo fees.FeeLedgerRepository,
	txRepo fees.FeeTransactionRepository,
	studentRepo student.Repository,
) *QueryService {
	return &QueryService{
		structureRepo: structureRepo,
		ledgerRepo:    ledgerRepo,
		txRepo:        txRepo,
		studentRepo:   studentRepo,
		now:           time.Now,
	}
}

// StudentSummaryResponse is a student row in search results and class rosters
type StudentSummaryResponse struct {
	ID              uuid.UUID       `json:"id"`
	AdmissionNumber string          `json:"admission_number"`
	Name            string          `json:"name"`
	Class           string          `json:"class"`
	RollNumber      int             `json:"roll_number"`
	GuardianName    string          `json:"guardian_name"`
	GuardianPhone   string          `json:"guardian_phone"`
	Status          string          `json:"status"`
	TotalDueAmount  decimal.Decimal `json:"total_due_amount"`
	IsDefaulter     bool            `json:"is_defaulter"`
}

// StudentFeeStatusResponse is the full fee picture for one student
type StudentFeeStatusResponse struct {
	Student            StudentSummaryResponse `json:"student"`
	AcademicYear       string                 `json:"academic_year"`
	Ledger             *LedgerResponse        `json:"ledger,omitempty"`
	NextDueMonth       *int                   `json:"next_due_month,omitempty"`
	MonthsPaid         int                    `json:"months_paid"`
	RecentTransactions []TransactionResponse  `json:"recent_transactions,omitempty"`
}

// recentTransactionLimit caps the transaction tail shown on the status screen
const recentTransactionLimit = 10

// TransactionResponse is one row of a collector's transaction history
type TransactionResponse struct {
	ID            uuid.UUID       `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	StudentID     uuid.UUID       `json:"student_id"`
	AcademicYear  string          `json:"academic_year"`
	Month         int             `json:"month"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Method        string          `json:"payment_method"`
	Reference     string          `json:"reference,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`
	Status        string          `json:"status"`
	CollectedBy   uuid.UUID       `json:"collected_by"`
	CollectedAt   time.Time       `json:"collected_at"`
	OriginIP      string          `json:"origin_ip,omitempty"`
	OriginDevice  string          `json:"origin_device,omitempty"`
}

// MethodTotalResponse is one payment method's share of a day's collection
type MethodTotalResponse struct {
	Method string          `json:"method"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// DailyCollectionSummaryResponse is the end-of-day reconciliation view
type DailyCollectionSummaryResponse struct {
	Date       string                `json:"date"`
	ByMethod   []MethodTotalResponse `json:"by_method"`
	GrandTotal decimal.Decimal       `json:"grand_total"`
	TotalCount int64                 `json:"total_count"`
}

// SearchStudents matches students by name or admission number for the
// collection screen.
func (s *QueryService) SearchStudents(ctx context.Context, schoolID uuid.UUID, query string, filter shared.Filter) (shared.Paginated[StudentSummaryResponse], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_query", "search_students",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
	)
	defer span.End()

	page, err := s.studentRepo.Search(ctx, schoolID, query, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[StudentSummaryResponse]{}, err
	}

	items := s.withLedgerSummaries(ctx, schoolID, page.Items)
	return shared.NewPaginated(items, page.Total, page.Page, page.PageSize), nil
}

// GetStudentsByClass returns the roster for one grade-section with each
// student's outstanding amount, ordered as the repository returns them
// (roll number).
func (s *QueryService) GetStudentsByClass(ctx context.Context, schoolID uuid.UUID, grade int, section string) ([]StudentSummaryResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_query", "students_by_class",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute("grade", grade),
	)
	defer span.End()

	students, err := s.studentRepo.FindByGradeSection(ctx, schoolID, grade, section)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return s.withLedgerSummaries(ctx, schoolID, students), nil
}

// GetStudentFeeStatus returns the student's ledger projection for one
// academic year. A student with no ledger yet gets a nil ledger rather than
// an error; creation is the collection flow's job.
func (s *QueryService) GetStudentFeeStatus(ctx context.Context, schoolID, studentID uuid.UUID, academicYear string) (*StudentFeeStatusResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_query", "student_fee_status",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrStudentID, studentID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrAcademicYear, academicYear),
	)
	defer span.End()

	st, err := s.studentRepo.FindByIDForSchool(ctx, schoolID, studentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &StudentFeeStatusResponse{
		Student:      toStudentSummary(st, decimal.Zero, false),
		AcademicYear: academicYear,
	}

	ledger, err := s.ledgerRepo.FindByStudentYear(ctx, schoolID, studentID, academicYear)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return resp, nil
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	asOf := s.now()
	if structure, serr := s.structureRepo.FindByIDForSchool(ctx, schoolID, ledger.FeeStructureID); serr == nil {
		ledger.RefreshOverdue(asOf, structure)
	}

	resp.Student = toStudentSummary(st, ledger.TotalDueAmount, ledger.IsDefaulter(asOf))
	resp.Ledger = toLedgerResponse(ledger)
	resp.MonthsPaid = ledger.MonthsPaid()
	if next := ledger.NextUnpaidMonth(); next != nil {
		month := next.Month
		resp.NextDueMonth = &month
	}

	// Tail of the transaction log, newest first
	if txs, terr := s.txRepo.FindByLedger(ctx, schoolID, ledger.ID); terr == nil {
		start := len(txs) - recentTransactionLimit
		if start < 0 {
			start = 0
		}
		recent := make([]TransactionResponse, 0, len(txs)-start)
		for i := len(txs) - 1; i >= start; i-- {
			recent = append(recent, toTransactionResponse(&txs[i]))
		}
		resp.RecentTransactions = recent
	}
	return resp, nil
}

// GetAccountantTransactions returns one collector's transaction history for
// a date range, newest first.
func (s *QueryService) GetAccountantTransactions(ctx context.Context, schoolID, collectorID uuid.UUID, from, to time.Time, filter shared.Filter) (shared.Paginated[TransactionResponse], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_query", "accountant_transactions",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrCollectorID, collectorID.String()),
	)
	defer span.End()

	page, err := s.txRepo.FindByCollectorAndDateRange(ctx, schoolID, collectorID, from, to, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[TransactionResponse]{}, err
	}

	items := make([]TransactionResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toTransactionResponse(&page.Items[i]))
	}
	return shared.NewPaginated(items, page.Total, page.Page, page.PageSize), nil
}

// GetDailyCollectionSummary aggregates one collector's completed
// collections per payment method, net of reversals, for cash-drawer
// reconciliation at the end of their shift.
func (s *QueryService) GetDailyCollectionSummary(ctx context.Context, schoolID, collectorID uuid.UUID, date time.Time) (*DailyCollectionSummaryResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_query", "daily_summary",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrCollectorID, collectorID.String()),
	)
	defer span.End()

	totals, err := s.txRepo.SumByMethodForDay(ctx, schoolID, collectorID, date)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp := &DailyCollectionSummaryResponse{
		Date:       date.Format("2006-01-02"),
		ByMethod:   make([]MethodTotalResponse, 0, len(totals)),
		GrandTotal: decimal.Zero,
	}
	for _, t := range totals {
		resp.ByMethod = append(resp.ByMethod, MethodTotalResponse{
			Method: string(t.Method),
			Count:  t.Count,
			Total:  t.Total,
		})
		resp.GrandTotal = resp.GrandTotal.Add(t.Total)
		resp.TotalCount += t.Count
	}
	return resp, nil
}

// withLedgerSummaries decorates student rows with the current year's
// outstanding amount, batched in one ledger query.
func (s *QueryService) withLedgerSummaries(ctx context.Context, schoolID uuid.UUID, students []student.Student) []StudentSummaryResponse {
	asOf := s.now()
	year := fees.ResolveAcademicYear(asOf)

	ids := make([]uuid.UUID, 0, len(students))
	for i := range students {
		ids = append(ids, students[i].ID)
	}

	byStudent := make(map[uuid.UUID]*fees.FeeLedger, len(students))
	if ledgers, err := s.ledgerRepo.FindByStudents(ctx, schoolID, ids, year); err == nil {
		for i := range ledgers {
			byStudent[ledgers[i].StudentID] = &ledgers[i]
		}
	}

	items := make([]StudentSummaryResponse, 0, len(students))
	for i := range students {
		due := decimal.Zero
		defaulter := false
		if ledger, ok := byStudent[students[i].ID]; ok {
			due = ledger.TotalDueAmount
			defaulter = ledger.IsDefaulter(asOf)
		}
		items = append(items, toStudentSummary(&students[i], due, defaulter))
	}
	return items
}

func toStudentSummary(st *student.Student, due decimal.Decimal, defaulter bool) StudentSummaryResponse {
	return StudentSummaryResponse{
		ID:              st.ID,
		AdmissionNumber: st.AdmissionNumber,
		Name:            st.FullName(),
		Class:           st.ClassLabel(),
		RollNumber:      st.RollNumber,
		GuardianName:    st.GuardianName,
		GuardianPhone:   st.GuardianPhone,
		Status:          string(st.Status),
		TotalDueAmount:  due,
		IsDefaulter:     defaulter,
	}
}

func toTransactionResponse(tx *fees.FeeTransaction) TransactionResponse {
	return TransactionResponse{
		ID:            tx.ID,
		ReceiptNumber: tx.ReceiptNumber,
		StudentID:     tx.StudentID,
		AcademicYear:  tx.AcademicYear,
		Month:         tx.Month,
		Amount:        tx.Amount,
		Type:          string(tx.Type),
		Method:        string(tx.Method),
		Reference:     tx.Reference,
		Remarks:       tx.Remarks,
		Status:        string(tx.Status),
		CollectedBy:   tx.CollectedBy,
		CollectedAt:   tx.CollectedAt,
		OriginIP:      tx.OriginIP,
		OriginDevice:  tx.OriginDevice,
	}
}
