/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/castra/credit-engine/postal"
	"github.com/castra/credit-engine/schedule"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreateCustomerRequest is the request to register a customer.
type CreateCustomerRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PayerAccount string `json:"payer_account,omitempty"`
	PayerKey     string `json:"payer_key,omitempty"`
}

// CreateSaleRequest is the request to create a credit sale.
type CreateSaleRequest struct {
	CustomerID   string `json:"customer_id"`
	BranchPrefix string `json:"branch_prefix"`
	TotalAmount  int64  `json:"total_amount"`
	DownPayment  int64  `json:"down_payment"`
	TermMonths   int    `json:"term_months"`
	StartMonth   string `json:"start_month"` // YYYY-MM
	PolicyID     string `json:"policy_id"`
}

// SaleDTO represents a sale in API responses.
type SaleDTO struct {
	ID           string      `json:"id"`
	CustomerID   string      `json:"customer_id"`
	BranchPrefix string      `json:"branch_prefix"`
	TotalAmount  string      `json:"total_amount"`
	DownPayment  string      `json:"down_payment"`
	TermMonths   int         `json:"term_months"`
	StartMonth   string      `json:"start_month"`
	PolicyID     string      `json:"policy_id"`
	Status       string      `json:"status"`
	Summary      *SummaryDTO `json:"summary,omitempty"`
}

// SummaryDTO aggregates a schedule by status.
type SummaryDTO struct {
	TotalRows     int    `json:"total_rows"`
	PendingRows   int    `json:"pending_rows"`
	PaidRows      int    `json:"paid_rows"`
	WaitingRows   int    `json:"waiting_rows"`
	BlockedRows   int    `json:"blocked_rows"`
	PendingAmount string `json:"pending_amount"`
	PaidAmount    string `json:"paid_amount"`
}

// BuildScheduleRequest is the request to build a sale's schedule.
type BuildScheduleRequest struct {
	ReferenceCount int            `json:"reference_count"`
	ManualCodes    map[int]string `json:"manual_codes,omitempty"`
	AsOf           string         `json:"as_of,omitempty"` // YYYY-MM-DD, defaults to today
}

// RegenerateRequest is the request to rebuild an amended sale's schedule.
type RegenerateRequest struct {
	TotalAmount    int64          `json:"total_amount"`
	DownPayment    int64          `json:"down_payment"`
	TermMonths     int            `json:"term_months"`
	StartMonth     string         `json:"start_month"`
	PolicyID       string         `json:"policy_id"`
	ReferenceCount int            `json:"reference_count"`
	ManualCodes    map[int]string `json:"manual_codes,omitempty"`
	AsOf           string         `json:"as_of,omitempty"`
	Confirm        bool           `json:"confirm"`
}

// ReferenceDTO represents a payment reference.
type ReferenceDTO struct {
	Code          string `json:"code"`
	Amount        string `json:"amount"`
	CoverageStart string `json:"coverage_start"`
	CoverageEnd   string `json:"coverage_end"`
}

// InstallmentDTO represents one schedule row.
type InstallmentDTO struct {
	DueDate       string `json:"due_date"`
	Amount        string `json:"amount"`
	ReferenceCode string `json:"reference_code,omitempty"`
	Status        string `json:"status"`
	PostalStatus  string `json:"postal_status"`
}

// ScheduleDTO is a built schedule: references plus ordered rows.
type ScheduleDTO struct {
	Monthly      string           `json:"monthly,omitempty"`
	References   []ReferenceDTO   `json:"references"`
	Installments []InstallmentDTO `json:"installments"`
}

// PolicyDTO represents a withdrawal policy.
type PolicyDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	DayRule     string `json:"day_rule"`
	Day         int    `json:"day,omitempty"`
}

// ExportRecordDTO is one postal export row.
type ExportRecordDTO struct {
	PayerAccount     string `json:"payer_account"`
	PayerKey         string `json:"payer_key"`
	LastName         string `json:"last_name"`
	FirstName        string `json:"first_name"`
	Amount           string `json:"amount"`
	PayeeAccount     string `json:"payee_account"`
	PayeeKey         string `json:"payee_key"`
	CoverageStart    string `json:"coverage_start"`
	CoverageEnd      string `json:"coverage_end"`
	CreationDate     string `json:"creation_date"`
	TargetMonth      string `json:"target_month"`
	InstallmentIndex int    `json:"installment_index"`
	WithdrawalDay    int    `json:"withdrawal_day"`
	ReferenceCode    string `json:"reference_code"`
	MissingPayer     bool   `json:"missing_payer,omitempty"`
}

// ExportResponseDTO wraps the export record set.
type ExportResponseDTO struct {
	TargetMonth  string            `json:"target_month"`
	Records      []ExportRecordDTO `json:"records"`
	MissingPayer int               `json:"missing_payer"`
}

// ImportSummaryDTO reports a reconciliation batch outcome.
type ImportSummaryDTO struct {
	Cleared    int            `json:"cleared"`
	Waiting    int            `json:"waiting"`
	Blocked    int            `json:"blocked"`
	Unresolved int            `json:"unresolved"`
	Errors     []LineErrorDTO `json:"errors,omitempty"`
}

// LineErrorDTO is one import line that could not be applied.
type LineErrorDTO struct {
	Line   int    `json:"line"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSaleDTO(s schedule.Sale, summary *schedule.Summary) SaleDTO {
	dto := SaleDTO{
		ID:           string(s.ID),
		CustomerID:   string(s.CustomerID),
		BranchPrefix: s.BranchPrefix,
		TotalAmount:  s.TotalAmount.String(),
		DownPayment:  s.DownPayment.String(),
		TermMonths:   s.TermMonths,
		StartMonth:   s.StartMonth.String(),
		PolicyID:     string(s.PolicyID),
		Status:       string(s.Status),
	}
	if summary != nil {
		dto.Summary = &SummaryDTO{
			TotalRows:     summary.TotalRows,
			PendingRows:   summary.PendingRows,
			PaidRows:      summary.PaidRows,
			WaitingRows:   summary.WaitingRows,
			BlockedRows:   summary.BlockedRows,
			PendingAmount: summary.PendingAmount.String(),
			PaidAmount:    summary.PaidAmount.String(),
		}
	}
	return dto
}

func toScheduleDTO(refs []schedule.PaymentReference, rows []schedule.Installment) ScheduleDTO {
	codeByID := make(map[schedule.ReferenceID]string, len(refs))
	dto := ScheduleDTO{
		References:   make([]ReferenceDTO, 0, len(refs)),
		Installments: make([]InstallmentDTO, 0, len(rows)),
	}
	for _, ref := range refs {
		codeByID[ref.ID] = ref.Code
		dto.References = append(dto.References, ReferenceDTO{
			Code:          ref.Code,
			Amount:        ref.Amount.String(),
			CoverageStart: ref.CoverageStart.String(),
			CoverageEnd:   ref.CoverageEnd.String(),
		})
	}
	for _, row := range rows {
		dto.Installments = append(dto.Installments, InstallmentDTO{
			DueDate:       row.DueDate.String(),
			Amount:        row.Amount.String(),
			ReferenceCode: codeByID[row.ReferenceID],
			Status:        string(row.Status),
			PostalStatus:  string(row.PostalStatus),
		})
	}
	return dto
}

func toExportResponseDTO(result *postal.ExportResult) ExportResponseDTO {
	dto := ExportResponseDTO{
		TargetMonth:  result.TargetMonth.String(),
		Records:      make([]ExportRecordDTO, len(result.Records)),
		MissingPayer: result.MissingPayer,
	}
	for i, rec := range result.Records {
		dto.Records[i] = ExportRecordDTO{
			PayerAccount:     rec.PayerAccount,
			PayerKey:         rec.PayerKey,
			LastName:         rec.LastName,
			FirstName:        rec.FirstName,
			Amount:           rec.Amount.String(),
			PayeeAccount:     rec.PayeeAccount,
			PayeeKey:         rec.PayeeKey,
			CoverageStart:    rec.CoverageStart,
			CoverageEnd:      rec.CoverageEnd,
			CreationDate:     rec.CreationDate,
			TargetMonth:      rec.TargetMonth,
			InstallmentIndex: rec.InstallmentIndex,
			WithdrawalDay:    rec.WithdrawalDay,
			ReferenceCode:    rec.ReferenceCode,
			MissingPayer:     rec.MissingPayer,
		}
	}
	return dto
}

func toImportSummaryDTO(summary *postal.ImportSummary) ImportSummaryDTO {
	dto := ImportSummaryDTO{
		Cleared:    summary.Cleared,
		Waiting:    summary.Waiting,
		Blocked:    summary.Blocked,
		Unresolved: summary.Unresolved,
	}
	for _, le := range summary.Errors {
		dto.Errors = append(dto.Errors, LineErrorDTO{Line: le.Line, Raw: le.Raw, Reason: le.Reason})
	}
	return dto
}
