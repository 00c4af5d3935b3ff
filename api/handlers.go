/*
handlers.go - HTTP API handlers for the installment schedule engine

PURPOSE:
  Exposes the schedule engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Customers:
    POST   /api/customers                 Register customer

  Sales:
    POST   /api/sales                     Create credit sale
    GET    /api/sales/{id}                Sale + schedule summary
    POST   /api/sales/{id}/schedule       Build schedule
    GET    /api/sales/{id}/schedule       Current schedule rows
    POST   /api/sales/{id}/regenerate     Rebuild after amendment

  Policies:
    GET    /api/policies                  List withdrawal policies

  Postal:
    GET    /api/postal/export?month=YYYY-MM   Export withdrawal requests
    POST   /api/postal/import                 Apply returned status batch

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Commit-time reference-code collision (retry with fresh build)
  - 428: Regeneration awaiting explicit confirmation
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/castra/credit-engine/postal"
	"github.com/castra/credit-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    schedule.Store
	Builder  *schedule.Builder
	Regen    *schedule.Regenerator
	Exporter postal.Exporter
	Importer postal.Importer

	// Built-in withdrawal policies, keyed lazily via schedule.PolicyByID.
	Policies []schedule.ContractPolicy
}

// NewHandler creates a new handler with the given store.
func NewHandler(store schedule.Store, payeeAccount, payeeKey string) *Handler {
	return &Handler{
		Store:    store,
		Builder:  schedule.NewBuilder(store),
		Regen:    schedule.NewRegenerator(store),
		Exporter: postal.Exporter{Source: store, PayeeAccount: payeeAccount, PayeeKey: payeeKey},
		Importer: postal.Importer{Store: store},
		Policies: schedule.StandardPolicies(),
	}
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// CreateCustomer registers a customer.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "first_name and last_name are required", nil)
		return
	}

	customer := schedule.Customer{
		ID:           schedule.CustomerID(uuid.NewString()),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PayerAccount: req.PayerAccount,
		PayerKey:     req.PayerKey,
	}
	if err := h.Store.SaveCustomer(r.Context(), customer); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(customer.ID)})
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// CreateSale creates a credit sale.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	startMonth, err := schedule.ParseMonth(req.StartMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_month", err)
		return
	}
	if req.TermMonths < 1 {
		writeError(w, http.StatusBadRequest, "term_months must be at least 1", nil)
		return
	}
	if _, ok := schedule.PolicyByID(h.Policies, schedule.PolicyID(req.PolicyID)); !ok {
		writeError(w, http.StatusBadRequest, "Unknown policy", nil)
		return
	}
	if _, err := h.Store.Customer(r.Context(), schedule.CustomerID(req.CustomerID)); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown customer", err)
		return
	}

	sale := schedule.Sale{
		ID:           schedule.SaleID(uuid.NewString()),
		CustomerID:   schedule.CustomerID(req.CustomerID),
		BranchPrefix: req.BranchPrefix,
		TotalAmount:  schedule.NewMoney(req.TotalAmount),
		DownPayment:  schedule.NewMoney(req.DownPayment),
		TermMonths:   req.TermMonths,
		StartMonth:   startMonth,
		PolicyID:     schedule.PolicyID(req.PolicyID),
		Status:       schedule.SaleActive,
	}
	if err := h.Store.SaveSale(r.Context(), sale); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleDTO(sale, nil))
}

// GetSale returns a sale with its schedule summary.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id := schedule.SaleID(chi.URLParam(r, "id"))

	sale, err := h.Store.Sale(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rows, err := h.Store.InstallmentsBySale(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load schedule", err)
		return
	}
	summary := schedule.Summarize(rows)
	writeJSON(w, http.StatusOK, toSaleDTO(sale, &summary))
}

// BuildSchedule builds and persists the sale's installment schedule.
func (h *Handler) BuildSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.SaleID(chi.URLParam(r, "id"))

	var req BuildScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sale, err := h.Store.Sale(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	policy, ok := schedule.PolicyByID(h.Policies, sale.PolicyID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Sale references unknown policy", nil)
		return
	}

	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	result, err := h.Builder.BuildAndCommit(r.Context(), id, schedule.BuildInput{
		TotalAmount:    sale.TotalAmount,
		DownPayment:    sale.DownPayment,
		TermMonths:     sale.TermMonths,
		StartMonth:     sale.StartMonth,
		Policy:         policy,
		BranchPrefix:   sale.BranchPrefix,
		ReferenceCount: req.ReferenceCount,
		ManualCodes:    req.ManualCodes,
		AsOf:           asOf,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := toScheduleDTO(result.References, result.Installments)
	dto.Monthly = result.Monthly.String()
	writeJSON(w, http.StatusCreated, dto)
}

// GetSchedule returns the sale's persisted schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := schedule.SaleID(chi.URLParam(r, "id"))

	if _, err := h.Store.Sale(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	refs, err := h.Store.ReferencesBySale(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load references", err)
		return
	}
	rows, err := h.Store.InstallmentsBySale(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load installments", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(refs, rows))
}

// Regenerate rebuilds a schedule after the sale's terms were amended.
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id := schedule.SaleID(chi.URLParam(r, "id"))

	var req RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	startMonth, err := schedule.ParseMonth(req.StartMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_month", err)
		return
	}
	// An omitted policy_id is legal: the engine infers the rule from the
	// stored due day.
	var policy schedule.ContractPolicy
	if req.PolicyID != "" {
		p, ok := schedule.PolicyByID(h.Policies, schedule.PolicyID(req.PolicyID))
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown policy", nil)
			return
		}
		policy = p
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	result, err := h.Regen.Regenerate(r.Context(), id, schedule.RegenerateInput{
		NewTotal:       schedule.NewMoney(req.TotalAmount),
		NewDown:        schedule.NewMoney(req.DownPayment),
		NewTermMonths:  req.TermMonths,
		NewStartMonth:  startMonth,
		Policy:         policy,
		ReferenceCount: req.ReferenceCount,
		ManualCodes:    req.ManualCodes,
		AsOf:           asOf,
		Confirm:        req.Confirm,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := toScheduleDTO(result.References, result.Installments)
	dto.Monthly = result.Monthly.String()
	writeJSON(w, http.StatusCreated, dto)
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns the built-in withdrawal policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	dtos := make([]PolicyDTO, len(h.Policies))
	for i, p := range h.Policies {
		dtos[i] = PolicyDTO{
			ID:          string(p.ID),
			DisplayName: p.DisplayName,
			DayRule:     string(p.Rule.Kind),
			Day:         p.Rule.Day,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// POSTAL HANDLERS
// =============================================================================

// PostalExport emits the withdrawal request records for a target month.
func (h *Handler) PostalExport(w http.ResponseWriter, r *http.Request) {
	monthParam := r.URL.Query().Get("month")
	if monthParam == "" {
		writeError(w, http.StatusBadRequest, "month query parameter is required", nil)
		return
	}
	target, err := schedule.ParseMonth(monthParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	result, err := h.Exporter.Export(r.Context(), target, schedule.Today())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Export failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toExportResponseDTO(result))
}

// PostalImport applies a returned status batch. The body is the raw
// line-oriented batch file.
func (h *Handler) PostalImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read batch", err)
		return
	}

	summary, err := h.Importer.Import(r.Context(), string(body))
	if err != nil {
		// Partial application: report what was applied alongside the failure.
		writeJSON(w, http.StatusInternalServerError, struct {
			ErrorResponse
			Partial ImportSummaryDTO `json:"partial"`
		}{
			ErrorResponse: ErrorResponse{Error: "Import aborted", Details: err.Error()},
			Partial:       toImportSummaryDTO(summary),
		})
		return
	}
	writeJSON(w, http.StatusOK, toImportSummaryDTO(summary))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case schedule.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case schedule.IsConflict(err):
		writeError(w, http.StatusConflict, "Reference code collision, retry the build", err)
	case schedule.IsConfirmationRequired(err):
		var warn *schedule.RegenerationWarning
		if errors.As(err, &warn) {
			writeJSON(w, http.StatusPreconditionRequired, ErrorResponse{
				Error: "Confirmation required",
				Code:  "confirmation_required",
				Details: map[string]any{
					"paid_rows":  warn.PaidRows,
					"paid_total": warn.PaidTotal.String(),
				},
			})
			return
		}
		writeError(w, http.StatusPreconditionRequired, "Confirmation required", err)
	case schedule.IsValidation(err), errors.Is(err, schedule.ErrScheduleNotStale):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func parseAsOf(s string) (schedule.Date, error) {
	if s == "" {
		return schedule.Today(), nil
	}
	return schedule.ParseDate(s)
}
