/*
handlers.go - HTTP API handlers for the movement ledger

PURPOSE:
  Exposes the ledger engine, the account directory and the statement
  builder over REST. Handlers decode the request, call exactly one
  domain operation, and encode the result.

ENDPOINTS:
  Customers:
    GET    /api/customers                List customers
    POST   /api/customers                Create customer
    GET    /api/customers/{id}           Get customer
    PUT    /api/customers/{id}           Replace customer
    DELETE /api/customers/{id}           Delete customer and its accounts
    GET    /api/customers/{id}/accounts  Customer's accounts

  Accounts:
    GET    /api/accounts                 List accounts
    POST   /api/accounts                 Create account (number generated if blank)
    GET    /api/accounts/{id}            Get account
    PUT    /api/accounts/{id}            Replace account
    DELETE /api/accounts/{id}            Delete account and its movements
    GET    /api/accounts/{id}/balance    Current balance (tail read)
    GET    /api/accounts/{id}/movements  Movements in ledger order
    GET    /api/accounts/{id}/audit      Replay and report chain breaks

  Movements:
    GET    /api/movements                List all movements
    POST   /api/movements                Append a movement
    GET    /api/movements/{id}           Get movement
    PUT    /api/movements/{id}           Edit kind/value/date (rebases from baseline)
    DELETE /api/movements/{id}           Remove movement (no recompute)

  Reports:
    GET /api/reports?customerId=&startDate=&endDate=      JSON + pdfBase64
    GET /api/reports/pdf?customerId=&startDate=&endDate=  application/pdf

ERROR HANDLING:
  Errors are returned as {"code", "message"} with:
  - 400: Validation errors, insufficient funds, invalid kind
  - 404: Customer, account or movement not found
  - 409: Duplicate account number
  - 500: Internal errors (logged, details withheld)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status and code mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/movement-ledger/directory"
	"github.com/warp/movement-ledger/ledger"
	"github.com/warp/movement-ledger/statement"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	engine     *ledger.Engine
	directory  *directory.Service
	statements *statement.Builder
	renderer   statement.Renderer
	db         Pinger
	logger     *zap.Logger
}

type Deps struct {
	Engine     *ledger.Engine
	Directory  *directory.Service
	Statements *statement.Builder
	Renderer   statement.Renderer
	DB         Pinger
	Logger     *zap.Logger
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:     d.Engine,
		directory:  d.Directory,
		statements: d.Statements,
		renderer:   d.Renderer,
		db:         d.DB,
		logger:     logger,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthDTO{Status: "ok", Database: "ok"}
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("health check: database unreachable", zap.Error(err))
			resp = HealthDTO{Status: "degraded", Database: "unreachable"}
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// CUSTOMER ENDPOINTS
// =============================================================================

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.directory.Customers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]CustomerDTO, 0, len(customers))
	for _, c := range customers {
		out = append(out, toCustomerDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.directory.Customer(r.Context(), customerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.directory.CreateCustomer(r.Context(), req.toCustomer())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.directory.UpdateCustomer(r.Context(), customerID(r), req.toCustomer())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.DeleteCustomer(r.Context(), customerID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetCustomerAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.directory.AccountsByCustomer(r.Context(), customerID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(accounts))
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.directory.Accounts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(accounts))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.directory.Account(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.directory.CreateAccount(r.Context(), req.toAccount())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(a))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req AccountRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.directory.UpdateAccount(r.Context(), id, req.toAccount())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.directory.DeleteAccount(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balance, err := h.engine.CurrentBalance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{AccountID: int64(id), Balance: money(balance)})
}

func (h *Handler) GetAccountMovements(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ms, err := h.engine.Movements(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(ms))
}

func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.engine.Audit(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

// =============================================================================
// MOVEMENT ENDPOINTS
// =============================================================================

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	ms, err := h.engine.AllMovements(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(ms))
}

func (h *Handler) GetMovement(w http.ResponseWriter, r *http.Request) {
	id, err := movementID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.engine.Movement(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(m))
}

func (h *Handler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	var req CreateMovementRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.AccountID == 0 && req.AccountNumber == "" {
		h.writeError(w, r, badRequest("accountId or accountNumber is required"))
		return
	}
	kind, err := ledger.ParseMovementKind(req.Kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	at, err := parseMovementDate(req.Date)
	if err != nil {
		h.writeError(w, r, badRequest(err.Error()))
		return
	}

	m, err := h.engine.Append(r.Context(), ledger.AppendInput{
		AccountID:     ledger.AccountID(req.AccountID),
		AccountNumber: req.AccountNumber,
		Kind:          kind,
		Value:         req.Value,
		At:            at,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	movementsRecorded.WithLabelValues(string(m.Kind)).Inc()
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

func (h *Handler) UpdateMovement(w http.ResponseWriter, r *http.Request) {
	id, err := movementID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req UpdateMovementRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	kind, err := ledger.ParseMovementKind(req.Kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	at, err := parseMovementDate(req.Date)
	if err != nil {
		h.writeError(w, r, badRequest(err.Error()))
		return
	}

	m, err := h.engine.Update(r.Context(), id, ledger.MovementUpdate{At: at, Kind: kind, Value: req.Value})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(m))
}

func (h *Handler) DeleteMovement(w http.ResponseWriter, r *http.Request) {
	id, err := movementID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// GetReport returns the statement as JSON with the rendered PDF attached
// as base64.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	st, err := h.buildStatement(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var pdf []byte
	if h.renderer != nil {
		if pdf, err = h.renderer.Render(st); err != nil {
			h.writeError(w, r, fmt.Errorf("render statement: %w", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st, pdf))
}

// GetReportPDF streams the rendered statement inline.
func (h *Handler) GetReportPDF(w http.ResponseWriter, r *http.Request) {
	st, err := h.buildStatement(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.renderer == nil {
		h.writeError(w, r, fmt.Errorf("no statement renderer configured"))
		return
	}
	pdf, err := h.renderer.Render(st)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("render statement: %w", err))
		return
	}

	name := statement.FileName(st.Customer.ID, st.DateRange.Start, st.DateRange.End)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

func (h *Handler) buildStatement(r *http.Request) (*statement.Statement, error) {
	q := r.URL.Query()
	customer := q.Get("customerId")
	if customer == "" {
		return nil, badRequest("customerId is required")
	}
	start, err := time.Parse(statement.DateLayout, q.Get("startDate"))
	if err != nil {
		return nil, badRequest("invalid startDate format (use YYYY-MM-DD)")
	}
	end, err := time.Parse(statement.DateLayout, q.Get("endDate"))
	if err != nil {
		return nil, badRequest("invalid endDate format (use YYYY-MM-DD)")
	}
	return h.statements.Build(r.Context(), ledger.CustomerID(customer), start, end)
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func customerID(r *http.Request) ledger.CustomerID {
	return ledger.CustomerID(chi.URLParam(r, "id"))
}

func accountID(r *http.Request) (ledger.AccountID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid account id")
	}
	return ledger.AccountID(id), nil
}

func movementID(r *http.Request) (ledger.MovementID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid movement id")
	}
	return ledger.MovementID(id), nil
}
