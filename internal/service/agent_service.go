package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mmynk/billagent/internal/calculator"
	"github.com/mmynk/billagent/internal/httpx"
	"github.com/mmynk/billagent/internal/metrics"
	"github.com/mmynk/billagent/internal/middleware"
	"github.com/mmynk/billagent/internal/models"
	"github.com/mmynk/billagent/internal/printer"
	"github.com/mmynk/billagent/internal/storage"
)

// Warnings returned by /print when the bill was stored but not printed.
const (
	WarningPrinterNotConfigured = "printer not configured"
	WarningPrintingFailed       = "printing failed"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultMaxBodyBytes  = 1 << 20
	defaultHistoryWindow = 24 * time.Hour
)

// Printer is the printer capability the service needs.
type Printer interface {
	IsAvailable() bool
	Print(ctx context.Context, bill *models.Bill) error
}

// Reporter produces the per-user sales report.
type Reporter interface {
	Report(ctx context.Context) ([]models.UserTotal, error)
}

// Options tunes an AgentService. Zero values take defaults.
type Options struct {
	// StoreTimeout bounds each store call.
	StoreTimeout time.Duration
	MaxBodyBytes int64
	// HistoryWindow is how far back GET /bills looks without ?since.
	HistoryWindow time.Duration
	Metrics       *metrics.Metrics
}

// AgentService is the HTTP boundary of the agent. It stores bills before
// anything else happens to them and treats printing as best-effort.
type AgentService struct {
	store   storage.Store
	printer Printer
	reports Reporter
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

// NewAgentService creates an AgentService over the given collaborators.
func NewAgentService(store storage.Store, p Printer, reports Reporter, opts Options) *AgentService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = defaultHistoryWindow
	}
	return &AgentService{
		store:   store,
		printer: p,
		reports: reports,
		metrics: opts.Metrics,
		opts:    opts,
		now:     time.Now,
	}
}

// Register adds the service routes to mux.
func (s *AgentService) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /bills", s.SaveBill)
	mux.HandleFunc("POST /print", s.PrintBill)
	mux.HandleFunc("GET /printer-status", s.PrinterStatus)
	mux.HandleFunc("GET /report", s.Report)
	mux.HandleFunc("GET /bills", s.ListBills)
	mux.HandleFunc("GET /bills/{id}", s.GetBill)
	mux.HandleFunc("GET /healthz", s.Health)
}

type okResponse struct {
	OK bool `json:"ok"`
}

type printResponse struct {
	OK      bool   `json:"ok"`
	Printed bool   `json:"printed"`
	Warning string `json:"warning,omitempty"`
}

type statusResponse struct {
	Connected bool `json:"connected"`
}

type reportResponse struct {
	Rows []models.UserTotal `json:"rows"`
}

type billsResponse struct {
	Bills []json.RawMessage `json:"bills"`
}

// SaveBill handles POST /bills: store only.
func (s *AgentService) SaveBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.decodeBill(w, r)
	if !ok {
		return
	}
	if !s.persist(w, r, bill) {
		return
	}
	httpx.JSON(w, http.StatusOK, okResponse{OK: true})
}

// PrintBill handles POST /print: store, then print. Once the bill is
// stored the response is 200 whatever the printer does.
func (s *AgentService) PrintBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.decodeBill(w, r)
	if !ok {
		return
	}
	if !s.persist(w, r, bill) {
		return
	}

	resp := printResponse{OK: true}
	// The bill is already durable; a disconnecting client should not cut
	// a receipt off halfway. The adapter bounds the call itself.
	err := s.printer.Print(context.WithoutCancel(r.Context()), bill)
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case err == nil:
		resp.Printed = true
		s.metrics.PrintAttempt(metrics.PrintPrinted)
		slog.Info("Bill printed", "bill_id", bill.ID, "request_id", requestID)
	case errors.Is(err, printer.ErrUnavailable):
		resp.Warning = WarningPrinterNotConfigured
		s.metrics.PrintAttempt(metrics.PrintUnavailable)
		slog.Warn("Bill stored but printer unavailable", "bill_id", bill.ID, "request_id", requestID)
	default:
		resp.Warning = WarningPrintingFailed
		s.metrics.PrintAttempt(metrics.PrintFailed)
		slog.Error("Printing failed", "bill_id", bill.ID, "request_id", requestID, "error", err)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// PrinterStatus handles GET /printer-status from the adapter's cached probe.
func (s *AgentService) PrinterStatus(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, statusResponse{Connected: s.printer.IsAvailable()})
}

// Report handles GET /report.
func (s *AgentService) Report(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.StoreTimeout)
	defer cancel()

	rows, err := s.reports.Report(ctx)
	if err != nil {
		slog.Error("Report failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, reportResponse{Rows: rows})
}

// ListBills handles GET /bills. ?since takes Unix milliseconds; without it
// the history window applies. Bills are returned as their stored payloads.
func (s *AgentService) ListBills(w http.ResponseWriter, r *http.Request) {
	since := s.now().Add(-s.opts.HistoryWindow).UnixMilli()
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q: want Unix milliseconds", v))
			return
		}
		since = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.StoreTimeout)
	defer cancel()

	bills, err := s.store.ListBillsSince(ctx, since)
	if err != nil {
		slog.Error("ListBills failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := billsResponse{Bills: make([]json.RawMessage, 0, len(bills))}
	for _, b := range bills {
		payload, err := b.EncodedPayload()
		if err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Bills = append(resp.Bills, payload)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// GetBill handles GET /bills/{id}, returning the stored payload.
func (s *AgentService) GetBill(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.StoreTimeout)
	defer cancel()

	bill, err := s.store.GetBill(ctx, r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpx.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("GetBill failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload, err := bill.EncodedPayload()
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, json.RawMessage(payload))
}

// Health handles GET /healthz.
func (s *AgentService) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.StoreTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		httpx.JSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, okResponse{OK: true})
}

// decodeBill reads and validates the request body. It writes the error
// response itself and reports whether the caller should continue.
func (s *AgentService) decodeBill(w http.ResponseWriter, r *http.Request) (*models.Bill, bool) {
	body, err := httpx.ReadBody(w, r, s.opts.MaxBodyBytes)
	if errors.Is(err, httpx.ErrBodyTooLarge) {
		httpx.JSONError(w, http.StatusRequestEntityTooLarge, err.Error())
		return nil, false
	}
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	bill, err := models.DecodeBill(body)
	if err != nil {
		err = &models.ValidationError{Err: fmt.Errorf("malformed JSON: %w", err)}
		httpx.JSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err := bill.Validate(); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	if len(bill.Lines) > 0 && !calculator.TotalMatches(bill) {
		slog.Warn("Bill total does not match its lines",
			"bill_id", bill.ID,
			"total", bill.Total,
			"lines_total", calculator.BillTotal(bill.Lines).String(),
		)
	}
	return bill, true
}

// persist upserts the bill on a context detached from the client, so a
// disconnect after the write is issued cannot roll it back. It writes the
// error response itself and reports whether the bill was stored.
func (s *AgentService) persist(w http.ResponseWriter, r *http.Request, bill *models.Bill) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.StoreTimeout)
	defer cancel()

	if err := s.store.UpsertBill(ctx, bill); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			httpx.JSONError(w, http.StatusBadRequest, err.Error())
			return false
		}
		slog.Error("Failed to store bill",
			"bill_id", bill.ID,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		httpx.JSONError(w, http.StatusInternalServerError, err.Error())
		return false
	}

	s.metrics.BillStored(r.URL.Path)
	slog.Debug("Bill stored", "bill_id", bill.ID, "user", bill.User, "lines", len(bill.Lines))
	return true
}
