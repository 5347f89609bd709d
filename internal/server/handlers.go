package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmercadier/amortization-extractor/constants"
	"github.com/jmercadier/amortization-extractor/internal/common"
	"github.com/jmercadier/amortization-extractor/internal/export"
	"github.com/jmercadier/amortization-extractor/internal/extract"
	"github.com/jmercadier/amortization-extractor/internal/repository"
	"github.com/jmercadier/amortization-extractor/internal/sheets"
)

// statusClientClosedRequest mirrors nginx's non-standard code for requests
// aborted by the caller.
const statusClientClosedRequest = 499

// Handlers wires the extraction pipeline to HTTP. The sheets service and
// the job repository are optional collaborators; nil disables them.
type Handlers struct {
	orch           *extract.Orchestrator
	exporter       *export.Service
	sheets         *sheets.Service
	jobs           repository.JobRepository
	maxUploadBytes int64
	sheetsTimeout  time.Duration
	logger         *slog.Logger
}

func NewHandlers(
	orch *extract.Orchestrator,
	exporter *export.Service,
	sheetsSvc *sheets.Service,
	jobs repository.JobRepository,
	maxUploadBytes int64,
	sheetsTimeout time.Duration,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	if sheetsTimeout <= 0 {
		sheetsTimeout = 10 * time.Second
	}
	return &Handlers{
		orch:           orch,
		exporter:       exporter,
		sheets:         sheetsSvc,
		jobs:           jobs,
		maxUploadBytes: maxUploadBytes,
		sheetsTimeout:  sheetsTimeout,
		logger:         logger,
	}
}

type rowDTO struct {
	Index     int    `json:"index"`
	DueDate   string `json:"due_date,omitempty"`
	Payment   string `json:"payment"`
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Insurance string `json:"insurance"`
	Balance   string `json:"remaining_balance,omitempty"`
}

type totalsDTO struct {
	Payment   string `json:"payment"`
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Insurance string `json:"insurance"`
}

type extractResponse struct {
	Filename     string    `json:"filename"`
	RowCount     int       `json:"row_count"`
	Attempts     int       `json:"attempts"`
	Warnings     []string  `json:"warnings,omitempty"`
	FirstDueDate string    `json:"first_due_date,omitempty"`
	Totals       totalsDTO `json:"totals"`
	Rows         []rowDTO  `json:"rows"`
	Persisted    *bool     `json:"persisted,omitempty"`
}

type errorResponse struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Extract accepts a multipart PDF upload and returns the finished table as
// JSON.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	reqID := uuid.New().String()
	ctx := common.WithRequestID(r.Context(), reqID)

	jobID := uuid.New()
	if h.jobs != nil {
		_ = h.jobs.RecordStart(ctx, jobID, filename)
	}

	res, err := h.orch.Extract(ctx, data, filename)
	if err != nil {
		h.recordFailure(r, jobID, res, err)
		h.writeError(w, err)
		return
	}
	if h.jobs != nil {
		_ = h.jobs.RecordResult(r.Context(), jobID, constants.JobStatusDone,
			res.Attempts, res.Table.RowCount, "", "")
	}

	resp := toResponse(filename, res)
	if h.sheets != nil {
		resp.Persisted = h.persist(r, filename, res.Table)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Export accepts the same upload and streams the table back as a download.
// Format is selected with ?format=xlsx|csv (default xlsx).
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "csv" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind:   string(common.KindValidation),
			Detail: fmt.Sprintf("unsupported format %q, want xlsx or csv", format),
		})
		return
	}

	data, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	ctx := common.WithRequestID(r.Context(), uuid.New().String())
	res, err := h.orch.Extract(ctx, data, filename)
	if err != nil {
		h.writeError(w, err)
		return
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var out []byte
	var contentType string
	switch format {
	case "csv":
		out, err = h.exporter.TableCSV(res.Table)
		contentType = "text/csv"
	default:
		out, err = h.exporter.TableXLSX(res.Table)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Kind: string(common.KindValidation), Detail: err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", base+"."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// ListJobs returns recent extraction-history records when the store is
// configured.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeJSON(w, http.StatusNotFound, errorResponse{
			Kind: string(common.KindValidation), Detail: "extraction history is not configured",
		})
		return
	}
	jobs, err := h.jobs.ListRecent(r.Context(), 50)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Kind: string(common.KindTransport), Detail: err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readUpload pulls the uploaded file fully into memory. The bytes live only
// for the duration of this request.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind: string(common.KindValidation), Detail: "expected multipart form with a \"file\" part",
		})
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind: string(common.KindValidation), Detail: "missing \"file\" part",
		})
		return nil, "", false
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Kind: string(common.KindValidation), Detail: "could not read uploaded file",
		})
		return nil, "", false
	}
	return data, header.Filename, true
}

// persist appends the table to the spreadsheet backend. Best effort: a
// failure is reported in the response, never as a request error.
func (h *Handlers) persist(r *http.Request, filename string, table *extract.Table) *bool {
	ctx, cancel := common.WithTimeout(r.Context(), h.sheetsTimeout)
	defer cancel()
	ok := h.sheets.AppendTable(ctx, filename, table) == nil
	return &ok
}

func (h *Handlers) recordFailure(r *http.Request, jobID uuid.UUID, res extract.Result, err error) {
	if h.jobs == nil {
		return
	}
	kind := common.KindOf(err)
	rows := 0
	if res.Table != nil {
		rows = res.Table.RowCount
	}
	_ = h.jobs.RecordResult(r.Context(), jobID, constants.JobStatusFailed,
		res.Attempts, rows, string(kind), err.Error())
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	kind := common.KindOf(err)
	h.writeJSON(w, httpStatusFor(kind), errorResponse{
		Kind:   string(kind),
		Detail: err.Error(),
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("http.write_response_error", "error", err)
	}
}

func httpStatusFor(kind common.ErrorKind) int {
	switch kind {
	case common.KindTimeout:
		return http.StatusGatewayTimeout
	case common.KindTransport:
		return http.StatusBadGateway
	case common.KindCancelled:
		return statusClientClosedRequest
	default:
		// NoContentFound, UnexpectedShape, MalformedContent, ValidationError:
		// the upstream payload could not be turned into a table.
		return http.StatusUnprocessableEntity
	}
}

func toResponse(filename string, res extract.Result) extractResponse {
	t := res.Table
	resp := extractResponse{
		Filename: filename,
		RowCount: t.RowCount,
		Attempts: res.Attempts,
		Warnings: res.Warnings,
		Totals: totalsDTO{
			Payment:   t.TotalPayment.String(),
			Principal: t.TotalPrincipal.String(),
			Interest:  t.TotalInterest.String(),
			Insurance: t.TotalInsurance.String(),
		},
		Rows: make([]rowDTO, 0, len(t.Rows)),
	}
	if t.FirstDueDate != nil {
		resp.FirstDueDate = t.FirstDueDate.Format("2006-01-02")
	}
	for _, r := range t.Rows {
		dto := rowDTO{
			Index:     r.Index,
			Payment:   r.Payment.String(),
			Principal: r.Principal.String(),
			Interest:  r.Interest.String(),
			Insurance: r.Insurance.String(),
		}
		if r.DueDate != nil {
			dto.DueDate = r.DueDate.Format("2006-01-02")
		}
		if r.Balance != nil {
			dto.Balance = r.Balance.String()
		}
		resp.Rows = append(resp.Rows, dto)
	}
	return resp
}
