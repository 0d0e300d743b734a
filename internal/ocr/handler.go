package ocr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mercadoleve/mercadoleve/internal/platform/httpx"
	"github.com/mercadoleve/mercadoleve/internal/platform/storage"
)

const (
	maxUploadMemory = 32 << 20
	maxUploadFiles  = 50
	maxProcessBody  = 1 << 20
)

// EnqueuedTask describes a queued batch run.
type EnqueuedTask struct {
	BatchID string `json:"batchId"`
	TaskID  string `json:"taskId"`
	Queue   string `json:"queue"`
}

// Enqueuer hands a batch to the background worker.
type Enqueuer interface {
	EnqueueProcessBatch(ctx context.Context, req ProcessRequest) (EnqueuedTask, error)
}

// ErrAlreadyQueued indicates a run for the batch is already pending.
var ErrAlreadyQueued = fmt.Errorf("ocr: batch already %w", httpx.ErrConflict)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
}

// NewHandler builds the OCR endpoints. enqueuer may be nil, in which case
// asynchronous processing is unavailable.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountRoutes registers OCR endpoints under the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/batches", h.CreateBatch)
	r.Get("/batches", h.ListBatches)
	r.Get("/batches/{id}", h.GetBatch)
	r.Get("/batches/{id}/items", h.ListItems)
	r.Post("/process", h.Process)
	r.Post("/process/async", h.ProcessAsync)
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProcess(w, r)
	if !ok {
		return
	}
	result, err := h.service.ProcessBatch(r.Context(), req)
	if err != nil {
		h.logger.Error("ocr process failed", slog.String("batch_id", req.BatchID), slog.Any("error", err))
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) ProcessAsync(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.JSON(w, http.StatusServiceUnavailable, errorBody{Error: "async processing unavailable"})
		return
	}
	req, ok := h.decodeProcess(w, r)
	if !ok {
		return
	}
	if err := h.service.Validate(req); err != nil {
		writeError(w, err)
		return
	}
	task, err := h.enqueuer.EnqueueProcessBatch(r.Context(), req)
	if err != nil {
		h.logger.Error("ocr enqueue failed", slog.String("batch_id", req.BatchID), slog.Any("error", err))
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, task)
}

func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httpx.JSON(w, http.StatusBadRequest, errorBody{Error: "invalid multipart form"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var uploadedBy *string
	if raw := strings.TrimSpace(r.FormValue("uploaded_by")); raw != "" {
		if _, err := uuid.Parse(raw); err != nil {
			httpx.JSON(w, http.StatusBadRequest, errorBody{Error: "uploaded_by must be a uuid"})
			return
		}
		uploadedBy = &raw
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) > maxUploadFiles {
		httpx.JSON(w, http.StatusBadRequest, errorBody{Error: "too many images"})
		return
	}
	uploads := make([]Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > storage.MaxObjectSize {
			httpx.JSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: fh.Filename + " is too large"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			httpx.JSON(w, http.StatusBadRequest, errorBody{Error: "cannot read " + fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			httpx.JSON(w, http.StatusBadRequest, errorBody{Error: "cannot read " + fh.Filename})
			return
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = sniffContentType(data)
		}
		uploads = append(uploads, Upload{Filename: fh.Filename, ContentType: contentType, Data: data})
	}

	created, err := h.service.CreateBatch(r.Context(), uploadedBy, uploads)
	if err != nil {
		h.logger.Error("ocr batch upload failed", slog.Any("error", err))
		writeError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	batches, err := h.service.ListBatches(r.Context(), BatchListFilters{Limit: limit})
	if err != nil {
		h.logger.Error("ocr list batches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if batches == nil {
		batches = []Batch{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.ListItems(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []ReviewItem{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) decodeProcess(w http.ResponseWriter, r *http.Request) (ProcessRequest, bool) {
	var req ProcessRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxProcessBody)
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return ProcessRequest{}, false
	}
	return req, true
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	httpx.JSON(w, httpx.StatusFor(err), errorBody{Error: err.Error()})
}
