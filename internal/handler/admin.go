package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
	"github.com/sakif/tapcard/internal/service"
)

// AdminHandler serves the admin console: code batches, the code table, QR
// images and the manual repair tools. Every route sits behind RequireAdmin.
type AdminHandler struct {
	batches   *service.BatchService
	lifecycle *service.Lifecycle
	sweeper   *service.Sweeper
	profiles  *service.ProfileService
	logger    *slog.Logger
}

func NewAdminHandler(
	batches *service.BatchService,
	lifecycle *service.Lifecycle,
	sweeper *service.Sweeper,
	profiles *service.ProfileService,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		batches:   batches,
		lifecycle: lifecycle,
		sweeper:   sweeper,
		profiles:  profiles,
		logger:    logger,
	}
}

type createBatchRequest struct {
	Name   string   `json:"name"`
	Prefix string   `json:"prefix"`
	Codes  []string `json:"codes"`
}

type generateBatchRequest struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	Count  int    `json:"count"`
	Length int    `json:"length"`
}

// HandleCreateBatch imports an explicit list of codes.
//
// HTTP: POST /api/admin/batches
// REQUEST BODY: {"name": "Spring print run", "codes": ["A1B2", "C3D4"]}
// A value that already exists fails the whole import with 409 and the
// colliding values listed.
func (h *AdminHandler) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	batch, err := h.batches.CreateBatch(r.Context(), req.Codes, req.Prefix, req.Name, requester(r).UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

// HandleGenerateBatch: POST /api/admin/batches/generate
func (h *AdminHandler) HandleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req generateBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	batch, err := h.batches.GenerateBatch(r.Context(), req.Count, req.Prefix, req.Length, req.Name, requester(r).UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

// HandleListBatches: GET /api/admin/batches
func (h *AdminHandler) HandleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.batches.ListBatches(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if batches == nil {
		batches = []model.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// HandleDeleteBatch: DELETE /api/admin/batches/{id}
func (h *AdminHandler) HandleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.batches.DeleteBatch(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBatchStats: GET /api/admin/batches/{id}/stats
func (h *AdminHandler) HandleBatchStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	stats, err := h.batches.BatchStats(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleListCodes lists live codes.
//
// HTTP: GET /api/admin/codes?status=assigned&batch=3&limit=50&offset=0
func (h *AdminHandler) HandleListCodes(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	filter := repository.CodeFilter{
		Status:      model.Status(r.URL.Query().Get("status")),
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	}
	if raw := r.URL.Query().Get("batch"); raw != "" {
		batchID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("batch", "must be an integer"))
			return
		}
		filter.BatchID = &batchID
	}

	codes, err := h.batches.ListCodes(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if codes == nil {
		codes = []model.ResolveCode{}
	}
	writeJSON(w, http.StatusOK, codes)
}

// bulk runs one of the ids-in, count-out code operations.
func (h *AdminHandler) bulk(op func(r *http.Request, ids []int64) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req idsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
		n, err := op(r, req.IDs)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, affectedResponse{Affected: n, Success: true})
	}
}

// HandleBulkDelete hard-deletes codes. Profiles left behind are cleaned up
// by the next sweep.
//
// HTTP: POST /api/admin/codes/bulk-delete   BODY: {"ids": [1, 2, 3]}
func (h *AdminHandler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	h.bulk(func(r *http.Request, ids []int64) (int, error) {
		return h.batches.BulkDeleteCodes(r.Context(), ids)
	})(w, r)
}

// HandleArchive: POST /api/admin/codes/archive   BODY: {"ids": [...]}
func (h *AdminHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	h.bulk(func(r *http.Request, ids []int64) (int, error) {
		return h.batches.ArchiveCodes(r.Context(), ids)
	})(w, r)
}

// HandleMarkCopied: POST /api/admin/codes/copied   BODY: {"ids": [...]}
func (h *AdminHandler) HandleMarkCopied(w http.ResponseWriter, r *http.Request) {
	h.bulk(func(r *http.Request, ids []int64) (int, error) {
		return h.batches.MarkCopied(r.Context(), ids)
	})(w, r)
}

// HandleQR renders the code's public URL as a PNG.
//
// HTTP: GET /api/admin/codes/{code}/qr.png?size=512
func (h *AdminHandler) HandleQR(w http.ResponseWriter, r *http.Request) {
	size, err := queryInt(r, "size")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	png, err := h.batches.CodeQR(r.Context(), chi.URLParam(r, "code"), size)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.logger.Warn("writing QR image", slog.String("error", err.Error()))
	}
}

// HandleRepair resets one code if it has no profile.
//
// HTTP: POST /api/admin/codes/{id}/repair
func (h *AdminHandler) HandleRepair(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.lifecycle.RepairOrphanedCode(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleSweep runs a full reconciliation pass and reports what it fixed.
//
// HTTP: POST /api/admin/sweep
func (h *AdminHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context(), service.AllScope())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleListProfiles: GET /api/admin/profiles?limit=20&offset=0
func (h *AdminHandler) HandleListProfiles(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	listings, err := h.profiles.ListForAdmin(r.Context(), limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if listings == nil {
		listings = []model.ProfileListing{}
	}
	writeJSON(w, http.StatusOK, listings)
}
