package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/service"
)

// ProfileHandler serves the signed-in user's side of the product: claiming a
// code, the dashboard, and editing or deleting their profiles.
//
// DEPENDENCY CHAIN:
//   - lifecycle *service.Lifecycle      → claim and delete (code state changes)
//   - profiles  *service.ProfileService → reads, edits, images, stats
type ProfileHandler struct {
	lifecycle *service.Lifecycle
	profiles  *service.ProfileService
	logger    *slog.Logger
}

func NewProfileHandler(lifecycle *service.Lifecycle, profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		lifecycle: lifecycle,
		profiles:  profiles,
		logger:    logger,
	}
}

// HandleClaim binds a code to the caller and creates its profile.
//
// HTTP: POST /api/claim/{code}
// REQUEST BODY: {"firstName": "Ada", "lastName": "Lovelace", "email": "..."}
func (h *ProfileHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var attrs model.ProfileAttrs
	if err := decodeJSON(w, r, &attrs); err != nil {
		writeError(w, h.logger, err)
		return
	}

	who := requester(r)
	p, err := h.lifecycle.Claim(r.Context(), chi.URLParam(r, "code"), who.UserID, attrs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleDashboard lists the caller's profiles with their codes and visit
// counts.
//
// HTTP: GET /api/dashboard?limit=20&offset=0
func (h *ProfileHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	listings, err := h.profiles.Dashboard(r.Context(), requester(r).UserID, limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if listings == nil {
		listings = []model.ProfileListing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

// HandlePublic is the anonymous read of a public profile.
//
// HTTP: GET /api/p/{slug}
func (h *ProfileHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleGet: GET /api/profiles/{id}
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.profiles.Get(r.Context(), id, requester(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdate applies a partial edit. Absent fields are left alone.
//
// HTTP: PATCH /api/profiles/{id}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var upd model.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.profiles.Update(r.Context(), id, requester(r), upd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDelete deletes the profile and frees its code.
//
// HTTP: DELETE /api/profiles/{id} → 204 No Content
func (h *ProfileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.lifecycle.DeleteProfile(r.Context(), id, requester(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImage stores an avatar or banner. The body is the raw image and
// Content-Type says what it is.
//
// HTTP: POST /api/profiles/{id}/images/{kind}   (kind = avatar | banner)
func (h *ProfileHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// one byte over the limit is enough for the service to reject it
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, service.MaxImageBytes+1))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, h.logger, apperror.ValidationFailed("image", "image must be 5 MB or smaller"))
			return
		}
		writeError(w, h.logger, apperror.ValidationFailed("image", "could not read image"))
		return
	}

	p, err := h.profiles.SetImage(r.Context(), id, requester(r), chi.URLParam(r, "kind"), r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleStats: GET /api/profiles/{id}/stats
func (h *ProfileHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	stats, err := h.profiles.Stats(r.Context(), id, requester(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
