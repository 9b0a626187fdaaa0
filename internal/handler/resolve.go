package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tapcard/internal/service"
	"github.com/sakif/tapcard/internal/visitor"
)

// ResolveHandler is where a tapped card or scanned QR code lands.
type ResolveHandler struct {
	resolver *service.Resolver
	logger   *slog.Logger
}

func NewResolveHandler(resolver *service.Resolver, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{resolver: resolver, logger: logger}
}

// resolveResponse is the JSON answer for API clients.
type resolveResponse struct {
	service.Resolution
	Redirect string `json:"redirect"`
}

// HandleResolve sends browsers to the profile page or the claim page with a
// 302. Clients asking for application/json get the decision as JSON instead.
//
// HTTP: GET /c/{code}
func (h *ResolveHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "code"), visitor.FromRequest(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	target := "/claim/" + url.PathEscape(res.Code)
	if res.Kind == service.ResolveProfile {
		target = "/p/" + url.PathEscape(res.Profile.Slug)
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, resolveResponse{Resolution: *res, Redirect: target})
		return
	}
	// visit counts depend on every tap reaching us
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
