package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/tapcard/internal/service"
)

// AccountHandler exposes user accounts: who am I, and (for admins) creating
// an account and handing back its token.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.Me(r.Context(), requester(r).UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleCreateUser creates an account and returns it with a token.
//
// HTTP: POST /api/admin/users
// REQUEST BODY: {"email": "ada@example.com", "name": "Ada", "role": "user"}
func (h *AccountHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.NewAccount
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
