package httpapi

import (
	"net/http"

	"scopeauth.org/internal/authn"
	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
)

type leaveGroupRequest struct {
	GroupID string `json:"group_id"`
}

// caller extracts the authenticated user, answering 401 when absent.
func (a *API) caller(w http.ResponseWriter, r *http.Request) (identity.UserID, bool) {
	uid, ok := authn.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	}
	return uid, ok
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	uid, ok := a.caller(w, r)
	if !ok {
		return
	}
	user, err := a.svc.GetUser(r.Context(), uid)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleMeGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	uid, ok := a.caller(w, r)
	if !ok {
		return
	}
	groups, err := a.svc.GroupsForUser(r.Context(), uid)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if groups == nil {
		groups = []directory.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (a *API) handleMeRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	uid, ok := a.caller(w, r)
	if !ok {
		return
	}
	roles, err := a.svc.GlobalRoles(r.Context(), uid)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleMeAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	uid, ok := a.caller(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.svc.AuditEventsFor(r.Context(), uid, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []directory.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func (a *API) handleMeDeactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	uid, ok := a.caller(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeactivateUser(r.Context(), uid); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &uid, "user.deactivate", map[string]any{
		"user_id": uid.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMeLeave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	uid, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req leaveGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	gid, err := identity.ParseGroupID(req.GroupID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed group id")
		return
	}
	if err := a.svc.RemoveMember(r.Context(), gid, uid); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &uid, "membership.leave", map[string]any{
		"group_id": gid.String(),
		"user_id":  uid.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}
