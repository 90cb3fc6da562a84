package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
)

const adminRole = "admin"

type createUserRequest struct {
	Username *string         `json:"username"`
	Email    string          `json:"email"`
	Details  json.RawMessage `json:"details"`
}

type createGroupRequest struct {
	DisplayName string          `json:"display_name"`
	Details     json.RawMessage `json:"details"`
}

type updateDetailsRequest struct {
	Details json.RawMessage `json:"details"`
}

type addMemberRequest struct {
	UserID   string `json:"user_id"`
	RoleName string `json:"role_name"`
}

type grantRequest struct {
	PrincipalType string `json:"principal_type"`
	PrincipalID   string `json:"principal_id"`
	ScopeKind     string `json:"scope_kind"`
	ScopeID       string `json:"scope_id"`
	RoleName      string `json:"role_name"`
}

// requireAdmin answers 403 unless the caller holds the global admin role.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (identity.UserID, bool) {
	uid, ok := a.caller(w, r)
	if !ok {
		return identity.UserID{}, false
	}
	held, err := a.svc.HasGlobalRole(r.Context(), uid, adminRole)
	if err != nil {
		handleServiceError(w, r, err)
		return identity.UserID{}, false
	}
	if !held {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return identity.UserID{}, false
	}
	return uid, true
}

// principalFor resolves the grant subject from its declared type.
func principalFor(ptype, pid string) (directory.Principal, error) {
	switch strings.TrimSpace(ptype) {
	case "user":
		return identity.ParseUserID(pid)
	case "group":
		return identity.ParseGroupID(pid)
	default:
		return nil, errors.New("principal_type must be user or group")
	}
}

// Users ---------------------------------------------------------------------

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	admin, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.CreateUser(r.Context(), req.Username, req.Email, req.Details)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "user.create", map[string]any{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	admin, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	uid, err := identity.ParseUserID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed user id")
		return
	}

	switch {
	case len(parts) == 1:
		a.handleUser(w, r, admin, uid)
	case len(parts) == 2 && parts[1] == "deactivate":
		a.handleUserDeactivate(w, r, admin, uid)
	case len(parts) == 2 && parts[1] == "details":
		a.handleUserDetails(w, r, admin, uid)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, uid)
	case len(parts) == 2 && parts[1] == "audit":
		a.handleUserAudit(w, r, uid)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, admin, uid identity.UserID) {
	switch r.Method {
	case http.MethodGet:
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
	case http.MethodDelete:
		if err := a.svc.DeleteUser(r.Context(), uid); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.record(r.Context(), &admin, "user.delete", map[string]any{
			"user_id": uid.String(),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleUserDeactivate(w http.ResponseWriter, r *http.Request, admin, uid identity.UserID) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.svc.DeactivateUser(r.Context(), uid); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "user.deactivate", map[string]any{
		"user_id": uid.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserDetails(w http.ResponseWriter, r *http.Request, admin, uid identity.UserID) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req updateDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.SetUserDetails(r.Context(), uid, req.Details); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "user.details.update", map[string]any{
		"user_id": uid.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, uid identity.UserID) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	grants, err := a.svc.Roles(r.Context(), uid)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if grants == nil {
		grants = []directory.Grant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": grants})
}

func (a *API) handleUserAudit(w http.ResponseWriter, r *http.Request, uid identity.UserID) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
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

// Groups --------------------------------------------------------------------

func (a *API) handleGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	admin, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	group, err := a.svc.CreateGroup(r.Context(), req.DisplayName, req.Details)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "group.create", map[string]any{
		"group_id":     group.ID.String(),
		"display_name": group.DisplayName,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/groups/%s", group.ID))
	writeJSON(w, http.StatusCreated, group)
}

func (a *API) handleGroupResource(w http.ResponseWriter, r *http.Request) {
	admin, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/groups/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	gid, err := identity.ParseGroupID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed group id")
		return
	}

	switch {
	case len(parts) == 1:
		a.handleGroup(w, r, admin, gid)
	case len(parts) == 2 && parts[1] == "deactivate":
		a.handleGroupDeactivate(w, r, admin, gid)
	case len(parts) == 2 && parts[1] == "details":
		a.handleGroupDetails(w, r, admin, gid)
	case len(parts) == 2 && parts[1] == "members":
		a.handleGroupMembers(w, r, admin, gid)
	case len(parts) == 3 && parts[1] == "members":
		a.handleGroupMember(w, r, admin, gid, parts[2])
	case len(parts) == 2 && parts[1] == "roles":
		a.handleGroupRoles(w, r, gid)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleGroup(w http.ResponseWriter, r *http.Request, admin identity.UserID, gid identity.GroupID) {
	switch r.Method {
	case http.MethodGet:
		group, err := a.svc.GetGroup(r.Context(), gid)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if group == nil {
			writeError(w, r, http.StatusNotFound, "group not found")
			return
		}
		writeJSON(w, http.StatusOK, group)
	case http.MethodDelete:
		if err := a.svc.DeleteGroup(r.Context(), gid); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.record(r.Context(), &admin, "group.delete", map[string]any{
			"group_id": gid.String(),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleGroupDeactivate(w http.ResponseWriter, r *http.Request, admin identity.UserID, gid identity.GroupID) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.svc.DeactivateGroup(r.Context(), gid); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "group.deactivate", map[string]any{
		"group_id": gid.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGroupDetails(w http.ResponseWriter, r *http.Request, admin identity.UserID, gid identity.GroupID) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req updateDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.SetGroupDetails(r.Context(), gid, req.Details); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "group.details.update", map[string]any{
		"group_id": gid.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGroupMembers(w http.ResponseWriter, r *http.Request, admin identity.UserID, gid identity.GroupID) {
	switch r.Method {
	case http.MethodGet:
		page, err := pageFromQuery(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		members, err := a.svc.Members(r.Context(), gid, page)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if members == nil {
			members = []directory.Membership{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	case http.MethodPost:
		var req addMemberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		uid, err := identity.ParseUserID(req.UserID)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed user id")
			return
		}
		membership, err := a.svc.AddMember(r.Context(), gid, uid, req.RoleName)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.record(r.Context(), &admin, "membership.add", map[string]any{
			"group_id":  gid.String(),
			"user_id":   uid.String(),
			"role_name": membership.RoleName,
		})
		writeJSON(w, http.StatusCreated, membership)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleGroupMember(w http.ResponseWriter, r *http.Request, admin identity.UserID, gid identity.GroupID, rawUserID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	uid, err := identity.ParseUserID(rawUserID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed user id")
		return
	}
	if err := a.svc.RemoveMember(r.Context(), gid, uid); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "membership.remove", map[string]any{
		"group_id": gid.String(),
		"user_id":  uid.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGroupRoles(w http.ResponseWriter, r *http.Request, gid identity.GroupID) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	grants, err := a.svc.Roles(r.Context(), gid)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if grants == nil {
		grants = []directory.Grant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": grants})
}

// Grants --------------------------------------------------------------------

// decodeGrant parses the grant body. An empty scope pair means the global
// scope.
func decodeGrant(w http.ResponseWriter, r *http.Request) (directory.Principal, grantRequest, bool) {
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return nil, req, false
	}
	p, err := principalFor(req.PrincipalType, req.PrincipalID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return nil, req, false
	}
	if strings.TrimSpace(req.ScopeKind) == "" && strings.TrimSpace(req.ScopeID) == "" {
		req.ScopeKind = directory.GlobalScopeKind
		req.ScopeID = directory.GlobalScopeID
	}
	return p, req, true
}

func (a *API) handleGrantAllow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	admin, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	p, req, ok := decodeGrant(w, r)
	if !ok {
		return
	}
	if err := a.svc.Allow(r.Context(), p, req.ScopeKind, req.ScopeID, req.RoleName); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "grant.allow", map[string]any{
		"principal_type": req.PrincipalType,
		"principal_id":   req.PrincipalID,
		"scope_kind":     req.ScopeKind,
		"scope_id":       req.ScopeID,
		"role_name":      req.RoleName,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGrantRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	admin, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	p, req, ok := decodeGrant(w, r)
	if !ok {
		return
	}
	if err := a.svc.Revoke(r.Context(), p, req.ScopeKind, req.ScopeID, req.RoleName); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.record(r.Context(), &admin, "grant.revoke", map[string]any{
		"principal_type": req.PrincipalType,
		"principal_id":   req.PrincipalID,
		"scope_kind":     req.ScopeKind,
		"scope_id":       req.ScopeID,
		"role_name":      req.RoleName,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGrantCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	p, req, ok := decodeGrant(w, r)
	if !ok {
		return
	}
	held, err := a.svc.HasRole(r.Context(), p, req.ScopeKind, req.ScopeID, req.RoleName)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"held": held})
}
