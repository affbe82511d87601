package httpapi

import (
	"net/http"
	"time"

	"counselsoc.org/internal/audit"
	"counselsoc.org/internal/auth"
)

type adminLoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	grant, admin, err := a.auth.AdminLogin(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	a.recordActivity(r, admin.ID, "login", "Admin login", admin.Username+" signed in")
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      grant.Token,
		"expires_at": grant.ExpiresAt,
		"admin":      admin,
	})
}

func (a *API) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	principal, ok := auth.AdminFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	token, _ := auth.TokenFromContext(r.Context())
	tokenID := ""
	if token != nil {
		tokenID = token.TokenID
	}
	if err := a.auth.AdminLogout(r.Context(), principal.Admin.ID, tokenID); err != nil {
		writeServiceError(w, err)
		return
	}
	a.recordActivity(r, principal.Admin.ID, "logout", "Admin logout", principal.Admin.Username+" signed out")
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (a *API) handleAdminProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, ok := auth.AdminFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

func (a *API) handleAdminForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, admin, err := a.auth.AdminForgotPassword(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if token != "" && admin != nil {
		_ = a.sender.SendReset(r.Context(), req.Email, token)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": forgotPasswordMessage})
}

func (a *API) handleAdminResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ResetAdminPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeTokenFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password updated"})
}

// Members -------------------------------------------------------------------

type createMemberRequest struct {
	FullName    string `json:"full_name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	RenewalDate string `json:"renewal_date"`
}

func (a *API) handleMembers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listMembers(w, r)
	case http.MethodPost:
		a.createMember(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authorize(w, r, auth.ResourceMembers, auth.ActionRead); !ok {
		return
	}
	members, err := a.auth.ListMembers(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members, "count": len(members)})
}

func (a *API) createMember(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.authorize(w, r, auth.ResourceMembers, auth.ActionWrite)
	if !ok {
		return
	}
	var req createMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	renewal, err := time.Parse("2006-01-02", req.RenewalDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "renewal_date must be YYYY-MM-DD")
		return
	}
	member, setupToken, err := a.auth.CreateMember(r.Context(), auth.CreateMemberParams{
		FullName:    req.FullName,
		Username:    req.Username,
		Email:       req.Email,
		Phone:       req.Phone,
		RenewalDate: renewal,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = a.sender.SendSetup(r.Context(), req.Email, setupToken)
	a.recordAudit(r, principal.Admin.ID, audit.Entry{
		Action:     "create",
		Resource:   auth.ResourceMembers,
		ResourceID: member.ID,
		NewValues:  audit.Marshal(member),
	})
	writeJSON(w, http.StatusCreated, map[string]any{"member": member})
}

type updateMemberStatusRequest struct {
	MemberStatus      string `json:"member_status"`
	ApplicationStatus string `json:"application_status"`
}

func (a *API) handleMemberByID(w http.ResponseWriter, r *http.Request) {
	parts := pathSuffix(r.URL.Path, "/api/admin/members/")
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, auth.ResourceMembers, auth.ActionRead); !ok {
			return
		}
		profile, err := a.auth.MemberProfile(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)

	case http.MethodPatch:
		principal, ok := a.authorize(w, r, auth.ResourceMembers, auth.ActionWrite)
		if !ok {
			return
		}
		var req updateMemberStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		old, updated, err := a.auth.UpdateMemberStatus(r.Context(), id, req.MemberStatus, req.ApplicationStatus)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		a.recordAudit(r, principal.Admin.ID, audit.Entry{
			Action:     "update",
			Resource:   auth.ResourceMembers,
			ResourceID: id,
			OldValues:  audit.Marshal(old),
			NewValues:  audit.Marshal(updated),
		})
		writeJSON(w, http.StatusOK, map[string]any{"member": updated})

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch)
	}
}

// Admin accounts ------------------------------------------------------------

type createAdminRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (a *API) handleAdmins(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, auth.ResourceAdmins, auth.ActionRead); !ok {
			return
		}
		admins, err := a.auth.ListAdmins(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"admins": admins, "count": len(admins)})

	case http.MethodPost:
		principal, ok := a.authorize(w, r, auth.ResourceAdmins, auth.ActionWrite)
		if !ok {
			return
		}
		var req createAdminRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		admin, err := a.auth.CreateAdmin(r.Context(), req.Username, req.Email, req.Password, auth.Role(req.Role))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		a.recordAudit(r, principal.Admin.ID, audit.Entry{
			Action:     "create",
			Resource:   auth.ResourceAdmins,
			ResourceID: admin.ID,
			NewValues:  audit.Marshal(admin),
		})
		writeJSON(w, http.StatusCreated, map[string]any{"admin": admin})

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

type updateAdminRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

func (a *API) handleAdminByID(w http.ResponseWriter, r *http.Request) {
	parts := pathSuffix(r.URL.Path, "/api/admin/admins/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodPatch:
		a.updateAdmin(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "unlock" && r.Method == http.MethodPost:
		a.unlockAdmin(w, r, parts[0])
	case len(parts) == 1:
		methodNotAllowed(w, http.MethodPatch)
	case len(parts) == 2 && parts[1] == "unlock":
		methodNotAllowed(w, http.MethodPost)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) updateAdmin(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := a.authorize(w, r, auth.ResourceAdmins, auth.ActionWrite)
	if !ok {
		return
	}
	var req updateAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == nil && req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	old, err := a.auth.GetAdmin(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Role != nil {
		if err := a.auth.SetAdminRole(r.Context(), id, auth.Role(*req.Role)); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if req.IsActive != nil {
		if err := a.auth.SetAdminActive(r.Context(), id, *req.IsActive); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	updated, err := a.auth.GetAdmin(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	a.recordAudit(r, principal.Admin.ID, audit.Entry{
		Action:     "update",
		Resource:   auth.ResourceAdmins,
		ResourceID: id,
		OldValues:  audit.Marshal(old),
		NewValues:  audit.Marshal(updated),
	})
	writeJSON(w, http.StatusOK, map[string]any{"admin": updated})
}

func (a *API) unlockAdmin(w http.ResponseWriter, r *http.Request, id string) {
	principal, ok := a.authorize(w, r, auth.ResourceAdmins, auth.ActionWrite)
	if !ok {
		return
	}
	if err := a.auth.UnlockAdmin(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	a.recordAudit(r, principal.Admin.ID, audit.Entry{
		Action:     "unlock",
		Resource:   auth.ResourceAdmins,
		ResourceID: id,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "unlocked"})
}

// Audit listings ------------------------------------------------------------

func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, auth.ResourceAuditLog, auth.ActionRead); !ok {
		return
	}
	entries, err := a.recorder.ListEntries(r.Context(), audit.Filter{
		AdminID:  r.URL.Query().Get("admin_id"),
		Resource: r.URL.Query().Get("resource"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (a *API) handleActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, auth.ResourceActivities, auth.ActionRead); !ok {
		return
	}
	activities, err := a.recorder.ListActivities(r.Context(), audit.Filter{
		AdminID: r.URL.Query().Get("admin_id"),
		Limit:   queryInt(r, "limit", 50),
		Offset:  queryInt(r, "offset", 0),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": activities, "count": len(activities)})
}

// Audit writes are best-effort: the recorder counts drops, the business
// response is already committed.
func (a *API) recordAudit(r *http.Request, adminID string, entry audit.Entry) {
	if a.recorder == nil {
		return
	}
	entry.AdminID = adminID
	entry.IPAddress = clientIP(r)
	entry.UserAgent = r.UserAgent()
	_, _ = a.recorder.Record(r.Context(), entry)
}

func (a *API) recordActivity(r *http.Request, adminID, kind, title, message string) {
	if a.recorder == nil {
		return
	}
	_, _ = a.recorder.RecordActivity(r.Context(), audit.Activity{
		AdminID:       adminID,
		Type:          kind,
		Title:         title,
		Message:       message,
		Priority:      audit.PriorityLow,
		RelatedEntity: "admin",
		RelatedID:     adminID,
		IPAddress:     clientIP(r),
	})
}
