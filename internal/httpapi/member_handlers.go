package httpapi

import (
	"net/http"
)

type memberLoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (a *API) handleMemberLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req memberLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	grant, principal, err := a.auth.MemberLogin(r.Context(), req.Identifier, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      grant.Token,
		"expires_at": grant.ExpiresAt,
		"member_id":  principal.Member.ID,
		"username":   principal.Username,
		"full_name":  principal.Member.FullName,
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

const forgotPasswordMessage = "if the email is registered, a reset link has been sent"

func (a *API) handleMemberForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, member, err := a.auth.MemberForgotPassword(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if token != "" && member != nil {
		_ = a.sender.SendReset(r.Context(), req.Email, token)
	}
	// Identical response whether or not the email exists.
	writeJSON(w, http.StatusOK, map[string]any{"message": forgotPasswordMessage})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleMemberResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ResetMemberPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeTokenFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password updated"})
}

type setupPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (a *API) handleMemberSetupPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req setupPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.SetupMemberPassword(r.Context(), req.Token, req.Password); err != nil {
		writeTokenFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password set"})
}

func (a *API) handleMemberProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, ok := authMemberFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	// Re-resolve so the profile reflects the row, not the login-time copy.
	profile, err := a.auth.MemberProfile(r.Context(), principal.Member.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type renewalRequest struct {
	PaymentReference string `json:"payment_reference"`
}

func (a *API) handleMemberRenewal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	principal, ok := authMemberFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req renewalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	member, err := a.auth.SubmitRenewal(r.Context(), principal.Member.ID, req.PaymentReference)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":       "renewal submitted for review",
		"member_status": member.MemberStatus,
	})
}
