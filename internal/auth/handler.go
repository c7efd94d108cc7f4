package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tinytulsi/mart-backend/internal/api"
	appctx "github.com/tinytulsi/mart-backend/internal/context"
	"github.com/tinytulsi/mart-backend/internal/repository"
)

// SessionCookieName is the cookie carrying the signed session token
const SessionCookieName = "token"

// Handler serves the authentication and account HTTP surface
type Handler struct {
	svc          *Service
	validate     *validator.Validate
	cookieSecure bool
}

// NewHandler creates a Handler
func NewHandler(svc *Service, cookieSecure bool) *Handler {
	return &Handler{
		svc:          svc,
		validate:     validator.New(),
		cookieSecure: cookieSecure,
	}
}

func (h *Handler) clientInfo(r *http.Request) ClientInfo {
	return ClientInfo{IP: api.ClientIP(r), UserAgent: r.UserAgent()}
}

// decodeAndValidate parses the JSON body into req and runs struct validation.
// On failure it writes the error response and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		details := make(map[string][]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = append(details[fe.Field()], "failed on "+fe.Tag())
			}
		}
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return false
	}
	return true
}

// setSessionCookie attaches the signed token as an HTTP-only cookie
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie
func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// currentUser loads the authenticated user placed in the context by the auth
// middleware. Writes the error response and returns nil on failure.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) *repository.User {
	idStr, ok := appctx.ExtractUserID(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return nil
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return nil
	}
	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			api.WriteError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid or expired token", nil)
			return nil
		}
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
		return nil
	}
	return user
}

// writeServiceError maps service sentinels onto HTTP responses
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var weak *WeakPasswordError
	switch {
	case errors.As(err, &weak):
		details := make(map[string][]string)
		for _, v := range weak.Violations {
			details[v.Field] = append(details[v.Field], v.Message)
		}
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Password does not meet the strength requirements", details)
	case errors.Is(err, ErrPasswordMismatch):
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Passwords do not match", nil)
	case errors.Is(err, ErrPasswordReused):
		api.WriteError(w, http.StatusBadRequest, CodePasswordReused, "New password must not match any recently used password", nil)
	case errors.Is(err, ErrEmailExists):
		api.WriteError(w, http.StatusConflict, CodeEmailExists, "An account with this email already exists", nil)
	case errors.Is(err, ErrInvalidCredentials):
		api.WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password", nil)
	case errors.Is(err, ErrAccountLocked):
		api.WriteError(w, http.StatusForbidden, CodeAccountLocked, "Account is locked due to too many failed login attempts", nil)
	case errors.Is(err, ErrOTPInvalid):
		api.WriteError(w, http.StatusUnauthorized, CodeOTPInvalid, "Invalid or expired OTP", nil)
	case errors.Is(err, ErrResetTokenInvalid):
		api.WriteError(w, http.StatusBadRequest, CodeResetTokenInvalid, "Invalid or expired reset token", nil)
	case errors.Is(err, ErrDeviceIDRequired):
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "deviceId is required", nil)
	case errors.Is(err, ErrInvalidAvatar):
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Avatar must be a png, jpeg or webp image within the size limit", nil)
	case errors.Is(err, ErrUserNotFound):
		api.WriteError(w, http.StatusNotFound, CodeNotFound, "User not found", nil)
	default:
		api.WriteError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
	}
}

// Register handles POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	client := h.clientInfo(r)
	user, err := h.svc.Register(r.Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   req.Avatar,
		OTP:      req.OTP,
	}, client)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	token, err := h.svc.IssueSession(r.Context(), user, client)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setSessionCookie(w, token)
	resp := NewUserResponse(user)
	api.WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"token": token,
		"user":  resp,
	})
}

// SendRegisterOTP handles POST /register/send-otp
func (h *Handler) SendRegisterOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.SendRegisterOTP(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

// Login handles POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password, req.DeviceID, h.clientInfo(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if result.RequiresOTP {
		api.WriteSuccess(w, http.StatusOK, LoginResponse{RequiresOTP: true})
		return
	}

	h.setSessionCookie(w, result.Token)
	user := NewUserResponse(result.User)
	api.WriteSuccess(w, http.StatusOK, LoginResponse{
		RequiresOTP: false,
		Token:       result.Token,
		User:        &user,
	})
}

// SendLoginOTP handles POST /send-login-otp
func (h *Handler) SendLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.SendLoginOTP(r.Context(), req.Email); err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

// VerifyLoginOTP handles POST /login/verify-login-otp
func (h *Handler) VerifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyLoginOTPRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.VerifyLoginOTP(r.Context(), req.Email, req.OTP, req.DeviceID, h.clientInfo(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	user := NewUserResponse(result.User)
	api.WriteSuccess(w, http.StatusOK, LoginResponse{
		RequiresOTP: false,
		Token:       result.Token,
		User:        &user,
	})
}

// Logout handles GET /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	token, _ := appctx.ExtractSessionToken(r.Context())

	if err := h.svc.Logout(r.Context(), user, token, h.clientInfo(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.clearSessionCookie(w)
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// LogoutAll handles POST /logout-all
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	if err := h.svc.LogoutAll(r.Context(), user, h.clientInfo(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.clearSessionCookie(w)
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Logged out of all sessions"})
}

// DeleteSession handles DELETE /sessions/{token}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	stored := chi.URLParam(r, "token")

	if err := h.svc.LogoutSession(r.Context(), user, stored, h.clientInfo(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Session revoked"})
}

// ListSessions handles GET /me/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	token, _ := appctx.ExtractSessionToken(r.Context())

	sessions, err := h.svc.ListSessions(r.Context(), user, token)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Me handles GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"user": NewUserResponse(user)})
}

// UpdateProfile handles PUT /me/update-profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req UpdateProfileRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.svc.UpdateProfile(r.Context(), user, UpdateProfileInput{
		Name:   req.Name,
		Email:  req.Email,
		Avatar: req.Avatar,
	}, h.clientInfo(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"user": NewUserResponse(updated)})
}

// ForgotPassword handles POST /password/forgot
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email, h.clientInfo(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "Password reset email sent"})
}

// ResetPassword handles PUT /password/reset/{token}
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, token, err := h.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, req.PasswordConfirm, h.clientInfo(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setSessionCookie(w, token)
	userResp := NewUserResponse(user)
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  userResp,
	})
}

// UpdatePassword handles PUT /me/update
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req UpdatePasswordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.svc.UpdatePassword(r.Context(), user, req.OldPassword, req.NewPassword, req.PasswordConfirm, h.clientInfo(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setSessionCookie(w, token)
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Password updated",
		"token":   token,
	})
}

// SendPasswordUpdateOTP handles POST /password/update/send-otp
func (h *Handler) SendPasswordUpdateOTP(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	if err := h.svc.SendPasswordUpdateOTP(r.Context(), user); err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

// VerifyPasswordUpdateOTP handles POST /password/update/verify-otp
func (h *Handler) VerifyPasswordUpdateOTP(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req VerifyPasswordOTPRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.svc.VerifyPasswordUpdateOTP(r.Context(), user, req.OTP, req.OldPassword, req.NewPassword, req.PasswordConfirm, h.clientInfo(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.setSessionCookie(w, token)
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "Password updated",
		"token":   token,
	})
}

// ListUsers handles GET /admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, NewUserResponse(u))
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"users": resp})
}

// GetUser handles GET /admin/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid user id", nil)
		return
	}

	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"user": NewUserResponse(user)})
}

// UpdateUserRole handles PUT /admin/users/{id}/role
func (h *Handler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	admin := h.currentUser(w, r)
	if admin == nil {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid user id", nil)
		return
	}

	var req UpdateRoleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.svc.UpdateUserRole(r.Context(), admin.ID, id, req.Role, h.clientInfo(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{"user": NewUserResponse(updated)})
}

// DeleteUser handles DELETE /admin/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	admin := h.currentUser(w, r)
	if admin == nil {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, CodeValidationError, "Invalid user id", nil)
		return
	}

	if err := h.svc.DeleteUser(r.Context(), admin.ID, id, h.clientInfo(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]string{"message": "User deleted"})
}
