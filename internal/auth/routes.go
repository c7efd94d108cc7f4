package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers the authentication and account routes.
// otpLimiter guards the endpoints that send email.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware, adminMiddleware, otpLimiter Middleware) {
	// Public routes
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/login/verify-login-otp", handler.VerifyLoginOTP)
	r.Put("/password/reset/{token}", handler.ResetPassword)

	// Public routes that send email, rate limited per client IP
	r.Group(func(r chi.Router) {
		r.Use(otpLimiter)
		r.Post("/register/send-otp", handler.SendRegisterOTP)
		r.Post("/send-login-otp", handler.SendLoginOTP)
		r.Post("/password/forgot", handler.ForgotPassword)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/logout", handler.Logout)
		r.Post("/logout-all", handler.LogoutAll)
		r.Delete("/sessions/{token}", handler.DeleteSession)

		r.Get("/me", handler.Me)
		r.Get("/me/sessions", handler.ListSessions)
		r.Put("/me/update", handler.UpdatePassword)
		r.Put("/me/update-profile", handler.UpdateProfile)

		r.Group(func(r chi.Router) {
			r.Use(otpLimiter)
			r.Post("/password/update/send-otp", handler.SendPasswordUpdateOTP)
		})
		r.Post("/password/update/verify-otp", handler.VerifyPasswordUpdateOTP)
	})

	// Admin routes
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(authMiddleware, adminMiddleware)

		r.Get("/", handler.ListUsers)
		r.Get("/{id}", handler.GetUser)
		r.Put("/{id}/role", handler.UpdateUserRole)
		r.Delete("/{id}", handler.DeleteUser)
	})
}
