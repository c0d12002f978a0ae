package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/marenbeck/gatehouse/internal/handlers"
	"github.com/marenbeck/gatehouse/internal/middleware"
	"github.com/marenbeck/gatehouse/internal/session"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	registrationHandler *handlers.RegistrationHandler,
	passwordlessHandler *handlers.PasswordlessHandler,
	socialHandler *handlers.SocialHandler,
	passkeyHandler *handlers.PasskeyHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	apiTokenHandler *handlers.APITokenHandler,
	sessions session.Store,
) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	sendLimit := middleware.RateLimitByIP(middleware.DefaultSendRateLimit())

	// Public routes - credential-bearing, tightly rate limited
	router.With(authLimit).Post("/auth/login", authHandler.Login)
	router.With(authLimit).Post("/auth/two-factor/verify", authHandler.VerifyTwoFactor)
	router.With(authLimit).Post("/auth/two-factor/recovery", authHandler.VerifyRecoveryCode)
	router.With(sendLimit).Post("/auth/two-factor/resend", authHandler.ResendTwoFactor)
	router.Post("/auth/two-factor/cancel", authHandler.CancelTwoFactor)

	router.With(authLimit).Post("/auth/register", registrationHandler.Register)
	router.With(authLimit).Post("/auth/register/verify", registrationHandler.Verify)
	router.With(sendLimit).Post("/auth/register/resend", registrationHandler.ResendVerification)

	router.With(sendLimit).Post("/auth/magic-link", passwordlessHandler.RequestMagicLink)
	router.With(authLimit).Get("/auth/magic-link/consume", authHandler.ConsumeMagicLink)
	router.With(sendLimit).Post("/auth/otp", passwordlessHandler.RequestLoginOTP)

	router.With(sendLimit).Post("/auth/password/forgot", passwordlessHandler.ForgotPassword)
	router.With(authLimit).Post("/auth/password/reset", passwordlessHandler.ResetPassword)

	router.Get("/auth/social/{provider}/redirect", socialHandler.Redirect)
	router.With(authLimit).Get("/auth/social/{provider}/callback", socialHandler.Callback)

	router.With(authLimit).Post("/auth/passkeys/assert/options", passkeyHandler.AssertOptions)
	router.With(authLimit).Post("/auth/passkeys/assert/verify", passkeyHandler.AssertVerify)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(sessions))

		r.Post("/auth/logout", authHandler.Logout)

		r.Get("/auth/two-factor/methods", twoFactorHandler.ListMethods)
		r.Post("/auth/two-factor/enable", twoFactorHandler.Enable)
		r.Post("/auth/two-factor/confirm", twoFactorHandler.Confirm)
		r.Post("/auth/two-factor/disable", twoFactorHandler.Disable)

		r.Post("/auth/passkeys/register/options", passkeyHandler.RegisterOptions)
		r.Post("/auth/passkeys/register/verify", passkeyHandler.RegisterVerify)
		r.Get("/auth/passkeys", passkeyHandler.List)
		r.Patch("/auth/passkeys/{credentialID}", passkeyHandler.Rename)
		r.Delete("/auth/passkeys/{credentialID}", passkeyHandler.Delete)

		r.Post("/auth/tokens", apiTokenHandler.Create)
		r.Get("/auth/tokens", apiTokenHandler.List)
		r.Delete("/auth/tokens/{tokenID}", apiTokenHandler.Revoke)
	})
}
