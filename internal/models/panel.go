package models

// Panel is a tenant/application context with its own authentication
// configuration. Panels are plain values passed explicitly into every
// orchestrator and driver call; there is no ambient "current panel".
type Panel struct {
	Name                       string
	TwoFactorEnabled           bool     // panel supports second-factor gating
	SocialProviders            []string // enabled OAuth providers
	RequirePasswordAfterSocial bool     // route passwordless social users to set-password
	RegistrationOTP            bool     // require an emailed OTP to finish registration
	LoginField                 string   // user attribute matched by the password method
}

// SupportsProvider reports whether the given OAuth provider is enabled for
// this panel.
func (p Panel) SupportsProvider(provider string) bool {
	for _, name := range p.SocialProviders {
		if name == provider {
			return true
		}
	}
	return false
}
