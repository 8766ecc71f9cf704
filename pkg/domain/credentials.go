package domain

// Credentials is the auth request body. A nil Credentials means
// "re-authenticate as whoever we were".
type Credentials struct {
	UserName   string `json:"user_name,omitempty"`
	Anonymous  bool   `json:"anonymous_user,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
}

// AnonymousCredentials requests anonymous device registration.
func AnonymousCredentials() *Credentials {
	return &Credentials{Anonymous: true}
}
