package config

type SecurityConfig interface {
	GetJWTSecret() string
	GetJWTIssuer() string
	GetOIDCIssuer() string
	GetOIDCJWKSURL() string
	GetOIDCAudience() string
	GetAPIKeyHash() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetJWTSecret is the HS256 secret for API bearer tokens. Empty disables the check.
func (Security) GetJWTSecret() string {
	return GetEnv("JWT_SECRET", "")
}

// GetJWTIssuer is stamped into minted tokens and required on verification when set.
func (Security) GetJWTIssuer() string {
	return GetEnv("JWT_ISSUER", "")
}

func (Security) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

// GetOIDCJWKSURL defaults to the issuer's conventional JWKS location.
func (s Security) GetOIDCJWKSURL() string {
	issuer := s.GetOIDCIssuer()
	if issuer == "" {
		return GetEnv("OIDC_JWKS_URL", "")
	}
	return GetEnv("OIDC_JWKS_URL", issuer+"/.well-known/jwks.json")
}

func (Security) GetOIDCAudience() string {
	return GetEnv("OIDC_AUDIENCE", "")
}

// GetAPIKeyHash is a bcrypt hash of the key machine clients send in x-api-key.
func (Security) GetAPIKeyHash() string {
	return GetEnv("API_KEY_HASH", "")
}
