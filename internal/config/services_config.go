package config

type HoviConfig interface {
	GetHoviAPIEndpoint() string
	GetHoviAPIKey() string
	GetTenantID() string
	GetAgentTenantID() string
	GetCredentialTemplateID() string
	GetVerificationTemplateID() string
}

type BlandConfig interface {
	GetBlandAPIURL() string
	GetBlandAPIKey() string
	GetBlandPathway() string
	GetBlandFromNumber() string
	GetBlandVoice() string
}

type WalletConfig interface {
	GetWalletAPIURL() string
}

type CheqdConfig interface {
	GetCheqdAPIURL() string
	GetCheqdAPIKey() string
}

// Services holds the endpoints and credentials of the third party APIs.
type Services struct{}

var (
	_ HoviConfig   = Services{}
	_ BlandConfig  = Services{}
	_ WalletConfig = Services{}
	_ CheqdConfig  = Services{}
)

func (Services) GetHoviAPIEndpoint() string {
	return GetEnv("API_ENDPOINT", "")
}

func (Services) GetHoviAPIKey() string {
	return GetEnv("HOVI_API_KEY", "")
}

func (Services) GetTenantID() string {
	return GetEnv("TENANT_ID", "")
}

// GetAgentTenantID is the tenant the AI agent holds credentials under. Falls back to TENANT_ID.
func (s Services) GetAgentTenantID() string {
	return GetEnv("AGENT_TENANT_ID", s.GetTenantID())
}

func (Services) GetCredentialTemplateID() string {
	return GetEnv("CREDENTIAL_TEMPLATE_ID", "")
}

func (Services) GetVerificationTemplateID() string {
	return GetEnv("VERIFICATION_TEMPLATE_ID", "")
}

func (Services) GetBlandAPIURL() string {
	return GetEnv("BLAND_AI_URL", "https://api.bland.ai")
}

func (Services) GetBlandAPIKey() string {
	return GetEnv("BLAND_AI_API_KEY", "")
}

func (Services) GetBlandPathway() string {
	return GetEnv("BLAND_AI_PATHWAY", "")
}

func (Services) GetBlandFromNumber() string {
	return GetEnv("BLAND_AI_FROM", "+14159808590")
}

func (Services) GetBlandVoice() string {
	return GetEnv("BLAND_AI_VOICE", "pryce")
}

func (Services) GetWalletAPIURL() string {
	return GetEnv("WALLET_API_URL", "https://hackathon-cloud-wallet-api.koyeb.app")
}

func (Services) GetCheqdAPIURL() string {
	return GetEnv("CHEQD_API_URL", "https://studio-api.cheqd.net")
}

func (Services) GetCheqdAPIKey() string {
	return GetEnv("CHEQD_API_KEY", "")
}
