package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteStatus = "/status"

	// Agent API routes
	RouteAPICreateConnection    = "/api/create-connection"
	RouteAPIConnection          = "/api/connection/{invitationId}"
	RouteAPIIssueCredential     = "/api/issue-credential"
	RouteAPIMakePhoneCall       = "/api/make-phone-call"
	RouteAPIUpdateCallSession   = "/api/update-call-session"
	RouteAPISendProofDuringCall = "/api/send-proofreq-during-call"
	RouteAPICredentialInfo      = "/api/get-credential-info/{phone_number}"
	RouteAPIVAIStatus           = "/api/get-vai-status/{phone_number}"
	RouteAPIVerificationHistory = "/api/verification-history/{phone_number}"

	// Cloud wallet routes
	RouteWalletCreate           = "/wallet/create"
	RouteWalletConnections      = "/wallet/connections"
	RouteWalletAcceptConnection = "/wallet/connections/accept"
	RouteWalletSendProofRequest = "/wallet/proof/send-request"
	RouteWalletProofStatus      = "/wallet/proof/status"
	RouteWalletStatus           = "/wallet/status"
)
