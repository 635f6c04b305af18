package config

import "time"

type PollConfig interface {
	GetProofPollInterval() time.Duration
	GetProofPollTimeout() time.Duration
	GetReconcileInterval() time.Duration
	GetSessionTTL() time.Duration
}

type Poll struct{}

var _ PollConfig = Poll{}

func (Poll) GetProofPollInterval() time.Duration {
	return GetDurationEnv("PROOF_POLL_INTERVAL", 2*time.Second)
}

func (Poll) GetProofPollTimeout() time.Duration {
	return GetDurationEnv("PROOF_POLL_TIMEOUT", 120*time.Second)
}

func (Poll) GetReconcileInterval() time.Duration {
	return GetDurationEnv("RECONCILE_INTERVAL", 5*time.Second)
}

func (Poll) GetSessionTTL() time.Duration {
	return GetDurationEnv("SESSION_TTL", 300*time.Second) // 5 minutes
}
