package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/jrsteele09/vai-agent-server/bland"
	"github.com/jrsteele09/vai-agent-server/cheqd"
	"github.com/jrsteele09/vai-agent-server/hovi"
	"github.com/jrsteele09/vai-agent-server/internal/config"
	"github.com/jrsteele09/vai-agent-server/server"
	"github.com/jrsteele09/vai-agent-server/sessions/redisrepo"
	"github.com/jrsteele09/vai-agent-server/verification"
	"github.com/jrsteele09/vai-agent-server/wallet"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the proof reconciliation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.New()
	displayAppname(cfg.GetAppName())

	sessionRepo, err := openSessionRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQuietly("session store", sessionRepo.Close)

	ledger, err := audit.Open(cfg.GetAuditDBPath())
	if err != nil {
		return err
	}
	defer closeQuietly("audit ledger", ledger.Close)

	verifierClient := hovi.New(hoviOptions(cfg, cfg.GetTenantID()))
	agentClient := hovi.New(hoviOptions(cfg, cfg.GetAgentTenantID()))
	resolver := cheqd.NewResolver(cfg.GetCheqdAPIURL(), cfg.GetCheqdAPIKey(), nil)

	verifier := verification.NewCallVerifier(sessionRepo, verifierClient, resolver, ledger, verification.CallVerifierOptions{
		PollInterval: cfg.GetProofPollInterval(),
		Timeout:      cfg.GetProofPollTimeout(),
		SessionTTL:   cfg.GetSessionTTL(),
	})
	poller := verification.NewPoller(sessionRepo, agentClient, ledger, cfg.GetReconcileInterval())

	handler, err := server.New(cfg, server.Services{
		Sessions:    sessionRepo,
		Verifier:    verifier,
		Connections: verifierClient,
		Calls: bland.New(bland.Options{
			BaseURL:    cfg.GetBlandAPIURL(),
			APIKey:     cfg.GetBlandAPIKey(),
			PathwayID:  cfg.GetBlandPathway(),
			FromNumber: cfg.GetBlandFromNumber(),
			Voice:      cfg.GetBlandVoice(),
		}),
		Wallet: wallet.New(cfg.GetWalletAPIURL(), nil),
		Audit:  ledger,
	})
	if err != nil {
		return err
	}

	pollCtx, stopPoller := context.WithCancel(ctx)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		_ = poller.Run(pollCtx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		returnError = err
	case <-waitForStopSignal(ctx):
		returnError = shutdown(httpServer)
	}

	stopPoller()
	<-pollerDone
	log.Info().Msg("Server stopped")
	return returnError
}

func openSessionRepo(ctx context.Context, cfg config.Config) (*redisrepo.RedisSessionRepo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return redisrepo.New(connectCtx, redisrepo.Options{
		Host:         cfg.GetRedisHost(),
		Port:         cfg.GetRedisPort(),
		Password:     cfg.GetRedisPassword(),
		TLS:          cfg.GetRedisTLS(),
		FlushAllowed: cfg.GetEnv() != config.EnvProduction,
	})
}

func hoviOptions(cfg config.Config, tenantID string) hovi.Options {
	return hovi.Options{
		BaseURL:                cfg.GetHoviAPIEndpoint(),
		APIKey:                 cfg.GetHoviAPIKey(),
		TenantID:               tenantID,
		CredentialTemplateID:   cfg.GetCredentialTemplateID(),
		VerificationTemplateID: cfg.GetVerificationTemplateID(),
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)
		select {
		case <-stop:
		case <-ctx.Done():
		}
		close(stopped)
	}()
	return stopped
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func closeQuietly(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn().Err(err).Str("resource", name).Msg("Close failed")
	}
}
