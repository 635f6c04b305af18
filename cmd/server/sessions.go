package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/vai-agent-server/internal/config"
	"github.com/jrsteele09/vai-agent-server/internal/cryptoutil"
	"github.com/jrsteele09/vai-agent-server/token"
	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect or clear call sessions in redis",
	}
	cmd.AddCommand(sessionsGetCmd())
	cmd.AddCommand(sessionsFlushCmd())
	return cmd
}

func sessionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [phone_number]",
		Short: "Print the session held for a phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openSessionRepo(cmd.Context(), config.New())
			if err != nil {
				return err
			}
			defer closeQuietly("session store", repo.Close)

			record, err := repo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(record)
		},
	}
}

func sessionsFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete every session key (refused in production)",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openSessionRepo(cmd.Context(), config.New())
			if err != nil {
				return err
			}
			defer closeQuietly("session store", repo.Close)

			removed, err := repo.Flush(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d keys\n", removed)
			return nil
		},
	}
}

// hashKeyCmd prints the bcrypt hash to configure as API_KEY_HASH.
func hashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [api_key]",
		Short: "Hash an API key for the API_KEY_HASH setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := cryptoutil.HashString(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func issueTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue-token [subject]",
		Short: "Mint a bearer token for the agent API signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New()
			raw, err := token.NewHMACSigner(cfg.GetJWTSecret(), cfg.GetJWTIssuer()).Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
