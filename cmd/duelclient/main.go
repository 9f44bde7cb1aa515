// Command duelclient is an interactive terminal client for quiz duels.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/w1sec0d/courseclash-duels/internal/config"
	"github.com/w1sec0d/courseclash-duels/internal/logging"
	"github.com/w1sec0d/courseclash-duels/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:          "duelclient",
		Short:        "Challenge other players and answer quiz duels from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			conf, err := config.Decode(v)
			if err != nil {
				return err
			}
			return run(cmd, conf)
		},
	}

	f := cmd.Flags()
	f.StringVar(&envFile, "env-file", ".env", "optional .env file")
	f.String("user", "", "your user id (COURSECLASH_USER_ID)")
	f.String("token", "", "bearer token for the gateway (COURSECLASH_AUTH_TOKEN)")
	f.String("graphql-url", "", "gateway GraphQL endpoint (COURSECLASH_GRAPHQL_URL)")
	f.String("ws-url", "", "duel service websocket base (COURSECLASH_WS_BASE_URL)")
	f.Bool("debug", false, "verbose logging")
	return cmd
}

// bindFlags lets flags that were set on the command line override env and
// defaults.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for key, flag := range map[string]string{
		"user_id":     "user",
		"auth_token":  "token",
		"graphql_url": "graphql-url",
		"ws_base_url": "ws-url",
		"debug":       "debug",
	} {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

func run(cmd *cobra.Command, conf config.Settings) error {
	log, err := logging.Quiet(conf.Debug)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := session.FromSettings(conf)
	opts.Logger = log
	s, err := session.Start(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s; type help for commands\n", s.UserID)
	return newCLI(s, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
}
