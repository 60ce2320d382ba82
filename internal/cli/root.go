package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"aksara-duel-service/internal/config"
)

var (
	port       string
	configPath string
	envFile    string
)

// Execute runs the CLI. Commands stop when ctx is canceled.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	if envPort == "" {
		envPort = "8080"
	}
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "aksara-duel",
		Short:         "Real-time Javanese script duels over WebSocket",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewBotCmd(&configPath, &port))
	cmd.AddCommand(NewPracticeCmd(&configPath))
	cmd.AddCommand(NewDuelCmd(&configPath))
	cmd.AddCommand(NewTokenCmd(&configPath))
	return cmd
}
