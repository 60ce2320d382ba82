package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aksara-duel-service/internal/client"
	"aksara-duel-service/internal/config"
	"aksara-duel-service/internal/logging"
)

// NewBotCmd connects scripted players to a running server.
func NewBotCmd(configPath, port *string) *cobra.Command {
	var (
		url      string
		token    string
		count    int
		accuracy float64
	)
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Connect scripted players that search for a match and answer every question",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format)
			defer logger.Sync()

			if url == "" {
				url = fmt.Sprintf("ws://localhost:%s/ws", *port)
			}
			return runBots(cmd.Context(), url, token, count, accuracy, logger)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "websocket endpoint (defaults to the local server)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token when the server requires one")
	cmd.Flags().IntVar(&count, "count", 1, "number of bots to run")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0.75, "share of multiple choice questions answered correctly")
	return cmd
}

func runBots(ctx context.Context, url, token string, count int, accuracy float64, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		log := logger.With(zap.Int("bot", i))
		g.Go(func() error {
			c, err := client.Dial(ctx, url, token)
			if err != nil {
				return err
			}
			defer c.Close()

			state, err := client.NewBot(c, client.WithAccuracy(accuracy), client.WithBotLogger(log)).Play(ctx)
			if err != nil {
				return err
			}
			winner := "tie"
			if state.Result != nil && state.Result.Winner != "" {
				winner = state.Result.Winner
			}
			log.Info("duel over", zap.String("room", state.RoomID), zap.String("winner", winner))
			return nil
		})
	}
	return g.Wait()
}
