package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/becomeliminal/nim-recall/server"
)

func serveCommand() *cli.Command {
	var (
		cfg      config
		addr     string
		grpcAddr string
		origins  []string
		askRate  float64
		askBurst int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP listen address",
			Value:       ":8000",
			Sources:     cli.EnvVars("NIM_RECALL_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "grpc-addr",
			Usage:       "gRPC health listen address, empty disables it",
			Sources:     cli.EnvVars("NIM_RECALL_GRPC_ADDR"),
			Destination: &grpcAddr,
		},
		&cli.StringSliceFlag{
			Name:        "cors-origin",
			Usage:       "Allowed browser origin, repeatable; '*' allows any",
			Value:       server.DefaultAllowedOrigins,
			Sources:     cli.EnvVars("NIM_RECALL_CORS_ORIGINS"),
			Destination: &origins,
		},
		&cli.FloatFlag{
			Name:        "ask-rate",
			Usage:       "Questions per second across all clients, 0 disables the limit",
			Value:       2,
			Sources:     cli.EnvVars("NIM_RECALL_ASK_RATE"),
			Destination: &askRate,
		},
		&cli.IntFlag{
			Name:        "ask-burst",
			Usage:       "Maximum burst of questions",
			Value:       5,
			Sources:     cli.EnvVars("NIM_RECALL_ASK_BURST"),
			Destination: &askBurst,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, embedderFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP and WebSocket API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr, breaker, cleanup, err := cfg.newManager(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			srv, err := server.New(server.Config{
				Manager:        mgr,
				Addr:           addr,
				GRPCAddr:       grpcAddr,
				AllowedOrigins: origins,
				AskRate:        askRate,
				AskBurst:       int(askBurst),
				LLMStatus:      breaker.State,
			})
			if err != nil {
				return err
			}

			return srv.Run(ctx)
		},
	}
}
