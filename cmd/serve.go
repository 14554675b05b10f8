package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-cli/internal/server"
	"github.com/sells-group/parcel-cli/internal/session"
	"github.com/sells-group/parcel-cli/pkg/appraisal"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search API",
	Long:  "Serves federated search over HTTP. Results stream as Server-Sent Events; a new search by the same consumer cancels the previous one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		noHistory, _ := cmd.Flags().GetBool("no-history")
		env, err := initSearchEnv(ctx, cfg, !noHistory)
		if err != nil {
			return err
		}
		defer env.Close()

		port := cfg.Server.Port
		if servePort > 0 {
			port = servePort
		}

		deps := server.Deps{
			Catalog:  env.Catalog,
			Manager:  session.NewManager(env.Catalog, env.Dispatcher, session.WithMetrics(env.Metrics)),
			Store:    env.Store,
			Breakers: env.Breakers,
			Gatherer: env.Registry,
			Details:  appraisal.NewClient(appraisal.WithUserAgent(cfg.Search.UserAgent)),
		}

		srv := server.New(deps, server.Options{
			Port:            port,
			RateLimitPerMin: cfg.Server.RateLimitPerMin,
			CORSOrigins:     cfg.Server.CORSOrigins,
			TaxYear:         cfg.Search.TaxYear,
		})
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (default from server.port)")
	serveCmd.Flags().Bool("no-history", false, "do not record searches in history")
	rootCmd.AddCommand(serveCmd)
}
