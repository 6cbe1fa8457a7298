package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/witanlabs/witan-assist/server"
)

var (
	serveAddr  string
	serveDelay time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the keyword classifier as an HTTP and WebSocket service",
	Long: `Serve the built-in keyword rules so other clients can classify over the network.

Endpoints:
  POST /analyze   {"message": "..."} -> {"action": "...", "description": "..."}
  GET  /ws        WebSocket, one JSON request frame per reply
  GET  /healthz
  GET  /metrics   Prometheus

--delay holds every answer, which is useful for exercising cancellation and
superseded requests in clients.

Examples:
  witan-assist serve --addr :3001
  witan-assist serve --delay 2s --locale zh-CN`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":3001", "Listen address (env: WITAN_ASSIST_ADDR)")
	serveCmd.Flags().DurationVar(&serveDelay, "delay", 0, "Artificial latency added to every answer (env: WITAN_ASSIST_DELAY)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	s, err := resolveSettings()
	if err != nil {
		return err
	}
	logger := slog.Default()
	srv := server.New(
		server.WithLogger(logger),
		server.WithDelay(serveDelay),
		server.WithLocale(s.Locale),
	)
	return srv.ListenAndServe(cmd.Context(), serveAddr)
}
