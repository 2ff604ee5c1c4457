package main

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/streamfs/internal/hostapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the filesystem to an editor host",
	Long: `Serve exposes the filesystem over HTTP/JSON and streams change
events on a websocket at /fs/watch.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	addr := cfg.Serve.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Serve failed")
	}
	defer c.Close()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return failure(err, "Listen on %s failed", addr)
	}
	if !jsonOutput {
		printInfo("Serving on http://%s", lis.Addr())
	}
	return hostapi.NewHandler(c.FS, logger).Serve(ctx, lis)
}
