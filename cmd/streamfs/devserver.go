package main

import (
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/streamfs/internal/server"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local Inputs API and ByteStream service",
	Long: `Devserver runs the Inputs HTTP API and the ByteStream gRPC service
against local storage, for development and tests. Point api.base_url
and bytestream.target at it.`,
	RunE: runDevserver,
}

func init() {
	rootCmd.AddCommand(devserverCmd)
}

func runDevserver(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := cfg.EnsureDevServerDirectories(); err != nil {
		return failure(err, "Prepare devserver directories failed")
	}

	srv, err := server.New(ctx, &cfg.DevServer, logger)
	if err != nil {
		return failure(err, "Start devserver failed")
	}
	if !jsonOutput {
		printInfo("Inputs API on http://%s, ByteStream on %s", cfg.DevServer.HTTPAddr, cfg.DevServer.GRPCAddr)
	}
	return srv.Run(ctx)
}
