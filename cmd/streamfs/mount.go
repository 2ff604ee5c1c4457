package main

import (
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/streamfs/internal/fusefs"
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the filesystem with FUSE",
	Long: `Mount serves the filesystem at a local directory until interrupted.
Changes are written through on close of each file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)

	mountCmd.Flags().Bool("allow-other", false,
		"Let other users access the mount (needs user_allow_other)")
}

func runMount(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	mountCfg := cfg.Mount
	if len(args) == 1 {
		mountCfg.Mountpoint = args[0]
	}
	if cmd.Flags().Changed("allow-other") {
		mountCfg.AllowOther, _ = cmd.Flags().GetBool("allow-other")
	}

	c, _, err := openSession(ctx)
	if err != nil {
		return failure(err, "Mount failed")
	}
	defer c.Close()

	server, err := fusefs.Mount(ctx, c.FS, mountCfg, logger)
	if err != nil {
		return failure(err, "Mount failed")
	}
	if !jsonOutput {
		printInfo("Mounted at %s, press Ctrl+C to unmount", mountCfg.Mountpoint)
	}

	server.Wait()
	result(map[string]interface{}{"mountpoint": mountCfg.Mountpoint}, "Unmounted %s", mountCfg.Mountpoint)
	return nil
}
