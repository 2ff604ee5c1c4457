package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/streamfs/internal/client"
	"github.com/TheMichaelB/streamfs/internal/config"
	"github.com/TheMichaelB/streamfs/internal/creds"
	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool
	assumeYes  bool

	cfg    *config.Config
	logger *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "streamfs",
	Short: "Browse and edit Inputs as a filesystem",
	Long: `streamfs presents each user's Inputs as directories holding a
markdown content file and its attachments. It can be used directly
from the command line, mounted with FUSE or served to an editor host.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default searches ./streamfs.yaml, ~/.config/streamfs)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false,
		"Answer yes to confirmation prompts")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	return cfg.EnsureDirectories()
}

// signalContext is cancelled on the first interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			if !jsonOutput {
				printWarning("\nInterrupted, cancelling...")
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func openClient(opts client.Options) (*client.Client, error) {
	if opts.Prompter == nil {
		p := client.NewTerminalPrompter(os.Stdin, os.Stderr)
		p.AssumeYes = assumeYes
		opts.Prompter = p
	}
	if opts.Progress == nil && !jsonOutput {
		opts.Progress = newProgressDisplay().Update
	}
	return client.New(cfg, logger, opts)
}

// openSession opens a client and restores the stored login.
func openSession(ctx context.Context) (*client.Client, *streamfs.UserNode, error) {
	c, err := openClient(client.Options{})
	if err != nil {
		return nil, nil, err
	}
	user, err := c.Restore(ctx)
	if err != nil {
		c.Close()
		if errors.Is(err, creds.ErrNoSession) {
			return nil, nil, fmt.Errorf("not logged in, run 'streamfs login' first")
		}
		return nil, nil, err
	}
	return c, user, nil
}

// result prints a one-line success or its JSON form.
func result(fields map[string]interface{}, format string, args ...interface{}) {
	if jsonOutput {
		fields["success"] = true
		printJSON(fields)
		return
	}
	printSuccess(format, args...)
}

// failure reports err in the selected output mode and returns it.
func failure(err error, format string, args ...interface{}) error {
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	} else {
		printError("%s: %v", fmt.Sprintf(format, args...), err)
	}
	return err
}
