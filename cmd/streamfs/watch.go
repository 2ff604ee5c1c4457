package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/streamfs/internal/hostapi"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/transport"
)

var watchCmd = &cobra.Command{
	Use:   "watch [url]",
	Short: "Print change events from a running 'streamfs serve'",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	url := "http://" + cfg.Serve.Addr + hostapi.RouteWatch
	if len(args) == 1 {
		url = args[0]
	}

	wc := transport.NewWatchClient(url, "", logger)
	if err := wc.Connect(ctx); err != nil {
		return failure(err, "Watch failed")
	}
	defer wc.Close()

	errs := wc.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return failure(err, "Watch failed")
		case batch, ok := <-wc.Batches():
			if !ok {
				return nil
			}
			printBatch(batch)
		}
	}
}

func printBatch(batch []models.ChangeEvent) {
	if jsonOutput {
		printJSON(batch)
		return
	}
	now := time.Now().Format("15:04:05")
	for _, ev := range batch {
		label := strings.ToUpper(ev.Type.String())
		switch ev.Type {
		case models.ChangeCreated:
			label = successColor.Sprint(label)
		case models.ChangeDeleted:
			label = errorColor.Sprint(label)
		default:
			label = warnColor.Sprint(label)
		}
		fmt.Printf("%s %-8s %s\n", now, label, ev.URI)
	}
}
