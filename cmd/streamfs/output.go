package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
)

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func printSuccess(format string, args ...interface{}) {
	successColor.Printf(format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Printf(format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warnColor.Fprintf(os.Stderr, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("encode output: %v", err)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// progressDisplay renders upload progress on one terminal line per file.
type progressDisplay struct {
	mu   sync.Mutex
	last string
}

func newProgressDisplay() *progressDisplay {
	return &progressDisplay{}
}

func (p *progressDisplay) Update(uri string, sent, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if uri != p.last && p.last != "" {
		fmt.Fprintln(os.Stderr)
	}
	p.last = uri

	pct := 100.0
	if total > 0 {
		pct = float64(sent) * 100 / float64(total)
	}
	fmt.Fprintf(os.Stderr, "\r%s %s / %s (%.0f%%)", infoColor.Sprint("↑"), formatBytes(sent), formatBytes(total), pct)
	if sent >= total {
		fmt.Fprintf(os.Stderr, " %s\n", uri)
		p.last = ""
	}
}
