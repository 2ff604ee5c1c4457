package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// TerminalPrompter asks yes/no questions on a terminal.
type TerminalPrompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer

	// AssumeYes answers every question with yes without reading input.
	AssumeYes bool
}

// NewTerminalPrompter reads answers from in and writes questions to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: bufio.NewReader(in), out: out}
}

// ConfirmDelete implements streamfs.Prompter.
func (p *TerminalPrompter) ConfirmDelete(ctx context.Context, uri string) (bool, error) {
	return p.ask(ctx, fmt.Sprintf("Delete %s and all its files?", uri))
}

// OfferConvertToDraft implements streamfs.Prompter.
func (p *TerminalPrompter) OfferConvertToDraft(ctx context.Context, uri string) (bool, error) {
	return p.ask(ctx, fmt.Sprintf("%s is published and read-only. Convert it to a draft?", uri))
}

func (p *TerminalPrompter) ask(ctx context.Context, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prompt := color.New(color.FgYellow, color.Bold)
	prompt.Fprintf(p.out, "%s [y/N] ", question)
	if p.AssumeYes {
		fmt.Fprintln(p.out, "y")
		return true, nil
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return false, fmt.Errorf("read answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
