package client

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalPrompter(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		p := NewTerminalPrompter(strings.NewReader(tt.input), &out)
		got, err := p.ConfirmDelete(context.Background(), "/octocat/Hello")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%q", tt.input)
		assert.Contains(t, out.String(), "Delete /octocat/Hello")
	}
}

func TestTerminalPrompterAssumeYes(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader(""), &out)
	p.AssumeYes = true

	ok, err := p.OfferConvertToDraft(context.Background(), "/octocat/Hello/hello.published.md")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Convert it to a draft?")
}
