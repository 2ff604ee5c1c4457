package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		64 * 1024:       "64.0 KiB",
		10 * 1024 * 1024: "10.0 MiB",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatBytes(in))
	}
}
