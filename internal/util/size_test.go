package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"100", 100},
		{"10B", 10},
		{"2K", 2048},
		{"1.5M", 1572864},
		{"5 MiB", 5 * 1024 * 1024},
		{"1G", 1 << 30},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("errors", func(t *testing.T) {
		for _, in := range []string{"abc", "5X", "-1M"} {
			_, err := ParseSize(in)
			assert.Error(t, err, in)
		}
	})
}
