package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in     string
		want   ID
		wantOK bool
	}{
		{"ethereum", Ethereum, true},
		{" ETH ", Ethereum, true},
		{"", Ethereum, true},
		{"apechain", Ape, true},
		{"matic", Polygon, true},
		{"42161", Arbitrum, true},
		{"op", Optimism, true},
		{"solana", Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Parse(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestValid(t *testing.T) {
	for _, id := range All() {
		require.True(t, id.Valid(), id)
	}
	require.False(t, Unknown.Valid())
	require.False(t, ID("ethereum").Valid())
}
