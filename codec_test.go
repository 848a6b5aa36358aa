package scatter_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keybits/scatter"
)

func TestNewCodec_WidthValidation(t *testing.T) {
	tests := []struct {
		name    string
		width   uint
		wantErr bool
	}{
		{name: "zero width", width: 0, wantErr: true},
		{name: "too wide", width: 65, wantErr: true},
		{name: "minimum", width: 1, wantErr: false},
		{name: "typical", width: 32, wantErr: false},
		{name: "maximum", width: 64, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := scatter.NewCodec(tt.width)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.width, c.Width())
		})
	}
}

func TestCodec_ZeroValueRejected(t *testing.T) {
	var c scatter.Codec
	_, err := c.Transform(1)
	require.Error(t, err)
}

func TestCodec_DocumentedExample(t *testing.T) {
	// W=32: key 1 is 0...01, reversed to 10...0 = 2^31.
	c, err := scatter.NewCodec(32)
	require.NoError(t, err)

	out, err := c.Transform(1)
	require.NoError(t, err)
	require.Equal(t, uint64(2147483648), out)
}

func TestCodec_Involution(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, width := range []uint{1, 7, 8, 16, 32, 33, 48, 63, 64} {
		c, err := scatter.NewCodec(width)
		require.NoError(t, err)

		for range 1000 {
			key := rng.Uint64()
			if width < 64 {
				key &= 1<<width - 1
			}

			once, err := c.Transform(key)
			require.NoError(t, err)
			twice, err := c.Transform(once)
			require.NoError(t, err)
			require.Equal(t, key, twice, "width %d key %d", width, key)

			// Inverse is the same permutation.
			inv, err := c.Inverse(once)
			require.NoError(t, err)
			require.Equal(t, key, inv)
		}
	}
}

func TestCodec_BijectionExhaustive(t *testing.T) {
	c, err := scatter.NewCodec(16)
	require.NoError(t, err)

	seen := make([]bool, 1<<16)
	for key := uint64(0); key < 1<<16; key++ {
		out, err := c.Transform(key)
		require.NoError(t, err)
		require.Less(t, out, uint64(1<<16))
		require.False(t, seen[out], "collision at output %d", out)
		seen[out] = true
	}
}

func TestCodec_OutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		width uint
		key   uint64
	}{
		{name: "one past 8-bit domain", width: 8, key: 1 << 8},
		{name: "one past 32-bit domain", width: 32, key: 1 << 32},
		{name: "far past 32-bit domain", width: 32, key: 26843545600},
		{name: "max uint64 in 63-bit domain", width: 63, key: 1<<64 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := scatter.NewCodec(tt.width)
			require.NoError(t, err)

			_, err = c.Transform(tt.key)
			require.Error(t, err)

			var rangeErr *scatter.KeyRangeError
			require.ErrorAs(t, err, &rangeErr)
			require.Equal(t, tt.key, rangeErr.Key)
			require.Equal(t, tt.width, rangeErr.Width)
		})
	}
}

// TestCodec_DenseRunScattersHighBits checks the point of the transform: a
// dense sequential run must land roughly uniformly across the high-order
// (partition-routing) bits of the output space.
func TestCodec_DenseRunScattersHighBits(t *testing.T) {
	c, err := scatter.NewCodec(32)
	require.NoError(t, err)

	const (
		n          = 1 << 12
		partitions = 16
	)

	counts := make([]int, partitions)
	for key := uint64(0); key < n; key++ {
		out, err := c.Transform(key)
		require.NoError(t, err)
		counts[out>>28]++ // top 4 bits pick the partition
	}

	expected := n / partitions
	for partition, got := range counts {
		require.InDelta(t, expected, got, float64(expected)/4,
			"partition %d unbalanced", partition)
	}
}
