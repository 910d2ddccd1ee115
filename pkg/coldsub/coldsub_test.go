package coldsub

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermopct/pkg/pcterrors"
	"thermopct/pkg/video"
)

// uniformVideo returns a video whose every sample equals value
func uniformVideo(frames, height, width int, value float64) *video.Matrix {
	m := video.NewMatrix(frames, height, width)
	for i := range m.Data {
		m.Data[i] = value
	}
	return m
}

func TestSubtractUniformVideos(t *testing.T) {
	hot := uniformVideo(5, 3, 4, 200)
	cold := uniformVideo(3, 3, 4, 100)

	tests := []struct {
		policy        Policy
		after, before *video.Matrix
		want          float64
	}{
		{Signed, hot, cold, 100},
		{Clip, hot, cold, 100},
		{Wrap, hot, cold, 100},
		{Signed, cold, hot, -100},
		{Clip, cold, hot, 0},
		{Wrap, cold, hot, 156},
	}

	for _, tt := range tests {
		diff, err := Subtract(tt.after, tt.before, tt.policy)
		require.NoError(t, err, tt.policy.String())
		assert.Equal(t, 4, diff.Width)
		assert.Equal(t, 3, diff.Height)
		for _, v := range diff.Data {
			assert.Equal(t, tt.want, v, tt.policy.String())
		}
	}
}

func TestSubtractRescalesAndTruncatesMeans(t *testing.T) {
	// Pixel means are 10, 42 and 74 before rescaling
	after := video.NewMatrix(2, 1, 3)
	copy(after.Data, []float64{0, 42, 74, 20, 42, 74})
	before := uniformVideo(1, 1, 3, 50)

	diff, err := Subtract(after, before, Signed)
	require.NoError(t, err)
	// 10 -> 0, 42 -> 127.5 -> 127, 74 -> 255, minus a constant 50
	assert.Equal(t, []float64{-50, 77, 205}, diff.Data)
}

func TestSubtractSizeMismatch(t *testing.T) {
	_, err := Subtract(uniformVideo(2, 4, 4, 10), uniformVideo(2, 4, 5, 10), Signed)
	var regionErr *pcterrors.InvalidRegionError
	require.True(t, errors.As(err, &regionErr))
	assert.Equal(t, "video 2", regionErr.Subject)

	_, err = Subtract(uniformVideo(2, 4, 4, 10), nil, Signed)
	assert.True(t, errors.As(err, &regionErr))
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": Signed, "signed": Signed, "CLIP": Clip, "wrap": Wrap} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("abs")
	assert.Error(t, err)
}
