package pipeline

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/dunamismax/pixelprep/internal/codec"
	"github.com/dunamismax/pixelprep/internal/testimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func avatarKeys(avatars []Avatar) []string {
	keys := make([]string, len(avatars))
	for i, a := range avatars {
		keys[i] = a.Key
	}
	return keys
}

func rasterOf(t *testing.T, w, h int) *codec.Raster {
	t.Helper()
	r := &codec.Raster{Format: codec.FormatPNG, Frames: 1, Orientation: 1}
	r.SetImage(testimage.Gradient(w, h))
	return r
}

func TestParseLadder(t *testing.T) {
	ladder, err := ParseLadder("512:512, 24:0,48,128:128")
	require.NoError(t, err)
	assert.Equal(t, AvatarLadder{
		{Size: 24},
		{Size: 48},
		{Size: 128, MinSource: 128},
		{Size: 512, MinSource: 512},
	}, ladder)
	assert.Equal(t, "24:0,48:0,128:128,512:512", ladder.String())

	for _, raw := range []string{"", "abc", "0:0", "24:-1", "24,24:10", " , "} {
		_, err := ParseLadder(raw)
		assert.Error(t, err, raw)
	}
}

func TestDefaultLadderRoundTrips(t *testing.T) {
	parsed, err := ParseLadder(DefaultLadder.String())
	require.NoError(t, err)
	assert.Equal(t, DefaultLadder, parsed)
}

func TestLadderEligible(t *testing.T) {
	assert.Len(t, DefaultLadder.Eligible(1000, 1000), 6)
	assert.Len(t, DefaultLadder.Eligible(512, 512), 6)
	assert.Len(t, DefaultLadder.Eligible(511, 4000), 5)
	assert.Len(t, DefaultLadder.Eligible(255, 300), 4)
	assert.Len(t, DefaultLadder.Eligible(127, 127), 3)
	assert.Len(t, DefaultLadder.Eligible(1, 1), 3)
}

func TestGenerateAvatarsFullLadder(t *testing.T) {
	avatars, err := GenerateAvatars(rasterOf(t, 1000, 1000), DefaultLadder)
	require.NoError(t, err)
	assert.Equal(t, []string{"avatar24", "avatar48", "avatar73", "avatar128", "avatar256", "avatar512"}, avatarKeys(avatars))

	for _, a := range avatars {
		require.Equal(t, codec.FormatPNG, codec.DetectFormat(a.Data), a.Key)
		cfg, err := png.DecodeConfig(bytes.NewReader(a.Data))
		require.NoError(t, err, a.Key)
		assert.Equal(t, a.Size, cfg.Width, a.Key)
		assert.Equal(t, a.Size, cfg.Height, a.Key)
	}
}

func TestGenerateAvatarsSkipsUpscaledSizes(t *testing.T) {
	avatars, err := GenerateAvatars(rasterOf(t, 100, 100), DefaultLadder)
	require.NoError(t, err)
	assert.Equal(t, []string{"avatar24", "avatar48", "avatar73"}, avatarKeys(avatars))

	avatars, err = GenerateAvatars(rasterOf(t, 300, 260), DefaultLadder)
	require.NoError(t, err)
	assert.Equal(t, []string{"avatar24", "avatar48", "avatar73", "avatar128", "avatar256"}, avatarKeys(avatars))
}

func TestGenerateAvatarsCropsNonSquareSources(t *testing.T) {
	avatars, err := GenerateAvatars(rasterOf(t, 900, 300), DefaultLadder)
	require.NoError(t, err)
	require.Equal(t, []string{"avatar24", "avatar48", "avatar73", "avatar128", "avatar256"}, avatarKeys(avatars))

	cfg, err := png.DecodeConfig(bytes.NewReader(avatars[len(avatars)-1].Data))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Width)
	assert.Equal(t, 256, cfg.Height)
}

func TestGenerateAvatarsTinySource(t *testing.T) {
	avatars, err := GenerateAvatars(rasterOf(t, 1, 1), DefaultLadder)
	require.NoError(t, err)
	require.Len(t, avatars, 3)

	cfg, err := png.DecodeConfig(bytes.NewReader(avatars[2].Data))
	require.NoError(t, err)
	assert.Equal(t, 73, cfg.Width)
}

func TestGenerateAvatarsNothingEligible(t *testing.T) {
	avatars, err := GenerateAvatars(rasterOf(t, 50, 50), AvatarLadder{{Size: 128, MinSource: 128}})
	require.NoError(t, err)
	assert.Empty(t, avatars)
}

func TestStretchIconOnlyTouchesIconSets(t *testing.T) {
	r := rasterOf(t, 32, 32)
	stretchIcon(r, DefaultLadder)
	assert.Equal(t, 32, r.Width)

	r.Format = codec.FormatICNS
	stretchIcon(r, DefaultLadder)
	assert.Equal(t, 512, r.Width)
	assert.Equal(t, 512, r.Height)
}
