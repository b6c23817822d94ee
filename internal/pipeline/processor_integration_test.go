package pipeline

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/pixelprep/internal/codec"
	"github.com/dunamismax/pixelprep/internal/metadata"
	"github.com/dunamismax/pixelprep/internal/testimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu     sync.Mutex
	stages []string
	failed []string
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
	if err != nil {
		o.failed = append(o.failed, stage)
	}
}

func phoneJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	raw := testimage.Exif(t, testimage.ExifSpec{
		Orientation: 6,
		GPS:         true,
		Make:        "Acme",
		Copyright:   "Jane Roe",
		DateTaken:   "2024:05:06 07:08:09",
	})
	return testimage.JPEG(t, testimage.Gradient(w, h), raw)
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestProcessorPrepareJPEGRotatesAndSanitizes(t *testing.T) {
	observer := &recordingObserver{}
	p := NewProcessor(Config{}, WithObserver(observer))

	out, err := p.PrepareJPEG(context.Background(), phoneJPEG(t, 400, 200))
	require.NoError(t, err)

	assert.Equal(t, codec.FormatJPEG, out.Format)
	assert.Equal(t, 200, out.Width)
	assert.Equal(t, 400, out.Height)
	assert.Equal(t, 400, out.Source.Width)
	assert.Equal(t, 6, out.Source.Orientation)

	w, h := decodedSize(t, out.Data)
	assert.Equal(t, 200, w)
	assert.Equal(t, 400, h)

	raw := metadata.Extract(out.Data, metadata.ContainerJPEG)
	require.NotEmpty(t, raw)
	assert.Equal(t, metadata.OrientationNormal, metadata.Orientation(raw))
	assert.False(t, metadata.HasGPS(raw))

	assert.Equal(t, []string{StageDecode, StageOrient, StageSanitize, StageEncode, StageEmbedExif}, observer.stages)
	assert.Empty(t, observer.failed)
}

func TestProcessorPrepareJPEGWithoutExif(t *testing.T) {
	p := NewProcessor(Config{})
	out, err := p.PrepareJPEG(context.Background(), testimage.JPEG(t, testimage.Gradient(30, 20), nil))
	require.NoError(t, err)

	assert.Nil(t, metadata.Extract(out.Data, metadata.ContainerJPEG))
	assert.Equal(t, 30, out.Width)
}

func TestProcessorPrepareJPEGRejectsOtherFormats(t *testing.T) {
	p := NewProcessor(Config{})
	_, err := p.PrepareJPEG(context.Background(), testimage.PNG(t, 10, 10))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, "This endpoint is only for processing JPEG images", err.Error())

	_, err = p.PrepareJPEG(context.Background(), nil)
	assert.True(t, IsValidationError(err))
}

func TestProcessorFitKeepsFormat(t *testing.T) {
	p := NewProcessor(Config{})

	out, err := p.Fit(context.Background(), testimage.PNG(t, 400, 200), Box{Width: 100, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, codec.FormatPNG, out.Format)
	assert.Equal(t, codec.FormatPNG, codec.DetectFormat(out.Data))
	w, h := decodedSize(t, out.Data)
	assert.Equal(t, 100, w)
	assert.Equal(t, 50, h)

	out, err = p.Fit(context.Background(), testimage.GIF(t, 40, 40, 2), Box{Width: 500, Height: 500})
	require.NoError(t, err)
	assert.Equal(t, codec.FormatGIF, out.Format)
	assert.Equal(t, 40, out.Width)
	assert.Equal(t, 2, out.Source.Frames)
}

func TestProcessorFitAppliesOrientationFirst(t *testing.T) {
	p := NewProcessor(Config{})

	out, err := p.Fit(context.Background(), phoneJPEG(t, 400, 200), Box{Width: 100, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, codec.FormatJPEG, out.Format)
	assert.Equal(t, 50, out.Width)
	assert.Equal(t, 100, out.Height)
	assert.Nil(t, metadata.Extract(out.Data, metadata.ContainerJPEG))
}

func TestProcessorFitRejectsBadBox(t *testing.T) {
	p := NewProcessor(Config{})
	_, err := p.Fit(context.Background(), testimage.PNG(t, 4, 4), Box{Width: 0, Height: 10})
	assert.True(t, IsValidationError(err))
}

func TestProcessorRescaleAvatar(t *testing.T) {
	p := NewProcessor(Config{})

	set, err := p.RescaleAvatar(context.Background(), testimage.PNG(t, 600, 600))
	require.NoError(t, err)
	assert.Equal(t, []string{"avatar24", "avatar48", "avatar73", "avatar128", "avatar256", "avatar512"}, avatarKeys(set.Avatars))
	assert.Positive(t, set.Bytes())
	assert.Equal(t, int64(360000), set.Source.Pixels())

	set, err = p.RescaleAvatar(context.Background(), testimage.PNG(t, 50, 50))
	require.NoError(t, err)
	assert.Equal(t, []string{"avatar24", "avatar48", "avatar73"}, avatarKeys(set.Avatars))
}

func TestProcessorRescaleAvatarStretchesIconSets(t *testing.T) {
	p := NewProcessor(Config{})

	set, err := p.RescaleAvatar(context.Background(), testimage.ICNS(t, 64))
	require.NoError(t, err)
	assert.Equal(t, codec.FormatICNS, set.Source.Format)
	assert.Equal(t, 64, set.Source.Width, "source reports the icon as uploaded")
	assert.Equal(t, []string{"avatar24", "avatar48", "avatar73", "avatar128", "avatar256", "avatar512"}, avatarKeys(set.Avatars))

	w, h := decodedSize(t, set.Avatars[len(set.Avatars)-1].Data)
	assert.Equal(t, 512, w)
	assert.Equal(t, 512, h)
}

func TestProcessorRejectsOversizedHeaders(t *testing.T) {
	p := NewProcessor(Config{MaxPixels: 1_000_000})

	_, err := p.Info(context.Background(), testimage.OversizedPNG(t, 20000, 20000))
	require.Error(t, err)
	assert.True(t, codec.IsDecodeError(err))
	assert.ErrorIs(t, err, codec.ErrTooManyPixels)

	src, err := p.Info(context.Background(), testimage.PNG(t, 1000, 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), src.Pixels())
}

func TestProcessorCustomLadder(t *testing.T) {
	p := NewProcessor(Config{Ladder: AvatarLadder{{Size: 32}, {Size: 64, MinSource: 64}}})
	set, err := p.RescaleAvatar(context.Background(), testimage.PNG(t, 100, 80))
	require.NoError(t, err)
	assert.Equal(t, []string{"avatar32", "avatar64"}, avatarKeys(set.Avatars))
}

func TestProcessorInfo(t *testing.T) {
	p := NewProcessor(Config{})
	src, err := p.Info(context.Background(), testimage.GIF(t, 12, 7, 4))
	require.NoError(t, err)

	assert.Equal(t, codec.FormatGIF, src.Format)
	assert.Equal(t, 12, src.Width)
	assert.Equal(t, 7, src.Height)
	assert.Equal(t, 4, src.Frames)
}

func TestProcessorDecodeFailures(t *testing.T) {
	observer := &recordingObserver{}
	p := NewProcessor(Config{Formats: []codec.Format{codec.FormatJPEG}}, WithObserver(observer))

	_, err := p.Fit(context.Background(), testimage.PNG(t, 10, 10), Box{Width: 5, Height: 5})
	require.Error(t, err)
	assert.True(t, codec.IsDecodeError(err))
	assert.ErrorIs(t, err, codec.ErrFormatNotAllowed)

	_, err = p.RescaleAvatar(context.Background(), []byte("definitely not an image"))
	assert.True(t, codec.IsDecodeError(err))

	_, err = p.Info(context.Background(), nil)
	assert.True(t, IsValidationError(err))

	assert.Equal(t, []string{StageDecode, StageDecode}, observer.failed)
}

func TestProcessorHonorsCanceledContext(t *testing.T) {
	p := NewProcessor(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Fit(ctx, testimage.PNG(t, 10, 10), Box{Width: 5, Height: 5})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessorConcurrentRequests(t *testing.T) {
	p := NewProcessor(Config{})
	src := testimage.PNG(t, 300, 200)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Fit(context.Background(), src, Box{Width: 64, Height: 64})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
