package pipeline

import (
	"context"
	"testing"

	"github.com/dunamismax/pixelprep/internal/testimage"
)

func BenchmarkProcessorFit(b *testing.B) {
	source := testimage.PNG(b, 1920, 1080)
	p := NewProcessor(Config{})
	box := Box{Width: 640, Height: 640}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Fit(context.Background(), source, box); err != nil {
			b.Fatalf("fit: %v", err)
		}
	}
}

func BenchmarkProcessorRescaleAvatar(b *testing.B) {
	source := testimage.PNG(b, 1024, 1024)
	p := NewProcessor(Config{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.RescaleAvatar(context.Background(), source); err != nil {
			b.Fatalf("rescale avatar: %v", err)
		}
	}
}

func BenchmarkProcessorPrepareJPEG(b *testing.B) {
	raw := testimage.Exif(b, testimage.ExifSpec{Orientation: 6, GPS: true})
	source := testimage.JPEG(b, testimage.Gradient(1600, 1200), raw)
	p := NewProcessor(Config{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.PrepareJPEG(context.Background(), source); err != nil {
			b.Fatalf("prepare jpeg: %v", err)
		}
	}
}
