package pipeline

import (
	"fmt"
	"image"
	"slices"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelprep/internal/codec"
)

// AvatarSize is one rung of the ladder. It is produced only when the source is
// at least MinSource pixels on both sides; zero makes it mandatory.
type AvatarSize struct {
	Size      int
	MinSource int
}

func (s AvatarSize) Key() string {
	return "avatar" + strconv.Itoa(s.Size)
}

func (s AvatarSize) eligible(w, h int) bool {
	return w >= s.MinSource && h >= s.MinSource
}

// AvatarLadder is ordered by ascending size.
type AvatarLadder []AvatarSize

// DefaultLadder produces the small sizes for any source and the large ones
// only when the source can supply that many real pixels.
var DefaultLadder = AvatarLadder{
	{Size: 24},
	{Size: 48},
	{Size: 73},
	{Size: 128, MinSource: 128},
	{Size: 256, MinSource: 256},
	{Size: 512, MinSource: 512},
}

// ParseLadder reads "size:min" pairs separated by commas, e.g.
// "24:0,48:0,128:128". A bare size is mandatory.
func ParseLadder(raw string) (AvatarLadder, error) {
	var ladder AvatarLadder
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sizePart, minPart, _ := strings.Cut(part, ":")
		size, err := strconv.Atoi(strings.TrimSpace(sizePart))
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("avatar ladder: invalid size %q", part)
		}
		minSource := 0
		if minPart != "" {
			minSource, err = strconv.Atoi(strings.TrimSpace(minPart))
			if err != nil || minSource < 0 {
				return nil, fmt.Errorf("avatar ladder: invalid minimum %q", part)
			}
		}
		ladder = append(ladder, AvatarSize{Size: size, MinSource: minSource})
	}
	if len(ladder) == 0 {
		return nil, fmt.Errorf("avatar ladder: no sizes")
	}

	slices.SortFunc(ladder, func(a, b AvatarSize) int { return a.Size - b.Size })
	for i := 1; i < len(ladder); i++ {
		if ladder[i].Size == ladder[i-1].Size {
			return nil, fmt.Errorf("avatar ladder: duplicate size %d", ladder[i].Size)
		}
	}
	return ladder, nil
}

func (l AvatarLadder) String() string {
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = fmt.Sprintf("%d:%d", s.Size, s.MinSource)
	}
	return strings.Join(parts, ",")
}

// Eligible returns the sizes the source qualifies for, in ladder order.
func (l AvatarLadder) Eligible(w, h int) AvatarLadder {
	var out AvatarLadder
	for _, s := range l {
		if s.eligible(w, h) {
			out = append(out, s)
		}
	}
	return out
}

// Avatar is a square PNG rendition.
type Avatar struct {
	Key  string
	Size int
	Data []byte
}

// GenerateAvatars renders every eligible size as a center-cropped square PNG.
// When the source clears the largest rung, that rung is rendered once and the
// smaller sizes are downscaled from it. Any encode failure fails the whole set.
func GenerateAvatars(r *codec.Raster, ladder AvatarLadder) ([]Avatar, error) {
	sizes := ladder.Eligible(r.Width, r.Height)
	if len(sizes) == 0 {
		return nil, nil
	}

	base := r.Image
	if largest := sizes[len(sizes)-1]; largest.MinSource >= largest.Size && len(sizes) > 1 {
		base = squareCrop(base, largest.Size)
	}

	avatars := make([]Avatar, 0, len(sizes))
	for _, s := range sizes {
		data, err := codec.Encode(squareCrop(base, s.Size), codec.FormatPNG, codec.Options{})
		if err != nil {
			return nil, err
		}
		avatars = append(avatars, Avatar{Key: s.Key(), Size: s.Size, Data: data})
	}
	return avatars, nil
}

// stretchIcon scales an icon set to the largest rung with nearest neighbour
// sampling. Icon sets ship small renditions of artwork meant to be shown
// crisp at any size, so every rung is produced from them.
func stretchIcon(r *codec.Raster, ladder AvatarLadder) {
	if r.Format != codec.FormatICNS || len(ladder) == 0 {
		return
	}
	side := ladder[len(ladder)-1].Size
	if r.Width == side && r.Height == side {
		return
	}
	r.SetImage(imaging.Resize(r.Image, side, side, imaging.NearestNeighbor))
}

func squareCrop(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	return imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
}
