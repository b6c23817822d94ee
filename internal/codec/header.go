package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
)

const (
	gifExtension  = 0x21
	gifDescriptor = 0x2C
	gifTrailer    = 0x3B
)

// countGIFFrames walks the GIF block structure and counts image descriptors
// without decompressing any frame. A truncated stream reports the frames seen
// so far.
func countGIFFrames(data []byte) int {
	const headerLen = 6 + 7
	if len(data) < headerLen {
		return 0
	}
	off := headerLen
	if flags := data[10]; flags&0x80 != 0 {
		off += 3 << ((flags & 0x07) + 1)
	}

	frames := 0
	for off < len(data) {
		switch data[off] {
		case gifExtension:
			off = skipGIFSubBlocks(data, off+2)
		case gifDescriptor:
			if off+10 > len(data) {
				return frames
			}
			frames++
			flags := data[off+9]
			off += 10
			if flags&0x80 != 0 {
				off += 3 << ((flags & 0x07) + 1)
			}
			// LZW minimum code size precedes the data sub-blocks.
			off = skipGIFSubBlocks(data, off+1)
		case gifTrailer:
			return frames
		default:
			return frames
		}
	}
	return frames
}

// skipGIFSubBlocks returns the offset after the block terminator, or
// len(data) when the terminator is missing.
func skipGIFSubBlocks(data []byte, off int) int {
	for off < len(data) {
		n := int(data[off])
		off++
		if n == 0 {
			return off
		}
		off += n
	}
	return len(data)
}

// icnsConfig reports the largest embedded icon. Only entries carrying an
// encoded image are measured; legacy bitmap entries are at most 128 pixels
// wide and are skipped.
func icnsConfig(data []byte) (image.Config, error) {
	if len(data) < 8 || !bytes.HasPrefix(data, icnsSignature) {
		return image.Config{}, fmt.Errorf("icns: invalid header")
	}
	end := min(int(binary.BigEndian.Uint32(data[4:8])), len(data))

	var best image.Config
	for off := 8; off+8 <= end; {
		size := int(binary.BigEndian.Uint32(data[off+4 : off+8]))
		if size < 8 || off+size > end {
			return image.Config{}, fmt.Errorf("icns: corrupt entry at offset %d", off)
		}
		payload := data[off+8 : off+size]
		off += size

		readConfig, ok := configDecoders[DetectFormat(payload)]
		if !ok {
			continue
		}
		cfg, err := readConfig(bytes.NewReader(payload))
		if err != nil {
			return image.Config{}, fmt.Errorf("icns: read icon header: %w", err)
		}
		if int64(cfg.Width)*int64(cfg.Height) > int64(best.Width)*int64(best.Height) {
			best = cfg
		}
	}

	if best.Width == 0 || best.Height == 0 {
		return image.Config{}, fmt.Errorf("icns: no encoded icons")
	}
	return best, nil
}
