// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomstore

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag selects how a snapshot is compressed. The tag is the
// first byte of every stored snapshot, so the values are fixed.
type CompressionTag uint8

const (
	CompressionNone CompressionTag = 0
	CompressionLZ4  CompressionTag = 1
	CompressionZstd CompressionTag = 2
)

// maxSnapshotSize bounds the uncompressed length read from a frame
// header before any allocation happens.
const maxSnapshotSize = 256 << 20

func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses "none", "lz4", or "zstd".
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("roomstore: unknown compression %q", name)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("roomstore: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSnapshotSize))
	if err != nil {
		panic("roomstore: zstd decoder: " + err.Error())
	}
}

// frame compresses data and prefixes it with the tag and the
// uncompressed length. Data the algorithm cannot shrink is stored
// uncompressed under CompressionNone.
func frame(data []byte, tag CompressionTag) ([]byte, error) {
	var body []byte
	switch tag {
	case CompressionNone:
	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("roomstore: lz4: %w", err)
		}
		if written > 0 && written < len(data) {
			body = destination[:written]
		}
	case CompressionZstd:
		if compressed := zstdEncoder.EncodeAll(data, nil); len(compressed) < len(data) {
			body = compressed
		}
	default:
		return nil, fmt.Errorf("roomstore: unsupported compression %s", tag)
	}
	if body == nil {
		tag, body = CompressionNone, data
	}

	out := make([]byte, 1, 1+binary.MaxVarintLen64+len(body))
	out[0] = byte(tag)
	out = binary.AppendUvarint(out, uint64(len(data)))
	return append(out, body...), nil
}

// unframe reverses frame. Every failure wraps ErrCorrupt.
func unframe(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot", ErrCorrupt)
	}
	tag := CompressionTag(framed[0])
	size, n := binary.Uvarint(framed[1:])
	if n <= 0 || size > maxSnapshotSize {
		return nil, fmt.Errorf("%w: bad length header", ErrCorrupt)
	}
	body := framed[1+n:]

	switch tag {
	case CompressionNone:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("%w: stored %d bytes, header says %d", ErrCorrupt, len(body), size)
		}
		return body, nil
	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(body, destination)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, header says %d", ErrCorrupt, read, size)
		}
		return destination, nil
	case CompressionZstd:
		decoded, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		if uint64(len(decoded)) != size {
			return nil, fmt.Errorf("%w: zstd produced %d bytes, header says %d", ErrCorrupt, len(decoded), size)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrCorrupt, uint8(tag))
	}
}
