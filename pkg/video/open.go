package video

import (
	"context"
	"fmt"
	"strings"
)

// Backend names a frame decoding implementation.
type Backend string

const (
	// BackendFFmpeg pipes frames out of an ffmpeg subprocess
	BackendFFmpeg Backend = "ffmpeg"
	// BackendImages reads a directory of per-frame image files
	BackendImages Backend = "images"
	// BackendGocv uses OpenCV (requires the gocv build tag)
	BackendGocv Backend = "gocv"
)

// ParseBackend maps a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendFFmpeg, BackendImages, BackendGocv:
		return b, nil
	case "":
		return BackendFFmpeg, nil
	default:
		return "", fmt.Errorf("unknown video backend %q (want ffmpeg, images or gocv)", s)
	}
}

// OpenOptions configures Open.
type OpenOptions struct {
	Backend Backend
	FFmpeg  FFmpegOptions
}

// Open returns a FrameSource for path using the configured backend.
func Open(ctx context.Context, path string, opts OpenOptions) (FrameSource, error) {
	switch opts.Backend {
	case BackendFFmpeg, "":
		return NewFFmpegSource(ctx, path, opts.FFmpeg)
	case BackendImages:
		return NewImageSequenceSource(path)
	case BackendGocv:
		return openGocv(path)
	default:
		return nil, fmt.Errorf("unknown video backend %q", opts.Backend)
	}
}
