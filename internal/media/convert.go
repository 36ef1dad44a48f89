package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Converter turns a source file into an HLS rendition under outDir.
type Converter interface {
	Convert(ctx context.Context, src, outDir string) error
}

// FFmpegConverter produces a single-rendition HLS stream by remuxing the
// source (stream copy, no re-encode) into fixed-length segments plus a VOD
// playlist.
type FFmpegConverter struct {
	Bin            string
	SegmentSeconds int
	PlaylistType   string
}

func NewFFmpegConverter(bin string, segmentSeconds int, playlistType string) *FFmpegConverter {
	if bin == "" {
		bin = "ffmpeg"
	}
	if segmentSeconds <= 0 {
		segmentSeconds = 10
	}
	if playlistType == "" {
		playlistType = "vod"
	}
	return &FFmpegConverter{Bin: bin, SegmentSeconds: segmentSeconds, PlaylistType: playlistType}
}

func (c *FFmpegConverter) Convert(ctx context.Context, src, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	manifest := filepath.Join(outDir, ManifestName)
	cmd := exec.CommandContext(ctx, c.Bin,
		"-y",
		"-i", src,
		"-codec:", "copy",
		"-start_number", "0",
		"-hls_time", strconv.Itoa(c.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_playlist_type", c.PlaylistType,
		"-f", "hls",
		manifest,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

// lastLine extracts the final non-empty stderr line, which is where ffmpeg
// puts the actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return "no output"
}
