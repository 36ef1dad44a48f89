package media

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"clipflow/internal/asset"
	logx "clipflow/pkg/logx"
)

// Prober extracts technical metadata from a source file. Implementations
// must treat probe failure as a soft error: the transcode proceeds without
// metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (*asset.Metadata, error)
}

// FFprobe shells out to the ffprobe binary and parses its JSON output.
type FFprobe struct {
	Bin string
	Log logx.Logger
}

func NewFFprobe(bin string, log logx.Logger) *FFprobe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFprobe{Bin: bin, Log: log}
}

// probeOutput mirrors the subset of ffprobe -print_format json we consume.
// ffprobe emits numbers as strings in the format section.
type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
		Size     string `json:"size"`
	} `json:"format"`
}

func (p *FFprobe) Probe(ctx context.Context, path string) (*asset.Metadata, error) {
	out, err := exec.CommandContext(ctx, p.Bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	).Output()
	if err != nil {
		return nil, err
	}
	meta, err := parseProbeOutput(out)
	if err != nil {
		return nil, err
	}
	if meta.Size == 0 {
		if fi, statErr := os.Stat(path); statErr == nil {
			meta.Size = fi.Size()
		}
	}
	return meta, nil
}

func parseProbeOutput(raw []byte) (*asset.Metadata, error) {
	var po probeOutput
	if err := json.Unmarshal(raw, &po); err != nil {
		return nil, err
	}

	meta := &asset.Metadata{}
	meta.Duration, _ = strconv.ParseFloat(po.Format.Duration, 64)
	meta.Bitrate, _ = strconv.ParseInt(po.Format.BitRate, 10, 64)
	meta.Size, _ = strconv.ParseInt(po.Format.Size, 10, 64)

	for _, s := range po.Streams {
		if s.CodecType != "video" {
			continue
		}
		meta.Width = s.Width
		meta.Height = s.Height
		meta.Codec = s.CodecName
		if fps := parseFrameRate(s.RFrameRate); fps > 0 {
			meta.FPS = fps
		} else {
			meta.FPS = parseFrameRate(s.AvgFrameRate)
		}
		break
	}
	return meta, nil
}

// parseFrameRate handles ffprobe's rational "num/den" form as well as plain
// decimals. Returns 0 on anything unparseable.
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
