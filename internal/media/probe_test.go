package media

import (
	"math"
	"testing"
)

func TestParseProbeOutput(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"}
		],
		"format": {"duration": "125.480000", "bit_rate": "4500000", "size": "70582016"}
	}`)

	meta, err := parseProbeOutput(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Codec != "h264" {
		t.Fatalf("codec = %q", meta.Codec)
	}
	if meta.Width != 1920 || meta.Height != 1080 {
		t.Fatalf("dimensions = %dx%d", meta.Width, meta.Height)
	}
	if math.Abs(meta.Duration-125.48) > 1e-9 {
		t.Fatalf("duration = %v", meta.Duration)
	}
	if meta.Bitrate != 4500000 {
		t.Fatalf("bitrate = %d", meta.Bitrate)
	}
	if math.Abs(meta.FPS-29.97002997002997) > 1e-9 {
		t.Fatalf("fps = %v", meta.FPS)
	}
}

func TestParseProbeOutputAudioOnly(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"streams": [{"codec_type": "audio", "codec_name": "mp3"}],
		"format": {"duration": "30.0"}
	}`)
	meta, err := parseProbeOutput(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Codec != "" || meta.Width != 0 {
		t.Fatalf("expected no video fields, got %+v", meta)
	}
	if meta.Duration != 30 {
		t.Fatalf("duration = %v", meta.Duration)
	}
}

func TestParseFrameRate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
		{"garbage", 0},
		{"24000/1001", 24000.0 / 1001.0},
	}
	for _, tc := range cases {
		if got := parseFrameRate(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestManifestRef(t *testing.T) {
	t.Parallel()
	if got := ManifestRef("abc"); got != "videos/abc/index.m3u8" {
		t.Fatalf("ManifestRef = %q", got)
	}
}
