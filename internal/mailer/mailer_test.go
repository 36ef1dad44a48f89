package mailer

import (
	"context"
	"strings"
	"testing"
	"time"

	"clipflow/internal/asset"
	"clipflow/internal/config"
	"clipflow/internal/schedule"
	logx "clipflow/pkg/logx"
)

func testSchedule() *schedule.Schedule {
	return &schedule.Schedule{
		ID:              "s1",
		AssetID:         "a1",
		Recipient:       schedule.Recipient{Email: "viewer@example.com", Name: "Viewer"},
		SenderName:      "Studio",
		Subject:         "Weekly highlights",
		Message:         "Here is this week's clip.",
		IncludeDuration: true,
	}
}

func testAsset() *asset.Asset {
	return &asset.Asset{
		ID:           "a1",
		Filename:     "highlights.mp4",
		Status:       asset.StatusReady,
		Meta:         &asset.Metadata{Duration: 125.4},
		ManifestPath: "videos/a1/index.m3u8",
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	t.Parallel()
	m := New(config.MailerConfig{
		FromAddress: "noreply@clipflow.example",
		FromName:    "Clipflow",
	}, logx.Nop())
	m.now = func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }

	raw, err := m.buildMessage("<id-1@clipflow>", testSchedule(), testAsset())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	msg := string(raw)

	// Schedule sender name overrides the configured display name.
	for _, want := range []string{
		"From: Studio <noreply@clipflow.example>\r\n",
		"To: Viewer <viewer@example.com>\r\n",
		"Subject: Weekly highlights\r\n",
		"Message-ID: <id-1@clipflow>\r\n",
		"Content-Type: text/html; charset=UTF-8\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
	header, _, ok := strings.Cut(msg, "\r\n\r\n")
	if !ok {
		t.Fatal("no header/body separator")
	}
	if strings.Contains(header, "<html>") {
		t.Fatal("body leaked into headers")
	}
}

func TestRenderBody(t *testing.T) {
	t.Parallel()

	body, err := renderBody(testSchedule(), testAsset())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	html := string(body)
	if !strings.Contains(html, "Weekly highlights") {
		t.Error("title missing")
	}
	if !strings.Contains(html, "2:05") {
		t.Errorf("duration 125.4s should render as 2:05, got:\n%s", html)
	}
	if !strings.Contains(html, "videos/a1/index.m3u8") {
		t.Error("watch link missing for ready asset")
	}
}

func TestRenderBodyNonReadyAssetHasNoLink(t *testing.T) {
	t.Parallel()
	a := testAsset()
	a.Status = asset.StatusProcessing

	body, err := renderBody(testSchedule(), a)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(string(body), "index.m3u8") {
		t.Fatal("watch link present for non-ready asset")
	}
}

func TestRenderBodyCustomTemplate(t *testing.T) {
	t.Parallel()
	s := testSchedule()
	s.Template = `<p>Hi, {{.Title}} is live!</p>`

	body, err := renderBody(s, testAsset())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := string(body); got != "<p>Hi, Weekly highlights is live!</p>" {
		t.Fatalf("body = %q", got)
	}
}

func TestRenderBodyEscapesContent(t *testing.T) {
	t.Parallel()
	s := testSchedule()
	s.Message = `<script>alert("x")</script>`

	body, err := renderBody(s, testAsset())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(string(body), "<script>") {
		t.Fatal("message content not escaped")
	}
}

func TestLogOnlyModeSucceeds(t *testing.T) {
	t.Parallel()
	m := New(config.MailerConfig{}, logx.Nop())

	msgID, err := m.Send(context.Background(), testSchedule(), testAsset())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(msgID, "<") || !strings.Contains(msgID, "@clipflow>") {
		t.Fatalf("message id = %q", msgID)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   float64
		want string
	}{
		{5, "0:05"},
		{65, "1:05"},
		{125.4, "2:05"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
