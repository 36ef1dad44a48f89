package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
server:
  addr: ":9090"
  read_timeout: "15s"
logging:
  level: debug
  console: true
media:
  upload_dir: /tmp/clipflow/uploads
  videos_dir: /tmp/clipflow/videos
  segment_seconds: 6
transcoder:
  workers: 3
  job_timeout: "45m"
dispatcher:
  send_workers: 2
  timezone: "Asia/Jakarta"
mailer:
  host: smtp.example.com
  port: 587
  from_address: noreply@example.com
storage:
  driver: sqlite
  path: /tmp/clipflow/data.db
`

func TestParseBytesYAML(t *testing.T) {
	t.Parallel()
	cfg, err := ParseBytes("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Media.SegmentSeconds != 6 {
		t.Fatalf("segment_seconds = %d", cfg.Media.SegmentSeconds)
	}
	if cfg.Transcoder.Workers != 3 || cfg.Transcoder.JobTimeout != "45m" {
		t.Fatalf("transcoder = %+v", cfg.Transcoder)
	}
	if cfg.Dispatcher.Timezone != "Asia/Jakarta" {
		t.Fatalf("timezone = %q", cfg.Dispatcher.Timezone)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseBytesJSON(t *testing.T) {
	t.Parallel()
	cfg, err := ParseBytes("config.json", []byte(`{"server":{"addr":":8081"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":8081" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
}

func TestParseBytesRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	if _, err := ParseBytes("config.json", []byte(`{"sever":{"addr":":1"}}`)); err == nil {
		t.Fatal("typo'd key must be rejected")
	}
}

func TestParseBytesRejectsTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := ParseBytes("config.json", []byte(`{}{"server":{}}`)); err == nil {
		t.Fatal("concatenated documents must be rejected")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"empty config", func(c *Config) {}, true},
		{"bad duration", func(c *Config) { c.Transcoder.JobTimeout = "soon" }, false},
		{"negative duration", func(c *Config) { c.Server.ReadTimeout = "-5s" }, false},
		{"negative upload cap", func(c *Config) { c.Media.MaxUploadBytes = -1 }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }, false},
		{"sqlite3 alias", func(c *Config) { c.Storage.Driver = "sqlite3" }, true},
		{"bad timezone", func(c *Config) { c.Dispatcher.Timezone = "Nowhere/Void" }, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var c Config
			tc.mutate(&c)
			err := c.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadCommitGet(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.yaml")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	cfg := &Config{}
	m.publish(cfg)

	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	case <-time.After(time.Second):
		t.Fatal("no config delivered")
	}
}

func TestPublishDropsOldestWhenSlow(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.yaml")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)

	if got := <-ch; got != second {
		t.Fatal("latest config must win over a full buffer")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 30*time.Second)
	if err != nil || d != 30*time.Second {
		t.Fatalf("empty: d=%v err=%v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "2m", 30*time.Second)
	if err != nil || d != 2*time.Minute {
		t.Fatalf("set: d=%v err=%v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "nope", time.Second); err == nil {
		t.Fatal("invalid duration must error")
	}
}
