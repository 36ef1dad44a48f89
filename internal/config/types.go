package config

// Config is the root configuration for the clipflow daemon.
//
// Files may be JSON or YAML; YAML is coerced to JSON and decoded strictly
// (unknown fields are rejected). All durations are Go duration strings
// (e.g. "500ms", "10s", "1h").
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Media      MediaConfig      `json:"media"`
	Transcoder TranscoderConfig `json:"transcoder"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
	Mailer     MailerConfig     `json:"mailer"`
	Storage    StorageConfig    `json:"storage,omitempty"`
}

// ServerConfig controls the HTTP request layer.
type ServerConfig struct {
	Addr           string   `json:"addr,omitempty"` // default ":8080"
	ReadTimeout    string   `json:"read_timeout,omitempty"`
	WriteTimeout   string   `json:"write_timeout,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // CORS; empty = "*"
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// MediaConfig controls upload handling and the external ffmpeg/ffprobe tools.
//
// Defaults (when fields are omitted/zero):
//   - upload_dir: "uploads", videos_dir: "videos"
//   - max_upload_bytes: 1 GiB
//   - allowed_extensions: .mp4 .avi .mov .mkv .webm .flv
//   - ffmpeg: "ffmpeg", ffprobe: "ffprobe"
//   - segment_seconds: 10, playlist_type: "vod"
type MediaConfig struct {
	UploadDir         string   `json:"upload_dir,omitempty"`
	VideosDir         string   `json:"videos_dir,omitempty"`
	MaxUploadBytes    int64    `json:"max_upload_bytes,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`

	FFmpegPath  string `json:"ffmpeg,omitempty"`
	FFprobePath string `json:"ffprobe,omitempty"`

	SegmentSeconds int    `json:"segment_seconds,omitempty"`
	PlaylistType   string `json:"playlist_type,omitempty"`
}

// TranscoderConfig controls the transcode worker pool.
//
// Workers defaults to 2; each job runs an external encoder that is CPU- and
// memory-heavy. JobTimeout is the hard wall-clock limit per job
// (default "1h").
type TranscoderConfig struct {
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	JobTimeout string `json:"job_timeout,omitempty"`
}

// DispatcherConfig controls the schedule trigger dispatcher.
type DispatcherConfig struct {
	SendWorkers int    `json:"send_workers,omitempty"` // default 2
	QueueSize   int    `json:"queue_size,omitempty"`   // default 256
	SendTimeout string `json:"send_timeout,omitempty"` // default "30s"
	Timezone    string `json:"timezone,omitempty"`     // default zone for rules without one
}

// MailerConfig carries SMTP delivery settings.
//
// When host is empty the mailer runs in log-only mode (sends are recorded but
// no connection is attempted), which keeps local development working without
// an SMTP server.
type MailerConfig struct {
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"` // default 587
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	FromAddress string `json:"from_address,omitempty"`
	FromName    string `json:"from_name,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default 5
}

// StorageConfig selects the registry persistence backend.
//
// Driver values:
//   - "" or "memory": process-memory store (the default)
//   - "sqlite": SQLite database file at Path
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
