package asset

import "time"

// Status is the asset lifecycle state.
//
// Transitions are monotonic along uploading -> processing -> {ready|failed};
// deleted is reachable from any state and is terminal.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusDeleted    Status = "deleted"
)

// Terminal reports whether no further transcode transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed || s == StatusDeleted
}

// Metadata is what ffprobe extracts from the source file. All fields are
// best-effort: probe failure leaves the whole struct empty rather than
// failing the job.
type Metadata struct {
	Duration float64 `json:"duration,omitempty"` // seconds
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Bitrate  int64   `json:"bitrate,omitempty"` // bits per second
	Codec    string  `json:"codec,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	Size     int64   `json:"size,omitempty"` // bytes
}

// Asset is a video file plus its derived streaming manifest and metadata.
type Asset struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Status   Status `json:"status"`

	Meta *Metadata `json:"meta,omitempty"`

	// ManifestPath is the stable, asset-id-keyed location of the HLS playlist
	// once the asset is ready (e.g. "videos/<id>/index.m3u8").
	ManifestPath string `json:"manifest_path,omitempty"`

	// Error holds the human-readable failure reason when Status is failed.
	Error string `json:"error,omitempty"`

	// Generation guards against late writes from superseded transcode jobs.
	// Bumped each time a job is started for this asset.
	Generation uint64 `json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can't mutate registry state.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Meta != nil {
		m := *a.Meta
		cp.Meta = &m
	}
	return &cp
}
