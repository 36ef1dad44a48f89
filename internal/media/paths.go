// Package media wraps the external ffmpeg/ffprobe binaries and owns the
// on-disk layout for uploads and transcoded output.
package media

import "path/filepath"

// ManifestName is the playlist filename inside every asset output dir.
const ManifestName = "index.m3u8"

// Paths computes filesystem locations from the two configured roots. All
// derived paths are keyed by asset id so they stay stable across renames of
// the original upload.
type Paths struct {
	UploadDir string
	VideosDir string
}

// UploadPath is where the raw upload bytes land before transcoding.
// The original extension is kept so ffmpeg can sniff the container.
func (p Paths) UploadPath(assetID, ext string) string {
	return filepath.Join(p.UploadDir, assetID+ext)
}

// OutputDir is the per-asset directory holding the playlist and segments.
func (p Paths) OutputDir(assetID string) string {
	return filepath.Join(p.VideosDir, assetID)
}

// ManifestPath is the absolute playlist location for a transcoded asset.
func (p Paths) ManifestPath(assetID string) string {
	return filepath.Join(p.OutputDir(assetID), ManifestName)
}

// ManifestRef is the stable path recorded on the asset and handed to
// playback clients, relative to the serving root.
func ManifestRef(assetID string) string {
	return "videos/" + assetID + "/" + ManifestName
}
