// Package transcode runs the bounded background worker pool that turns
// uploaded source files into HLS renditions.
//
// Jobs enter through Submit, which also performs the uploading -> processing
// transition so a caller can never race two jobs for the same asset. Every
// job ends in exactly one terminal registry write; the per-asset generation
// allocated at submit time keeps a timed-out job from clobbering later state.
package transcode
