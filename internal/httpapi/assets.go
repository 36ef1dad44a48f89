package httpapi

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"clipflow/internal/asset"
	"clipflow/internal/fault"
	logx "clipflow/pkg/logx"
)

const (
	defaultMaxUploadBytes = 1 << 30 // 1 GiB
)

var defaultExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm", ".flv"}

func (h *Handlers) allowedExt(ext string) bool {
	allowed := h.media.AllowedExtensions
	if len(allowed) == 0 {
		allowed = defaultExtensions
	}
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

func (h *Handlers) maxUploadBytes() int64 {
	if h.media.MaxUploadBytes > 0 {
		return h.media.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

// uploadVideo accepts the multipart upload, registers the asset and hands it
// to the transcode pool. The response returns before transcoding finishes.
func (h *Handlers) uploadVideo(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.writeErr(c, fault.Validation("multipart field %q is required", "file"))
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !h.allowedExt(ext) {
		h.writeErr(c, fault.Validation("file type %q is not supported", ext))
		return
	}
	if file.Size > h.maxUploadBytes() {
		h.writeErr(c, fault.Validation("file exceeds the %d byte upload limit", h.maxUploadBytes()))
		return
	}

	a, err := h.assets.Register(c.Request.Context(), filepath.Base(file.Filename))
	if err != nil {
		h.writeErr(c, err)
		return
	}

	dst := h.paths.UploadPath(a.ID, ext)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		h.writeErr(c, fault.Internal(err, "prepare upload dir"))
		return
	}
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.writeErr(c, fault.Internal(err, "persist upload"))
		return
	}

	if err := h.pool.Submit(c.Request.Context(), a.ID, dst); err != nil {
		h.writeErr(c, err)
		return
	}

	// Submit flipped the status; return the current view.
	if cur, ok, err := h.assets.Get(c.Request.Context(), a.ID); err == nil && ok {
		a = cur
	}
	c.JSON(http.StatusAccepted, a)
}

func (h *Handlers) listAssets(c *gin.Context) {
	list, err := h.assets.List(c.Request.Context())
	if err != nil {
		h.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": list, "total": len(list)})
}

func (h *Handlers) getAsset(c *gin.Context) {
	a, ok, err := h.assets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !ok || a.Status == asset.StatusDeleted {
		h.writeErr(c, fault.NotFound("video %s not found", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, a)
}

// deleteAsset flips the asset to deleted and reclaims its files. Output and
// upload removal failures are logged, not surfaced: state is authoritative.
func (h *Handlers) deleteAsset(c *gin.Context) {
	id := c.Param("id")
	existed, err := h.assets.MarkDeleted(c.Request.Context(), id)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !existed {
		h.writeErr(c, fault.NotFound("video %s not found", id))
		return
	}

	if err := os.RemoveAll(h.paths.OutputDir(id)); err != nil {
		h.log.Warn("removing output dir failed", logx.String("asset_id", id), logx.Err(err))
	}
	if matches, err := filepath.Glob(h.paths.UploadPath(id, ".*")); err == nil {
		for _, m := range matches {
			if err := os.Remove(m); err != nil {
				h.log.Warn("removing upload failed", logx.String("path", m), logx.Err(err))
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}

// serveMedia serves the HLS playlist and segments byte-exact from storage.
// Only ready assets are exposed; partial output from a failed transcode
// stays private.
func (h *Handlers) serveMedia(c *gin.Context) {
	id := c.Param("id")
	a, ok, err := h.assets.Get(c.Request.Context(), id)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !ok || a.Status != asset.StatusReady {
		h.writeErr(c, fault.NotFound("video %s is not available", id))
		return
	}

	rel := strings.TrimPrefix(c.Param("file"), "/")
	clean := path.Clean("/" + rel)
	if strings.Contains(clean, "..") || clean == "/" {
		h.writeErr(c, fault.Validation("invalid media path"))
		return
	}
	full := filepath.Join(h.paths.OutputDir(id), filepath.FromSlash(clean))

	switch strings.ToLower(path.Ext(clean)) {
	case ".m3u8":
		c.Header("Content-Type", "application/vnd.apple.mpegurl")
	case ".ts":
		c.Header("Content-Type", "video/mp2t")
	}
	c.Header("Cache-Control", "no-cache")
	c.File(full)
}
