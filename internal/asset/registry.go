// Package asset tracks uploaded videos through their transcode lifecycle.
//
// The registry is the single writer of asset state. Transitions are
// monotonic; terminal writes happen exactly once and late writes from
// superseded jobs are rejected by a per-asset generation counter.
package asset

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipflow/internal/eventbus"
	"clipflow/internal/fault"
	"clipflow/internal/storage"
	logx "clipflow/pkg/logx"
)

const (
	EventReady  = "asset.ready"
	EventFailed = "asset.failed"
)

// Registry persists assets in the store's "assets" keyspace and serializes
// read-modify-write cycles per asset id.
type Registry struct {
	store storage.Store
	locks *storage.KeyMutex
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
}

func NewRegistry(store storage.Store, bus eventbus.Bus, log logx.Logger) *Registry {
	return &Registry{
		store: store,
		locks: storage.NewKeyMutex(),
		bus:   bus,
		log:   log,
		now:   time.Now,
	}
}

// Register creates a new asset in the uploading state and returns it.
func (r *Registry) Register(ctx context.Context, filename string) (*Asset, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fault.Validation("filename is required")
	}

	now := r.now().UTC()
	a := &Asset{
		ID:        uuid.NewString(),
		Filename:  filename,
		Status:    StatusUploading,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.put(ctx, a); err != nil {
		return nil, err
	}
	r.log.Info("asset registered",
		logx.String("asset_id", a.ID),
		logx.String("filename", filename),
	)
	return a.Clone(), nil
}

// Get returns the asset, or ok=false when the id is unknown. A missing asset
// is a normal negative result, not an error.
func (r *Registry) Get(ctx context.Context, id string) (*Asset, bool, error) {
	raw, ok, err := r.store.Get(ctx, storage.KeyspaceAssets, id)
	if err != nil {
		return nil, false, fault.Internal(err, "load asset")
	}
	if !ok {
		return nil, false, nil
	}
	var a Asset
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false, fault.Internal(err, "decode asset")
	}
	return &a, true, nil
}

// List returns all non-deleted assets in creation order.
func (r *Registry) List(ctx context.Context) ([]*Asset, error) {
	raws, err := r.store.List(ctx, storage.KeyspaceAssets)
	if err != nil {
		return nil, fault.Internal(err, "list assets")
	}
	out := make([]*Asset, 0, len(raws))
	for _, raw := range raws {
		var a Asset
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fault.Internal(err, "decode asset")
		}
		if a.Status == StatusDeleted {
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

// BeginProcessing advances the asset from uploading to processing and
// allocates the generation for the transcode job. At most one job may be in
// flight per asset: a second call while processing is a validation fault.
func (r *Registry) BeginProcessing(ctx context.Context, id string) (uint64, error) {
	defer r.locks.Lock(id)()

	a, ok, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fault.NotFound("asset %s not found", id)
	}
	switch a.Status {
	case StatusUploading:
	case StatusProcessing:
		return 0, fault.Validation("asset %s already has a transcode job in flight", id)
	default:
		return 0, fault.Validation("asset %s is %s, cannot start transcode", id, a.Status)
	}

	a.Status = StatusProcessing
	a.Generation++
	a.UpdatedAt = r.now().UTC()
	if err := r.put(ctx, a); err != nil {
		return 0, err
	}
	return a.Generation, nil
}

// MarkReady records a successful transcode: metadata, the manifest location
// and the terminal ready state. A gen from a superseded job is a no-op.
func (r *Registry) MarkReady(ctx context.Context, id string, gen uint64, meta *Metadata, manifestPath string) error {
	defer r.locks.Lock(id)()

	a, ok, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fault.NotFound("asset %s not found", id)
	}
	if stale := r.staleWrite(a, gen, StatusReady); stale {
		return nil
	}

	a.Status = StatusReady
	a.Meta = meta
	a.ManifestPath = manifestPath
	a.Error = ""
	a.UpdatedAt = r.now().UTC()
	if err := r.put(ctx, a); err != nil {
		return err
	}

	r.log.Info("asset ready",
		logx.String("asset_id", id),
		logx.String("manifest", manifestPath),
	)
	r.bus.Publish(eventbus.Event{Type: EventReady, Data: map[string]string{"asset_id": id}})
	return nil
}

// MarkFailed records a terminal transcode failure with a caller-visible
// reason. A gen from a superseded job is a no-op.
func (r *Registry) MarkFailed(ctx context.Context, id string, gen uint64, reason string) error {
	defer r.locks.Lock(id)()

	a, ok, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fault.NotFound("asset %s not found", id)
	}
	if stale := r.staleWrite(a, gen, StatusFailed); stale {
		return nil
	}

	a.Status = StatusFailed
	a.Error = reason
	a.UpdatedAt = r.now().UTC()
	if err := r.put(ctx, a); err != nil {
		return err
	}

	r.log.Warn("asset failed",
		logx.String("asset_id", id),
		logx.String("reason", reason),
	)
	r.bus.Publish(eventbus.Event{Type: EventFailed, Data: map[string]string{"asset_id": id, "reason": reason}})
	return nil
}

// MarkDeleted flips the asset to the deleted terminal state. Returns false
// when the id is unknown or already deleted. File reclamation is the
// caller's job; the registry only owns state.
func (r *Registry) MarkDeleted(ctx context.Context, id string) (bool, error) {
	defer r.locks.Lock(id)()

	a, ok, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok || a.Status == StatusDeleted {
		return false, nil
	}

	a.Status = StatusDeleted
	a.UpdatedAt = r.now().UTC()
	if err := r.put(ctx, a); err != nil {
		return false, err
	}
	r.log.Info("asset deleted", logx.String("asset_id", id))
	return true, nil
}

// staleWrite reports whether a terminal write must be dropped, logging the
// anomaly. Caller holds the per-id lock.
func (r *Registry) staleWrite(a *Asset, gen uint64, want Status) bool {
	if a.Status.Terminal() {
		r.log.Warn("dropping late terminal write",
			logx.String("asset_id", a.ID),
			logx.String("current", string(a.Status)),
			logx.String("attempted", string(want)),
		)
		return true
	}
	if gen != a.Generation {
		r.log.Warn("dropping write from superseded job",
			logx.String("asset_id", a.ID),
			logx.Uint64("job_gen", gen),
			logx.Uint64("asset_gen", a.Generation),
		)
		return true
	}
	return false
}

func (r *Registry) put(ctx context.Context, a *Asset) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fault.Internal(err, "encode asset")
	}
	if err := r.store.Put(ctx, storage.KeyspaceAssets, a.ID, raw); err != nil {
		return fault.Internal(err, "store asset")
	}
	return nil
}
