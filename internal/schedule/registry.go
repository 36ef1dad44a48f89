// Package schedule owns schedule identity, recurrence rules and status.
//
// The registry is the single writer of schedule state. The dispatcher is
// notified of every change that affects its timer set through the Armer
// hook, so a pending timer can never outlive or contradict the stored
// schedule.
package schedule

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipflow/internal/asset"
	"clipflow/internal/eventbus"
	"clipflow/internal/fault"
	"clipflow/internal/recur"
	"clipflow/internal/storage"
	logx "clipflow/pkg/logx"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// AssetResolver is the read-only slice of the asset registry the schedule
// side needs.
type AssetResolver interface {
	Get(ctx context.Context, id string) (*asset.Asset, bool, error)
}

// Armer is the dispatcher's timer surface. Arm replaces any pending timer
// for the schedule id; Disarm cancels it.
type Armer interface {
	Arm(s *Schedule)
	Disarm(id string)
}

type Registry struct {
	store  storage.Store
	locks  *storage.KeyMutex
	bus    eventbus.Bus
	log    logx.Logger
	assets AssetResolver
	now    func() time.Time

	armerMu sync.Mutex
	armer   Armer

	// defaultTZ fills in requests that carry no timezone. Set once at wiring
	// time, before any requests are served.
	defaultTZ string
}

func NewRegistry(store storage.Store, assets AssetResolver, bus eventbus.Bus, log logx.Logger) *Registry {
	return &Registry{
		store:  store,
		locks:  storage.NewKeyMutex(),
		bus:    bus,
		log:    log,
		assets: assets,
		now:    time.Now,
	}
}

// SetDefaultTimezone sets the zone applied to create requests that omit one.
func (r *Registry) SetDefaultTimezone(tz string) {
	r.defaultTZ = strings.TrimSpace(tz)
}

// SetArmer wires the dispatcher in after construction; the two depend on
// each other.
func (r *Registry) SetArmer(a Armer) {
	r.armerMu.Lock()
	r.armer = a
	r.armerMu.Unlock()
}

func (r *Registry) arm(s *Schedule) {
	r.armerMu.Lock()
	a := r.armer
	r.armerMu.Unlock()
	if a != nil {
		a.Arm(s.Clone())
	}
}

func (r *Registry) disarm(id string) {
	r.armerMu.Lock()
	a := r.armer
	r.armerMu.Unlock()
	if a != nil {
		a.Disarm(id)
	}
}

// Create validates the request, computes the initial next_send and arms the
// dispatcher. Referencing a missing or deleted asset is a validation fault,
// not a server fault.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Schedule, error) {
	email := strings.TrimSpace(req.RecipientEmail)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fault.Validation("recipient email %q is invalid", req.RecipientEmail)
	}
	freq, err := recur.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, err
	}

	a, ok, err := r.assets.Get(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}
	if !ok || a.Status == asset.StatusDeleted {
		return nil, fault.Validation("schedule references unknown asset %q", req.AssetID)
	}

	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = r.defaultTZ
	}

	now := r.now()
	s := &Schedule{
		ID:      uuid.NewString(),
		AssetID: req.AssetID,
		Recipient: Recipient{
			Email: email,
			Name:  strings.TrimSpace(req.RecipientName),
		},
		SenderName:       strings.TrimSpace(req.SenderName),
		Frequency:        freq,
		CustomSpec:       strings.TrimSpace(req.CustomSpec),
		ScheduledAt:      req.ScheduledAt,
		Timezone:         tz,
		Subject:          req.Subject,
		Message:          req.Message,
		Template:         req.Template,
		IncludeThumbnail: req.IncludeThumbnail,
		IncludeDuration:  req.IncludeDuration,
		Status:           StatusActive,
		AutoExpire:       req.AutoExpire,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
	if err := s.Rule().Validate(); err != nil {
		return nil, err
	}
	next, err := recur.NextFire(s.Rule(), now)
	if err != nil {
		return nil, err
	}
	s.NextSend = next

	if err := r.put(ctx, s); err != nil {
		return nil, err
	}
	r.log.Info("schedule created",
		logx.String("schedule_id", s.ID),
		logx.String("asset_id", s.AssetID),
		logx.String("frequency", string(s.Frequency)),
		logx.Time("next_send", s.NextSend),
	)
	r.arm(s)
	return s.Clone(), nil
}

// Get returns the schedule, or ok=false for an unknown id.
func (r *Registry) Get(ctx context.Context, id string) (*Schedule, bool, error) {
	raw, ok, err := r.store.Get(ctx, storage.KeyspaceSchedules, id)
	if err != nil {
		return nil, false, fault.Internal(err, "load schedule")
	}
	if !ok {
		return nil, false, nil
	}
	var s Schedule
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fault.Internal(err, "decode schedule")
	}
	return &s, true, nil
}

// List returns one page in creation order plus the total count across all
// pages. page is 1-based.
func (r *Registry) List(ctx context.Context, page, perPage int) ([]*Schedule, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	start := (page - 1) * perPage
	if start >= total {
		return []*Schedule{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// Active returns every schedule in active status, in creation order.
func (r *Registry) Active(ctx context.Context) ([]*Schedule, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if s.Status == StatusActive {
			out = append(out, s)
		}
	}
	return out, nil
}

// Update applies the set fields. A recurrence change, or a resume back to
// active, recomputes next_send against the current clock: occurrences
// missed while paused are skipped, only future ones fire.
func (r *Registry) Update(ctx context.Context, id string, req UpdateRequest) (*Schedule, error) {
	unlock := r.locks.Lock(id)

	s, ok, err := r.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if !ok {
		unlock()
		return nil, fault.NotFound("schedule %s not found", id)
	}

	recompute := req.touchesRecurrence()
	if req.RecipientEmail != nil {
		email := strings.TrimSpace(*req.RecipientEmail)
		if email == "" || !strings.Contains(email, "@") {
			unlock()
			return nil, fault.Validation("recipient email %q is invalid", *req.RecipientEmail)
		}
		s.Recipient.Email = email
	}
	if req.RecipientName != nil {
		s.Recipient.Name = strings.TrimSpace(*req.RecipientName)
	}
	if req.SenderName != nil {
		s.SenderName = strings.TrimSpace(*req.SenderName)
	}
	if req.Frequency != nil {
		freq, err := recur.ParseFrequency(*req.Frequency)
		if err != nil {
			unlock()
			return nil, err
		}
		s.Frequency = freq
		if freq != recur.FreqCustom {
			s.CustomSpec = ""
		}
	}
	if req.CustomSpec != nil {
		s.CustomSpec = strings.TrimSpace(*req.CustomSpec)
	}
	if req.ScheduledAt != nil {
		s.ScheduledAt = *req.ScheduledAt
	}
	if req.Timezone != nil {
		s.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if req.Subject != nil {
		s.Subject = *req.Subject
	}
	if req.Message != nil {
		s.Message = *req.Message
	}
	if req.Template != nil {
		s.Template = *req.Template
	}
	if req.IncludeThumbnail != nil {
		s.IncludeThumbnail = *req.IncludeThumbnail
	}
	if req.IncludeDuration != nil {
		s.IncludeDuration = *req.IncludeDuration
	}
	if req.AutoExpire != nil {
		s.AutoExpire = *req.AutoExpire
	}
	if req.Status != nil {
		st, err := ParseStatus(*req.Status)
		if err != nil {
			unlock()
			return nil, err
		}
		if st == StatusActive && s.Status != StatusActive {
			recompute = true
		}
		s.Status = st
	}

	if err := s.Rule().Validate(); err != nil {
		unlock()
		return nil, err
	}
	if recompute {
		next, err := recur.NextFire(s.Rule(), r.now())
		if err != nil {
			unlock()
			return nil, err
		}
		s.NextSend = next
	}
	s.UpdatedAt = r.now().UTC()

	if err := r.put(ctx, s); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	// Timer replacement happens outside the entity lock: Arm may call back
	// into the registry from the fire path.
	if s.Status == StatusActive {
		r.arm(s)
	} else {
		r.disarm(id)
	}
	r.log.Info("schedule updated",
		logx.String("schedule_id", id),
		logx.String("status", string(s.Status)),
		logx.Time("next_send", s.NextSend),
	)
	return s.Clone(), nil
}

// Delete removes the schedule and cancels its pending timer. Reports
// whether a schedule existed.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	unlock := r.locks.Lock(id)
	existed, err := r.store.Delete(ctx, storage.KeyspaceSchedules, id)
	unlock()
	if err != nil {
		return false, fault.Internal(err, "delete schedule")
	}
	r.disarm(id)
	if existed {
		r.log.Info("schedule deleted", logx.String("schedule_id", id))
	}
	return existed, nil
}

// Mutate lets the dispatcher apply fire-path changes under the entity lock.
// The mutated schedule is persisted and returned; the timer set is not
// touched.
func (r *Registry) Mutate(ctx context.Context, id string, fn func(*Schedule) error) (*Schedule, error) {
	defer r.locks.Lock(id)()

	s, ok, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.NotFound("schedule %s not found", id)
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.UpdatedAt = r.now().UTC()
	if err := r.put(ctx, s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (r *Registry) loadAll(ctx context.Context) ([]*Schedule, error) {
	raws, err := r.store.List(ctx, storage.KeyspaceSchedules)
	if err != nil {
		return nil, fault.Internal(err, "list schedules")
	}
	out := make([]*Schedule, 0, len(raws))
	for _, raw := range raws {
		var s Schedule
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fault.Internal(err, "decode schedule")
		}
		out = append(out, &s)
	}
	return out, nil
}

func (r *Registry) put(ctx context.Context, s *Schedule) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fault.Internal(err, "encode schedule")
	}
	if err := r.store.Put(ctx, storage.KeyspaceSchedules, s.ID, raw); err != nil {
		return fault.Internal(err, "store schedule")
	}
	return nil
}
