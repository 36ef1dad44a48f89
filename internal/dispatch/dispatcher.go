package dispatch

import (
	"context"
	"sync"
	"time"

	"clipflow/internal/asset"
	"clipflow/internal/eventbus"
	"clipflow/internal/recur"
	"clipflow/internal/schedule"
	logx "clipflow/pkg/logx"
)

const (
	EventFired     = "schedule.fired"
	EventCompleted = "schedule.completed"
	EventSendOK    = "send.ok"
	EventSendFail  = "send.failed"
)

// Sender delivers one notification. Implementations report the provider
// message id on success.
type Sender interface {
	Send(ctx context.Context, s *schedule.Schedule, a *asset.Asset) (messageID string, err error)
}

type Config struct {
	SendWorkers int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher owns the timer set and the fire pipeline. It implements
// schedule.Armer so the registry can keep timers in sync with stored state.
type Dispatcher struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	schedules *schedule.Registry
	assets    schedule.AssetResolver
	sender    Sender

	now func() time.Time

	tmu    sync.Mutex
	timers map[string]*time.Timer
	vers   map[string]uint64

	fires chan string
	jobs  chan string

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func New(cfg Config, schedules *schedule.Registry, assets schedule.AssetResolver, sender Sender, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if cfg.SendWorkers <= 0 {
		cfg.SendWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		schedules: schedules,
		assets:    assets,
		sender:    sender,
		now:       time.Now,
		timers:    map[string]*time.Timer{},
		vers:      map[string]uint64{},
		fires:     make(chan string, cfg.QueueSize),
		jobs:      make(chan string, cfg.QueueSize),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the coordinator and send workers, then re-arms every
// active schedule found in the registry. Pending instants missed while the
// process was down fire once immediately; the following occurrence is
// computed from the anchor as usual, so no catch-up burst happens.
func (d *Dispatcher) Start(ctx context.Context) error {
	var rearmErr error
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.coordinator()
		for i := 0; i < d.cfg.SendWorkers; i++ {
			d.wg.Add(1)
			go d.sendWorker()
		}

		active, err := d.schedules.Active(ctx)
		if err != nil {
			rearmErr = err
			return
		}
		for _, s := range active {
			d.Arm(s)
		}
		d.log.Info("dispatcher started",
			logx.Int("workers", d.cfg.SendWorkers),
			logx.Int("armed", len(active)),
		)
	})
	return rearmErr
}

// Stop cancels all pending timers and waits for in-flight fires to finish.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.stopOnce.Do(func() {
		close(d.stopCh)

		d.tmu.Lock()
		for id, t := range d.timers {
			t.Stop()
			delete(d.timers, id)
		}
		d.tmu.Unlock()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			d.log.Info("dispatcher stopped")
		case <-ctx.Done():
			d.log.Warn("dispatcher stop timed out", logx.Err(ctx.Err()))
		}
	})
}

// Arm sets (or replaces) the pending timer for the schedule. A due or
// overdue next_send fires immediately.
func (d *Dispatcher) Arm(s *schedule.Schedule) {
	delay := s.NextSend.Sub(d.now())
	if delay < 0 {
		delay = 0
	}

	d.tmu.Lock()
	if t := d.timers[s.ID]; t != nil {
		t.Stop()
	}
	d.vers[s.ID]++
	ver := d.vers[s.ID]
	id := s.ID
	d.timers[id] = time.AfterFunc(delay, func() { d.timerFired(id, ver) })
	d.tmu.Unlock()

	d.log.Debug("schedule armed",
		logx.String("schedule_id", s.ID),
		logx.Time("next_send", s.NextSend),
		logx.Duration("in", delay),
	)
}

// Disarm cancels the pending timer, if any. A callback already past its
// version check may still be in flight; the fire path's status re-read
// makes that harmless.
func (d *Dispatcher) Disarm(id string) {
	d.tmu.Lock()
	if t := d.timers[id]; t != nil {
		t.Stop()
		delete(d.timers, id)
	}
	d.vers[id]++
	d.tmu.Unlock()
}

// Armed reports whether a pending timer exists for the id.
func (d *Dispatcher) Armed(id string) bool {
	d.tmu.Lock()
	_, ok := d.timers[id]
	d.tmu.Unlock()
	return ok
}

func (d *Dispatcher) timerFired(id string, ver uint64) {
	d.tmu.Lock()
	if d.vers[id] != ver {
		// Superseded by a later Arm or a Disarm.
		d.tmu.Unlock()
		return
	}
	delete(d.timers, id)
	d.tmu.Unlock()

	select {
	case d.fires <- id:
	case <-d.stopCh:
	}
}

// coordinator moves fire events to the send workers. It exists so the
// ordering point between timer callbacks and sends is a single goroutine.
func (d *Dispatcher) coordinator() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case id := <-d.fires:
			select {
			case d.jobs <- id:
			case <-d.stopCh:
				return
			}
		}
	}
}

func (d *Dispatcher) sendWorker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case id := <-d.jobs:
			d.fire(context.Background(), id)
		}
	}
}

// fire runs the full per-occurrence sequence for one schedule.
func (d *Dispatcher) fire(ctx context.Context, id string) {
	now := d.now()

	// Re-read: a concurrent pause or delete wins over a timer already fired.
	s, ok, err := d.schedules.Get(ctx, id)
	if err != nil {
		d.log.Error("fire aborted: load failed", logx.String("schedule_id", id), logx.Err(err))
		return
	}
	if !ok || s.Status != schedule.StatusActive {
		d.log.Debug("fire skipped: schedule not active", logx.String("schedule_id", id))
		return
	}

	// Expiry wins over sending: the schedule completes untouched.
	if s.Expired(now) {
		if _, err := d.schedules.Mutate(ctx, id, func(s *schedule.Schedule) error {
			s.Status = schedule.StatusCompleted
			s.NextSend = time.Time{}
			return nil
		}); err != nil {
			d.log.Error("expire transition failed", logx.String("schedule_id", id), logx.Err(err))
			return
		}
		d.log.Info("schedule auto-expired", logx.String("schedule_id", id))
		d.publish(EventCompleted, id)
		return
	}

	a, found, err := d.assets.Get(ctx, s.AssetID)
	if err != nil {
		d.log.Error("fire aborted: asset load failed", logx.String("schedule_id", id), logx.Err(err))
		return
	}
	if !found || a.Status == asset.StatusDeleted {
		// Skip without touching send statistics; the timer is gone, so a
		// periodic schedule is re-armed for its next occurrence.
		d.log.Warn("fire skipped: referenced asset missing",
			logx.String("schedule_id", id),
			logx.String("asset_id", s.AssetID),
		)
		d.rearm(ctx, id, now)
		return
	}

	d.publish(EventFired, id)
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	msgID, sendErr := d.sender.Send(sendCtx, s, a)
	cancel()

	if sendErr != nil {
		// Delivery faults never fail the schedule; the next occurrence is
		// still attempted.
		d.log.Warn("notification send failed",
			logx.String("schedule_id", id),
			logx.String("recipient", s.Recipient.Email),
			logx.Err(sendErr),
		)
		d.publish(EventSendFail, id)
	} else {
		d.log.Info("notification sent",
			logx.String("schedule_id", id),
			logx.String("recipient", s.Recipient.Email),
			logx.String("message_id", msgID),
		)
		d.publish(EventSendOK, id)
	}

	// Send statistics update regardless of outcome.
	once := s.Frequency == recur.FreqOnce
	var next time.Time
	if !once {
		next, err = recur.NextFire(s.Rule(), now)
		if err != nil {
			d.log.Error("next fire computation failed", logx.String("schedule_id", id), logx.Err(err))
			return
		}
	}
	upd, err := d.schedules.Mutate(ctx, id, func(s *schedule.Schedule) error {
		s.LastSent = now.UTC()
		s.SendCount++
		if once {
			s.Status = schedule.StatusCompleted
			s.NextSend = time.Time{}
		} else {
			s.NextSend = next
		}
		return nil
	})
	if err != nil {
		d.log.Error("fire bookkeeping failed", logx.String("schedule_id", id), logx.Err(err))
		return
	}

	if once {
		d.publish(EventCompleted, id)
		return
	}
	d.Arm(upd)
}

// rearm recomputes next_send from the anchor and arms a fresh timer; used
// on skip paths where no statistics change.
func (d *Dispatcher) rearm(ctx context.Context, id string, now time.Time) {
	s, ok, err := d.schedules.Get(ctx, id)
	if err != nil || !ok || s.Status != schedule.StatusActive {
		return
	}
	if s.Frequency == recur.FreqOnce {
		return
	}
	next, err := recur.NextFire(s.Rule(), now)
	if err != nil {
		return
	}
	upd, err := d.schedules.Mutate(ctx, id, func(s *schedule.Schedule) error {
		s.NextSend = next
		return nil
	})
	if err != nil {
		return
	}
	d.Arm(upd)
}

func (d *Dispatcher) publish(typ, scheduleID string) {
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: typ, Data: map[string]string{"schedule_id": scheduleID}})
	}
}
