package transcode

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"clipflow/internal/asset"
	"clipflow/internal/eventbus"
	"clipflow/internal/fault"
	"clipflow/internal/media"
	logx "clipflow/pkg/logx"
)

type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

type job struct {
	assetID    string
	srcPath    string
	gen        uint64
	enqueuedAt time.Time
}

// Pool owns the transcode workers. Start and Stop are idempotent; Stop waits
// for in-flight jobs to finish their terminal write.
type Pool struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	registry  *asset.Registry
	prober    media.Prober
	converter media.Converter
	paths     media.Paths

	q        chan job
	stopCh   chan struct{}
	stopDone chan struct{}
	wg       sync.WaitGroup

	dropped uint64
}

func NewPool(cfg Config, registry *asset.Registry, prober media.Prober, converter media.Converter, paths media.Paths, bus eventbus.Bus, log logx.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Hour
	}
	return &Pool{
		cfg:       cfg,
		registry:  registry,
		prober:    prober,
		converter: converter,
		paths:     paths,
		bus:       bus,
		log:       log,
	}
}

func (p *Pool) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if p.stopCh != nil {
		p.mu.Unlock()
		return
	}
	p.q = make(chan job, p.cfg.QueueSize)
	p.stopCh = make(chan struct{})
	p.stopDone = nil
	queue := p.q
	stopCh := p.stopCh
	workers := p.cfg.Workers
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func(idx int) {
			defer p.wg.Done()
			p.worker(ctx, stopCh, queue, idx)
		}(i)
	}
	p.log.Info("transcode pool started",
		logx.Int("workers", workers),
		logx.Int("queue", cap(queue)),
	)
}

func (p *Pool) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if p.stopCh == nil {
		p.mu.Unlock()
		return
	}
	if p.stopDone != nil {
		done := p.stopDone
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	p.stopDone = done
	close(p.stopCh)
	p.mu.Unlock()

	go func() {
		p.wg.Wait()
		p.mu.Lock()
		p.q = nil
		p.stopCh = nil
		p.stopDone = nil
		p.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("transcode pool stopped")
	case <-ctx.Done():
		p.log.Warn("transcode pool stop timed out", logx.Err(ctx.Err()))
	}
}

// Submit moves the asset into processing and queues the transcode job.
// Non-blocking: a full queue fails the asset immediately rather than
// stalling the upload request.
func (p *Pool) Submit(ctx context.Context, assetID, srcPath string) error {
	p.mu.Lock()
	queue := p.q
	stopping := p.stopDone != nil
	p.mu.Unlock()

	if queue == nil || stopping {
		return fault.New(fault.KindInternal, "transcode pool is not running")
	}

	gen, err := p.registry.BeginProcessing(ctx, assetID)
	if err != nil {
		return err
	}

	j := job{assetID: assetID, srcPath: srcPath, gen: gen, enqueuedAt: time.Now()}
	select {
	case queue <- j:
		p.log.Debug("transcode job queued",
			logx.String("asset_id", assetID),
			logx.Int("queue_len", len(queue)),
		)
		return nil
	default:
		atomic.AddUint64(&p.dropped, 1)
		reason := "transcode queue full"
		_ = p.registry.MarkFailed(ctx, assetID, gen, reason)
		if p.bus != nil {
			p.bus.Publish(eventbus.Event{Type: "transcode.dropped", Data: map[string]string{"asset_id": assetID}})
		}
		p.log.Warn("transcode job dropped",
			logx.String("asset_id", assetID),
			logx.Uint64("dropped", atomic.LoadUint64(&p.dropped)),
		)
		return fault.New(fault.KindProcessing, "%s", reason)
	}
}

func (p *Pool) worker(ctx context.Context, stopCh <-chan struct{}, queue chan job, idx int) {
	_ = idx
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j, ok := <-queue:
			if !ok {
				return
			}
			p.runJob(ctx, j)
		}
	}
}

func (p *Pool) runJob(ctx context.Context, j job) {
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	// One bad file must not take a worker down.
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("transcode panic",
				logx.String("asset_id", j.assetID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			_ = p.registry.MarkFailed(context.Background(), j.assetID, j.gen, fmt.Sprintf("transcode panic: %v", r))
			p.cleanupSource(j)
		}
	}()

	p.log.Info("transcode started",
		logx.String("asset_id", j.assetID),
		logx.Duration("queue_delay", start.Sub(j.enqueuedAt)),
	)

	// Probe is best-effort: an unreadable header still transcodes fine for
	// many containers, so failure only costs metadata.
	meta, err := p.prober.Probe(jobCtx, j.srcPath)
	if err != nil {
		p.log.Warn("probe failed, continuing without metadata",
			logx.String("asset_id", j.assetID),
			logx.Err(err),
		)
		meta = &asset.Metadata{}
		if fi, statErr := os.Stat(j.srcPath); statErr == nil {
			meta.Size = fi.Size()
		}
	}

	outDir := p.paths.OutputDir(j.assetID)
	convErr := p.converter.Convert(jobCtx, j.srcPath, outDir)

	// Terminal write, then source cleanup, regardless of outcome.
	if convErr != nil {
		reason := convErr.Error()
		if jobCtx.Err() == context.DeadlineExceeded {
			reason = fmt.Sprintf("transcode timed out after %s", p.cfg.JobTimeout)
		}
		// Use a fresh context: the job context may already be dead.
		_ = p.registry.MarkFailed(context.Background(), j.assetID, j.gen, reason)
		p.cleanupSource(j)
		return
	}

	err = p.registry.MarkReady(context.Background(), j.assetID, j.gen, meta, media.ManifestRef(j.assetID))
	if err != nil {
		p.log.Error("recording transcode result failed",
			logx.String("asset_id", j.assetID),
			logx.Err(err),
		)
	}
	p.cleanupSource(j)
	p.log.Info("transcode finished",
		logx.String("asset_id", j.assetID),
		logx.Duration("dur", time.Since(start)),
	)
}

func (p *Pool) cleanupSource(j job) {
	if err := os.Remove(j.srcPath); err != nil && !os.IsNotExist(err) {
		p.log.Warn("removing source file failed",
			logx.String("asset_id", j.assetID),
			logx.String("path", j.srcPath),
			logx.Err(err),
		)
	}
}
