package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/queue"
	"knowledge-platform/internal/store"
	"knowledge-platform/models"
)

// Poller periodically scans active sources and enqueues a poll task for
// every source whose interval has elapsed. The actual extraction runs in
// workers; the poller only decides what is due.
type Poller struct {
	scheduler *gocron.Scheduler
	sources   store.Sources
	client    *asynq.Client
	tick      time.Duration
	now       func() time.Time
}

func NewPoller(sources store.Sources, client *asynq.Client, tick time.Duration) *Poller {
	if tick <= 0 {
		tick = time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Poller{
		scheduler: s,
		sources:   sources,
		client:    client,
		tick:      tick,
		now:       time.Now,
	}
}

// Start begins the polling loop in the background.
func (p *Poller) Start() error {
	_, err := p.scheduler.Every(p.tick).Tag("source-poll").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.tick)
		defer cancel()
		if err := p.Scan(ctx); err != nil {
			logger.Error("Source scan failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	p.scheduler.StartAsync()
	logger.Info("Source poller started", "tick", p.tick.String())
	return nil
}

func (p *Poller) Stop() {
	p.scheduler.Stop()
}

// Scan enqueues one poll task per due source.
func (p *Poller) Scan(ctx context.Context) error {
	sources, err := p.sources.ListActive(ctx)
	if err != nil {
		return err
	}
	due := 0
	for _, source := range sources {
		if !p.isDue(source) {
			continue
		}
		task, err := queue.NewSourcePollTask(source.ID)
		if err != nil {
			return err
		}
		if _, err := p.client.EnqueueContext(ctx, task); err != nil {
			logger.Error("Failed to enqueue source poll", "source", source.Name, "error", err)
			continue
		}
		due++
	}
	if due > 0 {
		logger.Debug("Sources due for polling", "count", due)
	}
	return nil
}

// isDue reports whether the source's poll interval has elapsed since the
// last check. A source never checked before is always due.
func (p *Poller) isDue(source models.Source) bool {
	if source.PollInterval <= 0 {
		return false
	}
	if source.LastCheckedAt == nil {
		return true
	}
	return p.now().Sub(*source.LastCheckedAt) >= source.PollInterval
}
