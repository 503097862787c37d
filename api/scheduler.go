/*
scheduler.go - Daily benefit job scheduler

PURPOSE:
  Runs the reminder and archive jobs once a day at a configured hour in the
  service timezone, the way the cron entries "0 9 * * *" and "0 2 * * *"
  would, without depending on the host's cron or timezone.

DESIGN:
  - Runs a background goroutine that wakes every CheckInterval
  - A job fires on the first tick inside its hour, at most once per date
  - A startup entry is written to the job log when the scheduler starts
  - Stop cancels a running job's context and waits for it to return

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDailyScheduler(service, DefaultJobs(service, 9, 2), loc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: manual trigger endpoints
  - reminder/: the jobs themselves
*/
package api

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cardperks/benefit-engine/reminder"
)

// DailyJob is a job run once a day at Hour (0-23).
type DailyJob struct {
	Name string
	Hour int
	Run  func(ctx context.Context) error
}

// DefaultJobs returns the expiration check and the archive job.
func DefaultJobs(svc *reminder.Service, checkHour, archiveHour int) []DailyJob {
	return []DailyJob{
		{
			Name: reminder.JobCheckExpiring,
			Hour: checkHour,
			Run: func(ctx context.Context) error {
				_, err := svc.CheckExpiring(ctx)
				return err
			},
		},
		{
			Name: reminder.JobArchiveExpired,
			Hour: archiveHour,
			Run: func(ctx context.Context) error {
				_, err := svc.ArchiveExpired(ctx)
				return err
			},
		},
	}
}

// DailyScheduler triggers DailyJobs.
type DailyScheduler struct {
	Service       *reminder.Service
	Jobs          []DailyJob
	Location      *time.Location
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	now    func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	// lastRun maps job name to the date it last fired.
	runMu   sync.Mutex
	lastRun map[string]string
}

// NewDailyScheduler creates a new scheduler.
func NewDailyScheduler(svc *reminder.Service, jobs []DailyJob, loc *time.Location, logger *zap.Logger) *DailyScheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyScheduler{
		Service:       svc,
		Jobs:          jobs,
		Location:      loc,
		CheckInterval: time.Minute,
		Enabled:       true,
		logger:        logger.Named("scheduler"),
		now:           time.Now,
		lastRun:       map[string]string{},
	}
}

// Start begins the scheduler.
func (ds *DailyScheduler) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		ds.logger.Info("disabled, not starting")
		return
	}
	if ds.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ds.cancel = cancel
	ds.stop = make(chan struct{})
	ds.ticker = time.NewTicker(ds.CheckInterval)

	if ds.Service != nil {
		details := map[string]string{"timezone": ds.Location.String()}
		for _, j := range ds.Jobs {
			details[j.Name] = strconv.Itoa(j.Hour) + ":00"
		}
		ds.Service.RecordStartup(ctx, details)
	}

	ds.wg.Add(1)
	go ds.run(ctx, ds.ticker, ds.stop)

	ds.logger.Info("started",
		zap.Duration("check_interval", ds.CheckInterval),
		zap.String("timezone", ds.Location.String()),
		zap.Int("jobs", len(ds.Jobs)))
}

// Stop stops the scheduler and waits for a running job to return.
func (ds *DailyScheduler) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.ticker == nil {
		return
	}
	ds.ticker.Stop()
	ds.cancel()
	close(ds.stop)
	ds.wg.Wait()
	ds.ticker = nil
	ds.logger.Info("stopped")
}

func (ds *DailyScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer ds.wg.Done()

	// Run immediately on start
	ds.tick(ctx, ds.now())

	for {
		select {
		case <-ticker.C:
			ds.tick(ctx, ds.now())
		case <-stop:
			return
		}
	}
}

// tick fires every job whose hour it is and which hasn't run today.
// It returns the names of the jobs it ran.
func (ds *DailyScheduler) tick(ctx context.Context, now time.Time) []string {
	local := now.In(ds.Location)
	date := local.Format("2006-01-02")

	var ran []string
	for _, job := range ds.Jobs {
		if local.Hour() != job.Hour || !ds.claim(job.Name, date) {
			continue
		}
		if ctx.Err() != nil {
			return ran
		}

		ds.logger.Info("running job", zap.String("job", job.Name), zap.String("date", date))
		if err := job.Run(ctx); err != nil {
			ds.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		}
		ran = append(ran, job.Name)
	}
	return ran
}

// claim records that job runs on date; false if it already has.
func (ds *DailyScheduler) claim(job, date string) bool {
	ds.runMu.Lock()
	defer ds.runMu.Unlock()

	if ds.lastRun[job] == date {
		return false
	}
	ds.lastRun[job] = date
	return true
}

// NextRunTime returns when the named job will next fire, or false for an
// unknown job.
func (ds *DailyScheduler) NextRunTime(name string) (time.Time, bool) {
	local := ds.now().In(ds.Location)
	for _, job := range ds.Jobs {
		if job.Name != name {
			continue
		}
		next := time.Date(local.Year(), local.Month(), local.Day(), job.Hour, 0, 0, 0, ds.Location)
		ds.runMu.Lock()
		ranToday := ds.lastRun[name] == local.Format("2006-01-02")
		ds.runMu.Unlock()
		if ranToday || !local.Before(next.Add(time.Hour)) {
			next = next.AddDate(0, 0, 1)
		}
		return next, true
	}
	return time.Time{}, false
}
