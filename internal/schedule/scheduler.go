package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job es una tarea de mantenimiento periódica del servidor.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler corre jobs de mantenimiento con expresiones cron de cinco campos.
// La cadena de cron recupera pánicos y descarta una ejecución si la anterior del
// mismo job no terminó. Stop cancela el contexto de los jobs en curso y los espera.
type CronScheduler struct {
	logger *zap.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar().Named("cron")}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		logger: logger,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob programa job; si ya había uno con el mismo nombre, lo reemplaza.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	logger := c.logger.With(zap.String("job", job.Name()), zap.String("spec", spec))
	id, err := c.cron.AddFunc(spec, func() { c.run(job, logger) })
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}

	c.mu.Lock()
	if prev, ok := c.entries[job.Name()]; ok {
		c.cron.Remove(prev)
	}
	c.entries[job.Name()] = id
	c.mu.Unlock()

	logger.Info("job scheduled")
	return nil
}

// Start arranca el cron; cancelar ctx equivale a llamar a Stop.
func (c *CronScheduler) Start(ctx context.Context) {
	if ctx != nil {
		c.mu.Lock()
		c.cancel()
		c.ctx, c.cancel = context.WithCancel(ctx)
		c.mu.Unlock()
	}
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) jobContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *CronScheduler) run(job Job, logger *zap.Logger) {
	ctx := c.jobContext()
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	logger.Debug("job finished", zap.Duration("duration", time.Since(start)))
}

// cronLogger adapta zap al cron.Logger de robfig.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
