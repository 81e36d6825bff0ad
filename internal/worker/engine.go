package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/messaging"
)

// HandlerRegistration binds an event type to a handler.
type HandlerRegistration struct {
	EventType string
	Handler   messaging.Handler
}

// Job is a task the engine runs on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(context.Context) error
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
	Jobs          []Job                 `group:"worker.jobs"`
}

// Engine orchestrates background message consumption and periodic jobs.
type Engine struct {
	client        messaging.Client
	logger        *zap.Logger
	cfg           config.Config
	registrations map[string]messaging.Handler
	jobs          []Job
	cancel        context.CancelFunc
	wg            *sync.WaitGroup
}

// NewEngine constructs the worker Engine.
func NewEngine(p Params) *Engine {
	reg := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.EventType == "" || r.Handler == nil {
			continue
		}
		reg[r.EventType] = r.Handler
	}

	jobs := make([]Job, 0, len(p.Jobs))
	for _, j := range p.Jobs {
		if j.Run == nil || j.Interval <= 0 {
			continue
		}
		jobs = append(jobs, j)
	}

	return &Engine{
		client:        p.Client,
		logger:        p.Logger,
		cfg:           p.Config,
		registrations: reg,
		jobs:          jobs,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(ctx context.Context) error {
	if !e.cfg.Messaging.Workers.Enabled {
		e.logger.Info("worker engine disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg = &sync.WaitGroup{}

	for _, job := range e.jobs {
		e.wg.Add(1)
		go func(job Job) {
			defer e.wg.Done()
			e.jobLoop(runCtx, job)
		}(job)
	}

	consumers := 0
	if e.cfg.Messaging.Enabled && len(e.registrations) > 0 {
		consumers = e.cfg.Messaging.Workers.Concurrency
		if consumers <= 0 {
			consumers = 1
		}
		for i := 0; i < consumers; i++ {
			workerID := i
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.consumeLoop(runCtx, workerID)
			}()
		}
	} else {
		e.logger.Info("message consumption disabled or no handlers registered")
	}

	e.logger.Info("worker engine started", zap.Int("consumers", consumers), zap.Int("jobs", len(e.jobs)))
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	done := make(chan struct{})
	go func() {
		if e.wg != nil {
			e.wg.Wait()
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	}
}

// Dispatch routes a message to the handler registered for its event type.
// Messages without a handler are acknowledged and dropped.
func (e *Engine) Dispatch(ctx context.Context, msg messaging.Message) error {
	eventType := msg.Headers[messaging.HeaderEventType]
	if eventType == "" {
		env, err := messaging.DecodeEnvelope(msg)
		if err != nil {
			e.logger.Warn("dropping undecodable message", zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}
		eventType = env.EventType
	}

	handler, ok := e.registrations[eventType]
	if !ok {
		e.logger.Debug("no handler for event", zap.String("event_type", eventType))
		return nil
	}
	return handler(ctx, msg)
}

func (e *Engine) consumeLoop(ctx context.Context, workerID int) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			e.logger.Debug("processing message", zap.String("topic", msg.Topic), zap.Int("worker", workerID))
			return e.Dispatch(msgCtx, msg)
		})

		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		e.logger.Error("consume loop error", zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (e *Engine) jobLoop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
			}
		}
	}
}
