// Package app assembles the voice agent from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/config"
	"github.com/devrev/hvac-voice-agent/internal/dialog"
	apierrors "github.com/devrev/hvac-voice-agent/internal/errors"
	"github.com/devrev/hvac-voice-agent/internal/extract"
	"github.com/devrev/hvac-voice-agent/internal/handler"
	"github.com/devrev/hvac-voice-agent/internal/health"
	"github.com/devrev/hvac-voice-agent/internal/knowledge"
	"github.com/devrev/hvac-voice-agent/internal/maintenance"
	"github.com/devrev/hvac-voice-agent/internal/metrics"
	"github.com/devrev/hvac-voice-agent/internal/resilience"
	"github.com/devrev/hvac-voice-agent/internal/schedule"
	"github.com/devrev/hvac-voice-agent/internal/server"
	"github.com/devrev/hvac-voice-agent/internal/service"
	"github.com/devrev/hvac-voice-agent/internal/session"
	"github.com/devrev/hvac-voice-agent/internal/speech"
	"github.com/devrev/hvac-voice-agent/internal/store"
	"github.com/devrev/hvac-voice-agent/internal/twiml"
	"github.com/devrev/hvac-voice-agent/internal/workerpool"
)

const apology = "I'm sorry, we're having trouble right now. Please call back in a few minutes. Goodbye."

// App is a fully wired voice agent.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	metrics       *metrics.Metrics
	sessions      session.Store
	db            store.Store
	pool          *workerpool.WorkerPool
	voice         *speech.Voice
	machine       *dialog.Machine
	knowledge     *knowledge.Base
	scheduler     *maintenance.Scheduler
	healthCheck   *health.HealthCheck
	server        *server.Server
	metricsServer *metrics.MetricsServer
	cancel        context.CancelFunc
}

// New builds every component from cfg. Dependencies that are disabled in
// configuration fall back to in-memory or local implementations.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics(),
	}

	cal, err := NewCalendar(cfg.Business)
	if err != nil {
		return nil, err
	}

	if err := a.initKnowledge(ctx); err != nil {
		return nil, err
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}

	a.pool = workerpool.New(workerpool.Config{
		Name:       "background",
		MaxWorkers: cfg.WorkerPool.MaxWorkers,
		QueueSize:  cfg.WorkerPool.QueueSize,
		Logger:     logger,
	})

	retry := resilience.RetryConfig{
		MaxRetries:      cfg.Retry.MaxRetries,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
	breaker := resilience.BreakerConfig{
		Enabled:             cfg.Breaker.Enabled,
		MaxRequests:         cfg.Breaker.MaxRequests,
		Interval:            cfg.Breaker.Interval,
		Timeout:             cfg.Breaker.Timeout,
		ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
	}
	ttsExec := resilience.NewExecutor("elevenlabs", retry, breaker, logger)
	llmExec := resilience.NewExecutor("openai", retry, breaker, logger)
	// Database calls are retried without a breaker.
	dbExec := resilience.NewExecutor("database", retry, resilience.BreakerConfig{}, logger)

	var llm extract.Extractor
	if cfg.OpenAI.Enabled {
		llm = extract.NewOpenAIExtractor(extract.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		}, llmExec, logger)
		logger.Info("LLM slot extraction enabled", zap.String("model", cfg.OpenAI.Model))
	}

	var synth speech.Synthesizer
	if cfg.ElevenLabs.Enabled {
		el, err := speech.NewElevenLabs(speech.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabs.APIKey,
			VoiceID:      cfg.ElevenLabs.VoiceID,
			Model:        cfg.ElevenLabs.Model,
			OutputFormat: cfg.ElevenLabs.OutputFormat,
			SampleRate:   cfg.ElevenLabs.SampleRate,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create elevenlabs client: %w", err)
		}
		synth = el
		logger.Info("ElevenLabs speech enabled", zap.String("voice_id", cfg.ElevenLabs.VoiceID))
	}

	cache := speech.NewAudioCache(cfg.AudioCache.MaxEntries, cfg.AudioCache.TTL)
	a.voice = speech.NewVoice(speech.VoiceConfig{
		PublicBaseURL: cfg.Twilio.PublicBaseURL,
		Timeout:       cfg.ElevenLabs.Timeout,
	}, synth, cache, ttsExec, a.metrics, logger)

	a.machine = NewMachine(cfg, dialog.Deps{
		Calendar:  cal,
		Booker:    service.NewBooker(a.db, dbExec, a.metrics),
		Knowledge: a.knowledge,
		LLM:       llm,
		Observer:  a.metrics,
		Logger:    logger,
	})

	renderer := twiml.NewRenderer(twiml.Config{
		PublicBaseURL: cfg.Twilio.PublicBaseURL,
		SayVoice:      cfg.Twilio.SayVoice,
		Language:      cfg.Twilio.Language,
		SpeechTimeout: cfg.Twilio.SpeechTimeout,
		SpeechModel:   cfg.Twilio.SpeechModel,
		GatherTimeout: cfg.Twilio.GatherTimeout,
	})

	calls := service.NewCallService(a.sessions, a.db, a.pool, dbExec, a.metrics, logger)
	conversation := service.NewConversationService(a.machine, a.sessions, a.voice, renderer, calls,
		service.ConversationConfig{
			TurnTimeout:   cfg.Server.TurnTimeout,
			MinConfidence: cfg.Twilio.MinConfidence,
		}, a.metrics, logger)

	if err := a.initScheduler(cache, calls); err != nil {
		return nil, err
	}

	a.healthCheck = health.NewHealthCheck(map[string]health.Pinger{
		"sessions": a.sessions,
		"database": a.db,
	}, logger, health.WithOnChange(a.metrics.SetHealthStatus))

	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(conversation, calls, a.voice, a.db, renderer, errorHandler, handler.Config{
		Timeout:  cfg.Server.WriteTimeout,
		Apology:  apology,
		Location: cal.Location(),
	}, logger)

	a.server = server.NewServer(cfg, handlers, a.healthCheck, a.metrics, errorHandler, renderer.Apology(apology), logger)
	a.server.SetupRoutes()

	if cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
	}
	return a, nil
}

// NewCalendar builds the booking calendar for a business.
func NewCalendar(biz config.BusinessConfig) (*schedule.Calendar, error) {
	windows := make([]schedule.WindowSpec, len(biz.Windows))
	for i, w := range biz.Windows {
		windows[i] = schedule.WindowSpec{
			Name:      schedule.Window(w.Name),
			StartHour: w.StartHour,
			EndHour:   w.EndHour,
		}
	}
	cal, err := schedule.NewCalendar(schedule.Config{
		Timezone:          biz.Timezone,
		HorizonDays:       biz.BookingHorizon,
		ClosedDays:        biz.ClosedDays,
		CapacityPerWindow: biz.CapacityPerWindow,
		Windows:           windows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar: %w", err)
	}
	return cal, nil
}

func (a *App) initStores(ctx context.Context) error {
	if a.cfg.Redis.Enabled {
		rs, err := session.NewRedisStore(session.RedisConfig{
			Host:       a.cfg.Redis.Host,
			Port:       a.cfg.Redis.Port,
			Password:   a.cfg.Redis.Password,
			DB:         a.cfg.Redis.DB,
			SessionTTL: a.cfg.Redis.SessionTTL,
			LockTTL:    a.cfg.Redis.LockTTL,
			LockWait:   a.cfg.Redis.LockWait,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.sessions = rs
		a.logger.Info("Redis session store connected",
			zap.String("host", a.cfg.Redis.Host),
			zap.Int("port", a.cfg.Redis.Port))
	} else {
		a.sessions = session.NewMemoryStore(a.cfg.Redis.SessionTTL, a.cfg.Redis.LockWait)
		a.logger.Warn("Redis disabled, sessions are kept in memory")
	}

	if a.cfg.Database.Enabled {
		pg, err := store.NewPostgresStore(ctx, a.cfg.Database.DSN(), a.logger)
		if err != nil {
			_ = a.sessions.Close()
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = pg
		a.logger.Info("PostgreSQL store connected",
			zap.String("host", a.cfg.Database.Host),
			zap.String("database", a.cfg.Database.Database))

		if a.cfg.Database.AutoMigrate {
			if _, err := store.Migrate(ctx, pg.DB(), a.logger); err != nil {
				pg.Close()
				_ = a.sessions.Close()
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	} else {
		a.db = store.NewMemoryStore()
		a.logger.Warn("Database disabled, appointments and call logs are kept in memory")
	}
	return nil
}

// NewMachine creates the conversation machine with the limits from cfg.
func NewMachine(cfg *config.Config, deps dialog.Deps) *dialog.Machine {
	return dialog.NewMachine(dialog.Config{
		CompanyName:  cfg.Business.CompanyName,
		OnCallNumber: cfg.Twilio.OnCallNumber,
		MaxNoInput:   cfg.Dialog.MaxNoInput,
		MaxRetries:   cfg.Dialog.MaxRetries,
		MaxLLMCalls:  cfg.OpenAI.MaxCallsPerCall,
	}, deps)
}

// LoadKnowledge builds the FAQ knowledge base: the built-in answers for the
// business, replaced by the FAQ file when one is configured.
func LoadKnowledge(cfg *config.Config, logger *zap.Logger) (*knowledge.Base, error) {
	base := knowledge.NewBase(knowledge.Defaults(knowledge.Business{
		CompanyName: cfg.Business.CompanyName,
		Hours:       cfg.Business.Hours,
		ServiceArea: cfg.Business.ServiceArea,
	}))

	path := cfg.Knowledge.FAQPath
	if path == "" {
		return base, nil
	}
	entries, err := knowledge.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load faq file: %w", err)
	}
	base.Replace(entries)
	logger.Info("FAQ knowledge base loaded",
		zap.String("path", path),
		zap.Int("entries", len(entries)))
	return base, nil
}

func (a *App) initKnowledge(ctx context.Context) error {
	base, err := LoadKnowledge(a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.knowledge = base

	if a.cfg.Knowledge.FAQPath != "" && a.cfg.Knowledge.Watch {
		if err := knowledge.Watch(ctx, a.cfg.Knowledge.FAQPath, base, a.logger); err != nil {
			return fmt.Errorf("failed to watch faq file: %w", err)
		}
	}
	return nil
}

func (a *App) initScheduler(cache *speech.AudioCache, calls *service.CallService) error {
	a.scheduler = maintenance.NewScheduler(time.Minute, a.logger)
	if !a.cfg.Maintenance.Enabled {
		return nil
	}
	if err := a.scheduler.Add("audio-cache-sweep", a.cfg.Maintenance.CacheSweep, maintenance.SweepCache(cache)); err != nil {
		return err
	}
	if err := a.scheduler.Add("abandoned-call-sweep", a.cfg.Maintenance.AbandonedSweep,
		maintenance.SweepAbandoned(calls, a.cfg.Dialog.AbandonIdle)); err != nil {
		return err
	}
	if mem, ok := a.sessions.(*session.MemoryStore); ok {
		if err := a.scheduler.Add("session-expiry-sweep", a.cfg.Maintenance.CacheSweep, maintenance.SweepCache(mem)); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the HTTP handler, for tests.
func (a *App) Handler() http.Handler {
	return a.server.GetHandler()
}

// Run starts background work and serves HTTP until ctx is cancelled or the
// server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go a.healthCheck.Run(ctx)
	a.scheduler.Start()

	if a.cfg.AudioCache.Prewarm {
		a.voice.Prewarm(a.pool, a.machine.Prompts().Static())
	}

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.Start(); err != nil {
				a.logger.Error("Metrics server error", zap.Error(err))
			}
		}()
		a.logger.Info("Metrics server started",
			zap.Int("port", a.cfg.Metrics.Port),
			zap.String("path", a.cfg.Metrics.Path))
	}

	errChan := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Shutdown stops serving and releases every resource. Calls in progress
// keep their sessions, so a restarted agent picks them up.
func (a *App) Shutdown(ctx context.Context) {
	a.metrics.SetHealthStatus(false)
	if a.cancel != nil {
		a.cancel()
	}

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to shutdown metrics server", zap.Error(err))
		}
	}

	a.scheduler.Stop(ctx)

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := a.pool.Stop(timeout); err != nil {
		a.logger.Warn("Background tasks did not drain", zap.Error(err))
	}

	if err := a.sessions.Close(); err != nil {
		a.logger.Error("Failed to close session store", zap.Error(err))
	}
	a.db.Close()
}
