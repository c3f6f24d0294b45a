package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/devrev/hvac-voice-agent/internal/resilience"
	"github.com/devrev/hvac-voice-agent/internal/workerpool"
)

// Audio is what the caller hears for one reply. An empty URL means the
// text should be spoken with Twilio <Say>.
type Audio struct {
	URL  string
	Text string
}

// VoiceConfig configures a Voice.
type VoiceConfig struct {
	// PublicBaseURL is the externally reachable base of the audio route.
	PublicBaseURL string
	// Timeout bounds one synthesis attempt.
	Timeout time.Duration
}

// Voice renders reply text into playable audio, caching the result.
type Voice struct {
	synth    Synthesizer
	cache    *AudioCache
	executor *resilience.Executor
	baseURL  string
	timeout  time.Duration
	recorder Recorder
	logger   *zap.Logger
	group    singleflight.Group
}

// NewVoice creates a Voice. A nil synthesizer always falls back to <Say>.
func NewVoice(cfg VoiceConfig, synth Synthesizer, cache *AudioCache, executor *resilience.Executor, recorder Recorder, logger *zap.Logger) *Voice {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Voice{
		synth:    synth,
		cache:    cache,
		executor: executor,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		timeout:  cfg.Timeout,
		recorder: recorder,
		logger:   logger,
	}
}

// Render returns the audio for text. It never fails: any synthesis
// problem degrades to <Say>.
func (v *Voice) Render(ctx context.Context, text string) Audio {
	audio := Audio{Text: text}
	if v.synth == nil || strings.TrimSpace(text) == "" {
		return audio
	}

	key := Key(v.synth.VoiceID(), text)
	if _, ok := v.cache.Get(key); ok {
		v.recorder.CacheLookup(true)
		audio.URL = v.url(key)
		return audio
	}
	v.recorder.CacheLookup(false)

	if err := v.fill(ctx, key, text); err != nil {
		v.logger.Warn("Speech synthesis failed, falling back to Say",
			zap.String("key", key),
			zap.Error(err))
		return audio
	}
	audio.URL = v.url(key)
	return audio
}

// fill synthesizes text into the cache. Concurrent misses for the same key
// share one synthesis.
func (v *Voice) fill(ctx context.Context, key, text string) error {
	_, err, _ := v.group.Do(key, func() (interface{}, error) {
		if _, ok := v.cache.Get(key); ok {
			return nil, nil
		}
		start := time.Now()
		var data []byte
		err := v.executor.Do(ctx, func(ctx context.Context) error {
			if v.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, v.timeout)
				defer cancel()
			}
			var err error
			data, err = v.synth.Synthesize(ctx, text)
			if errors.Is(err, ErrEmptyAudio) {
				return resilience.Permanent(err)
			}
			return err
		})
		v.recorder.Synthesis(err, time.Since(start))
		if err != nil {
			return nil, err
		}
		v.cache.Put(key, data)
		return nil, nil
	})
	return err
}

// Lookup returns cached audio by key for the audio route.
func (v *Voice) Lookup(key string) ([]byte, bool) {
	return v.cache.Get(key)
}

// Cache returns the underlying audio cache.
func (v *Voice) Cache() *AudioCache {
	return v.cache
}

// Prewarm queues synthesis of fixed prompts on the pool and returns the
// number of prompts queued.
func (v *Voice) Prewarm(pool *workerpool.WorkerPool, prompts []string) int {
	if v.synth == nil {
		return 0
	}
	queued := 0
	for _, text := range prompts {
		text := text
		key := Key(v.synth.VoiceID(), text)
		if _, ok := v.cache.Get(key); ok {
			continue
		}
		err := pool.Submit(workerpool.Task{
			Name:    "prewarm-" + key[:12],
			Timeout: 30 * time.Second,
			Run: func(ctx context.Context) error {
				return v.fill(ctx, key, text)
			},
		})
		if err != nil {
			v.logger.Warn("Failed to queue prompt prewarm", zap.Error(err))
			continue
		}
		queued++
	}
	v.logger.Info("Queued prompt prewarm", zap.Int("prompts", queued))
	return queued
}

func (v *Voice) url(key string) string {
	return v.baseURL + "/audio/" + key + ".mp3"
}
