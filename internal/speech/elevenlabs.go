package speech

import (
	"context"
	"errors"
	"fmt"

	elevenlabs "github.com/agentplexus/go-elevenlabs"
	elevenvoice "github.com/agentplexus/go-elevenlabs/omnivoice/tts"
	"github.com/agentplexus/omnivoice/tts"
	"go.uber.org/zap"
)

// ErrEmptyAudio is returned when the provider answers without audio.
var ErrEmptyAudio = errors.New("speech: provider returned no audio")

// ttsProvider is the slice of the omnivoice TTS provider the agent uses.
type ttsProvider interface {
	Synthesize(ctx context.Context, text string, config tts.SynthesisConfig) (*tts.SynthesisResult, error)
}

// ElevenLabsConfig configures the ElevenLabs synthesizer.
type ElevenLabsConfig struct {
	APIKey       string
	VoiceID      string
	Model        string
	OutputFormat string
	SampleRate   int
}

// ElevenLabs synthesizes speech through the ElevenLabs API.
type ElevenLabs struct {
	provider ttsProvider
	config   tts.SynthesisConfig
	logger   *zap.Logger
}

// NewElevenLabs creates an ElevenLabs synthesizer.
func NewElevenLabs(cfg ElevenLabsConfig, logger *zap.Logger) (*ElevenLabs, error) {
	client, err := elevenlabs.NewClient(elevenlabs.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create elevenlabs client: %w", err)
	}
	return newElevenLabs(elevenvoice.NewWithClient(client), cfg, logger), nil
}

func newElevenLabs(provider ttsProvider, cfg ElevenLabsConfig, logger *zap.Logger) *ElevenLabs {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3"
	}
	return &ElevenLabs{
		provider: provider,
		config: tts.SynthesisConfig{
			VoiceID:      cfg.VoiceID,
			Model:        cfg.Model,
			OutputFormat: cfg.OutputFormat,
			SampleRate:   cfg.SampleRate,
		},
		logger: logger,
	}
}

// Synthesize implements Synthesizer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	result, err := e.provider.Synthesize(ctx, text, e.config)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs synthesize: %w", err)
	}
	if result == nil || len(result.Audio) == 0 {
		return nil, ErrEmptyAudio
	}
	e.logger.Debug("Synthesized prompt",
		zap.Int("chars", len(text)),
		zap.Int("bytes", len(result.Audio)))
	return result.Audio, nil
}

// VoiceID implements Synthesizer.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}
