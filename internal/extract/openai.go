package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/resilience"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("extract: empty completion")

// completionAPI is the slice of the OpenAI client the extractor needs.
type completionAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIConfig configures the LLM extractor.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIExtractor asks a chat model to fill slots as JSON.
type OpenAIExtractor struct {
	api      completionAPI
	model    string
	timeout  time.Duration
	executor *resilience.Executor
	logger   *zap.Logger
}

// NewOpenAIExtractor creates an extractor backed by the OpenAI API.
func NewOpenAIExtractor(cfg OpenAIConfig, executor *resilience.Executor, logger *zap.Logger) *OpenAIExtractor {
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return newOpenAIExtractor(&client.Chat.Completions, cfg, executor, logger)
}

func newOpenAIExtractor(api completionAPI, cfg OpenAIConfig, executor *resilience.Executor, logger *zap.Logger) *OpenAIExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIExtractor{
		api:      api,
		model:    model,
		timeout:  cfg.Timeout,
		executor: executor,
		logger:   logger,
	}
}

type llmSlots struct {
	Intent  string `json:"intent"`
	Answer  string `json:"answer"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Issue   string `json:"issue"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

const systemPrompt = `You extract fields from one turn of a phone call to an HVAC company.
Reply with a single JSON object and nothing else, using these keys:
intent: one of "schedule", "question", "emergency", "goodbye", "human" or "".
answer: "yes", "no" or "" when the caller is confirming or declining.
name, phone, address, issue: the caller's value when stated, else "".
date: the requested day exactly as spoken, else "".
time: the requested time of day exactly as spoken, else "".
Use "emergency" only for gas smells, carbon monoxide, smoke, fire, sparks, flooding, or no heat with vulnerable people.`

// Extract implements Extractor.
func (e *OpenAIExtractor) Extract(ctx context.Context, req Request) (Slots, error) {
	if strings.TrimSpace(req.Utterance) == "" {
		return Slots{}, nil
	}

	user := fmt.Sprintf("Current question state: %s\nToday: %s\nCaller said: %q",
		req.State, req.Now.Format("Monday, January 2 2006"), req.Utterance)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	}

	var content string
	err := e.executor.Do(ctx, func(ctx context.Context) error {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		resp, err := e.api.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return resilience.Permanent(ErrEmptyCompletion)
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return Slots{}, fmt.Errorf("openai extract: %w", err)
	}

	slots, err := parseCompletion(content)
	if err != nil {
		e.logger.Warn("Unparseable completion",
			zap.String("state", req.State),
			zap.Error(err))
		return Slots{}, err
	}
	return slots, nil
}

// parseCompletion decodes the model's JSON, tolerating code fences and
// prose around the object.
func parseCompletion(content string) (Slots, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Slots{}, fmt.Errorf("no JSON object in completion")
	}

	var raw llmSlots
	if err := json.UnmarshalFromString(content[start:end+1], &raw); err != nil {
		return Slots{}, fmt.Errorf("decode completion: %w", err)
	}

	slots := Slots{
		Intent:  parseIntent(raw.Intent),
		Name:    strings.TrimSpace(raw.Name),
		Address: strings.TrimSpace(raw.Address),
		Issue:   strings.TrimSpace(raw.Issue),
		Date:    strings.TrimSpace(raw.Date),
		Time:    strings.TrimSpace(raw.Time),
	}
	if raw.Phone != "" {
		slots.Phone = ExtractPhone(raw.Phone)
	}
	switch strings.ToLower(strings.TrimSpace(raw.Answer)) {
	case "yes":
		slots.Answer = AnswerYes
	case "no":
		slots.Answer = AnswerNo
	}
	return slots, nil
}

func parseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentSchedule:
		return IntentSchedule
	case IntentQuestion:
		return IntentQuestion
	case IntentEmergency:
		return IntentEmergency
	case IntentGoodbye:
		return IntentGoodbye
	case IntentHuman:
		return IntentHuman
	default:
		return IntentNone
	}
}
