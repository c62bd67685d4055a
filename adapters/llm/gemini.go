package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/dentalink/consult/domain/repositories"
	"github.com/dentalink/consult/internal/turn"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.4
	defaultTopP           = 0.95
	defaultMaxTokens      = 2048
	defaultTimeoutSeconds = 60
	maxStartAttempts      = 3
)

// GeminiConfig holds configuration for the Gemini inference channel
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}

	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	return nil
}

// Gemini implements InferenceChannel with streamed Gemini generation
type Gemini struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	maxOutputTokens int
	timeout         time.Duration
	safetySettings  []*genai.SafetySetting
}

// NewGemini creates a Gemini inference channel
func NewGemini(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
		logger.Info("Using default temperature", zap.Float32("temperature", temperature))
	}

	topP := config.TopP
	if topP == 0 {
		topP = float32(defaultTopP)
		logger.Info("Using default topP", zap.Float32("topP", topP))
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
		logger.Info("Using default maxOutputTokens", zap.Int("maxOutputTokens", maxOutputTokens))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", timeoutSeconds))
	}

	return &Gemini{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		topP:            topP,
		maxOutputTokens: maxOutputTokens,
		timeout:         time.Duration(timeoutSeconds) * time.Second,
		safetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
		},
	}, nil
}

// Stream starts a generation and returns its text as it is produced. Failures
// before the first chunk are retried; later failures end the body with the error.
func (g *Gemini) Stream(ctx context.Context, req repositories.InferenceRequest) (io.ReadCloser, error) {
	contents := toContents(req.Messages)
	if len(contents) == 0 {
		return nil, errors.New("inference request has no messages")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(turn.SystemPrompt(req.TriageState), genai.RoleUser),
		SafetySettings:    g.safetySettings,
		Temperature:       genai.Ptr(g.temperature),
		TopP:              genai.Ptr(g.topP),
		MaxOutputTokens:   int32(g.maxOutputTokens),
	}

	pr, pw := io.Pipe()
	go func() {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		pw.CloseWithError(g.generate(ctx, contents, config, pw))
	}()
	return pr, nil
}

// generate writes the streamed text to w. It returns nil on a clean end.
func (g *Gemini) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig, w io.Writer) error {
	written := 0
	attempt := 0

	op := func() error {
		attempt++
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				if written > 0 {
					return backoff.Permanent(fmt.Errorf("gemini stream interrupted: %w", err))
				}
				g.logger.Warn("Failed to generate content, retrying",
					zap.Int("attempt", attempt),
					zap.Error(err))
				return err
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			n, err := io.WriteString(w, text)
			written += n
			if err != nil {
				// reader closed; nobody is listening anymore
				return backoff.Permanent(err)
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxStartAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		g.logger.Error("Gemini generation failed",
			zap.String("model", g.model),
			zap.Int("bytes", written),
			zap.Error(err))
		return err
	}

	g.logger.Debug("Gemini generation completed",
		zap.String("model", g.model),
		zap.Int("bytes", written))
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text += part.Text
		}
	}
	return text
}

// toContents converts the wire history to Gemini contents
func toContents(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.AssistantRole:
			role = genai.RoleModel
		default:
			// Gemini only knows user and model turns
			role = genai.RoleUser
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}
