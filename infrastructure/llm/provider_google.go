package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/poidh-labs/sentinel/internal/ports"
)

const (
	// GoogleDefaultModel is a vision-capable default.
	GoogleDefaultModel = "gemini-2.0-flash-exp"
)

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreVision for Google's Gemini API, attaching
// the proof image as a URI part.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreVision, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          client,
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest sends a vision completion request to Gemini and returns the
// response text with token usage.
func (p *googleProvider) DoRequest(ctx context.Context, req ports.VisionRequest) (Response, error) {
	contents := p.buildContents(req)
	config := p.buildGenerationConfig(req)

	resp, err := p.client.Models.GenerateContent(ctx, p.GetModel(), contents, config)
	if err != nil {
		return Response{}, p.handleError(err)
	}

	content := resp.Text()
	if content == "" {
		return Response{}, ErrEmptyResponse
	}

	return Response{
		Text:      content,
		TokensIn:  p.getTokenCount(resp.UsageMetadata, true, req.Prompt),
		TokensOut: p.getTokenCount(resp.UsageMetadata, false, content),
	}, nil
}

// buildContents assembles the request parts. Gemini has no separate system
// role here, so the system instruction is prepended to the user prompt.
func (p *googleProvider) buildContents(req ports.VisionRequest) []*genai.Content {
	prompt := req.Prompt
	if req.System != "" {
		prompt = fmt.Sprintf("System: %s\n\nUser: %s", req.System, req.Prompt)
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if req.ImageURL != "" {
		parts = append(parts, genai.NewPartFromURI(req.ImageURL, guessImageMIME(req.ImageURL)))
	}

	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func (p *googleProvider) buildGenerationConfig(req ports.VisionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(clamp(req.Temperature, 0.0, 2.0)))
	}
	if req.MaxTokens > 0 {
		if req.MaxTokens > math.MaxInt32 {
			config.MaxOutputTokens = math.MaxInt32
		} else {
			config.MaxOutputTokens = int32(req.MaxTokens)
		}
	}

	return config
}

func (p *googleProvider) getTokenCount(usage *genai.GenerateContentResponseUsageMetadata, isInput bool, text string) int {
	if usage != nil {
		if isInput && usage.PromptTokenCount > 0 {
			return int(usage.PromptTokenCount)
		}
		if !isInput && usage.CandidatesTokenCount > 0 {
			return int(usage.CandidatesTokenCount)
		}
	}
	return p.tokenCounter.EstimateTokens(text)
}

func (p *googleProvider) handleError(err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		return p.errorClassifier.ClassifyHTTPError(apiErr.Code, message, err)
	}
	return p.errorClassifier.ClassifyContextError(err)
}

// guessImageMIME infers the image MIME type from the URL extension,
// defaulting to JPEG.
func guessImageMIME(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
