package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// GeminiSuggester implements CategorySuggester against the Gemini API.
type GeminiSuggester struct {
	log *logrus.Logger

	mu     sync.Mutex
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiSuggester(logger *logrus.Logger) *GeminiSuggester {
	if logger == nil {
		logger = logrus.New()
	}
	return &GeminiSuggester{log: logger}
}

func (g *GeminiSuggester) ensureClient(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return nil
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	g.model = client.GenerativeModel(modelName())
	return nil
}

func modelName() string {
	if v := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); v != "" {
		return v
	}
	return "gemini-1.0-pro"
}

type geminiAnswer struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func (g *GeminiSuggester) Suggest(ctx context.Context, description string, amount decimal.Decimal, candidates []CandidateCategory) (Suggestion, error) {
	if len(candidates) == 0 {
		return Suggestion{}, nil
	}
	if err := g.ensureClient(ctx); err != nil {
		return Suggestion{}, err
	}

	names := make([]string, 0, len(candidates))
	byName := make(map[string]int, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
		byName[strings.ToLower(c.Name)] = c.Id
	}

	prompt := fmt.Sprintf(
		`You categorize church bank-statement lines.
Description: %q
Amount: %s
Pick the single best category from this list, or "none" if unsure:
%s
Answer with JSON only: {"category": "<name>", "confidence": <0..1>}`,
		description, amount.StringFixed(2), strings.Join(names, ", "))

	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := g.model.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		return Suggestion{}, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Suggestion{}, errors.New("empty response from suggestion service")
	}

	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			raw.WriteString(string(txt))
		}
	}

	answer, err := parseAnswer(raw.String())
	if err != nil {
		return Suggestion{}, err
	}

	id, ok := byName[strings.ToLower(strings.TrimSpace(answer.Category))]
	if !ok {
		// "none" or a hallucinated name; treat as declined
		return Suggestion{}, nil
	}
	g.log.WithFields(logrus.Fields{
		"module":     "ai",
		"category":   answer.Category,
		"confidence": answer.Confidence,
	}).Debug("suggestion accepted from Gemini")
	return Suggestion{CategoryId: id, Confidence: answer.Confidence}, nil
}

func parseAnswer(raw string) (geminiAnswer, error) {
	var answer geminiAnswer
	// The model occasionally wraps JSON in a code fence.
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &answer); err != nil {
		return answer, fmt.Errorf("unparseable suggestion response: %w", err)
	}
	return answer, nil
}
