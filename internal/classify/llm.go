package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	veilotel "github.com/dativo-io/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/classify")

// TimeoutClassify bounds a single gateway call. The pipeline never waits on
// the classifier longer than this; a timeout resolves to the fallback record.
const TimeoutClassify = 60 * time.Second

const systemPrompt = `You are a data-protection classifier for tabular datasets (GDPR / LGPD).
You receive a COLUMN NAME and a few EXAMPLE VALUES from that column.
Classify the column into exactly one category:

1) "identifier": directly identifying — full name, tax ID, phone, email, passport, national ID.
2) "quasi_identifier": re-identifying in combination — postal code, address, birth date, hire date, any personal date.
3) "financial": salary, income, monetary amounts, commissions, taxes.
4) "demographic": age, number of children, gender, race.
5) "health": medical conditions, diagnoses, treatments.
6) "religion": religious affiliation or belief.
7) "political": political opinion or affiliation.
8) "text": anything that fits none of the sensitive categories above.

Set "sensitive" to true for every category except "text", and false for "text".
Provide a short "rationale" justifying the decision.

Reply with STRICT JSON only, no markdown, with exactly these keys:
{"category": "...", "sensitive": true|false, "rationale": "..."}`

// replySchema validates the shape of the model's JSON reply before parsing.
// Category values outside the closed set are still accepted here and coerced
// later; the schema only rejects structurally broken replies.
const replySchema = `{
	"type": "object",
	"required": ["category", "sensitive"],
	"properties": {
		"category": {"type": "string"},
		"sensitive": {"type": "boolean"},
		"rationale": {"type": "string"}
	}
}`

// LLMGateway classifies columns via an OpenAI-compatible chat completion API.
type LLMGateway struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	schema  *gojsonschema.Schema
}

// LLMOption configures an LLMGateway.
type LLMOption func(*LLMGateway)

// WithBaseURL points the gateway at a non-default API endpoint, e.g. a local
// OpenAI-compatible server or an httptest mock. baseURL is scheme+host; the
// client appends /v1.
func WithBaseURL(apiKey, baseURL string) LLMOption {
	return func(g *LLMGateway) {
		config := openai.DefaultConfig(apiKey)
		config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
		g.client = openai.NewClientWithConfig(config)
	}
}

// WithRateLimit caps gateway calls at rpm requests per minute across all
// workers. Zero or negative rpm disables limiting.
func WithRateLimit(rpm int) LLMOption {
	return func(g *LLMGateway) {
		if rpm <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	}
}

// NewLLMGateway creates the LLM-backed classifier gateway.
func NewLLMGateway(apiKey, model string, opts ...LLMOption) *LLMGateway {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(replySchema))
	if err != nil {
		// The schema is a compile-time constant; failing to parse it is a bug.
		panic(fmt.Sprintf("classify: reply schema: %v", err))
	}
	g := &LLMGateway{
		client: openai.NewClient(apiKey),
		model:  model,
		schema: schema,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Classify sends the column name and samples to the model and parses the
// strict-JSON reply. Transport errors, non-JSON replies, and schema
// violations all surface as errors; the caller decides how to resolve them.
func (g *LLMGateway) Classify(ctx context.Context, column string, samples []string) (Record, error) {
	ctx, span := tracer.Start(ctx, "classify.llm",
		trace.WithAttributes(
			veilotel.GenAISystem.String("openai"),
			veilotel.GenAIRequestModel.String(g.model),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutClassify)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Record{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	user := fmt.Sprintf("COLUMN NAME: %q\nEXAMPLE VALUES (max %d):\n%s",
		column, MaxSamples, strings.Join(samples, "\n"))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		MaxTokens:   300,
	})
	if err != nil {
		span.RecordError(err)
		return Record{}, fmt.Errorf("classifier api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Record{}, fmt.Errorf("classifier api call: no choices returned")
	}

	span.SetAttributes(
		veilotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		veilotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		veilotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)),
	)

	return g.parseReply(column, resp.Choices[0].Message.Content)
}

func (g *LLMGateway) parseReply(column, content string) (Record, error) {
	content = stripCodeFence(content)

	result, err := g.schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return Record{}, fmt.Errorf("classifier reply is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return Record{}, fmt.Errorf("classifier reply violates schema: %v", result.Errors())
	}

	var reply struct {
		Category  string `json:"category"`
		Sensitive bool   `json:"sensitive"`
		Rationale string `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return Record{}, fmt.Errorf("parsing classifier reply: %w", err)
	}

	rec := Record{
		Column:    column,
		Category:  ParseCategory(reply.Category),
		Sensitive: reply.Sensitive,
		Rationale: reply.Rationale,
	}
	if rec.Rationale == "" {
		rec.Rationale = "no rationale provided"
	}
	return rec.Normalize(), nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite
// the strict-JSON instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
