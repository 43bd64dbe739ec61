package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/pkg/errors"

	"github.com/healthbridge-ai/healthbridge/pkg/ai"
	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
)

// LLMTier extracts fields with a completion call. It is the only tier that
// costs latency and money, so the orchestrator invokes it last among the
// understanding tiers and only for non-trivial utterances. Output is
// untrusted: every value is validated against the catalog before acceptance.
type LLMTier struct {
	service ai.Completion
	model   string
	catalog *catalog.Catalog
	logger  *log.Logger
}

func NewLLMTier(service ai.Completion, model string, cat *catalog.Catalog, logger *log.Logger) *LLMTier {
	return &LLMTier{service: service, model: model, catalog: cat, logger: logger}
}

func (t *LLMTier) Name() string { return "llm" }

const llmExtractorSystemPrompt = `You extract structured health profile fields from a user's chat message.
Return ONLY a JSON object, no prose, of the form:
{"fields": {"<field_name>": {"value": "...", "confidence": 0.9}}, "implied": {}}
Omit fields the message does not answer. Confidence is your certainty in [0,1].`

type llmFieldValue struct {
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
}

type llmExtraction struct {
	Fields  map[string]llmFieldValue `json:"fields"`
	Implied map[string]string        `json:"implied"`
}

func (t *LLMTier) Extract(ctx context.Context, utterance, contextField string, remaining []catalog.Field) (ExtractionResult, error) {
	result := newExtractionResult()

	var sb strings.Builder
	if contextField != "" {
		fmt.Fprintf(&sb, "We just asked about %q, so the message likely answers that.\n\n", contextField)
	}
	fmt.Fprintf(&sb, "User said: %q\n\nFields to extract:\n", utterance)
	for _, f := range remaining {
		fmt.Fprintf(&sb, "- %s (%s", f.Name, f.Type)
		if len(f.Values) > 0 {
			fmt.Fprintf(&sb, ": %s", strings.Join(f.Values, "/"))
		}
		sb.WriteString(")\n")
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(llmExtractorSystemPrompt),
		openai.UserMessage(sb.String()),
	}
	completion, err := t.service.Completions(ctx, messages, t.model)
	if err != nil {
		return result, errors.Wrap(err, "llm extraction")
	}

	var parsed llmExtraction
	if err := json.Unmarshal([]byte(cleanJSON(completion.Content)), &parsed); err != nil {
		return result, errors.Wrap(err, "parsing llm extraction")
	}

	for name, fv := range parsed.Fields {
		value := rawToString(fv.Value)
		if value == "" {
			continue
		}
		normalized, verr := t.catalog.Validate(name, value)
		if verr != nil {
			t.logger.Debug("llm value rejected", "field", name, "value", value, "error", verr)
			continue
		}
		conf := fv.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.8
		}
		result.Fields[name] = FieldCandidate{Value: normalized, Confidence: conf, Source: SourceLLM}
	}
	for k, v := range parsed.Implied {
		result.Implied[k] = v
	}
	result.Remainder = completion.Content
	return result, nil
}

// rawToString accepts the shapes models actually emit: strings, numbers,
// and lists of strings.
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strings.TrimSuffix(fmt.Sprintf("%v", n), ".0")
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}

var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// cleanJSON strips markdown fences and surrounding prose from a completion.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = regexp.MustCompile("```(json)?\n?").ReplaceAllString(text, "")
		text = strings.TrimRight(text, "`")
	}
	if m := jsonObjectRe.FindString(text); m != "" {
		return m
	}
	return text
}
