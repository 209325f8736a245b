package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/pkg/anthropic"
	"github.com/sells-group/fusion-cli/pkg/searx"
)

const aiSystemPrompt = `You extract company facts from Brazilian web search snippets.
Answer with one JSON object and nothing else. Use only these keys:
company_name, trade_name, cnpj, domain, city, state, email, phone, size.
Omit any key the text does not state. Never guess.`

// AI extracts structured fields from unstructured search snippets with an
// LLM. It ranks last in every priority list.
type AI struct {
	llm       anthropic.Client
	search    searx.Client
	model     string
	maxTokens int64
	opts      Options
}

// NewAI creates the LLM extraction collector.
func NewAI(llm anthropic.Client, search searx.Client, model string, maxTokens int64, opts Options) *AI {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AI{llm: llm, search: search, model: model, maxTokens: maxTokens, opts: opts.withDefaults()}
}

func (a *AI) Source() model.Source { return model.SourceAI }

func (a *AI) Open(context.Context) (Session, error) { return aiSession{a}, nil }

type aiSession struct{ a *AI }

func (s aiSession) Search(ctx context.Context, criteria *model.Criteria) ([]Candidate, error) {
	return discover(ctx, s.a.search, s.a.opts, model.SourceAI, criteria)
}

func (s aiSession) Collect(ctx context.Context, c Candidate, h Hints) (model.SourceRecord, error) {
	text := c.Snippet
	if text == "" {
		resp, err := call(ctx, s.a.opts, model.SourceAI, "snippets", func(ctx context.Context) (*searx.Response, error) {
			return s.a.search.Search(ctx, c.Name)
		})
		if err != nil {
			return model.SourceRecord{}, Unavailable(model.SourceAI, "snippets", err)
		}
		text = snippets(resp.Results, 5)
	}
	if strings.TrimSpace(text) == "" {
		return model.SourceRecord{}, eris.Wrapf(ErrNoData, "ai: no text for %q", c.Name)
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       s.a.model,
		MaxTokens:   s.a.maxTokens,
		System:      aiSystemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("Company: %s\n\n%s", c.Name, text)},
		},
	}
	resp, err := call(ctx, s.a.opts, model.SourceAI, "extract", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.a.llm.CreateMessage(ctx, req)
	})
	if err != nil {
		return model.SourceRecord{}, Unavailable(model.SourceAI, "extract", err)
	}

	fields, err := parseExtraction(resp.Text())
	if err != nil {
		return model.SourceRecord{}, eris.Wrapf(ErrNoData, "ai: %v", err)
	}
	if _, ok := fields["company_name"]; !ok {
		fields["company_name"] = c.Name
	}
	return record(model.SourceAI, h, fields), nil
}

func (aiSession) Close() error { return nil }

func snippets(results []searx.Result, limit int) string {
	var b strings.Builder
	for i, r := range results {
		if i >= limit {
			break
		}
		fmt.Fprintf(&b, "%s\n%s\n%s\n\n", r.Title, r.URL, r.Content)
	}
	return b.String()
}

// parseExtraction decodes the first JSON object in text. Non-string values
// are rendered with fmt; nulls are dropped.
func parseExtraction(text string) (map[string]string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, eris.New("response has no json object")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, eris.Wrap(err, "decode extraction")
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out, nil
}
