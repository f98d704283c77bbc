package leadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// MaxQueries bounds how many search queries one generation call may request.
const MaxQueries = 20

const queryPromptTemplate = `Generate Google search queries that help discover lists, directories, rankings, or grouped sets of organisations based on the user's description.

MIXING RULE:
- You may freely mix and recombine ANY attributes, industries, or concepts found in the description, even if the user did not pair them together.

STRICT RULES:
- Use ONLY concepts explicitly mentioned. Do NOT invent new ones.
- ALWAYS assume searches should be in %s.
- ALWAYS vary location using: %s.
- Each query must be unique.
- Use natural long-tail Google phrasing (5-10 words).
- No quotes, boolean operators, or run-on sentences.

WHEN DESCRIPTION IS SIMPLE:
- Treat it as the core target and generate variations.

WHEN DESCRIPTION IS LONG OR COMPLEX:
1. Extract all themes, keywords, industries, attributes, values, traits, and initiatives.
2. Freely mix and match ANY of these to produce diverse angles.
3. Generate location-varied queries for many different combinations.

SUPPORTED QUERY SHAPES:
- "top <theme> in <location>"
- "best <theme> companies in <location>"
- "leading <theme> providers in <location>"
- "<theme> in <location> list"
- "<location> <theme> directory"
- "<theme> companies in <location>"
(Use flexibly; you may mix any extracted terms.)

OUTPUT:
Respond with a JSON array of strings and nothing else, e.g. ["query one", "query two"].

Description: %s
%s
Generate %d diverse, mixed search queries.`

// QueryGenerator produces search queries for a project description via the
// Anthropic API.
type QueryGenerator struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
	region    string
	locations []string
}

// NewQueryGenerator builds a QueryGenerator. region is the country the
// queries target; locations is the list of location terms queries rotate
// through (the region itself is always included).
func NewQueryGenerator(llm anthropic.Client, model string, maxTokens int64, region string, locations []string) *QueryGenerator {
	if region == "" {
		region = "Australia"
	}
	locs := append([]string{region}, locations...)
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &QueryGenerator{
		llm:       llm,
		model:     model,
		maxTokens: maxTokens,
		region:    region,
		locations: locs,
	}
}

// Generate asks for count search queries for the description. guidance is
// optional per-project query-generation guidance. Any provider error
// propagates; no partial results are returned.
func (g *QueryGenerator) Generate(ctx context.Context, description, guidance string, count int) ([]string, error) {
	if count < 1 || count > MaxQueries {
		return nil, eris.Errorf("queries: count must be between 1 and %d, got %d", MaxQueries, count)
	}
	if strings.TrimSpace(description) == "" {
		return nil, eris.New("queries: description is empty")
	}

	extra := ""
	if guidance != "" {
		extra = "\nAdditional guidance: " + guidance
	}
	prompt := fmt.Sprintf(queryPromptTemplate,
		g.region, strings.Join(g.locations, ", "), description, extra, count)

	resp, err := g.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "queries: create message")
	}
	resp.Usage.LogCost(g.model, "generate_queries")

	queries, err := parseQueryList(resp.Text())
	if err != nil {
		return nil, err
	}

	zap.L().Info("search queries generated",
		zap.Int("requested", count),
		zap.Int("returned", len(queries)),
	)
	return queries, nil
}

// parseQueryList parses the model's JSON array output and strips quoting
// artifacts from each item.
func parseQueryList(text string) ([]string, error) {
	payload := stripCodeFence(text)

	start := strings.Index(payload, "[")
	end := strings.LastIndex(payload, "]")
	if start < 0 || end < start {
		return nil, eris.Errorf("queries: no JSON array in response: %.120s", text)
	}

	var raw []string
	if err := json.Unmarshal([]byte(payload[start:end+1]), &raw); err != nil {
		return nil, eris.Wrap(err, "queries: parse response")
	}

	var out []string
	for _, q := range raw {
		q = strings.TrimSpace(q)
		q = strings.Trim(q, `'"`)
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, eris.New("queries: response contained no usable queries")
	}
	return out, nil
}
