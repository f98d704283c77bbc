package leadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// ReasonInput is the structured search-result context handed to the reasoner.
type ReasonInput struct {
	Query   string
	Title   string
	Snippet string
	URL     string

	// PageText is set on the second Decide call after a fetch request.
	PageText string
	// Fetched marks that a fetch already happened; the reasoner must answer.
	Fetched bool

	// AvoidCriteria is the project's extraction guidance (kinds of results
	// to skip), appended to the policy prompt when present.
	AvoidCriteria string
}

// Decision is the reasoner's verdict for one search result: either a final
// list of lead names, or a request to fetch the page before answering.
type Decision struct {
	FetchRequested bool
	Leads          []string
}

// Reasoner decides, for one search result, whether the page needs fetching
// and which company names it contains. The orchestrator drives the two-step
// protocol: Decide, optionally fetch, Decide again with the page text.
type Reasoner interface {
	Decide(ctx context.Context, input ReasonInput) (*Decision, error)
}

const extractionPolicyPrompt = `You are an AI assistant extracting company names from web search results.

YOUR TASK
Given a search result (query, title, snippet) and, when provided, the scraped page content:
1. Decide whether the search result is relevant to the query's target companies.
2. Extract every specific company name from the snippet, title, and page content.

EXTRACTION RULES
- Only return specific company names (legal entity names such as "Orica", "Acciona Energy", "BHP Group").
- Do not return industries, sectors, general terms (e.g. "renewable energy companies", "the mining industry") or trade groups.
- Do not return product names or government agencies.
- Do not return investment vehicles or instruments. Prefer the parent operating company instead.
- Do not attach parenthetical descriptions or roles (e.g. "Company X (as a supplier)").
- Extract only the clean company name, no additional context or qualifiers.

WHEN TO FETCH
- If the result looks like a relevant list, directory, or ranking but the title and snippet name too few companies, request the page content.
- If the result is clearly irrelevant to the target profile (e.g. a "most polluting companies" ranking when looking for sustainable companies), do not fetch; answer with an empty list.
- Never request a fetch when page content has already been provided.

OUTPUT
Respond with a single JSON object and nothing else:
- {"action": "fetch"} to request the page content.
- {"action": "answer", "leads": ["Company A", "Company B"]} for a final answer.
- {"action": "answer", "leads": []} when no suitable companies exist.`

// claudeReasoner implements Reasoner over the Anthropic API with a JSON
// action protocol. The policy prompt is cached across calls within a run.
type claudeReasoner struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeReasoner builds the production reasoner.
func NewClaudeReasoner(llm anthropic.Client, model string, maxTokens int64) Reasoner {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &claudeReasoner{llm: llm, model: model, maxTokens: maxTokens}
}

// reasonerReply mirrors the JSON protocol the policy prompt demands.
type reasonerReply struct {
	Action string   `json:"action"`
	Leads  leadList `json:"leads"`
}

// leadList tolerates mixed-type arrays in model output: non-string entries
// are coerced to strings, nulls dropped.
type leadList []string

func (l *leadList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case nil:
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	*l = out
	return nil
}

func (r *claudeReasoner) Decide(ctx context.Context, input ReasonInput) (*Decision, error) {
	system := extractionPolicyPrompt
	if input.AvoidCriteria != "" {
		system += "\n\nADDITIONAL AVOID-CRITERIA FOR THIS PROJECT\n" + input.AvoidCriteria
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Search Result:\nQuery: %s\nTitle: %s\nSnippet: %s\nURL: %s\n",
		input.Query, input.Title, input.Snippet, input.URL)
	if input.Fetched {
		user.WriteString("\nPage content (already fetched, you must answer now):\n")
		user.WriteString(input.PageText)
	}

	resp, err := r.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages: []anthropic.Message{
			{Role: "user", Content: user.String()},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "reason: create message")
	}
	resp.Usage.LogCost(r.model, "extract")

	reply, err := parseReasonerReply(resp.Text())
	if err != nil {
		return nil, err
	}

	switch reply.Action {
	case "fetch":
		if input.Fetched {
			return nil, eris.New("reason: fetch requested after page content was provided")
		}
		return &Decision{FetchRequested: true}, nil
	case "answer":
		return &Decision{Leads: []string(reply.Leads)}, nil
	default:
		return nil, eris.Errorf("reason: unknown action %q", reply.Action)
	}
}

// parseReasonerReply extracts the protocol JSON object from the model output,
// tolerating markdown code fences and surrounding prose.
func parseReasonerReply(text string) (*reasonerReply, error) {
	payload := stripCodeFence(text)

	start := strings.Index(payload, "{")
	end := strings.LastIndex(payload, "}")
	if start < 0 || end < start {
		return nil, eris.Errorf("reason: no JSON object in response: %.120s", text)
	}

	var reply reasonerReply
	if err := json.Unmarshal([]byte(payload[start:end+1]), &reply); err != nil {
		return nil, eris.Wrap(err, "reason: parse response")
	}
	return &reply, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:] // drop the language tag line
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
