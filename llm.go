package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"
const decisionMaxTokens = 1024

// openAIEndpoint is a variable so tests can point it at a local server.
var openAIEndpoint = "https://api.openai.com/v1/chat/completions"

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// DecisionRequest is one triage question for the oracle.
type DecisionRequest struct {
	Message      string
	ReporterName string
	ReporterNote string // e.g. "3 reports in the last 30 days, 1 corrected"
	Candidates   []CandidateIssue
	Policy       PolicyVersion
}

// Decide asks the oracle to classify one message and validates the reply.
// An oracle failure comes back as an error, never as a decision; parse
// failures come back as *MalformedResponseError.
func Decide(ctx context.Context, cfg Config, req DecisionRequest) (TriageDecision, LLMUsage, error) {
	systemPrompt, userPrompt := buildTriagePrompts(req)

	var responseText string
	var usage LLMUsage
	var callErr error

	switch cfg.LLMProvider {
	case "openai":
		model := cfg.LLMModel
		if model == "" {
			model = defaultOpenAIModel
		}
		cfg.vlogf("llm triage provider=openai model=%s policy=%s candidates=%d", model, req.Policy, len(req.Candidates))
		responseText, usage, callErr = callWithRetry(ctx, cfg, func(ctx context.Context) (string, LLMUsage, error) {
			return callOpenAI(ctx, cfg, model, systemPrompt, userPrompt)
		})
	default:
		model := cfg.LLMModel
		if model == "" {
			model = defaultAnthropicModel
		}
		cfg.vlogf("llm triage provider=anthropic model=%s policy=%s candidates=%d", model, req.Policy, len(req.Candidates))
		responseText, usage, callErr = callWithRetry(ctx, cfg, func(ctx context.Context) (string, LLMUsage, error) {
			return callAnthropic(ctx, cfg, model, systemPrompt, userPrompt)
		})
	}
	if callErr != nil {
		return TriageDecision{}, usage, callErr
	}

	decision, err := ParseDecision(responseText)
	if err != nil {
		return TriageDecision{}, usage, err
	}
	return decision, usage, nil
}

// DecisionModel reports the model identifier a config resolves to, for
// report metadata.
func DecisionModel(cfg Config) string {
	if cfg.LLMModel != "" {
		return cfg.LLMModel
	}
	if cfg.LLMProvider == "openai" {
		return defaultOpenAIModel
	}
	return defaultAnthropicModel
}

// callWithRetry retries exactly once, and only for transport-level
// failures; HTTP-level and API-level errors are returned as-is.
func callWithRetry(ctx context.Context, cfg Config, call func(context.Context) (string, LLMUsage, error)) (string, LLMUsage, error) {
	text, usage, err := call(ctx)
	if err == nil || !isTransportError(err) || ctx.Err() != nil {
		return text, usage, err
	}
	cfg.vlogf("llm transport error, retrying once: %v", err)
	retryText, retryUsage, retryErr := call(ctx)
	retryUsage.Add(usage)
	return retryText, retryUsage, retryErr
}

func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// --- Prompt construction ---

// policyGuidanceV1 and policyGuidanceV2 are the two decision policies. The
// contract is identical; v2 carries stricter uncertainty language. Both
// make defer the stated default.
const policyGuidanceV1 = `Decision policy:
- Default to "defer" whenever you are unsure. Deferring is cheap; wrong tickets and wrong replies are not.
- "new_bug" only when ALL hold: the functionality is clearly broken, the impact is broad (not one account), the message has enough detail to act on, and your confidence is high. Never pair new_bug with medium or low confidence.
- "existing_ticket" only when a candidate issue below is the SAME issue, not just a related topic.
- "not_a_bug" only for an unambiguous feature request, how-to question, or copy/content defect.
- "needs_info" only when the message has no usable content at all (for example a bare link with no text).`

const policyGuidanceV2 = `Decision policy:
- "defer" is the default. Choose it whenever ANY uncertainty signal is present: ambiguity between bug and non-bug, scope limited to a single account or user, interrogative phrasing, or references to prior context you cannot see.
- "new_bug" requires ALL of: clearly broken functionality, broad non-account-specific impact, enough descriptive detail to reproduce or investigate, and high confidence. A single user's account being affected is never new_bug. Never pair new_bug with medium or low confidence.
- "existing_ticket" requires a candidate below describing the SAME underlying issue; topical similarity is not enough.
- "not_a_bug" requires an unambiguous classification as feature request, how-to question, or copy/content defect. If it could plausibly be a bug, defer.
- "needs_info" is reserved for messages with no usable content at all; a vague but substantive message is defer, not needs_info.`

func buildTriagePrompts(req DecisionRequest) (string, string) {
	var teamLines strings.Builder
	for _, entry := range teamRoutingGuide {
		teamLines.WriteString(fmt.Sprintf("- %s: %s\n", entry.Team, entry.Guide))
	}

	guidance := policyGuidanceV1
	if req.Policy == PolicyV2 {
		guidance = policyGuidanceV2
	}

	systemPrompt := fmt.Sprintf(`You triage bug reports from a support channel.
Classify each message with exactly one action: existing_ticket, new_bug, not_a_bug, needs_info, or defer.

%s

Team routing guide (for new_bug only):
%s
Respond with JSON only (no markdown):
{"action": "defer", "explanation": "...", "confidence": "high|medium|low", "ticket_link": "https://... (existing_ticket only)", "new_ticket": {"team": "platform", "title": "...", "description": "...", "priority": "urgent|high|medium|low"}}
Omit ticket_link unless the action is existing_ticket. Omit new_ticket unless the action is new_bug.`, guidance, teamLines.String())

	candidatesBlock := "none found"
	if len(req.Candidates) > 0 {
		var cb strings.Builder
		for _, issue := range req.Candidates {
			cb.WriteString(fmt.Sprintf("- %s | %s | %s | %s | %s\n",
				issue.Identifier, strings.TrimSpace(issue.Title), issue.Status, issue.Team, issue.URL))
		}
		candidatesBlock = cb.String()
	}

	hintsBlock := ""
	scan := ScanMessage(req.Message)
	if scan.Suggestion != "" || len(scan.TicketIDs) > 0 || len(scan.ContextRefs) > 0 {
		var hb strings.Builder
		hb.WriteString("\nLexical hints (low-confidence, advisory only):\n")
		if scan.Suggestion != "" {
			hb.WriteString(fmt.Sprintf("- heuristic: %s\n", scan.Suggestion))
		}
		if len(scan.TicketIDs) > 0 {
			hb.WriteString(fmt.Sprintf("- ticket IDs mentioned: %s\n", strings.Join(scan.TicketIDs, ", ")))
		}
		if len(scan.ContextRefs) > 0 {
			hb.WriteString(fmt.Sprintf("- references to prior context: %s\n", strings.Join(scan.ContextRefs, ", ")))
		}
		hintsBlock = hb.String()
	}

	reporterLine := req.ReporterName
	if reporterLine == "" {
		reporterLine = "unknown"
	}
	if req.ReporterNote != "" {
		reporterLine += " (" + req.ReporterNote + ")"
	}

	userPrompt := "Reporter: " + reporterLine +
		"\n\nMessage:\n" + strings.TrimSpace(req.Message) +
		"\n\nCandidate existing issues:\n" + candidatesBlock +
		hintsBlock
	return systemPrompt, userPrompt
}

// --- Anthropic ---

func callAnthropic(ctx context.Context, cfg Config, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	callCtx, cancel := context.WithTimeout(ctx, cfg.LLMTimeout())
	defer cancel()

	message, err := client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: decisionMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			cfg.vlogf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d",
				len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func callOpenAI(ctx context.Context, cfg Config, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	reqBody := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("marshaling request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.LLMTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, "POST", openAIEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.OpenAIAPIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", LLMUsage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}

	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}

	if len(openAIResp.Choices) == 0 {
		return "", LLMUsage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := LLMUsage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}

	cfg.vlogf("llm openai response size=%d tokens_in=%d tokens_out=%d",
		len(openAIResp.Choices[0].Message.Content), usage.InputTokens, usage.OutputTokens)
	return openAIResp.Choices[0].Message.Content, usage, nil
}
