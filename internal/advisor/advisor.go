// Package advisor implements the stuck-moderator advisor (SPEC_FULL.md
// DOMAIN STACK): before a moderator's output is forwarded to the rest of
// the panel, ask a small model whether the moderator looks stuck in a
// repetitive loop, so the router can emit a system.note instead of
// forwarding. Grounded directly on the teacher's
// internal/executor/agent.go checkAILoopDetection: same model tier, same
// confidence-gated JSON verdict contract, same "disabled means skip, never
// block" failure posture.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

const (
	model           = "claude-3-5-haiku-20241022"
	confidenceFloor = 0.8
	callTimeout     = 10 * time.Second
	historyWindow   = 20
)

// Advisor judges whether a sequence of recent moderator messages looks
// like an unproductive loop. A nil or disabled Advisor always answers
// false — moderator forwarding then behaves exactly as spec.md §4.5
// describes with no advisor involved.
type Advisor struct {
	apiKey  string
	limiter *rate.Limiter
}

// New constructs an Advisor. It reads ANTHROPIC_API_KEY lazily at call
// time (not here) so tests can toggle the environment, matching the
// teacher's own pattern in checkAILoopDetection.
func New() *Advisor {
	return &Advisor{
		// One call per moderator turn is cheap; the limiter exists purely
		// as a backstop against a misbehaving adapter looping tightly.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Verdict is the advisor's judgment for one check.
type Verdict struct {
	Stuck      bool
	Confidence float64
	Reasoning  string
}

// Check asks whether recentMessages (most recent last) show the moderator
// stuck in a loop. It never returns an error that should halt forwarding —
// any failure (no API key, network error, malformed response) degrades to
// Verdict{Stuck: false}, exactly like the teacher's checkAILoopDetection.
func (a *Advisor) Check(ctx context.Context, recentMessages []string) Verdict {
	if a == nil {
		return Verdict{}
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" || os.Getenv("ACPHUB_DISABLE_ADVISOR") != "" {
		return Verdict{}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return Verdict{}
	}

	window := recentMessages
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}

	prompt := buildPrompt(window)

	checkCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	resp, err := client.Messages.New(checkCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(300),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Verdict{}
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return Verdict{}
	}

	result, ok := parseVerdict(text)
	if !ok || result.Confidence <= confidenceFloor {
		return Verdict{}
	}
	return result
}

func buildPrompt(messages []string) string {
	var sb strings.Builder
	sb.WriteString("You are analyzing a moderator agent's recent outgoing messages for signs of a repetitive, unproductive loop.\n\n")
	fmt.Fprintf(&sb, "Recent messages (last %d):\n", len(messages))
	for i, m := range messages {
		fmt.Fprintf(&sb, "%d: %s\n", i+1, m)
	}
	sb.WriteString(`
Is the moderator stuck, repeating itself without making progress?

Respond with JSON:
{
  "stuck": true/false,
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation"
}

Only say stuck=true if you're confident (>0.8) this is a loop.`)
	return sb.String()
}

func parseVerdict(text string) (Verdict, bool) {
	var raw struct {
		Stuck      bool    `json:"stuck"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err == nil {
		return Verdict{Stuck: raw.Stuck, Confidence: raw.Confidence, Reasoning: raw.Reasoning}, true
	}

	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end > 0 {
			if err := json.Unmarshal([]byte(text[start:start+end]), &raw); err == nil {
				return Verdict{Stuck: raw.Stuck, Confidence: raw.Confidence, Reasoning: raw.Reasoning}, true
			}
		}
	}
	return Verdict{}, false
}
