package runner

import (
	"strings"

	"github.com/anotherai-dev/anotherai/pkg/models"
	"github.com/anotherai-dev/anotherai/pkg/provider"
)

// RunnerOutputChunk is one element of the runner's output stream. Final is
// set on exactly one chunk, the last; it carries the assembled completion
// or the failure.
type RunnerOutputChunk struct {
	Delta           string                   `json:"delta,omitempty"`
	Reasoning       string                   `json:"reasoning,omitempty"`
	ToolCallRequest *models.ToolCallRequest  `json:"tool_call_request,omitempty"`
	Final           bool                     `json:"final"`
	Completion      *models.AgentCompletion `json:"-"`
	Err             error                    `json:"-"`
}

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// streamingContext accumulates provider chunks for one attempt. For
// providers that inline reasoning into the text stream as
// <think>…</think> (Fireworks), it splits those spans out into reasoning
// chunks and keeps them out of the assembled assistant text.
type streamingContext struct {
	parseThinkTags bool

	buf     strings.Builder // pending text not yet classified
	inThink bool

	text      strings.Builder
	reasoning strings.Builder
	toolCalls []models.ToolCallRequest
	emitted   bool
}

func newStreamingContext(p provider.Provider) *streamingContext {
	return &streamingContext{parseThinkTags: p == provider.Fireworks}
}

// process translates one provider chunk into zero or more output chunks.
func (sc *streamingContext) process(chunk provider.Chunk) []RunnerOutputChunk {
	switch c := chunk.(type) {
	case provider.DeltaChunk:
		if !sc.parseThinkTags {
			sc.text.WriteString(c.Text)
			return sc.record(RunnerOutputChunk{Delta: c.Text})
		}
		return sc.processTagged(c.Text)
	case provider.ReasoningChunk:
		sc.reasoning.WriteString(c.Text)
		return sc.record(RunnerOutputChunk{Reasoning: c.Text})
	case provider.ToolCallChunk:
		call := c.Call
		sc.toolCalls = append(sc.toolCalls, call)
		return sc.record(RunnerOutputChunk{ToolCallRequest: &call})
	}
	return nil
}

// processTagged scans buffered text for think-tag boundaries, holding back
// any suffix that could still turn into a tag.
func (sc *streamingContext) processTagged(text string) []RunnerOutputChunk {
	pending := sc.buf.String() + text
	sc.buf.Reset()

	var out []RunnerOutputChunk
	for {
		if sc.inThink {
			if idx := strings.Index(pending, thinkClose); idx >= 0 {
				if idx > 0 {
					sc.reasoning.WriteString(pending[:idx])
					out = append(out, RunnerOutputChunk{Reasoning: pending[:idx]})
				}
				pending = pending[idx+len(thinkClose):]
				sc.inThink = false
				continue
			}
			emit := holdTagSuffix(pending, thinkClose)
			if emit != "" {
				sc.reasoning.WriteString(emit)
				out = append(out, RunnerOutputChunk{Reasoning: emit})
			}
			sc.buf.WriteString(pending[len(emit):])
			break
		}
		if idx := strings.Index(pending, thinkOpen); idx >= 0 {
			if idx > 0 {
				sc.text.WriteString(pending[:idx])
				out = append(out, RunnerOutputChunk{Delta: pending[:idx]})
			}
			pending = pending[idx+len(thinkOpen):]
			sc.inThink = true
			continue
		}
		emit := holdTagSuffix(pending, thinkOpen)
		if emit != "" {
			sc.text.WriteString(emit)
			out = append(out, RunnerOutputChunk{Delta: emit})
		}
		sc.buf.WriteString(pending[len(emit):])
		break
	}
	return sc.record(out...)
}

// flush drains any text still held back for a possible tag match.
func (sc *streamingContext) flush() []RunnerOutputChunk {
	pending := sc.buf.String()
	sc.buf.Reset()
	if pending == "" {
		return nil
	}
	if sc.inThink {
		sc.reasoning.WriteString(pending)
		return sc.record(RunnerOutputChunk{Reasoning: pending})
	}
	sc.text.WriteString(pending)
	return sc.record(RunnerOutputChunk{Delta: pending})
}

func (sc *streamingContext) record(chunks ...RunnerOutputChunk) []RunnerOutputChunk {
	if len(chunks) > 0 {
		sc.emitted = true
	}
	return chunks
}

// outputMessage assembles the assistant message seen by the caller, with
// think spans stripped from the text and kept as reasoning.
func (sc *streamingContext) outputMessage() models.Message {
	return models.Message{
		Role:      models.RoleAssistant,
		Content:   sc.text.String(),
		Reasoning: sc.reasoning.String(),
		ToolCalls: sc.toolCalls,
	}
}

// holdTagSuffix returns the emittable prefix of s: everything except the
// longest suffix that is a proper prefix of tag.
func holdTagSuffix(s, tag string) string {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return s[:len(s)-n]
		}
	}
	return s
}

// stripThinkTags removes think spans from a buffered response, returning
// the clean text and the extracted reasoning.
func stripThinkTags(s string) (text, reasoning string) {
	sc := &streamingContext{parseThinkTags: true}
	sc.processTagged(s)
	sc.flush()
	return sc.text.String(), sc.reasoning.String()
}
