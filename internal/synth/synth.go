// Package synth invokes the generative-text service under a strict schema
// contract and validates the structured result.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/faultlinehq/faultline/internal/llm"
)

// ErrSynthesisFailed means the generative-text service was unreachable,
// returned a non-success status, or returned content violating the schema.
// There is no best-effort parse: any violation is this error.
var ErrSynthesisFailed = errors.New("synthesis failed")

const personaPrompt = `You are an experienced field-service engineer diagnosing equipment faults.
You combine the reported symptoms with prior repair knowledge and documentation
excerpts to determine the most likely root cause and a concrete repair.`

const requestPrompt = `Diagnose this equipment fault.

Device type: %s
Manufacturer: %s
Model: %s
Fault description: %s
%s
=== Prior similar faults from the knowledge base ===
%s

=== Documentation excerpts ===
%s

Respond with ONLY this JSON, no other text:
{
    "rootCause": "The most likely root cause",
    "solution": "Step-by-step repair instructions",
    "partsRequired": ["part numbers or names, empty list if none"],
    "estimatedRepairTime": "e.g. 1 hour",
    "difficulty": "easy" | "medium" | "hard" | "expert",
    "references": ["document or source names used, empty list if none"]
}`

// Synthesizer produces a structured diagnosis from a request plus assembled
// context.
type Synthesizer struct {
	provider  llm.Provider
	maxTokens int
}

// NewSynthesizer creates a Synthesizer. maxTokens bounds the response length.
func NewSynthesizer(provider llm.Provider, maxTokens int) *Synthesizer {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Synthesizer{provider: provider, maxTokens: maxTokens}
}

// Synthesize calls the generative-text service and decodes the result under
// the schema contract. knowledgeContext and documentContext are already
// assembled and are included as clearly delimited blocks.
func (s *Synthesizer) Synthesize(ctx context.Context, req *Request, knowledgeContext, documentContext string) (*Diagnosis, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("%w: no generative-text provider configured", ErrSynthesisFailed)
	}

	messages := []llm.Message{
		{Role: "system", Content: personaPrompt},
		{Role: "user", Content: s.buildPrompt(req, knowledgeContext, documentContext)},
	}

	responseText, err := s.provider.Generate(ctx, messages, s.maxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	return decodeDiagnosis(responseText)
}

func (s *Synthesizer) buildPrompt(req *Request, knowledgeContext, documentContext string) string {
	var extra strings.Builder
	if req.Symptoms != "" {
		fmt.Fprintf(&extra, "Symptoms: %s\n", req.Symptoms)
	}
	if req.ErrorCodes != "" {
		fmt.Fprintf(&extra, "Error codes: %s\n", req.ErrorCodes)
	}

	if knowledgeContext == "" {
		knowledgeContext = "(none)"
	}
	if documentContext == "" {
		documentContext = "(none)"
	}

	return fmt.Sprintf(requestPrompt,
		req.DeviceType, req.Manufacturer, req.Model, req.FaultDescription,
		extra.String(), knowledgeContext, documentContext)
}

// decodeDiagnosis enforces the schema contract: valid JSON, no unknown
// fields, every field present, difficulty within the enum. Missing or invalid
// fields are never defaulted or coerced.
func decodeDiagnosis(responseText string) (*Diagnosis, error) {
	raw := llm.ExtractJSON(responseText)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", ErrSynthesisFailed)
	}

	var payload struct {
		RootCause           *string   `json:"rootCause"`
		Solution            *string   `json:"solution"`
		PartsRequired       *[]string `json:"partsRequired"`
		EstimatedRepairTime *string   `json:"estimatedRepairTime"`
		Difficulty          *string   `json:"difficulty"`
		References          *[]string `json:"references"`
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: response does not parse against schema: %v", ErrSynthesisFailed, err)
	}

	switch {
	case payload.RootCause == nil || *payload.RootCause == "":
		return nil, fmt.Errorf("%w: missing rootCause", ErrSynthesisFailed)
	case payload.Solution == nil || *payload.Solution == "":
		return nil, fmt.Errorf("%w: missing solution", ErrSynthesisFailed)
	case payload.PartsRequired == nil:
		return nil, fmt.Errorf("%w: missing partsRequired", ErrSynthesisFailed)
	case payload.EstimatedRepairTime == nil || *payload.EstimatedRepairTime == "":
		return nil, fmt.Errorf("%w: missing estimatedRepairTime", ErrSynthesisFailed)
	case payload.Difficulty == nil:
		return nil, fmt.Errorf("%w: missing difficulty", ErrSynthesisFailed)
	case payload.References == nil:
		return nil, fmt.Errorf("%w: missing references", ErrSynthesisFailed)
	}

	if !ValidDifficulty(*payload.Difficulty) {
		return nil, fmt.Errorf("%w: invalid difficulty %q", ErrSynthesisFailed, *payload.Difficulty)
	}

	return &Diagnosis{
		RootCause:           *payload.RootCause,
		Solution:            *payload.Solution,
		PartsRequired:       *payload.PartsRequired,
		EstimatedRepairTime: *payload.EstimatedRepairTime,
		Difficulty:          *payload.Difficulty,
		References:          *payload.References,
	}, nil
}
