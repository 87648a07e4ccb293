// Package extract classifies free maintenance text into parts, procedures,
// and warnings using keyword heuristics. It is not an NLP model: false
// positives are expected, determinism and bounded output are the contract.
package extract

import (
	"regexp"
	"strings"
)

// Category caps bound the downstream payload size.
const (
	MaxParts      = 10
	MaxProcedures = 15
	MaxWarnings   = 5
)

// Info holds maintenance information extracted from free text. Each list is
// deduplicated and capped.
type Info struct {
	Parts      []string
	Procedures []string
	Warnings   []string
}

// HasProcedure reports whether at least one procedural step was found. Only
// content with a procedure is worth promoting to the knowledge base.
func (i Info) HasProcedure() bool {
	return len(i.Procedures) > 0
}

// partCode matches alphanumeric part identifiers like "P-445", "REF 2031-A",
// or bare codes such as "XJ900" appearing near part keywords.
var partCode = regexp.MustCompile(`\b[A-Z]{1,4}[-\s]?\d{2,6}(?:[-/][A-Z0-9]{1,4})?\b`)

var partKeywords = []string{"part", "ref", "p/n", "pn ", "spare", "component", "replacement"}

var procedureVerbs = []string{
	"replace", "calibrate", "remove", "install", "check", "inspect", "clean",
	"reset", "tighten", "adjust", "test", "reconnect", "disconnect", "verify",
}

var warningTerms = []string{
	"warning", "caution", "danger", "hazard", "high voltage", "high-voltage",
	"risk of", "do not", "lockout", "tagout",
}

// Extract parses content into classified maintenance info.
func Extract(content string) Info {
	var info Info
	seenParts := make(map[string]struct{})
	seenProcs := make(map[string]struct{})
	seenWarns := make(map[string]struct{})

	for _, fragment := range splitFragments(content) {
		lowered := strings.ToLower(fragment)

		if len(info.Warnings) < MaxWarnings && containsAny(lowered, warningTerms) {
			if _, seen := seenWarns[lowered]; !seen {
				seenWarns[lowered] = struct{}{}
				info.Warnings = append(info.Warnings, fragment)
			}
		}

		if len(info.Procedures) < MaxProcedures && startsWithVerb(lowered) {
			if _, seen := seenProcs[lowered]; !seen {
				seenProcs[lowered] = struct{}{}
				info.Procedures = append(info.Procedures, fragment)
			}
		}

		if len(info.Parts) < MaxParts && containsAny(lowered, partKeywords) {
			for _, code := range partCode.FindAllString(fragment, -1) {
				if len(info.Parts) >= MaxParts {
					break
				}
				key := strings.ToLower(code)
				if _, seen := seenParts[key]; seen {
					continue
				}
				seenParts[key] = struct{}{}
				info.Parts = append(info.Parts, code)
			}
		}
	}

	return info
}

// splitFragments breaks content into sentence-like fragments. Numbered-step
// lines and sentence terminators both act as boundaries.
func splitFragments(content string) []string {
	var fragments []string
	for _, line := range strings.Split(content, "\n") {
		for _, frag := range strings.FieldsFunc(line, func(r rune) bool {
			return r == '.' || r == ';' || r == '!' || r == '?'
		}) {
			frag = strings.TrimSpace(frag)
			frag = strings.TrimLeft(frag, "0123456789).- ")
			if len(frag) >= 8 {
				fragments = append(fragments, frag)
			}
		}
	}
	return fragments
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

// startsWithVerb reports whether the fragment opens with (or closely leads
// with) a known procedural verb.
func startsWithVerb(lowered string) bool {
	words := strings.Fields(lowered)
	limit := 3
	if len(words) < limit {
		limit = len(words)
	}
	for i := 0; i < limit; i++ {
		for _, verb := range procedureVerbs {
			if words[i] == verb {
				return true
			}
		}
	}
	return false
}
