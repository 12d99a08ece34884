package report

import (
	"fmt"
	"regexp"
	"strings"

	"woundchrono/internal/wat"
)

var sentenceEnd = regexp.MustCompile(`(?s)(?:[.?!])\s+`)

var questionStarters = []string{
	"should", "can i", "can we", "do i", "do we",
	"is it", "is there", "are there", "what", "how",
	"when", "which", "would", "could",
}

// HasQuestions reports whether the notes contain anything that reads like a
// clinical question. A literal question mark always counts; otherwise a
// sentence opening with a question word does.
func HasQuestions(notes string) bool {
	if strings.Contains(notes, "?") {
		return true
	}
	lower := strings.TrimSpace(strings.ToLower(notes))
	for _, starter := range questionStarters {
		if strings.HasPrefix(lower, starter) ||
			strings.Contains(lower, ". "+starter) ||
			strings.Contains(lower, ", "+starter) {
			return true
		}
	}
	return false
}

// ExtractQuestions pulls the question sentences out of free-text notes.
// Fragments under ten characters are noise and skipped.
func ExtractQuestions(notes string) []string {
	var out []string
	for _, s := range splitSentences(notes) {
		s = strings.TrimSpace(s)
		if strings.Contains(s, "?") && len(s) > 10 {
			out = append(out, s)
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// Keep the terminating punctuation with its sentence.
		out = append(out, text[last:loc[0]+1])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

// BuildQuestionPrompt assembles the focused Q&A prompt. Answers come from
// the base model rather than the scoring adapter, so the prompt spells out
// the assessment context the adapter would otherwise carry.
func BuildQuestionPrompt(questions []string, res *wat.Result) string {
	var b strings.Builder
	b.WriteString("You are a wound care clinical decision support assistant.\n")
	b.WriteString("Based on the wound image and assessment below, answer each nurse question.\n\n")
	b.WriteString("Wound Assessment:\n")
	for _, dim := range wat.Dimensions {
		fmt.Fprintf(&b, "  %s: %.2f/1.0 (%s)\n", dimensionTitle(dim), res.Scores[dim], res.Descriptions[dim])
	}
	b.WriteString("\nNurse questions:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, q)
	}
	b.WriteString("\nAnswer each question on a separate numbered line.\n")
	b.WriteString("Be SPECIFIC: name dressing types (foam, alginate, hydrocolloid, silver-impregnated),\n")
	b.WriteString("medications (mupirocin, metronidazole), or measurable thresholds.\n")
	b.WriteString("Reference the assessment scores when relevant.\n")
	b.WriteString("Keep each answer to 1-2 sentences. English only.\n")
	return b.String()
}

const fallbackAnswer = "Clinical evaluation recommended."

var nonASCII = regexp.MustCompile(`[^\x00-\x7F]+`)

// ParseAnswers matches the model's numbered reply back to the questions.
// Each result is a "Q: ... — A: ..." line; a question whose answer cannot
// be located or is garbage gets the fallback.
func ParseAnswers(raw string, questions []string) []string {
	var rawLines []string
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rawLines = append(rawLines, line)
		}
	}

	answers := make([]string, 0, len(questions))
	for i, q := range questions {
		var matched string
		for _, line := range rawLines {
			for _, pfx := range []string{fmt.Sprintf("%d.", i+1), fmt.Sprintf("%d)", i+1), fmt.Sprintf("%d:", i+1)} {
				if strings.HasPrefix(line, pfx) {
					matched = strings.TrimSpace(line[len(pfx):])
					break
				}
			}
			if matched != "" {
				break
			}
		}
		if matched == "" && i < len(rawLines) {
			matched = rawLines[i]
		}

		matched = strings.TrimSpace(nonASCII.ReplaceAllString(matched, ""))
		if len(matched) < 5 {
			matched = fallbackAnswer
		}
		if strings.HasPrefix(strings.ToLower(matched), "a:") {
			matched = strings.TrimSpace(matched[2:])
		}
		answers = append(answers, fmt.Sprintf("Q: %s — A: %s", q, matched))
	}
	return answers
}
