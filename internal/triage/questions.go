package triage

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// questionLine matches "1. ...?", "2) ...?", "- ...?", "* ...?" and "• ...?" lines.
var questionLine = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.+\?)[*_]*\s*$`)

var clauseSeparator = regexp.MustCompile(`[.!?;\n]+`)

// ExtractQuestions returns the numbered or bulleted lines of text that end in
// a question mark, in order of appearance.
func ExtractQuestions(text string) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		m := questionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		q := strings.TrimSpace(strings.Trim(m[1], "*_"))
		if q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

// clauses splits text on terminal punctuation and keeps the sentence-like
// pieces longer than minClauseLength characters.
func clauses(text string) []string {
	var out []string
	for _, part := range clauseSeparator.Split(text, -1) {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) > minClauseLength {
			out = append(out, part)
		}
	}
	return out
}

// estimateAnswered approximates how many outstanding questions text answers
func estimateAnswered(text string, outstanding int) int {
	n := len(clauses(text))
	if n > outstanding {
		return outstanding
	}
	return n
}
