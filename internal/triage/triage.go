// Package triage decides how far a guided intake conversation has progressed.
// Every function is pure: contexts are passed in and new values returned.
package triage

import (
	"strings"
	"unicode/utf8"

	"github.com/dentalink/consult/domain/entities"
)

const (
	// MaxClarifyingRounds forces a conclusion after this many clarifying rounds.
	MaxClarifyingRounds = 10
	// MinMessagesForClarifying is the message count that ends intake.
	MinMessagesForClarifying = 2

	sufficientAnswers = 3
	sufficientLength  = 150
	minClauseLength   = 5
)

// NextState returns the triage state that follows a new user message.
// messageCount is the number of messages in the conversation including text.
func NextState(current entities.TriageContext, text string, messageCount int) entities.TriageState {
	if HasRedFlags(text) {
		return entities.TriageStateConclusion
	}

	switch current.State {
	case entities.TriageStateConclusion:
		return entities.TriageStateConclusion

	case "", entities.TriageStateIntake:
		if messageCount >= MinMessagesForClarifying {
			return entities.TriageStateClarifying
		}
		return entities.TriageStateIntake

	case entities.TriageStateClarifying:
		if sufficient(current, text) || current.Round >= MaxClarifyingRounds {
			return entities.TriageStateConclusion
		}
		return entities.TriageStateClarifying
	}

	return current.State
}

func sufficient(current entities.TriageContext, text string) bool {
	text = strings.TrimSpace(text)
	if estimateAnswered(text, len(current.LastQuestions)) >= sufficientAnswers {
		return true
	}
	return utf8.RuneCountInString(text) > sufficientLength
}

// UpdateContext applies a transition to current. userText answers the
// outstanding questions; assistantText is the assistant message that
// preceded it and supplies the questions for the next round.
func UpdateContext(current entities.TriageContext, next entities.TriageState, userText, assistantText string) entities.TriageContext {
	out := current.Clone()
	if out.State == "" {
		out.State = entities.TriageStateIntake
	}

	switch next {
	case entities.TriageStateClarifying:
		if out.State == entities.TriageStateClarifying {
			out.Round++
			out.Answers = recordAnswers(out.Answers, out.LastQuestions, userText)
		} else {
			out.Round = 1
		}
		out.State = entities.TriageStateClarifying
		if questions := ExtractQuestions(assistantText); len(questions) > 0 {
			out.LastQuestions = questions
		}

	case entities.TriageStateConclusion:
		if out.State == entities.TriageStateClarifying {
			out.Answers = recordAnswers(out.Answers, out.LastQuestions, userText)
		}
		out.State = entities.TriageStateConclusion
		out.LastQuestions = nil

	default:
		out.State = next
	}

	return out
}

// RecordQuestions stores the questions asked by a finished assistant reply so
// the next user message can be measured against them. Outside clarifying it
// returns current unchanged.
func RecordQuestions(current entities.TriageContext, assistantText string) entities.TriageContext {
	if current.State != entities.TriageStateClarifying {
		return current
	}
	questions := ExtractQuestions(assistantText)
	if len(questions) == 0 {
		return current
	}
	out := current.Clone()
	out.LastQuestions = questions
	return out
}

// Escalate moves the context straight to conclusion, as when the assistant
// itself replies with an urgent or concluding turn.
func Escalate(current entities.TriageContext) entities.TriageContext {
	out := current.Clone()
	out.State = entities.TriageStateConclusion
	out.LastQuestions = nil
	return out
}

// recordAnswers pairs outstanding questions with the clauses of text, in order.
func recordAnswers(answers map[string]string, questions []string, text string) map[string]string {
	parts := clauses(text)
	if len(parts) == 0 || len(questions) == 0 {
		return answers
	}
	if answers == nil {
		answers = make(map[string]string)
	}
	for i, q := range questions {
		if i >= len(parts) {
			break
		}
		answers[q] = parts[i]
	}
	return answers
}
