package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dentalink/consult/domain/entities"
	"github.com/dentalink/consult/domain/repositories"
)

// MockInference answers from canned replies chosen by triage state. It
// streams in small chunks so the client sees progressive updates.
type MockInference struct {
	ChunkSize  int
	ChunkDelay time.Duration
}

// NewMockInference creates a mock inference channel
func NewMockInference() *MockInference {
	return &MockInference{ChunkSize: 12, ChunkDelay: 20 * time.Millisecond}
}

// Stream implements repositories.InferenceChannel
func (m *MockInference) Stream(ctx context.Context, req repositories.InferenceRequest) (io.ReadCloser, error) {
	reply := mockReply(req)
	size := m.ChunkSize
	if size <= 0 {
		size = len(reply)
	}

	pr, pw := io.Pipe()
	go func() {
		for len(reply) > 0 {
			n := size
			if n > len(reply) {
				n = len(reply)
			}
			if _, err := io.WriteString(pw, reply[:n]); err != nil {
				return
			}
			reply = reply[n:]

			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			case <-time.After(m.ChunkDelay):
			}
		}
		pw.Close()
	}()
	return pr, nil
}

func mockReply(req repositories.InferenceRequest) string {
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}

	var t *entities.Turn
	switch req.TriageState {
	case entities.TriageStateClarifying:
		freeText := true
		t = &entities.Turn{
			Mode:     entities.TurnModeQuestion,
			Title:    "Câteva detalii",
			Question: fmt.Sprintf("Ați spus: «%s». Când a început durerea?", truncate(last, 60)),
			Options: []entities.Option{
				{Label: "Azi", Value: "azi"},
				{Label: "De câteva zile", Value: "zile"},
				{Label: "De peste o săptămână", Value: "saptamana"},
			},
			AllowFreeText: &freeText,
			Severity:      entities.SeverityLow,
		}
	case entities.TriageStateConclusion:
		t = &entities.Turn{
			Mode:     entities.TurnModeConclusion,
			Title:    "Rezumat",
			Severity: entities.SeverityMedium,
			Conclusion: &entities.Conclusion{
				Summary: "Simptomele sugerează o problemă care trebuie evaluată în cabinet.",
				Probabilities: []entities.Probability{
					{Label: "Carie profundă", Percent: 60},
					{Label: "Sensibilitate dentară", Percent: 30},
				},
				NextSteps: []entities.NextStep{
					{Icon: "calendar", Title: "Programare", Text: "Programați un consult în următoarele zile."},
				},
				RedFlags: []string{"febră", "umflătură"},
				CTA:      &entities.CTA{Label: "Programează", Href: "/programari"},
			},
		}
	default:
		return "Bună ziua! Vă rog să-mi spuneți ce vă supără.\n" +
			"1. Unde vă doare?\n" +
			"2. De când a început durerea?"
	}

	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return t.Title
	}
	return "```json\n" + string(raw) + "\n```"
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
