package stt

import (
	"context"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap/zaptest"

	"github.com/dentalink/consult/domain/repositories"
)

var (
	_ repositories.SpeechRecognizer = &GoogleRecognizer{}
	_ repositories.SpeechRecognizer = &MockRecognizer{}
)

func TestToResults(t *testing.T) {
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{IsFinal: true, Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " mă doare "}}},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "măseaua"}}},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "de minte"}}},
			{IsFinal: true},
		},
	}

	got := toResults(resp)
	if len(got) != 2 {
		t.Fatalf("Expected 2 results, got %+v", got)
	}
	if !got[0].IsFinal || got[0].Text != "mă doare" {
		t.Errorf("Expected trimmed final, got %+v", got[0])
	}
	if got[1].IsFinal || got[1].Text != "măseaua de minte" {
		t.Errorf("Expected joined partial, got %+v", got[1])
	}
}

func TestGetAudioEncoding(t *testing.T) {
	if enc, err := getAudioEncoding("LINEAR16"); err != nil || enc != speechpb.RecognitionConfig_LINEAR16 {
		t.Errorf("Expected LINEAR16, got %v, %v", enc, err)
	}
	if enc, err := getAudioEncoding("WEBM_OPUS"); err != nil || enc != speechpb.RecognitionConfig_WEBM_OPUS {
		t.Errorf("Expected WEBM_OPUS, got %v, %v", enc, err)
	}
	if _, err := getAudioEncoding("MP3"); err == nil {
		t.Error("Expected error for unsupported encoding")
	}
}

func TestMockRecognizer_RevealsWordsAndFinalizesOnStop(t *testing.T) {
	m := NewMockRecognizer(zaptest.NewLogger(t))
	stream, err := m.Start(context.Background(), repositories.AudioConfig{SampleRate: 16000, Encoding: "LINEAR16", Language: "ro-RO"})
	if err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	if err := stream.SendAudio(make([]byte, 2*WordBytes)); err != nil {
		t.Fatalf("Failed to send audio: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}

	var results []repositories.RecognitionResult
	for res := range stream.Results() {
		results = append(results, res)
	}

	if len(results) != 3 {
		t.Fatalf("Expected 2 partials and 1 final, got %+v", results)
	}
	if results[0].Text != "pacientul" || results[0].IsFinal {
		t.Errorf("Unexpected first partial %+v", results[0])
	}
	if results[2].Text != "pacientul acuză" || !results[2].IsFinal {
		t.Errorf("Expected heard words confirmed on stop, got %+v", results[2])
	}
	if stream.Err() != nil {
		t.Errorf("Expected clean end, got %v", stream.Err())
	}
	if err := stream.SendAudio([]byte{1}); err == nil {
		t.Error("Expected send after stop to fail")
	}
}

func TestMockRecognizer_CompletesPhrase(t *testing.T) {
	m := NewMockRecognizer(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, _ := m.Start(ctx, repositories.AudioConfig{Language: "ro-RO"})

	// "pacientul acuză durere la măseaua de minte" has seven words
	stream.SendAudio(make([]byte, 7*WordBytes))

	var final repositories.RecognitionResult
	for res := range stream.Results() {
		if res.IsFinal {
			final = res
			cancel()
		}
	}
	if final.Text != mockPhrases[0] {
		t.Errorf("Expected full phrase, got %q", final.Text)
	}
	if stream.Err() == nil {
		t.Error("Expected cancellation reported as stream error")
	}
}
