package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/dentalink/consult/domain/repositories"
)

const resultBuffer = 16

// GoogleRecognizer implements SpeechRecognizer with Google Cloud streaming recognition
type GoogleRecognizer struct {
	client *speech.Client
	logger *zap.Logger
}

// NewGoogleRecognizer creates the speech client using application default credentials
func NewGoogleRecognizer(ctx context.Context, logger *zap.Logger) (*GoogleRecognizer, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleRecognizer{client: client, logger: logger}, nil
}

// Close releases the speech client
func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

// Start opens a streaming recognition with interim results
func (g *GoogleRecognizer) Start(ctx context.Context, config repositories.AudioConfig) (repositories.RecognitionStream, error) {
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(config.SampleRate),
		LanguageCode:               config.Language,
		EnableAutomaticPunctuation: true,
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recognitionConfig,
				InterimResults: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &googleStream{
		stream:  stream,
		ctx:     ctx,
		results: make(chan repositories.RecognitionResult, resultBuffer),
		logger:  g.logger,
	}
	go s.receive()
	return s, nil
}

type googleStream struct {
	stream  speechpb.Speech_StreamingRecognizeClient
	ctx     context.Context
	results chan repositories.RecognitionResult
	logger  *zap.Logger

	// sendMu serializes Send and CloseSend on the gRPC stream
	sendMu sync.Mutex
	closed bool

	errMu sync.Mutex
	err   error
}

func (g *googleStream) SendAudio(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	if g.closed {
		return errors.New("recognition stream is closed")
	}

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (g *googleStream) Results() <-chan repositories.RecognitionResult {
	return g.results
}

func (g *googleStream) Stop() error {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if err := g.stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

func (g *googleStream) Err() error {
	g.errMu.Lock()
	defer g.errMu.Unlock()
	return g.err
}

func (g *googleStream) receive() {
	defer close(g.results)

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			g.errMu.Lock()
			g.err = fmt.Errorf("failed to receive response: %w", err)
			g.errMu.Unlock()
			return
		}
		if st := resp.GetError(); st != nil {
			g.logger.Warn("Speech recognizer reported an error",
				zap.Int32("code", st.GetCode()),
				zap.String("message", st.GetMessage()))
		}

		for _, res := range toResults(resp) {
			select {
			case g.results <- res:
			case <-g.ctx.Done():
				return
			}
		}
	}
}

// toResults flattens one response. Interim hypotheses are joined into a
// single partial because Google splits them by stability.
func toResults(resp *speechpb.StreamingRecognizeResponse) []repositories.RecognitionResult {
	var out []repositories.RecognitionResult
	var interim []string

	for _, result := range resp.GetResults() {
		if len(result.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(result.Alternatives[0].Transcript)
		if result.IsFinal {
			out = append(out, repositories.RecognitionResult{Text: text, IsFinal: true})
			continue
		}
		if text != "" {
			interim = append(interim, text)
		}
	}
	if len(interim) > 0 {
		out = append(out, repositories.RecognitionResult{Text: strings.Join(interim, " ")})
	}
	return out
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
