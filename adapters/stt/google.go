package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/satriahrh/buddy/domain/repositories"
)

const (
	defaultSampleRate = 16000
	defaultEncoding   = "LINEAR16"
	defaultLanguage   = "en-US"
)

// GoogleSpeechConfig holds configuration for the Google streaming recognizer
type GoogleSpeechConfig struct {
	CredentialsFile string // Optional: service account file, application default credentials otherwise
	SampleRate      int    // Optional: sample rate of the fed audio (default: 16000)
	Encoding        string // Optional: encoding of the fed audio (default: LINEAR16)
	Model           string // Optional: recognition model, e.g. "latest_long"
}

// ValidateGoogleSpeechConfig validates the GoogleSpeechConfig
func ValidateGoogleSpeechConfig(config GoogleSpeechConfig) error {
	if config.SampleRate < 0 {
		return fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Encoding != "" {
		if _, err := getAudioEncoding(config.Encoding); err != nil {
			return err
		}
	}
	if config.CredentialsFile != "" {
		if _, err := os.Stat(config.CredentialsFile); err != nil {
			return fmt.Errorf("credentials file not readable: %w", err)
		}
	}
	return nil
}

// NewGoogleSpeechConfigFromEnv reads GoogleSpeechConfig from the environment
func NewGoogleSpeechConfigFromEnv() GoogleSpeechConfig {
	config := GoogleSpeechConfig{
		CredentialsFile: os.Getenv("GOOGLE_SPEECH_CREDENTIALS_FILE"),
		Encoding:        os.Getenv("GOOGLE_SPEECH_ENCODING"),
		Model:           os.Getenv("GOOGLE_SPEECH_MODEL"),
	}
	if rateStr := os.Getenv("GOOGLE_SPEECH_SAMPLE_RATE"); rateStr != "" {
		if rate, err := strconv.Atoi(rateStr); err == nil && rate > 0 {
			config.SampleRate = rate
		}
	}
	return config
}

// recognizeStream is the part of the gRPC streaming client the recognizer uses
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

type dialFunc func(ctx context.Context) (recognizeStream, io.Closer, error)

// GoogleSpeechRecognizer recognizes audio fed over the socket with Google
// Cloud streaming recognition. Each recording opens its own gRPC stream.
type GoogleSpeechRecognizer struct {
	config GoogleSpeechConfig
	dial   dialFunc
	logger *zap.Logger
}

var _ repositories.SpeechRecognizer = (*GoogleSpeechRecognizer)(nil)

// NewGoogleSpeechRecognizer creates a recognizer, applying defaults to config
func NewGoogleSpeechRecognizer(config GoogleSpeechConfig, logger *zap.Logger) (*GoogleSpeechRecognizer, error) {
	if err := ValidateGoogleSpeechConfig(config); err != nil {
		return nil, err
	}
	if config.SampleRate == 0 {
		config.SampleRate = defaultSampleRate
		logger.Info("Using default sample rate", zap.Int("sampleRate", config.SampleRate))
	}
	if config.Encoding == "" {
		config.Encoding = defaultEncoding
		logger.Info("Using default audio encoding", zap.String("encoding", config.Encoding))
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	dial := func(ctx context.Context) (recognizeStream, io.Closer, error) {
		client, err := speech.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create speech client: %w", err)
		}
		stream, err := client.StreamingRecognize(ctx)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to create streaming recognize: %w", err)
		}
		return stream, client, nil
	}

	return &GoogleSpeechRecognizer{config: config, dial: dial, logger: logger}, nil
}

// StartRecognition opens a streaming recognition and sends its configuration.
// Audio is then supplied through the returned stream's FeedAudio.
func (g *GoogleSpeechRecognizer) StartRecognition(ctx context.Context, config repositories.RecognitionConfig) (repositories.RecognitionStream, error) {
	encodingName := config.Encoding
	if encodingName == "" {
		encodingName = g.config.Encoding
	}
	encoding, err := getAudioEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = g.config.SampleRate
	}
	language := config.Language
	if language == "" {
		language = defaultLanguage
	}

	// the recognition outlives the request that started it
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, closer, err := g.dial(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   encoding,
					SampleRateHertz:            int32(sampleRate),
					LanguageCode:               language,
					Model:                      g.config.Model,
					EnableAutomaticPunctuation: true,
				},
				InterimResults:  config.InterimResults,
				SingleUtterance: !config.Continuous,
			},
		},
	}); err != nil {
		stream.CloseSend()
		closer.Close()
		cancel()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	g.logger.Info("Started streaming recognition",
		zap.String("language", language),
		zap.Int("sampleRate", sampleRate),
		zap.String("encoding", encodingName),
		zap.Bool("interimResults", config.InterimResults))

	s := &googleStream{
		stream:  stream,
		closer:  closer,
		cancel:  cancel,
		results: make(chan repositories.RecognitionResult, 32),
		logger:  g.logger,
	}
	go s.receiveResults()
	return s, nil
}

type googleStream struct {
	stream  recognizeStream
	closer  io.Closer
	cancel  context.CancelFunc
	results chan repositories.RecognitionResult
	logger  *zap.Logger

	sendMu   sync.Mutex
	stopped  bool
	mu       sync.Mutex
	err      error
	stopOnce sync.Once
}

var _ repositories.AudioFeeder = (*googleStream)(nil)

func (s *googleStream) Results() <-chan repositories.RecognitionResult { return s.results }

func (s *googleStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// FeedAudio sends an audio chunk to the recognizer
func (s *googleStream) FeedAudio(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.stopped {
		return errors.New("recognition stream stopped")
	}
	if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: data},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

// Stop half-closes the stream; results still in flight are delivered before
// Results is closed
func (s *googleStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.sendMu.Lock()
		s.stopped = true
		err = s.stream.CloseSend()
		s.sendMu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

func (s *googleStream) receiveResults() {
	defer close(s.results)
	defer s.cancel()
	defer s.closer.Close()

	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			s.logger.Debug("Streaming recognition ended")
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("failed to receive response: %w", err))
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			s.fail(fmt.Errorf("recognition error %d: %s", st.GetCode(), st.GetMessage()))
			return
		}

		for _, result := range responseResults(resp) {
			s.results <- result
		}
	}
}

func (s *googleStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.logger.Warn("Streaming recognition failed", zap.Error(err))
}

// responseResults turns a response into recognition results. Final results
// are reported one by one; the non-final ones together form the current
// interim guess.
func responseResults(resp *speechpb.StreamingRecognizeResponse) []repositories.RecognitionResult {
	var out []repositories.RecognitionResult
	var interim []string
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		transcript := strings.TrimSpace(alternatives[0].GetTranscript())
		if transcript == "" {
			continue
		}
		if result.GetIsFinal() {
			out = append(out, repositories.RecognitionResult{Transcript: transcript, IsFinal: true})
			continue
		}
		interim = append(interim, transcript)
	}
	if len(interim) > 0 {
		out = append(out, repositories.RecognitionResult{Transcript: strings.Join(interim, " ")})
	}
	return out
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "WAV", "LINEAR16", "PCM":
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
