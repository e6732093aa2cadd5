package repositories

import "context"

// RecognitionConfig configures a recognition session
type RecognitionConfig struct {
	Language       string `json:"language"`
	SampleRate     int    `json:"sample_rate,omitempty"`
	Encoding       string `json:"encoding,omitempty"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

// RecognitionResult is one result reported by a recognition engine. A final
// result closes a segment; an interim one replaces the previous interim guess.
type RecognitionResult struct {
	Transcript string
	IsFinal    bool
}

// SpeechRecognizer abstracts a continuous speech recognition engine and the
// microphone behind it
type SpeechRecognizer interface {
	// StartRecognition acquires the microphone and starts recognizing. An error
	// means the engine could not be started and nothing was acquired.
	StartRecognition(ctx context.Context, config RecognitionConfig) (RecognitionStream, error)
}

// RecognitionStream is one active recognition session
type RecognitionStream interface {
	// Results delivers results in order and is closed when the stream ends
	Results() <-chan RecognitionResult
	// Err returns the fault that ended the stream, or nil when it ended
	// normally. Only meaningful once Results is closed.
	Err() error
	// Stop asks the engine to stop. Pending results are still delivered
	// before Results is closed.
	Stop() error
}

// AudioFeeder is implemented by recognition streams that are fed raw audio by
// the server instead of capturing it themselves
type AudioFeeder interface {
	FeedAudio(data []byte) error
}
