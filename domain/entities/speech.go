package entities

// RecordingState is the lifecycle state of the microphone capture
type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingListening RecordingState = "listening"
	RecordingError     RecordingState = "error"
)

// Voice is an entry of a speech synthesizer's voice catalog
type Voice struct {
	// ID is the engine specific identifier, empty when the engine addresses voices by name
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Lang    string `json:"lang,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// VoicePreference is a snapshot of the narration preferences of a session
type VoicePreference struct {
	AvailableVoices []Voice `json:"available_voices"`
	SelectedVoice   *Voice  `json:"selected_voice,omitempty"`
	AudioEnabled    bool    `json:"audio_enabled"`
}

// FindVoiceByName returns the voice whose name is exactly name
func FindVoiceByName(voices []Voice, name string) (Voice, bool) {
	if name == "" {
		return Voice{}, false
	}
	for _, v := range voices {
		if v.Name == name {
			return v, true
		}
	}
	return Voice{}, false
}
