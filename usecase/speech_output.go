package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/domain/repositories"
)

const (
	defaultPreferredVoice = "Google UK English Male"
	defaultNarrationLang  = "en-US"
	defaultSpeechRate     = 1.15
	defaultSpeechPitch    = 1.0
	defaultSpeechVolume   = 1.3
)

// VoiceProfile is the fixed narration profile of a session
type VoiceProfile struct {
	PreferredVoice string
	Lang           string
	Rate           float64
	Pitch          float64
	Volume         float64
}

// DefaultVoiceProfile returns the narration profile used when none is configured
func DefaultVoiceProfile() VoiceProfile {
	return VoiceProfile{
		PreferredVoice: defaultPreferredVoice,
		Lang:           defaultNarrationLang,
		Rate:           defaultSpeechRate,
		Pitch:          defaultSpeechPitch,
		Volume:         defaultSpeechVolume,
	}
}

// NarrationListener receives narration notifications of a SpeechOutputController
type NarrationListener interface {
	NarrationStarted(u repositories.Utterance)
	NarrationEnded(u repositories.Utterance, interrupted bool)
	PreferenceChanged(pref entities.VoicePreference)
}

type narration struct {
	utterance repositories.Utterance
	cancel    context.CancelFunc
	done      chan struct{}
}

// SpeechOutputController narrates text with at most one utterance playing at
// a time. A new narration always preempts the current one.
type SpeechOutputController struct {
	synth   repositories.SpeechSynthesizer
	profile VoiceProfile
	logger  *zap.Logger

	mu       sync.Mutex
	listener NarrationListener
	enabled  bool
	voices   []entities.Voice
	selected *entities.Voice
	current  *narration
	closed   bool
	wg       sync.WaitGroup
}

// NewSpeechOutputController creates a controller with audio enabled and no
// voice catalog loaded yet
func NewSpeechOutputController(synth repositories.SpeechSynthesizer, profile VoiceProfile, logger *zap.Logger) *SpeechOutputController {
	if profile.Lang == "" {
		profile.Lang = defaultNarrationLang
	}
	if profile.Rate == 0 {
		profile.Rate = defaultSpeechRate
	}
	if profile.Pitch == 0 {
		profile.Pitch = defaultSpeechPitch
	}
	if profile.Volume == 0 {
		profile.Volume = defaultSpeechVolume
	}
	return &SpeechOutputController{
		synth:   synth,
		profile: profile,
		logger:  logger,
		enabled: true,
	}
}

// SetListener registers the receiver of narration notifications
func (c *SpeechOutputController) SetListener(listener NarrationListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// Speak narrates text, cancelling whatever is currently narrating. It does
// nothing when audio is disabled or text is blank, and never blocks on the
// narration itself.
func (c *SpeechOutputController) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	if c.closed || !c.enabled {
		c.mu.Unlock()
		c.logger.Debug("Narration suppressed", zap.Bool("audioEnabled", c.Enabled()))
		return
	}

	prev := c.current
	if prev != nil {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &narration{
		utterance: c.utteranceLocked(text),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.current = n
	c.wg.Add(1)
	c.mu.Unlock()

	go c.narrate(ctx, n, prev)
}

// Cancel silences the current narration, if any
func (c *SpeechOutputController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancel()
	}
}

// SetEnabled changes the audio preference. Disabling cancels the current
// narration immediately.
func (c *SpeechOutputController) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	if !enabled && c.current != nil {
		c.current.cancel()
	}
	pref := c.preferenceLocked()
	listener := c.listener
	c.mu.Unlock()

	c.logger.Info("Audio preference changed", zap.Bool("audioEnabled", enabled))
	if listener != nil {
		listener.PreferenceChanged(pref)
	}
}

// Enabled reports whether narration is allowed
func (c *SpeechOutputController) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Narrating reports whether an utterance is pending or playing
func (c *SpeechOutputController) Narrating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// UpdateVoices replaces the voice catalog and re-resolves the preferred voice.
// When the preferred voice is not in the catalog no voice is selected and the
// engine default is used.
func (c *SpeechOutputController) UpdateVoices(voices []entities.Voice) {
	c.mu.Lock()
	c.voices = append([]entities.Voice(nil), voices...)
	previous := c.selected
	c.selected = nil
	if v, ok := entities.FindVoiceByName(c.voices, c.profile.PreferredVoice); ok {
		c.selected = &v
	}
	pref := c.preferenceLocked()
	listener := c.listener
	c.mu.Unlock()

	switch {
	case pref.SelectedVoice != nil:
		c.logger.Info("Preferred voice selected",
			zap.String("voiceName", pref.SelectedVoice.Name),
			zap.Int("voiceCount", len(voices)))
	case previous != nil:
		c.logger.Warn("Preferred voice no longer available, using engine default",
			zap.String("voiceName", c.profile.PreferredVoice))
	default:
		c.logger.Debug("Preferred voice not in catalog",
			zap.String("voiceName", c.profile.PreferredVoice),
			zap.Int("voiceCount", len(voices)))
	}

	if listener != nil {
		listener.PreferenceChanged(pref)
	}
}

// Preference returns a snapshot of the voice preference
func (c *SpeechOutputController) Preference() entities.VoicePreference {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preferenceLocked()
}

// Close cancels the current narration, rejects further ones and waits for
// the synthesizer to be released
func (c *SpeechOutputController) Close() {
	c.mu.Lock()
	c.closed = true
	if c.current != nil {
		c.current.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *SpeechOutputController) narrate(ctx context.Context, n *narration, prev *narration) {
	defer c.wg.Done()
	defer close(n.done)
	defer n.cancel()

	// the previous utterance must be silent before this one may play
	if prev != nil {
		<-prev.done
	}

	if ctx.Err() != nil {
		c.release(n)
		return
	}

	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener.NarrationStarted(n.utterance)
	}

	err := c.synth.Speak(ctx, n.utterance)
	interrupted := ctx.Err() != nil
	if err != nil && !interrupted {
		c.logger.Warn("Narration failed",
			zap.String("narrationID", n.utterance.ID),
			zap.Error(err))
	}

	c.release(n)
	if listener != nil {
		listener.NarrationEnded(n.utterance, interrupted)
	}
}

func (c *SpeechOutputController) release(n *narration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == n {
		c.current = nil
	}
}

// wait blocks until every narration issued so far has finished
func (c *SpeechOutputController) wait() {
	c.wg.Wait()
}

func (c *SpeechOutputController) utteranceLocked(text string) repositories.Utterance {
	u := repositories.Utterance{
		ID:     uuid.NewString(),
		Text:   text,
		Lang:   c.profile.Lang,
		Rate:   clamp(c.profile.Rate, 0.1, 10),
		Pitch:  clamp(c.profile.Pitch, 0, 2),
		Volume: clamp(c.profile.Volume, 0, 1),
	}
	if c.selected != nil {
		v := *c.selected
		u.Voice = &v
	}
	return u
}

func (c *SpeechOutputController) preferenceLocked() entities.VoicePreference {
	pref := entities.VoicePreference{
		AvailableVoices: append([]entities.Voice(nil), c.voices...),
		AudioEnabled:    c.enabled,
	}
	if c.selected != nil {
		v := *c.selected
		pref.SelectedVoice = &v
	}
	return pref
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
