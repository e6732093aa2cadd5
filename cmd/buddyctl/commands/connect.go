package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/buddy/domain/entities"
	"github.com/satriahrh/buddy/internal/api"
	ws "github.com/satriahrh/buddy/internal/websocket"
	"github.com/satriahrh/buddy/usecase"
)

const (
	audioChunkSize     = 3200
	audioChunkInterval = 100 * time.Millisecond
)

var connectFlags struct {
	server   string
	clientID string
	secret   string
	voice    string
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open an interactive conversation with a buddy server",
	Long: `Open an interactive conversation with a buddy server.

Lines typed are submitted as questions. Lines starting with a slash are
commands:
  /mic              toggle the microphone
  /say <text>       answer a host recognition request with <text>
  /stream <file>    stream raw 16 kHz PCM audio to the server recognizer
  /audio            toggle narration
  /select <id>      inspect a result
  /dismiss          close the inspected result
  /state            print the session state
  /quit             leave

Examples:
  buddyctl connect --server http://localhost:8080
  buddyctl connect --client-id buddy-web --secret buddy-secret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := authenticateClient(connectFlags.server, connectFlags.clientID, connectFlags.secret)
		if err != nil {
			return fmt.Errorf("failed to authenticate client: %w", err)
		}

		wsURL, err := websocketURL(connectFlags.server)
		if err != nil {
			return err
		}

		headers := http.Header{}
		headers.Add("Authorization", "Bearer "+token)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, headers)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		s := &conversation{conn: conn, out: cmd.OutOrStdout()}
		fmt.Fprintf(s.out, "Connected to %s as %s\n", wsURL, connectFlags.clientID)

		if connectFlags.voice != "" {
			s.send(map[string]any{
				"type":   ws.MessageTypeVoicesChanged,
				"voices": []entities.Voice{{Name: connectFlags.voice, Default: true}},
			})
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.readLoop()
		}()

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			close(lines)
		}()

		for {
			select {
			case <-done:
				return nil
			case <-cmd.Context().Done():
				s.close()
				return nil
			case line, ok := <-lines:
				if !ok || !s.handleLine(line) {
					s.close()
					select {
					case <-done:
					case <-time.After(time.Second):
					}
					return nil
				}
			}
		}
	},
}

func init() {
	connectCmd.Flags().StringVar(&connectFlags.server, "server", envOr("BUDDY_SERVER_URL", "http://localhost:8080"), "buddy server address")
	connectCmd.Flags().StringVar(&connectFlags.clientID, "client-id", envOr("BUDDY_CLIENT_ID", "buddy-web"), "client ID")
	connectCmd.Flags().StringVar(&connectFlags.secret, "secret", envOr("BUDDY_CLIENT_SECRET", "buddy-secret"), "client secret")
	connectCmd.Flags().StringVar(&connectFlags.voice, "voice", "", "voice name reported to a host speech server")
	rootCmd.AddCommand(connectCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func authenticateClient(server, clientID, secret string) (string, error) {
	jsonData, err := json.Marshal(api.ClientAuthRequest{ClientID: clientID, Secret: secret})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(strings.TrimRight(server, "/")+"/api/v1/client/auth", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authentication failed: %s", string(body))
	}

	var authResp api.ClientAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", err
	}
	logger.Debug("Client authenticated", zap.Time("expiresAt", authResp.ExpiresAt))
	return authResp.Token, nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server address: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// conversation is the client side of one WebSocket session
type conversation struct {
	conn *websocket.Conn
	out  io.Writer

	writeMu sync.Mutex

	mu       sync.Mutex
	streamID string
}

func (s *conversation) send(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		logger.Warn("Failed to send message", zap.Error(err))
	}
}

func (s *conversation) sendBinary(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *conversation) close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func control(t ws.MessageType) map[string]any {
	return map[string]any{"type": t}
}

// handleLine executes one line typed by the user, false means quit
func (s *conversation) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		s.send(map[string]any{"type": ws.MessageTypeSubmitQuestion, "text": line})
		return true
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "/quit", "/exit":
		return false
	case "/mic":
		s.send(control(ws.MessageTypeToggleMic))
	case "/audio":
		s.send(control(ws.MessageTypeToggleAudio))
	case "/dismiss":
		s.send(control(ws.MessageTypeDismissResult))
	case "/state":
		s.send(control(ws.MessageTypeGetState))
	case "/select":
		s.send(map[string]any{"type": ws.MessageTypeSelectResult, "result_id": arg})
	case "/say":
		s.say(arg)
	case "/stream":
		go s.stream(arg)
	default:
		fmt.Fprintf(s.out, "unknown command %s\n", command)
	}
	return true
}

// say answers the pending host recognition request with a final transcript
func (s *conversation) say(text string) {
	s.mu.Lock()
	streamID := s.streamID
	s.mu.Unlock()

	if streamID == "" {
		fmt.Fprintln(s.out, "no recognition in progress, use /mic first")
		return
	}
	s.send(map[string]any{
		"type":       ws.MessageTypeRecognitionResult,
		"stream_id":  streamID,
		"transcript": text,
		"is_final":   true,
	})
	s.send(control(ws.MessageTypeStopRecording))
}

func (s *conversation) stream(path string) {
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(s.out, "failed to open %s: %v\n", path, err)
		return
	}
	defer file.Close()

	s.send(control(ws.MessageTypeStartRecording))

	buf := make([]byte, audioChunkSize)
	ticker := time.NewTicker(audioChunkInterval)
	defer ticker.Stop()
	for {
		n, err := file.Read(buf)
		if n > 0 {
			if err := s.sendBinary(buf[:n]); err != nil {
				fmt.Fprintf(s.out, "failed to stream audio: %v\n", err)
				return
			}
			<-ticker.C
		}
		if err != nil {
			break
		}
	}
	s.send(control(ws.MessageTypeStopRecording))
}

type envelope struct {
	Type        ws.MessageType           `json:"type"`
	Code        string                   `json:"error_code"`
	Message     string                   `json:"message"`
	Event       *usecase.Event           `json:"event"`
	State       *usecase.SessionSnapshot `json:"state"`
	StreamID    string                   `json:"stream_id"`
	NarrationID string                   `json:"narration_id"`
	Text        string                   `json:"text"`
}

func (s *conversation) readLoop() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				fmt.Fprintf(s.out, "connection closed: %v\n", err)
			}
			return
		}
		if messageType == websocket.BinaryMessage {
			logger.Debug("Received narration audio", zap.Int("bytes", len(data)))
			continue
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Failed to decode server message", zap.Error(err))
			continue
		}
		s.handleServerMessage(msg)
	}
}

func (s *conversation) handleServerMessage(msg envelope) {
	switch msg.Type {
	case ws.MessageTypeError:
		fmt.Fprintf(s.out, "! %s: %s\n", msg.Code, msg.Message)

	case ws.MessageTypeState:
		if msg.State != nil {
			s.printState(*msg.State)
		}

	case ws.MessageTypeEvent:
		if msg.Event != nil {
			s.printEvent(*msg.Event)
		}

	case ws.MessageTypeStartRecognition:
		s.mu.Lock()
		s.streamID = msg.StreamID
		s.mu.Unlock()
		s.send(map[string]any{"type": ws.MessageTypeRecognitionStarted, "stream_id": msg.StreamID})
		fmt.Fprintln(s.out, "(listening, answer with /say <question>)")

	case ws.MessageTypeStopRecognition:
		s.mu.Lock()
		if s.streamID == msg.StreamID {
			s.streamID = ""
		}
		s.mu.Unlock()
		s.send(map[string]any{"type": ws.MessageTypeRecognitionEnded, "stream_id": msg.StreamID})

	case ws.MessageTypeSpeak:
		fmt.Fprintf(s.out, "(speaking) %s\n", msg.Text)
		s.send(map[string]any{"type": ws.MessageTypeNarrationEnded, "narration_id": msg.NarrationID})

	case ws.MessageTypeAudioEnd:
		s.send(map[string]any{"type": ws.MessageTypeNarrationEnded, "narration_id": msg.NarrationID})

	case ws.MessageTypeAudioStart:
		fmt.Fprintf(s.out, "(speaking) %s\n", msg.Text)
	}
}

func (s *conversation) printState(state usecase.SessionSnapshot) {
	fmt.Fprintf(s.out, "state: recording=%s busy=%t audio=%t results=%d\n",
		state.RecordingState, state.Busy, state.Preference.AudioEnabled, len(state.Results))
	for _, m := range state.History {
		fmt.Fprintf(s.out, "%s: %s\n", m.Sender, m.Text)
	}
}

func (s *conversation) printEvent(e usecase.Event) {
	switch e.Type {
	case usecase.EventChatAppended:
		if e.Message != nil {
			fmt.Fprintf(s.out, "%s: %s\n", e.Message.Sender, e.Message.Text)
		}
	case usecase.EventTranscriptUpdated:
		fmt.Fprintf(s.out, "... %s\n", e.Transcript)
	case usecase.EventRecordingStateChanged:
		fmt.Fprintf(s.out, "(microphone %s)\n", e.RecordingState)
	case usecase.EventResultsReplaced:
		for _, r := range e.Results {
			fmt.Fprintf(s.out, "  [%s] %s (%s)\n", r.ID, r.Title, r.MediaType)
		}
	case usecase.EventInspectionChanged:
		if e.Inspected == nil {
			fmt.Fprintln(s.out, "(inspection closed)")
			return
		}
		fmt.Fprintf(s.out, "inspecting %s\n", e.Inspected.Title)
		if e.Preview != nil {
			fmt.Fprintf(s.out, "  preview: %s %s\n", e.Preview.Mode, e.Preview.URL)
		}
	default:
		logger.Debug("Session event", zap.String("type", string(e.Type)))
	}
}
