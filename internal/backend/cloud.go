// Package backend provides the interchangeable speech synthesis backends.
//
// CloudBackend calls a remote speech API; LocalBackend shells out to an OS
// speech synthesizer and transcodes the result. Both write the final audio
// file at the target path handed to them by the worker.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/config"
	"github.com/book-expert/speech-service/internal/core"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

const filePermissions = 0o600

// Error messages.
const (
	errFmtServiceNonOKStatus = "speech API returned non-OK status: %s, body: %s"
)

// Static errors.
var (
	ErrEmptyAudioContent = errors.New("speech API returned empty audio content")
	ErrCredentialEmpty   = errors.New("credential file is empty")
)

// CloudBackend synthesizes speech through a remote speech API. One request is
// made per job; the response already carries the requested container format,
// so the audio is written directly to the target path.
type CloudBackend struct {
	httpClient *http.Client
	endpoint   string
	keyPath    string
	log        *logger.Logger
}

// synthesizeRequest is the JSON payload of the remote speech API.
type synthesizeRequest struct {
	Input       synthesisInput  `json:"input"`
	Voice       voiceSelection  `json:"voice"`
	AudioConfig audioConfigSpec `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type audioConfigSpec struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
}

// synthesizeResponse carries the base64-encoded audio returned by the API.
type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// NewCloud creates a CloudBackend from the cloud section of the config.
func NewCloud(cfg config.CloudTTSConfig, log *logger.Logger) *CloudBackend {
	return &CloudBackend{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		endpoint: cfg.Endpoint,
		keyPath:  cfg.CredentialPath,
		log:      log,
	}
}

// Name identifies the backend in job records and logs.
func (b *CloudBackend) Name() string {
	return "cloud"
}

// Synthesize performs a single remote synthesis call and writes the decoded
// audio to targetPath. Any failure is terminal for the job; the remote API is
// trusted to handle its own retries.
func (b *CloudBackend) Synthesize(
	ctx context.Context,
	req core.SynthesisRequest,
	targetPath string,
) error {
	apiKey, err := b.loadAPIKey()
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
	}

	payload := synthesizeRequest{
		Input: synthesisInput{Text: req.Text},
		Voice: voiceSelection{
			LanguageCode: languageCodeFor(req.Language),
			Name:         req.Voice,
		},
		AudioConfig: audioConfigSpec{
			AudioEncoding: encodingFor(req.Format),
			SpeakingRate:  clampSpeakingRate(req.Speed),
		},
	}

	audioData, err := b.call(ctx, apiKey, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrSynthesisFailed, err)
	}

	err = os.WriteFile(targetPath, audioData, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	b.log.Info("Cloud synthesis wrote %s (%d bytes)", targetPath, len(audioData))

	return nil
}

// call sends the synthesis request and decodes the audio from the response.
func (b *CloudBackend) call(
	ctx context.Context,
	apiKey string,
	payload synthesizeRequest,
) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := b.endpoint + "?key=" + apiKey

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to speech API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
	}

	var decoded synthesizeResponse

	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if decoded.AudioContent == "" {
		return nil, ErrEmptyAudioContent
	}

	audioData, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}

	return audioData, nil
}

// loadAPIKey reads the API key from the configured credential file.
func (b *CloudBackend) loadAPIKey() (string, error) {
	data, err := os.ReadFile(b.keyPath)
	if err != nil {
		return "", fmt.Errorf("failed to read credential file: %w", err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrCredentialEmpty, b.keyPath)
	}

	return key, nil
}

// languageCodeFor maps a short language tag onto the speech API locale.
func languageCodeFor(lang string) string {
	if strings.Contains(lang, "-") {
		return lang
	}

	switch lang {
	case "hi":
		return "hi-IN"
	default:
		return "en-US"
	}
}

// encodingFor maps the requested container format onto the API encoding name.
func encodingFor(format string) string {
	switch format {
	case "wav":
		return "LINEAR16"
	case "ogg":
		return "OGG_OPUS"
	default:
		return "MP3"
	}
}

// clampSpeakingRate bounds the speed multiplier to the range the API accepts.
func clampSpeakingRate(speed float64) float64 {
	if speed == 0 {
		speed = core.DefaultSpeed
	}

	if speed < core.MinSpeakingRate {
		return core.MinSpeakingRate
	}

	if speed > core.MaxSpeakingRate {
		return core.MaxSpeakingRate
	}

	return speed
}

var _ core.SynthesisBackend = (*CloudBackend)(nil)
