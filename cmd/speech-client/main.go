// main package for the speech-client, a small CLI for the speech-service API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Flag names.
const (
	flagServer  = "server"
	flagVideoID = "video-id"
	flagText    = "text"
	flagLang    = "lang"
	flagVoice   = "voice"
	flagSpeed   = "speed"
	flagFormat  = "format"
	flagOutput  = "output"
)

// Flag descriptions.
const (
	flagServerDesc  = "Base URL of the speech-service"
	flagVideoIDDesc = "Video identifier the audio belongs to"
	flagTextDesc    = "Text to convert to speech"
	flagLangDesc    = "Language code (e.g. en, hi)"
	flagVoiceDesc   = "Voice name (optional)"
	flagSpeedDesc   = "Speed multiplier"
	flagFormatDesc  = "Output format (mp3 or wav)"
	flagOutputDesc  = "Output file path"
)

// Defaults.
const (
	defaultServer       = "http://127.0.0.1:8787"
	defaultLang         = "en"
	defaultSpeed        = 1.0
	defaultFormat       = "mp3"
	defaultOutput       = "output.mp3"
	pollInterval        = 500 * time.Millisecond
	overallTimeout      = 15 * time.Minute
	filePermissions     = 0o600
	errFmtNonOKResponse = "server returned %s: %s"
)

// Static errors.
var (
	errTextRequired    = errors.New("--text is required")
	errVideoIDRequired = errors.New("--video-id is required")
	errJobFailed       = errors.New("synthesis job failed")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	server  string
	videoID string
	text    string
	lang    string
	voice   string
	speed   float64
	format  string
	output  string
}

// generateResponse mirrors the POST /generate response body.
type generateResponse struct {
	Status   string `json:"status"`
	JobID    string `json:"jobId"`
	URL      string `json:"url"`
	FilePath string `json:"filePath"`
}

// statusResponse mirrors the GET /status/{jobId} response body.
type statusResponse struct {
	JobID    string  `json:"jobId"`
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	FilePath string  `json:"filePath"`
	Error    *string `json:"error"`
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	err := validateFlags(flags)
	if err != nil {
		flag.Usage()

		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), overallTimeout)
	defer cancel()

	client := &http.Client{Timeout: 30 * time.Second}

	streamURL, err := synthesize(ctx, client, flags)
	if err != nil {
		return err
	}

	err = download(ctx, client, flags.server+streamURL, flags.output)
	if err != nil {
		return err
	}

	fmt.Printf("Saved: %s\n", flags.output)

	return nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.server, flagServer, defaultServer, flagServerDesc)
	flag.StringVar(&flags.videoID, flagVideoID, "", flagVideoIDDesc)
	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.lang, flagLang, defaultLang, flagLangDesc)
	flag.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flag.Float64Var(&flags.speed, flagSpeed, defaultSpeed, flagSpeedDesc)
	flag.StringVar(&flags.format, flagFormat, defaultFormat, flagFormatDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutput, flagOutputDesc)
	flag.Parse()

	return flags
}

func validateFlags(flags appFlags) error {
	if flags.text == "" {
		return errTextRequired
	}

	if flags.videoID == "" {
		return errVideoIDRequired
	}

	return nil
}

// synthesize submits the request and, when queued, polls the job until a
// terminal state. It returns the stream URL of the finished audio.
func synthesize(ctx context.Context, client *http.Client, flags appFlags) (string, error) {
	result, err := submit(ctx, client, flags)
	if err != nil {
		return "", err
	}

	if result.Status == "ready" {
		return result.URL, nil
	}

	fmt.Printf("Queued as job %s\n", result.JobID)

	status, err := pollUntilTerminal(ctx, client, flags.server, result.JobID)
	if err != nil {
		return "", err
	}

	if status.Status != "done" {
		message := ""
		if status.Error != nil {
			message = *status.Error
		}

		return "", fmt.Errorf("%w: %s", errJobFailed, message)
	}

	return "/stream?path=" + url.QueryEscape(status.FilePath), nil
}

func submit(ctx context.Context, client *http.Client, flags appFlags) (*generateResponse, error) {
	payload := map[string]any{
		"videoId": flags.videoID,
		"text":    flags.text,
		"lang":    flags.lang,
		"voice":   flags.voice,
		"speed":   flags.speed,
		"format":  flags.format,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		flags.server+"/generate",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach speech-service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf(errFmtNonOKResponse, resp.Status, string(data))
	}

	var result generateResponse

	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

func pollUntilTerminal(
	ctx context.Context,
	client *http.Client,
	server string,
	jobID string,
) (*statusResponse, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}

		status, err := fetchStatus(ctx, client, server, jobID)
		if err != nil {
			return nil, err
		}

		fmt.Printf("Job %s: %s (%d%%)\n", jobID, status.Status, status.Progress)

		if status.Status == "done" || status.Status == "failed" {
			return status, nil
		}
	}
}

func fetchStatus(
	ctx context.Context,
	client *http.Client,
	server string,
	jobID string,
) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		server+"/status/"+jobID,
		http.NoBody,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf(errFmtNonOKResponse, resp.Status, string(data))
	}

	var status statusResponse

	err = json.NewDecoder(resp.Body).Decode(&status)
	if err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}

	return &status, nil
}

// download fetches the audio stream and writes it to the output path.
func download(ctx context.Context, client *http.Client, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)

		return fmt.Errorf(errFmtNonOKResponse, resp.Status, string(data))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}

	err = os.WriteFile(outputPath, audio, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	return nil
}
