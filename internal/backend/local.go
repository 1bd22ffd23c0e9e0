package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-service/internal/config"
	"github.com/book-expert/speech-service/internal/core"
)

// Words-per-minute mapping for the OS synthesizer. The request carries a
// speed multiplier; the synthesizer takes an absolute rate.
const (
	baseWordsPerMinute = 175
	minWordsPerMinute  = 80
	maxWordsPerMinute  = 450
)

// LocalBackend synthesizes speech with an OS speech synthesizer and, when the
// requested container format is not WAV, transcodes the intermediate file with
// an external transcoder.
type LocalBackend struct {
	synthesizerCmd string
	ffmpegCmd      string
	timeout        time.Duration
	log            *logger.Logger
}

// NewLocal creates a LocalBackend from the local section of the config.
func NewLocal(cfg config.LocalTTSConfig, log *logger.Logger) *LocalBackend {
	return &LocalBackend{
		synthesizerCmd: cfg.SynthesizerCommand,
		ffmpegCmd:      cfg.FFmpegCommand,
		timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		log:            log,
	}
}

// Name identifies the backend in job records and logs.
func (b *LocalBackend) Name() string {
	return "local"
}

// Synthesize writes the final audio file at targetPath. The synthesizer always
// produces WAV; a differing requested format goes through the transcoder. The
// whole invocation runs under the configured timeout, which kills the external
// process on expiry.
func (b *LocalBackend) Synthesize(
	ctx context.Context,
	req core.SynthesisRequest,
	targetPath string,
) error {
	_, err := exec.LookPath(b.synthesizerCmd)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrBackendUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	wavPath := intermediateWAVPath(targetPath)

	err = b.runSynthesizer(ctx, req, wavPath)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrSynthesisFailed, err)
	}

	if strings.EqualFold(filepath.Ext(targetPath), ".wav") {
		err = os.Rename(wavPath, targetPath)
		if err != nil {
			return fmt.Errorf("failed to move intermediate file: %w", err)
		}

		return nil
	}

	err = b.transcode(ctx, wavPath, targetPath)

	removeErr := os.Remove(wavPath)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		b.log.Warn("Failed to remove intermediate file '%s': %v", wavPath, removeErr)
	}

	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrSynthesisFailed, err)
	}

	return nil
}

// runSynthesizer invokes the OS speech synthesizer to produce a WAV file.
func (b *LocalBackend) runSynthesizer(
	ctx context.Context,
	req core.SynthesisRequest,
	wavPath string,
) error {
	args := []string{
		"-v", req.Language,
		"-s", strconv.Itoa(wordsPerMinute(req.Speed)),
		"-w", wavPath,
		req.Text,
	}

	// #nosec G204 -- the command comes from service configuration, not the request
	cmd := exec.CommandContext(ctx, b.synthesizerCmd, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf(
			"%s execution failed: %w - output: %s",
			b.synthesizerCmd, err, string(output),
		)
	}

	return nil
}

// transcode converts the intermediate WAV into the requested container format.
func (b *LocalBackend) transcode(ctx context.Context, wavPath, targetPath string) error {
	args := []string{"-y", "-i", wavPath, targetPath}

	// #nosec G204 -- the command comes from service configuration, not the request
	cmd := exec.CommandContext(ctx, b.ffmpegCmd, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf(
			"%s transcode failed: %w - output: %s",
			b.ffmpegCmd, err, string(output),
		)
	}

	return nil
}

// intermediateWAVPath places the synthesizer output next to the target file.
// The suffix keeps it distinct from a target that is itself a WAV.
func intermediateWAVPath(targetPath string) string {
	ext := filepath.Ext(targetPath)

	return strings.TrimSuffix(targetPath, ext) + ".tmp.wav"
}

// wordsPerMinute maps the request's speed multiplier onto the synthesizer's
// absolute rate, bounded to its supported range.
func wordsPerMinute(speed float64) int {
	if speed == 0 {
		speed = core.DefaultSpeed
	}

	wpm := int(baseWordsPerMinute * speed)

	if wpm < minWordsPerMinute {
		return minWordsPerMinute
	}

	if wpm > maxWordsPerMinute {
		return maxWordsPerMinute
	}

	return wpm
}

var _ core.SynthesisBackend = (*LocalBackend)(nil)
