// Package core_test tests the domain types for the speech service.
package core_test

import (
	"strings"
	"testing"

	"github.com/book-expert/speech-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := core.SynthesisRequest{
		VideoID:  "v1",
		Text:     "hello",
		Language: "en",
		Voice:    "",
		Speed:    1.0,
		Format:   "mp3",
	}
	require.NoError(t, valid.Validate())

	missingVideo := valid
	missingVideo.VideoID = ""
	require.ErrorIs(t, missingVideo.Validate(), core.ErrVideoIDEmpty)

	missingText := valid
	missingText.Text = ""
	require.ErrorIs(t, missingText.Validate(), core.ErrTextEmpty)

	oversized := valid
	oversized.Text = strings.Repeat("a", core.MaxTextLength+1)
	require.ErrorIs(t, oversized.Validate(), core.ErrTextTooLong)

	exact := valid
	exact.Text = strings.Repeat("a", core.MaxTextLength)
	require.NoError(t, exact.Validate())

	// The limit counts characters, not bytes: 1500 Devanagari characters are
	// 4500 bytes but well under the limit.
	multibyte := valid
	multibyte.Text = strings.Repeat("न", 1500)
	require.NoError(t, multibyte.Validate())

	multibyteOversized := valid
	multibyteOversized.Text = strings.Repeat("न", core.MaxTextLength+1)
	require.ErrorIs(t, multibyteOversized.Validate(), core.ErrTextTooLong)
}

func TestNormalizedAppliesDefaults(t *testing.T) {
	t.Parallel()

	req := core.SynthesisRequest{
		VideoID:  "v1",
		Text:     "hello",
		Language: "",
		Voice:    "",
		Speed:    0,
		Format:   "",
	}

	normalized := req.Normalized()

	assert.Equal(t, core.DefaultLanguage, normalized.Language)
	assert.InEpsilon(t, core.DefaultSpeed, normalized.Speed, 0.001)
	assert.Equal(t, core.DefaultFormat, normalized.Format)

	// Explicit values survive normalization.
	req.Language = "hi"
	req.Speed = 1.5
	req.Format = "wav"
	normalized = req.Normalized()

	assert.Equal(t, "hi", normalized.Language)
	assert.InEpsilon(t, 1.5, normalized.Speed, 0.001)
	assert.Equal(t, "wav", normalized.Format)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, core.StatusQueued.Terminal())
	assert.False(t, core.StatusInProgress.Terminal())
	assert.True(t, core.StatusDone.Terminal())
	assert.True(t, core.StatusFailed.Terminal())
}
