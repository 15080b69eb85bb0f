package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13}
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}
)

func TestValidateMimeType_AllowsImagePrefix(t *testing.T) {
	mime, err := ValidateMimeType(bytes.NewReader(pngHeader), []string{MimeImage})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	mime, err = ValidateMimeType(bytes.NewReader(jpegHeader), []string{MimeImage})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
}

func TestValidateMimeType_RejectsText(t *testing.T) {
	mime, err := ValidateMimeType(bytes.NewReader([]byte("只是一段文本")), []string{MimeImage})
	assert.Error(t, err)
	assert.Contains(t, mime, "text/plain")
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png"))
	assert.True(t, IsImage("image/jpeg"))
	assert.False(t, IsImage("application/pdf"))
	assert.False(t, IsImage(""))
}
