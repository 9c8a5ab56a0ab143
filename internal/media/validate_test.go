package media

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	mp3Header = []byte("ID3\x03\x00\x00\x00\x00\x00\x00")
)

func TestValidateAudio(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
		max      int64
		wantErr  error
	}{
		{name: "mp3 by extension", fileName: "song.mp3", data: []byte("x"), max: 10},
		{name: "upper case extension", fileName: "SONG.FLAC", data: []byte("x"), max: 10},
		{name: "m4a", fileName: "voice.m4a", data: []byte("x"), max: 10},
		{name: "sniffed without extension", fileName: "upload", data: mp3Header, max: 100},
		{name: "wrong extension and content", fileName: "notes.txt", data: []byte("hello"), max: 100, wantErr: ErrUnsupportedFormat},
		{name: "image is not audio", fileName: "cover.png", data: pngHeader, max: 100, wantErr: ErrUnsupportedFormat},
		{name: "too large", fileName: "song.mp3", data: bytes.Repeat([]byte("x"), 11), max: 10, wantErr: ErrFileTooLarge},
		{name: "empty", fileName: "song.mp3", data: nil, max: 10, wantErr: ErrEmptyFile},
		{name: "no limit", fileName: "song.mp3", data: bytes.Repeat([]byte("x"), 11), max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAudio(tt.fileName, tt.data, tt.max)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateImage(t *testing.T) {
	assert.NoError(t, ValidateImage("cover.jpeg", []byte("x"), 10))
	assert.NoError(t, ValidateImage("cover.webp", []byte("x"), 10))
	assert.NoError(t, ValidateImage("blob", pngHeader, 100))
	assert.ErrorIs(t, ValidateImage("cover.gif", []byte("GIF89a"), 100), ErrUnsupportedFormat)
	assert.ErrorIs(t, ValidateImage("song.mp3", mp3Header, 100), ErrUnsupportedFormat)
}

func TestValidate_TooLargeMessage(t *testing.T) {
	err := ValidateImage("cover.png", bytes.Repeat([]byte("x"), 2048), 1024)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Contains(t, err.Error(), "maximum size: 1.0 KiB")
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "image/png", DetectContentType(pngHeader))
}
