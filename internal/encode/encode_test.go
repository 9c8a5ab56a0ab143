package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtension(t *testing.T) {
	tests := []struct {
		name string
		in   string
		def  string
		want string
	}{
		{"plain", "song.mp3", "mp3", "mp3"},
		{"upper case", "COVER.PNG", "jpg", "png"},
		{"last extension wins", "archive.tar.flac", "mp3", "flac"},
		{"no extension", "song", "mp3", "mp3"},
		{"trailing dot", "photo.", "jpg", "jpg"},
		{"too long", "clip.abcdef", "mp3", "mp3"},
		{"non alphanumeric", "weird.m-p3", "mp3", "mp3"},
		{"non ascii", "bild.jpé", "jpg", "jpg"},
		{"hidden file", ".jpeg", "jpg", "jpeg"},
		{"empty", "", "jpg", "jpg"},
		{"path", "/tmp/uploads/a.wav", "mp3", "wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.in, tt.def))
		})
	}
}

func TestAudioAndImageFile(t *testing.T) {
	data := []byte("x")

	assert.Equal(t, VirtualFile{Name: "input.wav", Data: data}, AudioFile(Source{Name: "take1.wav", Data: data}))
	assert.Equal(t, VirtualFile{Name: "input.mp3", Data: data}, AudioFile(Source{Name: "take1", Data: data}))
	assert.Equal(t, VirtualFile{Name: "input.webp", Data: data}, ImageFile(Source{Name: "cover.webp", Data: data}))
	assert.Equal(t, VirtualFile{Name: "input.jpg", Data: data}, ImageFile(Source{Name: "cover", Data: data}))
}

func TestStagedFiles(t *testing.T) {
	audio, image := StagedFiles(testInput)
	assert.Equal(t, "input.mp3", audio.Name)
	assert.Equal(t, "input.png", image.Name)

	audio, image = StagedFiles(Input{
		Audio: Source{Name: "a.png", Data: []byte("audio")},
		Image: Source{Name: "b.png", Data: []byte("image")},
	})
	assert.Equal(t, "input-audio.png", audio.Name)
	assert.Equal(t, []byte("audio"), audio.Data)
	assert.Equal(t, "input.png", image.Name)
}

func TestToken(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Cancelled())

	tok.Cancel()
	tok.Cancel()
	assert.True(t, tok.Cancelled())
}
