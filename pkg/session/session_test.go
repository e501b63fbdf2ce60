package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/documind-cli/pkg/contentid"
)

func TestInferContentKind(t *testing.T) {
	tests := []struct {
		name     string
		want     ContentKind
		playable bool
	}{
		{"lecture.mp4", KindVideo, true},
		{"talk.mp3", KindAudio, true},
		{"TALK.MP3", KindAudio, true},
		{"interview.wav", KindAudio, true},
		{"notes.pdf", KindDocument, false},
		{"readme.txt", KindDocument, false},
		{"clip.m4a", KindUnknown, false},
		{"movie.mkv", KindUnknown, false},
		{"weird.audiobook", KindAudio, true},
		{"x.myvideo", KindVideo, true},
		{"noextension", KindUnknown, false},
		{"archive.tar.gz", KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferContentKind(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.playable, got.Playable())
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "mp4", Extension("/tmp/Lecture.MP4"))
	assert.Equal(t, "", Extension("Makefile"))
}

func TestNew(t *testing.T) {
	s := New("testdata/../lecture.mp4", "A talk about Go.", Details{
		Transcript: "hello",
		Segments:   []Segment{{Start: 0, End: 2, Text: "hello"}},
	})

	require.NotNil(t, s)
	assert.Equal(t, contentid.TypeVideo, contentid.TypeFromID(s.ID))
	assert.True(t, filepath.IsAbs(s.SourceLocator))
	assert.Equal(t, "lecture.mp4", s.FileName)
	assert.Equal(t, KindVideo, s.ContentKind)
	assert.Equal(t, "A talk about Go.", s.SummaryText)
	assert.Equal(t, "hello", s.Transcript)
	assert.Len(t, s.Segments, 1)
	assert.True(t, s.Playable())
	assert.False(t, s.CreatedAt.IsZero())
}

func TestSession_Playable(t *testing.T) {
	var nilSession *Session
	assert.False(t, nilSession.Playable())
	assert.False(t, (&Session{ContentKind: KindAudio}).Playable())
	assert.False(t, New("notes.pdf", "summary", Details{}).Playable())
	assert.True(t, New("talk.mp3", "summary", Details{}).Playable())
}
