// Package session holds the record of the currently active upload: where the
// file lives locally, what kind of content it is, and the summary produced
// for it.
package session

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/otherjamesbrown/documind-cli/pkg/contentid"
)

// ContentKind is a coarse classification of an uploaded file.
type ContentKind string

const (
	KindAudio    ContentKind = "audio"
	KindVideo    ContentKind = "video"
	KindDocument ContentKind = "document"
	KindUnknown  ContentKind = "unknown"
)

// Playable reports whether a media player should be shown for the kind.
func (k ContentKind) Playable() bool {
	return k == KindAudio || k == KindVideo
}

// mediaMarkers are matched as substrings of the lowercased extension, in order.
var mediaMarkers = []struct {
	marker string
	kind   ContentKind
}{
	{"audio", KindAudio},
	{"video", KindVideo},
	{"mp3", KindAudio},
	{"wav", KindAudio},
	{"mp4", KindVideo},
}

var documentExtensions = map[string]bool{
	"pdf":  true,
	"txt":  true,
	"md":   true,
	"doc":  true,
	"docx": true,
	"rtf":  true,
}

var lower = cases.Lower(language.Und)

// Extension returns the lowercased extension of name without the dot.
func Extension(name string) string {
	return strings.TrimPrefix(lower.String(filepath.Ext(name)), ".")
}

// InferContentKind classifies a file by its name. The extension is checked for
// the substrings audio, video, mp3, wav and mp4; anything else is a document
// when the extension is a known document type and unknown otherwise.
func InferContentKind(name string) ContentKind {
	ext := Extension(name)
	if ext == "" {
		return KindUnknown
	}
	for _, m := range mediaMarkers {
		if strings.Contains(ext, m.marker) {
			return m.kind
		}
	}
	if documentExtensions[ext] {
		return KindDocument
	}
	return KindUnknown
}

// Segment is a timed piece of a transcript.
type Segment struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Text  string  `json:"text" yaml:"text"`
}

// Session is an immutable upload record. A new upload produces a new Session;
// existing ones are never modified.
type Session struct {
	ID            string      `json:"id" yaml:"id"`
	SourceLocator string      `json:"source_locator" yaml:"source_locator"`
	FileName      string      `json:"file_name" yaml:"file_name"`
	ContentKind   ContentKind `json:"content_kind" yaml:"content_kind"`
	SummaryText   string      `json:"summary" yaml:"summary"`
	Transcript    string      `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	Segments      []Segment   `json:"segments,omitempty" yaml:"segments,omitempty"`
	CreatedAt     time.Time   `json:"created_at" yaml:"created_at"`
}

// Details carries optional upload results beyond the summary.
type Details struct {
	Transcript string
	Segments   []Segment
}

// New builds a Session for a local file. The source locator is the absolute
// path of the local file, never a server reference.
func New(localPath, summary string, details Details) *Session {
	locator := localPath
	if abs, err := filepath.Abs(localPath); err == nil {
		locator = abs
	}
	name := filepath.Base(localPath)
	kind := InferContentKind(name)
	segments := append([]Segment(nil), details.Segments...)
	return &Session{
		ID:            contentid.New(kind.idType()),
		SourceLocator: locator,
		FileName:      name,
		ContentKind:   kind,
		SummaryText:   summary,
		Transcript:    details.Transcript,
		Segments:      segments,
		CreatedAt:     time.Now().UTC(),
	}
}

func (k ContentKind) idType() string {
	switch k {
	case KindAudio:
		return contentid.TypeAudio
	case KindVideo:
		return contentid.TypeVideo
	case KindDocument:
		return contentid.TypeDocument
	}
	return contentid.TypeUnknown
}

// Playable reports whether the session should mount a media player.
func (s *Session) Playable() bool {
	return s != nil && s.SourceLocator != "" && s.ContentKind.Playable()
}
