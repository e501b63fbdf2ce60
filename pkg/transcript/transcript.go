// Package transcript reads timed transcripts stored next to media files.
// WebVTT (including Zoom's speaker headers) and SubRip are understood; cues
// become session segments so answers can be checked against the recording
// even when the backend returns no segments.
package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/otherjamesbrown/documind-cli/pkg/session"
)

// Format names a transcript file format.
type Format string

const (
	FormatVTT Format = "vtt"
	FormatSRT Format = "srt"
)

var (
	// Zoom cue header: 1 "Speaker Name" (speaker_id)
	zoomHeaderRegex = regexp.MustCompile(`^\d+\s+"([^"]*)"(?:\s+\((\d+)\))?`)

	// 00:00:05.579 --> 00:00:06.858, hours optional, comma allowed for SubRip.
	timingRegex = regexp.MustCompile(`^((?:\d+:)?\d{2}:\d{2}[.,]\d{3})\s+-->\s+((?:\d+:)?\d{2}:\d{2}[.,]\d{3})`)

	// <v Speaker Name>text
	voiceRegex = regexp.MustCompile(`^<v(?:\.[^ >]*)?\s+([^>]+)>`)

	tagRegex = regexp.MustCompile(`</?[^>]+>`)
)

// ErrNoSidecar is returned when no transcript file sits next to the media.
var ErrNoSidecar = errors.New("no transcript sidecar")

// Cue is one timed line of a transcript.
type Cue struct {
	Speaker string
	Text    string
	StartMs int
	EndMs   int
}

// Result is a parsed transcript.
type Result struct {
	Cues            []Cue
	Speakers        []string
	DurationSeconds int
	FullText        string
	Format          Format
}

// Segments converts the cues to session segments.
func (r *Result) Segments() []session.Segment {
	segments := make([]session.Segment, 0, len(r.Cues))
	for _, c := range r.Cues {
		segments = append(segments, session.Segment{
			Start: float64(c.StartMs) / 1000,
			End:   float64(c.EndMs) / 1000,
			Text:  c.Text,
		})
	}
	return segments
}

// Details returns the transcript as session details.
func (r *Result) Details() session.Details {
	return session.Details{Transcript: r.FullText, Segments: r.Segments()}
}

// Parse reads a WebVTT or SubRip transcript. Blocks without a timing line
// (the WEBVTT header, NOTE and STYLE blocks) are skipped.
func Parse(r io.Reader, format Format) (*Result, error) {
	scanner := bufio.NewScanner(r)
	result := &Result{Cues: []Cue{}, Speakers: []string{}, Format: format}
	speakers := map[string]bool{}
	var text []string
	var lastEndMs int

	var block []string
	flush := func() {
		cue, ok := parseBlock(block)
		block = block[:0]
		if !ok {
			return
		}
		if cue.Speaker != "" && !speakers[cue.Speaker] {
			speakers[cue.Speaker] = true
			result.Speakers = append(result.Speakers, cue.Speaker)
		}
		if cue.EndMs > lastEndMs {
			lastEndMs = cue.EndMs
		}
		text = append(text, cue.Text)
		result.Cues = append(result.Cues, cue)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	result.DurationSeconds = lastEndMs / 1000
	result.FullText = strings.Join(text, " ")
	return result, nil
}

func parseBlock(lines []string) (Cue, bool) {
	timing := -1
	for i, line := range lines {
		if timingRegex.MatchString(line) {
			timing = i
			break
		}
	}
	if timing < 0 {
		return Cue{}, false
	}

	var cue Cue
	for _, header := range lines[:timing] {
		if m := zoomHeaderRegex.FindStringSubmatch(header); m != nil {
			cue.Speaker = m[1]
		}
	}
	m := timingRegex.FindStringSubmatch(lines[timing])
	cue.StartMs = parseTimestamp(m[1])
	cue.EndMs = parseTimestamp(m[2])

	parts := make([]string, 0, len(lines)-timing-1)
	for _, line := range lines[timing+1:] {
		if v := voiceRegex.FindStringSubmatch(line); v != nil && cue.Speaker == "" {
			cue.Speaker = strings.TrimSpace(v[1])
		}
		if clean := strings.TrimSpace(tagRegex.ReplaceAllString(line, "")); clean != "" {
			parts = append(parts, clean)
		}
	}
	cue.Text = strings.Join(parts, " ")
	return cue, cue.Text != ""
}

// parseTimestamp converts [HH:]MM:SS.mmm to milliseconds.
func parseTimestamp(ts string) int {
	ts = strings.Replace(ts, ",", ".", 1)
	parts := strings.Split(ts, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0
	}

	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	secParts := strings.SplitN(parts[2], ".", 2)
	seconds, _ := strconv.Atoi(secParts[0])
	milliseconds := 0
	if len(secParts) > 1 {
		milliseconds, _ = strconv.Atoi(secParts[1])
	}
	return hours*3600000 + minutes*60000 + seconds*1000 + milliseconds
}

// SidecarPath finds a transcript next to mediaPath: talk.mp4 pairs with
// talk.vtt or talk.srt, checked in that order.
func SidecarPath(mediaPath string) (string, Format, error) {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	for _, format := range []Format{FormatVTT, FormatSRT} {
		candidate := base + "." + string(format)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, format, nil
		}
	}
	return "", "", ErrNoSidecar
}

// LoadSidecar parses the transcript next to mediaPath.
func LoadSidecar(mediaPath string) (*Result, error) {
	path, format, err := SidecarPath(mediaPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()
	return Parse(f, format)
}
