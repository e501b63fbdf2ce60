// Package timeref finds time references such as "[1:23]" or "(12:05)" in
// free text and splits the text into literal and time-reference tokens.
package timeref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind distinguishes the two token variants.
type Kind int

const (
	// Literal is a run of plain text.
	Literal Kind = iota
	// TimeRef is a recognised time reference.
	TimeRef
)

func (k Kind) String() string {
	if k == TimeRef {
		return "time_ref"
	}
	return "literal"
}

// MarshalText renders the kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Token is one element of a parsed message. Text holds the literal text for
// Literal tokens and the bracket-free display form ("1:23") for TimeRef tokens.
type Token struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Text    string `json:"text" yaml:"text"`
	Minutes int    `json:"minutes,omitempty" yaml:"minutes,omitempty"`
	Seconds int    `json:"seconds,omitempty" yaml:"seconds,omitempty"`
}

// IsTimeRef reports whether the token is a time reference.
func (t Token) IsTimeRef() bool {
	return t.Kind == TimeRef
}

// TotalSeconds is minutes*60 + seconds. Zero for literals.
func (t Token) TotalSeconds() int {
	if t.Kind != TimeRef {
		return 0
	}
	return t.Minutes*60 + t.Seconds
}

// Display returns the text shown for the token.
func (t Token) Display() string {
	return t.Text
}

// An opening bracket, 1-2 digit minutes, a colon, exactly 2 digit seconds and
// a closing bracket. Brackets need not match; seconds above 59 are accepted.
var pattern = regexp.MustCompile(`[\[(](\d{1,2}):(\d{2})[\])]`)

// Parse splits text into tokens in reading order. Concatenating the literal
// texts with the full bracketed source of every time reference reproduces the
// input. Empty input yields no tokens.
func Parse(text string) []Token {
	if text == "" {
		return nil
	}

	matches := pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []Token{{Kind: Literal, Text: text}}
	}

	tokens := make([]Token, 0, 2*len(matches)+1)
	last := 0
	for _, m := range matches {
		if m[0] > last {
			tokens = append(tokens, Token{Kind: Literal, Text: text[last:m[0]]})
		}
		minText := text[m[2]:m[3]]
		secText := text[m[4]:m[5]]
		minutes, _ := strconv.Atoi(minText)
		seconds, _ := strconv.Atoi(secText)
		tokens = append(tokens, Token{
			Kind:    TimeRef,
			Text:    minText + ":" + secText,
			Minutes: minutes,
			Seconds: seconds,
		})
		last = m[1]
	}
	if last < len(text) {
		tokens = append(tokens, Token{Kind: Literal, Text: text[last:]})
	}
	return tokens
}

// References returns only the time-reference tokens of text, in order.
func References(text string) []Token {
	var refs []Token
	for _, tok := range Parse(text) {
		if tok.IsTimeRef() {
			refs = append(refs, tok)
		}
	}
	return refs
}

// Format renders a whole number of seconds as m:ss.
func Format(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// ParseTarget accepts "m:ss", "mm:ss", optionally bracketed, or a plain number
// of seconds, and returns the position in seconds.
func ParseTarget(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	if refs := References(s); len(refs) == 1 && len(Parse(s)) == 1 {
		return float64(refs[0].TotalSeconds()), nil
	}
	if refs := References("[" + s + "]"); len(refs) == 1 && len(Parse("["+s+"]")) == 1 {
		return float64(refs[0].TotalSeconds()), nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid time %q: want m:ss or seconds", s)
	}
	return secs, nil
}
