package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalized is the comparable form of a free-text title.
type Normalized struct {
	// Text is lowercase ASCII with noise and punctuation removed. Stop-words are kept.
	Text string
	// Tokens are the significant words of Text.
	Tokens []string
}

var (
	bracketRegex    = regexp.MustCompile(`[\[{][^\]}]*[\]}]`)
	extensionRegex  = regexp.MustCompile(`(?i)\.(mp4|mkv|avi|wmv|m4v|mov|ts|torrent)$`)
	groupRegex      = regexp.MustCompile(`-[A-Za-z0-9]+$`)
	apostropheRegex = regexp.MustCompile("['`‘’ʼ]")
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9]+`)
	multiNoiseRegex = regexp.MustCompile(`(?i)\b(web[ ._-]?(dl|rip)|blu[ ._-]?ray|dd[p+]?[ ._-]?[25][ ._-]?[01]|h[ ._-]?26[45]|hi10p?)\b`)
	noiseWordRegex  = regexp.MustCompile(`(?i)\b(\d{3,4}p|[48]k|uhd|x26[45]|hevc|avc|xvid|divx|xxx|mp4|mkv|wmv|hdr|10bit|hdtv|dvdrip|bdrip|brrip|remux|aac|ac3|mp3|web)\b`)
)

var noiseWords = map[string]bool{
	"2160p": true, "1080p": true, "1080i": true, "720p": true, "576p": true, "540p": true, "480p": true, "360p": true,
	"4k": true, "8k": true, "uhd": true, "fhd": true, "hd": true, "sd": true,
	"x264": true, "x265": true, "h264": true, "h265": true, "hevc": true, "avc": true, "xvid": true, "divx": true,
	"webdl": true, "webrip": true, "web": true, "bluray": true, "hdtv": true, "dvdrip": true, "bdrip": true, "brrip": true, "remux": true,
	"mp4": true, "mkv": true, "avi": true, "wmv": true, "m4v": true, "mov": true,
	"aac": true, "ac3": true, "mp3": true, "hdr": true, "10bit": true, "hi10p": true,
	"xxx": true, "repack": true, "proper": true, "internal": true,
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "with": true, "by": true, "is": true, "from": true,
	"her": true, "his": true, "my": true, "your": true, "vs": true, "feat": true, "ft": true,
}

// Normalize returns the normalized text and tokens for title. It is a pure
// function: the same input always yields the same output.
func Normalize(title string) Normalized {
	text := Text(title)
	return Normalized{Text: text, Tokens: tokensOf(text)}
}

// Text returns only the normalized text of title.
func Text(title string) string {
	s := strings.TrimSpace(title)
	if s == "" {
		return ""
	}
	s = extensionRegex.ReplaceAllString(s, "")
	if HasReleaseNoise(s) {
		s = groupRegex.ReplaceAllString(s, "")
	}
	s = bracketRegex.ReplaceAllString(s, " ")
	s = dateRegex.ReplaceAllString(s, " ")
	s = fold(s)
	s = strings.ToLower(s)
	s = apostropheRegex.ReplaceAllString(s, "")
	s = multiNoiseRegex.ReplaceAllString(s, " ")
	s = nonAlnumRegex.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if noiseWords[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// Tokens returns the significant tokens of title.
func Tokens(title string) []string {
	return tokensOf(Text(title))
}

// TokensOfText tokenizes text that is already normalized.
func TokensOfText(text string) []string {
	return tokensOf(text)
}

// HasReleaseNoise reports whether title carries release tags such as a
// resolution, codec or source marker.
func HasReleaseNoise(title string) bool {
	return noiseWordRegex.MatchString(title) || multiNoiseRegex.MatchString(title)
}

// IsStopWord reports whether word is ignored during tokenization.
func IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}

func tokensOf(text string) []string {
	if text == "" {
		return nil
	}
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] || isNumeric(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// fold strips combining marks and transliterates what is left to ASCII.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}
	return unidecode.Unidecode(s)
}
