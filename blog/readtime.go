package blog

import (
	"strconv"
	"strings"

	"github.com/eringen/spacetraveling/richtext"
)

// WordsPerMinute is the assumed reading speed.
const WordsPerMinute = 200

// WordCount returns the number of whitespace-delimited words across all
// headings and bodies.
func WordCount(sections []Section) int {
	n := 0
	for _, s := range sections {
		n += len(strings.Fields(s.Heading))
		n += len(strings.Fields(richtext.AsText(s.Body, " ")))
	}
	return n
}

// MinutesForWords converts a word count to whole minutes, rounding up.
func MinutesForWords(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// ReadingMinutes estimates the reading time of a post in minutes.
func ReadingMinutes(sections []Section) int {
	return MinutesForWords(WordCount(sections))
}

// ReadingLabel formats a minute estimate for the post header.
func ReadingLabel(minutes int) string {
	switch {
	case minutes < 1:
		return "Rápida leitura"
	case minutes < 60:
		return strconv.Itoa(minutes) + " min"
	}
	hours := minutes / 60
	if hours == 1 {
		return "1 hora"
	}
	return strconv.Itoa(hours) + " horas"
}
