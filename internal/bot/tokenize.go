package bot

import (
	"errors"
	"strings"
	"unicode"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// Tokenize splits a command line on whitespace. Double quotes group words into
// one argument, so `buy "Starter Pack" 2` yields three tokens.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inQuote bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case unicode.IsSpace(r) && !inQuote:
			if started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, errUnterminatedQuote
	}
	if started {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
