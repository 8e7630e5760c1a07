// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of an ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeAlphabet is the digit set used for human-enterable pairing codes.
const codeAlphabet = "0123456789"

// CodeLength is the number of digits in a pairing code. Six digits keeps the
// code enterable on a watch; brute-force is blunted by the code's TTL and
// the completion rate limit, not by code entropy.
const CodeLength = 6

// RequestID returns a new approval request ID ("req-" prefix).
func RequestID() (string, error) {
	return generate("req-", 10)
}

// QuestionID returns a new question ID ("q-" prefix).
func QuestionID() (string, error) {
	return generate("q-", 10)
}

// WatchID returns a new watch identity ID ("watch-" prefix), used to key the
// pending pairing record until the watch completes pairing.
func WatchID() (string, error) {
	return generate("watch-", 10)
}

// PairingCode returns a new numeric pairing code.
func PairingCode() (string, error) {
	code, err := nanoid.Generate(codeAlphabet, CodeLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return code, nil
}

func generate(prefix string, length int) (string, error) {
	id, err := nanoid.Generate(Alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
