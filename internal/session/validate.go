package session

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidName is wrapped by errors about malformed session names.
var ErrInvalidName = errors.New("invalid session name")

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Normalize trims and lowercases name, then checks it can be used as a
// session directory name.
func Normalize(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if !nameRegexp.MatchString(n) {
		return "", fmt.Errorf("%w %q: must match %s", ErrInvalidName, name, nameRegexp)
	}
	return n, nil
}
