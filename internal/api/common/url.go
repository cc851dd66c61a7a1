// Package common holds the response and request helpers shared by the API packages.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

// MaxPathIDLength bounds ids taken from the path. Derived product ids are
// lender and product slugs, far below it.
const MaxPathIDLength = 200

// PathID returns the decoded chi path parameter name. Blank ids, ids with
// whitespace or control characters, and ids over MaxPathIDLength bytes are
// rejected with a message safe to return to the caller.
func PathID(r *http.Request, name string) (string, error) {
	id, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}

	switch {
	case strings.TrimSpace(id) == "":
		return "", fmt.Errorf("%s cannot be empty", name)
	case strings.IndexFunc(id, unicode.IsSpace) >= 0:
		return "", fmt.Errorf("%s cannot contain whitespace", name)
	case strings.IndexFunc(id, unicode.IsControl) >= 0:
		return "", fmt.Errorf("%s cannot contain control characters", name)
	case len(id) > MaxPathIDLength:
		return "", fmt.Errorf("%s is longer than %d bytes", name, MaxPathIDLength)
	}
	return id, nil
}
