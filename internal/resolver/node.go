// Package resolver resolves partial node references entered on the command
// line against the node directory.
package resolver

import (
	"fmt"
	"sort"
	"strings"
)

// MinRefLength is the minimum required length for partial node references.
// Full hex ids are eight digits; three keeps typing short without matching
// half the mesh.
const MinRefLength = 3

// ResolveNode resolves a node reference to a full node id against the
// directory. A reference matches either as a node id prefix (the leading "!"
// may be omitted) or as a case-insensitive display name prefix.
// Returns the node id if exactly one node matches.
func ResolveNode(names map[string]string, ref string) (string, error) {
	// A full id that exists resolves directly.
	if _, ok := names[ref]; ok {
		return ref, nil
	}

	if len(ref) < MinRefLength {
		return "", fmt.Errorf("node reference must be at least %d characters (got %d)", MinRefLength, len(ref))
	}

	idRef := strings.ToLower(ref)
	if !strings.HasPrefix(idRef, "!") {
		idRef = "!" + idRef
	}
	nameRef := strings.ToLower(ref)

	var matches []string
	for id, name := range names {
		if strings.HasPrefix(strings.ToLower(id), idRef) || strings.HasPrefix(strings.ToLower(name), nameRef) {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Ref: ref}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Ref: ref, Matches: matches}
	}
}

// NotFoundError indicates no node matched the reference.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no node found matching '%s'", e.Ref)
}

// AmbiguousError indicates multiple nodes matched the reference.
type AmbiguousError struct {
	Ref     string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous node reference '%s' matches %d nodes", e.Ref, len(e.Matches))
}

// IsNotFound checks if an error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguous checks if an error is an AmbiguousError.
func IsAmbiguous(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
