package engine

import (
	"strings"

	"github.com/authgrid/authgrid/internal/common/errorx"
	"github.com/authgrid/authgrid/internal/storage"
)

// resolveScope applies the scope policy: an empty request inherits the
// client's registered scope; a non-empty request must be a subset of it
// unless allowArbitrary relaxes the check.
func resolveScope(client *storage.Client, requested string, allowArbitrary bool) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return client.Scope, nil
	}
	if allowArbitrary {
		return requested, nil
	}
	granted := make(map[string]struct{})
	for _, s := range strings.Fields(client.Scope) {
		granted[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := granted[s]; !ok {
			return "", errorx.ErrInvalidScope.WithDescription("scope exceeds client registration")
		}
	}
	return requested, nil
}

// narrowScope validates a refresh-time scope request against the scope
// of the token being refreshed. Empty keeps the original scope.
func narrowScope(original, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return original, nil
	}
	granted := make(map[string]struct{})
	for _, s := range strings.Fields(original) {
		granted[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := granted[s]; !ok {
			return "", errorx.ErrInvalidScope.WithDescription("scope exceeds original grant")
		}
	}
	return requested, nil
}
