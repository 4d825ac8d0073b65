package version

import (
	_ "embed"
)

//go:embed VERSION
var Version string

// Get returns the version of the authgrid build
func Get() string {
	return Version
}
