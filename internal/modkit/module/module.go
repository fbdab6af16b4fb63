// Package module defines the minimal module contract and a bootstrap registry
package module

import (
	phttp "marketpulse/internal/platform/net/http"
)

// Module is the minimal contract every service module satisfies
type Module interface {
	// Name returns the module name used for registry lookups
	Name() string

	// Ports returns the module's exported port bundle
	Ports() any

	// MountRoutes mounts the module's HTTP routes, if any
	MountRoutes(r phttp.Router)
}
