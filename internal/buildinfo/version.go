// Package buildinfo carries the module's version string, overridable at
// build time via -ldflags "-X .../internal/buildinfo.Version=...".
package buildinfo

// Version is the released version string. "dev" marks a local build.
var Version = "dev"
