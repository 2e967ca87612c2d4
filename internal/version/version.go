// Package version centralises the release version string.
package version

// Version is stamped by the release build; the default marks dev builds.
var Version = "0.3.0-dev"
