// Package version carries the build version stamped in by the linker.
package version

// Version is overridden at build time via
// -ldflags "-X github.com/geusemaker/geusemaker/support/version.Version=...".
var Version = "dev"

// UserAgent returns the product token sent with every provider request.
func UserAgent() string {
	return "geusemaker/" + Version
}
