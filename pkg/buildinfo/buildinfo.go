// Package buildinfo reports the version stamped into the documind binary.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// Set with -ldflags "-X github.com/otherjamesbrown/documind-cli/pkg/buildinfo.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information for a component.
type Info struct {
	ServiceName string `json:"service_name" yaml:"service_name"`
	Version     string `json:"version" yaml:"version"`
	Commit      string `json:"commit" yaml:"commit"`
	BuildTime   string `json:"build_time" yaml:"build_time"`
	GoVersion   string `json:"go_version" yaml:"go_version"`
	Platform    string `json:"platform" yaml:"platform"`
}

// Get returns build info for the named component.
func Get(serviceName string) Info {
	return Info{
		ServiceName: serviceName,
		Version:     Version,
		Commit:      Commit,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
		Platform:    platform(),
	}
}

// String returns "version (commit, build time)".
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// UserAgent returns the User-Agent sent to the backend, e.g.
// "documind/v0.3.0 (linux/amd64)".
func UserAgent() string {
	return "documind/" + Version + " (" + platform() + ")"
}

func platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Handler serves Get(serviceName) as JSON.
func Handler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(Get(serviceName))
	}
}
