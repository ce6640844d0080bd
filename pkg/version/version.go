package version

// Build holds the build identifier, injected via -ldflags "-X robot-telemetry/pkg/version.Build=...". Default "dev".
var Build = "dev"

// UserAgent identifies the dashboard client in HTTP and WebSocket requests.
func UserAgent() string {
	return "robot-telemetry-dashboard/" + Build
}
