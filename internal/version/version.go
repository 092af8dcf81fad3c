package version

var (
	// Version is the semantic version of the bot binary. Overridden at build time via -ldflags.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
	// BuildDate is the RFC3339 build timestamp.
	BuildDate = "unknown"
)

// UserAgent is sent on outbound market data requests.
func UserAgent() string {
	return "coin-alarm-bot/" + Version
}
