package version

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	Commit    string
	UserAgent = "knob"
	License   = "Apache License 2.0"
)

// Agent returns the User-Agent sent on every request.
func Agent() string {
	if Version == "" || Version == "dev" {
		return UserAgent
	}
	return UserAgent + "/" + Version
}
