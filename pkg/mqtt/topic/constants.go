package topic

// Topic filter syntax understood by the client router.
const (
	// Separator splits topic levels.
	Separator = "/"

	// Wildcard matches exactly one level, e.g. "rdk/v1/ota/progress/+"
	// matches the progress topic of every device.
	Wildcard = "+"

	// MultiWildcard matches the remaining levels and must come last.
	MultiWildcard = "#"

	// SharedPrefix starts a shared subscription: $share/<group>/<filter>.
	SharedPrefix = "$share" + Separator
)
