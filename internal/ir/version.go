package ir

// Version constants for IR schema and engine.
const (
	// IRVersion is the rule table schema version.
	IRVersion = "1"

	// EngineVersion is the rulescript runtime version.
	EngineVersion = "0.1.0"
)
