package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Network Errors (E001-E019)
	// ============================================

	"E001": {
		Category: CategoryNetwork,
		Message:  "UDP bind failed",
		Detail:   "The server could not open its UDP listen socket. The port may be in use by another process.",
		DocURL:   "https://gridwire.dev/docs/errors/E001",
	},
	"E002": {
		Category: CategoryNetwork,
		Message:  "Invalid listen address",
		Detail:   "The listen address could not be parsed. Use host:port, for example 0.0.0.0:23347.",
		DocURL:   "https://gridwire.dev/docs/errors/E002",
	},
	"E003": {
		Category: CategoryNetwork,
		Message:  "Connection timed out",
		Detail:   "The peer stopped responding and its connection was dropped.",
		DocURL:   "https://gridwire.dev/docs/errors/E003",
	},
	"E004": {
		Category: CategoryNetwork,
		Message:  "Connection refused",
		Detail:   "No server is listening at the requested address.",
		DocURL:   "https://gridwire.dev/docs/errors/E004",
	},

	// ============================================
	// Protocol Errors (E020-E039)
	// ============================================

	"E020": {
		Category: CategoryProtocol,
		Message:  "Unknown packet type",
		Detail:   "The received packet carries a type byte this build does not recognize. The peer may be running an incompatible protocol version.",
		DocURL:   "https://gridwire.dev/docs/errors/E020",
	},
	"E021": {
		Category: CategoryProtocol,
		Message:  "Malformed packet",
		Detail:   "The packet payload could not be decoded.",
		DocURL:   "https://gridwire.dev/docs/errors/E021",
	},
	"E022": {
		Category: CategoryProtocol,
		Message:  "Packet too large",
		Detail:   "The encoded packet does not fit the outgoing fragment window.",
		DocURL:   "https://gridwire.dev/docs/errors/E022",
	},
	"E023": {
		Category: CategoryProtocol,
		Message:  "Send window exhausted",
		Detail:   "Every outgoing packet slot is waiting on an acknowledgement. The peer is not acking.",
		DocURL:   "https://gridwire.dev/docs/errors/E023",
	},

	// ============================================
	// Session Errors (E040-E059)
	// ============================================

	"E040": {
		Category: CategorySession,
		Message:  "Session already started",
		Detail:   "The session has left the lobby. Only players from the original roster may rejoin.",
		DocURL:   "https://gridwire.dev/docs/errors/E040",
	},
	"E041": {
		Category: CategorySession,
		Message:  "Server locked",
		Detail:   "The server is not accepting new players.",
		DocURL:   "https://gridwire.dev/docs/errors/E041",
	},
	"E042": {
		Category: CategorySession,
		Message:  "Session is full",
		Detail:   "The lobby already holds the maximum number of players.",
		DocURL:   "https://gridwire.dev/docs/errors/E042",
	},
	"E043": {
		Category: CategorySession,
		Message:  "Host disconnected",
		Detail:   "The hosting connection went away, which ends the session for every player.",
		DocURL:   "https://gridwire.dev/docs/errors/E043",
	},

	// ============================================
	// Save Errors (E060-E079)
	// ============================================

	"E060": {
		Category: CategorySave,
		Message:  "Save not found",
		Detail:   "No save with this name exists in the configured store.",
		DocURL:   "https://gridwire.dev/docs/errors/E060",
	},
	"E061": {
		Category: CategorySave,
		Message:  "Save store unavailable",
		Detail:   "The save store could not be reached. For S3 stores, check credentials, region, and bucket name.",
		DocURL:   "https://gridwire.dev/docs/errors/E061",
	},
	"E062": {
		Category: CategorySave,
		Message:  "Corrupt save data",
		Detail:   "The save payload could not be decoded. The file may be truncated or written by an incompatible version.",
		DocURL:   "https://gridwire.dev/docs/errors/E062",
	},

	// ============================================
	// Configuration Errors (E080-E099)
	// ============================================

	"E080": {
		Category: CategoryConfig,
		Message:  "Invalid gridwire.json",
		Detail:   "The gridwire.json configuration file is malformed.",
		DocURL:   "https://gridwire.dev/docs/errors/E080",
	},
	"E081": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
		DocURL:   "https://gridwire.dev/docs/errors/E081",
	},
	"E082": {
		Category: CategoryConfig,
		Message:  "Invalid port number",
		Detail:   "The configured port must be between 1 and 65535.",
		DocURL:   "https://gridwire.dev/docs/errors/E082",
	},
	"E083": {
		Category: CategoryConfig,
		Message:  "Invalid tick rate",
		Detail:   "The tick rate must be a positive number of simulation ticks per second.",
		DocURL:   "https://gridwire.dev/docs/errors/E083",
	},
	"E084": {
		Category: CategoryConfig,
		Message:  "Invalid player limits",
		Detail:   "minPlayers must be at least 1 and no greater than maxPlayers.",
		DocURL:   "https://gridwire.dev/docs/errors/E084",
	},
	"E085": {
		Category: CategoryConfig,
		Message:  "Unknown save backend",
		Detail:   "The saves backend must be \"disk\" or \"s3\".",
		DocURL:   "https://gridwire.dev/docs/errors/E085",
	},
	"E086": {
		Category: CategoryConfig,
		Message:  "Missing S3 bucket",
		Detail:   "The s3 saves backend requires a bucket name.",
		DocURL:   "https://gridwire.dev/docs/errors/E086",
	},

	// ============================================
	// CLI Errors (E100-E119)
	// ============================================

	"E100": {
		Category: CategoryCLI,
		Message:  "Not a gridwire project",
		Detail:   "The current directory is not a gridwire project. Run this command from a directory with gridwire.json.",
		DocURL:   "https://gridwire.dev/docs/errors/E100",
	},
	"E101": {
		Category: CategoryCLI,
		Message:  "Configuration already exists",
		Detail:   "A gridwire.json already exists in this directory.",
		DocURL:   "https://gridwire.dev/docs/errors/E101",
	},
	"E102": {
		Category: CategoryCLI,
		Message:  "Invalid save name",
		Detail:   "Save names may not be empty or contain path separators.",
		DocURL:   "https://gridwire.dev/docs/errors/E102",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
