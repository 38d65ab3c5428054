// Package errors provides structured, actionable error messages for gridwire.
//
// The errors package implements an error system that:
//   - Shows exact file locations (file, line, column) for configuration errors
//   - Explains what went wrong in plain language
//   - Suggests how to fix issues with configuration examples
//   - Links to documentation for deeper understanding
//
// # Error Categories
//
// Errors are organized into categories:
//   - network: Socket errors (bind failures, timeouts, refused connections)
//   - protocol: Wire protocol errors (unknown packets, oversized payloads)
//   - session: Session lifecycle errors (locked server, full lobby)
//   - save: Save store errors (missing saves, unreachable backends)
//   - config: gridwire.json errors (parse failures, invalid values)
//   - cli: Command usage errors
//
// # Error Codes
//
// Each error has a unique code (e.g., "E080") that maps to:
//   - A short message describing the error
//   - A detailed explanation
//   - A documentation URL
//
// # Usage
//
//	err := errors.New("E080").
//	    WithLocationFromJSON("gridwire.json", data, syntaxErr.Offset).
//	    WithSuggestion("Remove the trailing comma")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E080: Invalid gridwire.json
//	//
//	//   gridwire.json:5:20
//	//
//	//      3 │   "server": {
//	//      4 │     "addr": "0.0.0.0:23347",
//	//    → 5 │     "tickRate": 20,,
//	//        │                    ^
//	//      6 │     "dayTicks": 9600
//	//      7 │   }
//	//
//	//   Hint: Remove the trailing comma
//	//
//	//   Learn more: https://gridwire.dev/docs/errors/E080
package errors
