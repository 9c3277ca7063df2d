package statestack

// Version is the release of the engine, reported by the CLI and the HTTP API.
const Version = "0.1.0"
