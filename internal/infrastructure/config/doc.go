// Package config loads and validates the audio node configuration.
//
// Configuration comes from a YAML file (configs/config.yaml by default),
// with hardcoded defaults below it and environment variable overrides above
// it. Durations are stored as integer seconds in YAML and exposed as
// time.Duration via accessor methods.
//
// The reconnect backoff parameters and default-output policy deliberately
// live here rather than as package constants: deployments differ in how
// aggressive Bluetooth reconnection should be and which sinks receive audio
// by default.
package config
