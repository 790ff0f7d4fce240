// Package common provides shared configuration and utilities.
package common

// Fallback rate limits applied when a provider does not advertise its own.
const (
	DefaultRPM = 10000
	DefaultTPM = 2000000
)

const (
	// DefaultCachePath is the key-value database directory used when
	// EDSL_DATABASE_PATH and the config file are both silent.
	DefaultCachePath = ".cache/data.db"

	// DefaultCallTimeoutSeconds bounds a single LM call.
	DefaultCallTimeoutSeconds = 120

	// DefaultMaxConcurrent bounds the number of interviews in flight.
	DefaultMaxConcurrent = 100

	// DefaultDeepInfraBaseURL is the OpenAI-compatible DeepInfra endpoint.
	DefaultDeepInfraBaseURL = "https://api.deepinfra.com/v1/openai"
)
