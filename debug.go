package tautan

import "github.com/google/uuid"

// DebugConfig controls which parts of the pipeline emit debug logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCache     bool
	LogRateLimit bool
	LogAuth      bool
	LogCircuit   bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with every category selected.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogRateLimit: true,
		LogAuth:      true,
		LogCircuit:   true,
		RequestIDGen: uuid.NewString,
	}
}
