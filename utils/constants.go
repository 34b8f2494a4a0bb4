package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for operator access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Audience estimate constants
const (
	// FetchDateLayout is the calendar day format used in audience records and cache keys
	FetchDateLayout = "2006-01-02"

	// EstimateCacheTTL keeps a cached estimate for the rest of its day
	EstimateCacheTTL = 24 * time.Hour

	// EstimatePollBaseDelay is the first delay of the "estimate not ready" polling loop
	EstimatePollBaseDelay = 5 * time.Second

	// EstimatePollMultiplierStep is added to the delay multiplier after every not-ready answer
	EstimatePollMultiplierStep = 0.5
)
