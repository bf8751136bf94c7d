package services

import "errors"

// Failures the image provider can report. Callers branch with errors.Is;
// everything else from the adapter is a generic generation failure.
var (
	// the daily/free generation quota is spent, retrying will not help today
	ErrQuotaExceeded = errors.New("generation limit reached, please come back tomorrow")
	// the provider is temporarily unreachable or overloaded
	ErrServiceUnavailable = errors.New("image service is unavailable, please try again later")
	// the provider answered but produced no usable image
	ErrGenerationFailed = errors.New("image generation failed")
)
