/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import "time"

// ScanOptions configures how paged backends walk result pages.
type ScanOptions struct {
	MaxRetries   int           // Retry attempts for transient errors (default: 3)
	RetryBackoff time.Duration // Backoff between retries, multiplied by attempt (default: 1s)
	PageSize     int32         // Items per backend page (default: 100)
}

// ScanOption is a functional option for configuring page scans
type ScanOption func(*ScanOptions)

// DefaultScanOptions returns default scan options
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		MaxRetries:   3,
		RetryBackoff: time.Second,
		PageSize:     100,
	}
}

// WithMaxRetries sets the maximum retry attempts
func WithMaxRetries(retries int) ScanOption {
	return func(opts *ScanOptions) {
		opts.MaxRetries = retries
	}
}

// WithRetryBackoff sets the retry backoff duration
func WithRetryBackoff(backoff time.Duration) ScanOption {
	return func(opts *ScanOptions) {
		opts.RetryBackoff = backoff
	}
}

// WithPageSize sets the backend page size
func WithPageSize(size int32) ScanOption {
	return func(opts *ScanOptions) {
		opts.PageSize = size
	}
}
