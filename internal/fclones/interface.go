package fclones

import "context"

// ExecutorInterface is the part of fclones the duplicate finder needs.
// Tests substitute a fake.
type ExecutorInterface interface {
	// CheckInstalled verifies that fclones is installed and accessible
	CheckInstalled(ctx context.Context) error

	// Version returns the fclones version string
	Version(ctx context.Context) (string, error)

	// Group runs fclones group. onProgress may be nil.
	Group(ctx context.Context, opts ScanOptions, onProgress func(Progress)) (*GroupOutput, error)
}

var _ ExecutorInterface = (*Executor)(nil)
