package job

import "errors"

// Stage failures. Each is wrapped with the offending id before it reaches
// the job record.
var (
	ErrBatchNotFound          = errors.New("batch not found")
	ErrDiffNotFound           = errors.New("diff not found")
	ErrScanNotFound           = errors.New("scan not found")
	ErrDatasetNotFound        = errors.New("dataset not found")
	ErrCopyNotFound           = errors.New("copy job not found")
	ErrNoEnabledItems         = errors.New("batch has no enabled items")
	ErrSourceFileUnresolvable = errors.New("no plan item resolves to a source file")
	ErrTransferFailed         = errors.New("transfer failed")
	ErrPartialFailure         = errors.New("some files failed to copy")

	// ErrInventoryUnreadable marks an inventory that exists but cannot be
	// used; its message is the "inventory unreadable:" prefix.
	ErrInventoryUnreadable = errors.New("inventory unreadable")
)
