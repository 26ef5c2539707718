package storage

import "fmt"

// NotFoundError reports a lookup for an id that does not exist, or Latest /
// Oldest against an empty store (ID 0 in that case).
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return "storage: no datasets"
	}
	return fmt.Sprintf("storage: dataset %d not found", e.ID)
}

// StorageError reports a persistence-medium failure (connection loss, failed
// write, corrupt row). Op names the store operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
