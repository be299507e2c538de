// Package errs holds the error taxonomy shared by the pipeline stages.
//
// Per-unit errors (source, provider, validation) are collected into step reports and never
// abort a run. ConfigurationError and StorageError are fatal.
package errs

import (
	"errors"
	"fmt"
)

// ErrDuplicate marks an insert that hit an existing row. Callers treat it as a no-op skip.
var ErrDuplicate = errors.New("duplicate")

// SourceFetchError is a failure to fetch or parse one source.
type SourceFetchError struct {
	SourceID string
	Err      error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.SourceID, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ProviderError is a failed call to the embedding or generation provider.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedOutputError is a provider response that could not be turned into a draft.
type MalformedOutputError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedOutputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s malformed output: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s malformed output: %s", e.Provider, e.Reason)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// ValidationError is a topic rejected by the quality gate.
type ValidationError struct {
	TopicKey string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("topic %s rejected: %s", e.TopicKey, e.Reason)
}

// ConfigurationError is a missing credential or required setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
}

// StorageError wraps a failed read or write against the persistent store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError, passing nil through.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	var storageErr *StorageError
	return errors.As(err, &cfgErr) || errors.As(err, &storageErr)
}
