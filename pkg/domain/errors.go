package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrTransform     = errors.New("transform error")
	ErrNotFound      = errors.New("not found")
	ErrAssetNotFound = errors.New("asset not found")
	ErrPersistence   = errors.New("persistence error")
	ErrHandler       = errors.New("handler error")
)

// TransformError reports a structural mismatch during simplify or expand. It
// indicates a programming error in the caller.
type TransformError struct {
	Op     string // simplify|expand
	Type   string
	Reason string
}

func (e TransformError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Type, e.Reason)
}

func (e TransformError) Is(target error) bool { return target == ErrTransform }

// NotFoundError is returned by repositories when an identifier is absent.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found", e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AssetNotFoundError is returned by asset loaders for unknown names.
type AssetNotFoundError struct {
	Name string
}

func (e AssetNotFoundError) Error() string {
	return fmt.Sprintf("data asset %s not found", e.Name)
}

func (e AssetNotFoundError) Is(target error) bool { return target == ErrAssetNotFound }

// PersistenceError wraps a repository failure such as a constraint violation.
type PersistenceError struct {
	ID  string
	Err error
}

func (e PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("persist: %v", e.Err)
	}
	return fmt.Sprintf("persist %s: %v", e.ID, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

func (e PersistenceError) Is(target error) bool { return target == ErrPersistence }

// HandlerError reports an uncaught failure inside a rule or validator body.
// Collaborator errors raised by the handler remain reachable via Unwrap.
type HandlerError struct {
	Handler string
	Type    string
	Trigger string
	Err     error
}

func (e HandlerError) Error() string {
	if e.Trigger == "" {
		return fmt.Sprintf("validator %s on %s: %v", e.Handler, e.Type, e.Err)
	}
	return fmt.Sprintf("rule %s on %s/%s: %v", e.Handler, e.Type, e.Trigger, e.Err)
}

func (e HandlerError) Unwrap() error { return e.Err }

func (e HandlerError) Is(target error) bool { return target == ErrHandler }
