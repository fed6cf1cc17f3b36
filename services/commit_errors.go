package services

import (
	"errors"
	"fmt"
	"strings"
	"workshop_server/lib"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// FileFailure attributes an upload failure to one staged file
type FileFailure struct {
	ImageID  string `json:"image_id"`
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// UploadFailedError aborts a commit before anything was deleted or persisted
type UploadFailedError struct {
	Failures []FileFailure
}

func (e *UploadFailedError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, fmt.Sprintf("%s (%s)", f.FileName, f.Reason))
	}
	return "upload failed: " + strings.Join(names, ", ")
}

// PersistFailedError means the uploads happened but the rows were not written.
// Retrying the commit is safe: uploads are content addressed and the persist
// step replaces the whole row set.
type PersistFailedError struct {
	Uploaded []string
	Err      error
}

func (e *PersistFailedError) Error() string {
	return fmt.Sprintf("images were uploaded but not saved (%d uploaded): %v", len(e.Uploaded), e.Err)
}

func (e *PersistFailedError) Unwrap() error {
	return e.Err
}

// PartialDeleteFailedError lists objects that could not be removed. It never
// fails a commit; it is returned alongside a successful result.
type PartialDeleteFailedError struct {
	Keys []string
}

func (e *PartialDeleteFailedError) Error() string {
	return "failed to delete objects: " + strings.Join(e.Keys, ", ")
}

// IsRecoverable reports whether the caller can simply retry the commit. A
// conflict needs a fresh session instead.
func IsRecoverable(err error) bool {
	if errors.Is(err, lib.ErrConflict) {
		return false
	}
	var uploadErr *UploadFailedError
	var persistErr *PersistFailedError
	return errors.As(err, &uploadErr) || errors.As(err, &persistErr)
}
