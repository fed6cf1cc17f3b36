package staging

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	DefaultMaxSizeBytes      int64 = 5 << 20 // 5 MB
	DefaultAllowedMimePrefix       = "image/"
	DefaultMaxTotalCount           = 10
)

// Constraints bound what a single image set may contain
type Constraints struct {
	MaxSizeBytes      int64
	AllowedMimePrefix string
	MaxTotalCount     int
}

func DefaultConstraints() Constraints {
	return Constraints{
		MaxSizeBytes:      DefaultMaxSizeBytes,
		AllowedMimePrefix: DefaultAllowedMimePrefix,
		MaxTotalCount:     DefaultMaxTotalCount,
	}
}

// withDefaults fills zero fields so a partially configured value still validates
func (c Constraints) withDefaults() Constraints {
	if c.MaxSizeBytes <= 0 {
		c.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if c.AllowedMimePrefix == "" {
		c.AllowedMimePrefix = DefaultAllowedMimePrefix
	}
	if c.MaxTotalCount <= 0 {
		c.MaxTotalCount = DefaultMaxTotalCount
	}
	return c
}

// Reason classifies why a file was not staged
type Reason string

const (
	ReasonInvalidType   Reason = "invalid_type"
	ReasonTooLarge      Reason = "too_large"
	ReasonTooManyImages Reason = "too_many_images"
)

var (
	ErrInvalidType   = errors.New("file is not an image")
	ErrTooLarge      = errors.New("file exceeds the maximum size")
	ErrTooManyImages = errors.New("too many images")
)

// Rejection reports one file that AddFiles refused
type Rejection struct {
	FileName string `json:"file_name"`
	Reason   Reason `json:"reason"`
	Message  string `json:"message"`
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.FileName, r.Message)
}

func (r Rejection) Unwrap() error {
	switch r.Reason {
	case ReasonInvalidType:
		return ErrInvalidType
	case ReasonTooLarge:
		return ErrTooLarge
	case ReasonTooManyImages:
		return ErrTooManyImages
	}
	return nil
}

// FileInput is one file handed to AddFiles
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

// DetectContentType returns the declared media type without parameters, or
// the sniffed one when the client did not declare anything useful
func DetectContentType(f FileInput) string {
	declared := strings.TrimSpace(f.ContentType)
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			declared = mediaType
		}
	}

	if declared == "" || declared == "application/octet-stream" {
		return mimetype.Detect(f.Data).String()
	}
	return strings.ToLower(declared)
}

// validateFile checks type and size of a single file
func (c Constraints) validateFile(f FileInput, contentType string) *Rejection {
	if !strings.HasPrefix(contentType, c.AllowedMimePrefix) {
		return &Rejection{
			FileName: f.Name,
			Reason:   ReasonInvalidType,
			Message:  fmt.Sprintf("type %q is not allowed, expected %s*", contentType, c.AllowedMimePrefix),
		}
	}

	if int64(len(f.Data)) > c.MaxSizeBytes {
		return &Rejection{
			FileName: f.Name,
			Reason:   ReasonTooLarge,
			Message:  fmt.Sprintf("file is %d bytes, the limit is %d bytes", len(f.Data), c.MaxSizeBytes),
		}
	}

	return nil
}

// validateCount rejects the whole batch when it would overflow the set
func (c Constraints) validateCount(files []FileInput, visible int) []Rejection {
	if visible+len(files) <= c.MaxTotalCount {
		return nil
	}

	message := fmt.Sprintf("adding %d images to %d would exceed the limit of %d", len(files), visible, c.MaxTotalCount)
	rejections := make([]Rejection, 0, len(files))
	for _, f := range files {
		rejections = append(rejections, Rejection{FileName: f.Name, Reason: ReasonTooManyImages, Message: message})
	}
	return rejections
}
