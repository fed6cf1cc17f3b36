package handling

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"workshop_server/staging"
	"workshop_server/structs"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// FilesField is the multipart field carrying staged image files
const FilesField = "files"

// multipartMemory is kept in memory before parts spill to temp files
const multipartMemory = 8 << 20

var ErrNoFiles = errors.New("no files in request")

// ParseParentRef reads the {kind} and {parentID} route params
func ParseParentRef(r *http.Request) (structs.ParentRef, error) {
	kind, err := structs.ParseParentKind(chi.URLParam(r, "kind"))
	if err != nil {
		return structs.ParentRef{}, err
	}

	id, err := uuid.Parse(chi.URLParam(r, "parentID"))
	if err != nil {
		return structs.ParentRef{}, fmt.Errorf("invalid parent id: %w", err)
	}

	ref := structs.ParentRef{Kind: kind, ID: id}
	return ref, ref.Validate()
}

// ParseFileBatch reads every part of the "files" field. The request body
// must already be bounded by the body limit middleware.
func ParseFileBatch(r *http.Request) ([]staging.FileInput, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[FilesField]
	if len(headers) == 0 {
		return nil, ErrNoFiles
	}

	files := make([]staging.FileInput, 0, len(headers))
	for _, header := range headers {
		data, err := readPart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Filename, err)
		}
		files = append(files, staging.FileInput{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	return files, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}
