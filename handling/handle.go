package handling

import (
	"errors"
	"net/http"
	"workshop_server/lib"
	"workshop_server/services"
	"workshop_server/staging"

	"github.com/MonkyMars/gecho"
)

func HandleError(err error, msg string, logger *gecho.Logger, w http.ResponseWriter) error {
	logger.Error("An error occurred", gecho.Field("error", err), gecho.Field("msg", msg), gecho.WithCallerSkip(3))

	gecho.InternalServerError(w, gecho.Send())
	return nil
}

// HandleServiceError maps image and session errors onto responses. Unknown
// errors are logged and answered with a 500.
func HandleServiceError(err error, logger *gecho.Logger, w http.ResponseWriter) error {
	var uploadErr *services.UploadFailedError
	var persistErr *services.PersistFailedError
	var validationErr *lib.ValidationError
	var maxErr *http.MaxBytesError

	switch {
	case errors.Is(err, lib.ErrConflict):
		gecho.Conflict(w, gecho.WithMessage("The images were changed by someone else, reopen the editor"), gecho.Send())
		return nil
	case errors.As(err, &uploadErr):
		gecho.ServiceUnavailable(w,
			gecho.WithMessage("Some images could not be uploaded, nothing was changed"),
			gecho.WithData(map[string]any{"failures": uploadErr.Failures, "retryable": true}),
			gecho.Send(),
		)
		return nil
	case errors.As(err, &persistErr):
		logger.Error("Images uploaded but not saved", gecho.Field("uploaded", persistErr.Uploaded), gecho.Field("error", persistErr.Err))
		gecho.InternalServerError(w,
			gecho.WithMessage("Images were uploaded but could not be saved, please retry save"),
			gecho.WithData(map[string]any{"uploaded": persistErr.Uploaded, "retryable": true}),
			gecho.Send(),
		)
		return nil
	case errors.Is(err, services.ErrSessionExpired):
		gecho.NotFound(w, gecho.WithMessage("Edit session expired"), gecho.Send())
		return nil
	case errors.Is(err, services.ErrSessionNotFound):
		gecho.NotFound(w, gecho.WithMessage("Edit session not found"), gecho.Send())
		return nil
	case errors.Is(err, staging.ErrImageNotFound):
		gecho.NotFound(w, gecho.WithMessage("Image not found"), gecho.Send())
		return nil
	case errors.Is(err, lib.ErrNotFound):
		gecho.NotFound(w, gecho.WithMessage("Product or service not found"), gecho.Send())
		return nil
	case errors.As(err, &validationErr):
		gecho.BadRequest(w, gecho.WithMessage("Invalid request"), gecho.WithData(validationErr), gecho.Send())
		return nil
	case errors.As(err, &maxErr):
		gecho.BadRequest(w, gecho.WithMessage("Request body too large"), gecho.Send())
		return nil
	case errors.Is(err, services.ErrInvalidSnapshot), errors.Is(err, ErrNoFiles):
		gecho.BadRequest(w, gecho.WithMessage(err.Error()), gecho.Send())
		return nil
	}

	return HandleError(err, "unexpected service error", logger, w)
}
