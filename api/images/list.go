package images

import (
	"net/http"
	"workshop_server/handling"

	"github.com/MonkyMars/gecho"
)

// ListImages handles GET /{kind}/{parentID}/images
func (irm *ImageRoutesManager) ListImages(w http.ResponseWriter, r *http.Request) {
	parent, err := handling.ParseParentRef(r)
	if err != nil {
		irm.logger.Debug("Invalid image list request", gecho.Field("error", err))
		gecho.BadRequest(w, gecho.WithMessage(err.Error()), gecho.Send())
		return
	}

	rows, err := irm.imageService.ListImages(r.Context(), parent)
	if err != nil {
		handling.HandleServiceError(err, irm.logger, w)
		return
	}

	gecho.Success(w,
		gecho.WithData(map[string]any{
			"images": rows,
			"count":  len(rows),
		}),
		gecho.Send(),
	)
}
