package admin

import (
	"net/http"
	"time"
	"workshop_server/api/health"
	"workshop_server/handling"
	"workshop_server/lib"
	"workshop_server/structs"

	"github.com/MonkyMars/gecho"
	"github.com/go-chi/chi/v5"
)

func (ar *AdminRoutesManager) OpenSession(w http.ResponseWriter, r *http.Request) {
	parent, err := handling.ParseParentRef(r)
	if err != nil {
		gecho.BadRequest(w, gecho.WithMessage(err.Error()), gecho.Send())
		return
	}

	view, err := ar.sessionService.Open(r.Context(), parent)
	if err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	gecho.Success(w,
		gecho.WithData(view),
		gecho.WithMessage("Edit session opened"),
		gecho.Send(),
	)
}

func (ar *AdminRoutesManager) ViewSession(w http.ResponseWriter, r *http.Request) {
	view, err := ar.sessionService.View(chi.URLParam(r, "sessionID"))
	if err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	gecho.Success(w, gecho.WithData(view), gecho.Send())
}

func (ar *AdminRoutesManager) DiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := ar.sessionService.Discard(chi.URLParam(r, "sessionID")); err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	gecho.Success(w, gecho.WithMessage("Edit session discarded"), gecho.Send())
}

// AddFiles stages a multipart batch. Rejected files come back next to the
// accepted ones; a partly rejected batch is still a success.
func (ar *AdminRoutesManager) AddFiles(w http.ResponseWriter, r *http.Request) {
	files, err := handling.ParseFileBatch(r)
	if err != nil {
		ar.logger.Debug("Failed to parse file batch", gecho.Field("error", err))
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	result, err := ar.sessionService.AddFiles(chi.URLParam(r, "sessionID"), files)
	if err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	gecho.Success(w,
		gecho.WithData(result),
		gecho.Send(),
	)
}

func (ar *AdminRoutesManager) RemoveImage(w http.ResponseWriter, r *http.Request) {
	view, err := ar.sessionService.Remove(chi.URLParam(r, "sessionID"), chi.URLParam(r, "imageID"))
	if err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	gecho.Success(w, gecho.WithData(view), gecho.Send())
}

func (ar *AdminRoutesManager) ReorderImage(w http.ResponseWriter, r *http.Request) {
	body, err := lib.ExtractAndValidateBody[structs.ReorderImageRequest](r)
	if err != nil {
		ar.logger.Debug("Rejected reorder body", gecho.Field("error", err))
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	view, err := ar.sessionService.Reorder(chi.URLParam(r, "sessionID"), chi.URLParam(r, "imageID"), *body.ToIndex)
	if err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	gecho.Success(w, gecho.WithData(view), gecho.Send())
}

func (ar *AdminRoutesManager) SetPrimaryImage(w http.ResponseWriter, r *http.Request) {
	view, err := ar.sessionService.SetPrimary(chi.URLParam(r, "sessionID"), chi.URLParam(r, "imageID"))
	if err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	gecho.Success(w, gecho.WithData(view), gecho.Send())
}

// PreviewImage serves a thumbnail of staged bytes, or redirects to the
// stored image
func (ar *AdminRoutesManager) PreviewImage(w http.ResponseWriter, r *http.Request) {
	preview, err := ar.sessionService.Preview(chi.URLParam(r, "sessionID"), chi.URLParam(r, "imageID"))
	if err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	if preview.RedirectURL != "" {
		http.Redirect(w, r, preview.RedirectURL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", preview.ContentType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(preview.Data)
}

func (ar *AdminRoutesManager) CommitSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome, err := ar.sessionService.Commit(r.Context(), chi.URLParam(r, "sessionID"))
	health.ObserveCommit(err, time.Since(start))
	if err != nil {
		handling.HandleServiceError(err, ar.logger, w)
		return
	}

	data := map[string]any{
		"images":      outcome.Result.Rows,
		"session":     outcome.Session,
		"duration_ms": outcome.Result.Duration.Milliseconds(),
	}
	message := "Images saved"
	if outcome.Result.DeleteWarnings != nil {
		data["orphaned_keys"] = outcome.Result.DeleteWarnings.Keys
		message = "Images saved, some old files could not be removed"
	}

	gecho.Success(w,
		gecho.WithData(data),
		gecho.WithMessage(message),
		gecho.Send(),
	)
}
