package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/brandpulse/internal/aicontext"
	"github.com/suPer8Hu/brandpulse/internal/common"
)

func (h *Handler) UploadContextFile(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10010, "multipart field \"file\" required")
		return
	}
	if h.Cfg.UploadMaxBytes > 0 && fh.Size > h.Cfg.UploadMaxBytes {
		common.Fail(c, http.StatusRequestEntityTooLarge, 10012, "file too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10010, "cannot read upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10010, "cannot read upload")
		return
	}

	res, err := h.Contexts.Ingest(c.Request.Context(), aicontext.IngestInput{
		ClientID: cl.ID,
		Filename: fh.Filename,
		Category: strings.TrimSpace(c.PostForm("category")),
		Data:     data,
	})
	if err != nil {
		switch {
		case aicontext.IsValidationError(err):
			common.Fail(c, http.StatusBadRequest, 10011, err.Error())
		case errors.Is(err, aicontext.ErrFileProcessingFailed):
			common.Fail(c, http.StatusBadGateway, 50201, "provider could not process the file")
		default:
			h.Log.Error("ingest failed", "client_id", cl.ID, "file", fh.Filename, "err", err)
			common.Fail(c, http.StatusBadGateway, 50202, "upload failed")
		}
		return
	}

	// new documents make the stored report stale
	h.Analysis.InvalidateReport(c.Request.Context(), cl.ID)
	common.OK(c, res)
}

func (h *Handler) GetContext(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	sum, err := h.Contexts.Summary(c.Request.Context(), cl.ID)
	if err != nil {
		if errors.Is(err, aicontext.ErrNoContext) {
			common.Fail(c, http.StatusNotFound, 40405, "no documents uploaded for this client")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, sum)
}
