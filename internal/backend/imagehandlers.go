package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/imagepress/internal/backend/commands"
	"github.com/jo-hoe/imagepress/internal/backend/worker"
	"github.com/jo-hoe/imagepress/internal/core"
)

const uploadFormField = "files"

type convertRequest struct {
	TargetFormat string  `json:"targetFormat" validate:"required"`
	Quality      float64 `json:"quality" validate:"gte=0,lte=1"`
}

type moveRequest struct {
	AfterID string `json:"afterId"`
}

func (service *APIService) uploadImagesHandler(ctx echo.Context) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		slog.Warn("uploadImagesHandler: failed to parse multipart form", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read uploaded files")
	}
	headers := form.File[uploadFormField]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No files uploaded")
	}

	opts, err := optionsFromForm(form.Value)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	files := make([]core.UploadedFile, 0, len(headers))
	for _, header := range headers {
		data, err := readFormFile(header)
		if err != nil {
			slog.Error("uploadImagesHandler: failed to read uploaded file",
				"status", http.StatusInternalServerError, "error", err, "filename", header.Filename)
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read uploaded file")
		}
		files = append(files, core.UploadedFile{Name: header.Filename, Data: data})
	}

	result, err := service.coreService.AddImages(ctx.Request().Context(), ownerOf(ctx), files, opts)
	if errors.Is(err, worker.ErrQueueFull) && result != nil {
		// the stored images are reported so the client can retry them
		return ctx.JSON(http.StatusServiceUnavailable, map[string]any{
			"message":  "Processing queue is full, please retry",
			"accepted": result.Accepted,
			"rejected": result.Rejected,
		})
	}
	if err != nil {
		return toHTTPError(err, "uploadImagesHandler", "Failed to process uploaded images")
	}
	return ctx.JSON(http.StatusAccepted, result)
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("readFormFile: failed to close uploaded file reader", "error", cerr, "filename", header.Filename)
		}
	}()
	return io.ReadAll(src)
}

// optionsFromForm reads the processing options sent next to the files.
// Missing fields keep their defaults.
func optionsFromForm(values map[string][]string) (core.ProcessOptions, error) {
	opts := core.DefaultProcessOptions()
	get := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	if v := get("compressionPreset"); v != "" {
		opts.CompressionPreset = v
	}
	opts.ResizePreset = get("resizePreset")
	opts.TargetFormat = get("targetFormat")

	floats := map[string]*float64{"quality": &opts.Quality, "maxSizeMB": &opts.MaxSizeMB}
	for key, target := range floats {
		if raw := get(key); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return opts, fmt.Errorf("invalid %s: %q", key, raw)
			}
			*target = parsed
		}
	}
	ints := map[string]*int{"width": &opts.Width, "height": &opts.Height}
	for key, target := range ints {
		if raw := get(key); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return opts, fmt.Errorf("invalid %s: %q", key, raw)
			}
			*target = parsed
		}
	}
	if raw := get("maintainAspectRatio"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid maintainAspectRatio: %q", raw)
		}
		opts.MaintainAspectRatio = parsed
	}
	return opts, nil
}

func (service *APIService) listImagesHandler(ctx echo.Context) error {
	images, err := service.coreService.ListImages(ctx.Request().Context(), ownerOf(ctx))
	if err != nil {
		return toHTTPError(err, "listImagesHandler", "Failed to list images")
	}
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, images)
}

func (service *APIService) getImageHandler(ctx echo.Context) error {
	image, err := service.coreService.GetImage(ctx.Request().Context(), ownerOf(ctx), ctx.Param("id"))
	if err != nil {
		return toHTTPError(err, "getImageHandler", "Failed to fetch image")
	}
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, image)
}

func (service *APIService) deleteImageHandler(ctx echo.Context) error {
	if err := service.coreService.RemoveImage(ctx.Request().Context(), ownerOf(ctx), ctx.Param("id")); err != nil {
		return toHTTPError(err, "deleteImageHandler", "Failed to delete image")
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (service *APIService) previewHandler(ctx echo.Context) error {
	variant := ctx.QueryParam("variant")
	if variant != "" && variant != "original" && variant != "compressed" {
		return echo.NewHTTPError(http.StatusBadRequest, "variant must be original or compressed")
	}
	preview, err := service.coreService.Preview(ctx.Request().Context(), ownerOf(ctx), ctx.Param("id"), variant == "compressed")
	if err != nil {
		return toHTTPError(err, "previewHandler", "Failed to load preview")
	}
	setNoCache(ctx)
	if ctx.QueryParam("format") == "dataurl" {
		return ctx.JSON(http.StatusOK, map[string]string{"dataUrl": commands.PreviewDataURL(preview.Data)})
	}
	return ctx.Blob(http.StatusOK, preview.ContentType, preview.Data)
}

func (service *APIService) downloadImageHandler(ctx echo.Context) error {
	download, err := service.coreService.DownloadImage(ctx.Request().Context(), ownerOf(ctx), ctx.Param("id"))
	if err != nil {
		return toHTTPError(err, "downloadImageHandler", "Failed to download image")
	}
	return sendAttachment(ctx, download)
}

func (service *APIService) downloadArchiveHandler(ctx echo.Context) error {
	download, err := service.coreService.DownloadZip(ctx.Request().Context(), ownerOf(ctx))
	if err != nil {
		return toHTTPError(err, "downloadArchiveHandler", "Failed to create archive")
	}
	return sendAttachment(ctx, download)
}

func sendAttachment(ctx echo.Context, download *core.Download) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", download.Name))
	return ctx.Blob(http.StatusOK, download.ContentType, download.Data)
}

func (service *APIService) convertImageHandler(ctx echo.Context) error {
	var request convertRequest
	if err := ctx.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	if err := ctx.Validate(&request); err != nil {
		return err
	}
	image, err := service.coreService.ConvertImage(ctx.Request().Context(), ownerOf(ctx), ctx.Param("id"), request.TargetFormat, request.Quality)
	if err != nil {
		return toHTTPError(err, "convertImageHandler", "Conversion failed")
	}
	return ctx.JSON(http.StatusAccepted, image)
}

func (service *APIService) retryImageHandler(ctx echo.Context) error {
	image, err := service.coreService.RetryImage(ctx.Request().Context(), ownerOf(ctx), ctx.Param("id"))
	if err != nil {
		return toHTTPError(err, "retryImageHandler", "Processing failed")
	}
	return ctx.JSON(http.StatusAccepted, image)
}

func (service *APIService) reprocessImagesHandler(ctx echo.Context) error {
	opts := core.DefaultProcessOptions()
	if err := ctx.Bind(&opts); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	images, err := service.coreService.ReprocessImages(ctx.Request().Context(), ownerOf(ctx), opts)
	if err != nil {
		return toHTTPError(err, "reprocessImagesHandler", "Processing failed")
	}
	return ctx.JSON(http.StatusAccepted, images)
}

// moveImageHandler places an image after afterId, or shifts it one step
// with ?dir=up|down
func (service *APIService) moveImageHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	reqCtx := ctx.Request().Context()

	var (
		images []*core.ProcessedImage
		err    error
	)
	switch dir := strings.ToLower(strings.TrimSpace(ctx.QueryParam("dir"))); dir {
	case "up", "down":
		images, err = service.coreService.ShiftImage(reqCtx, ownerOf(ctx), id, dir == "up")
	case "":
		var request moveRequest
		if bindErr := ctx.Bind(&request); bindErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
		}
		images, err = service.coreService.MoveImage(reqCtx, ownerOf(ctx), id, request.AfterID)
	default:
		slog.Warn("moveImageHandler: invalid params", "id", id, "dir", dir)
		return echo.NewHTTPError(http.StatusBadRequest, "dir must be up or down")
	}
	if err != nil {
		return toHTTPError(err, "moveImageHandler", "Failed to update order")
	}
	return ctx.JSON(http.StatusOK, images)
}
