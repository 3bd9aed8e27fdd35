package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jo-hoe/imagepress/internal/backend/upload"
	"github.com/jo-hoe/imagepress/internal/backend/worker"
	"github.com/jo-hoe/imagepress/internal/common"
	"github.com/jo-hoe/imagepress/internal/core"
)

const (
	HeaderUserID              = "X-User-Id"
	HeaderUserEmail           = "X-User-Email"
	HeaderUserFirstName       = "X-User-First-Name"
	HeaderUserLastName        = "X-User-Last-Name"
	HeaderUserProfileImageURL = "X-User-Profile-Image-Url"
	HeaderSessionID           = "X-Session-Id"
	SessionCookieName         = "imagepress_session"

	ownerContextKey = "owner"
	sessionMaxAge   = 30 * 24 * time.Hour
	// multipartOverhead is allowed on top of the file payloads of an upload
	multipartOverhead = 1024 * 1024
)

type APIService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
		config:      config,
	}
}

func (service *APIService) SetRoutes(e *echo.Echo) {
	if e.Validator == nil {
		e.Validator = &common.GenericEchoValidator{}
	}

	e.GET("/probe", service.probeHandler)
	e.GET("/metrics", echo.WrapHandler(service.coreService.Metrics().Handler()))

	api := e.Group("/api", service.identityMiddleware)

	api.GET("/auth/user", service.getUserHandler, service.requireUser)
	api.POST("/compression-history", service.saveHistoryHandler, service.requireUser)
	api.GET("/compression-history", service.getHistoryHandler, service.requireUser)
	api.POST("/presets", service.createPresetHandler, service.requireUser)
	api.GET("/presets", service.getPresetsHandler, service.requireUser)
	api.GET("/presets/:id", service.getPresetHandler, service.requireUser)
	api.PATCH("/presets/:id", service.updatePresetHandler, service.requireUser)
	api.DELETE("/presets/:id", service.deletePresetHandler, service.requireUser)

	uploadLimit := int64(service.config.Upload.MaxFiles)*service.config.Upload.MaxFileSizeBytes + multipartOverhead
	api.POST("/images", service.uploadImagesHandler, middleware.BodyLimit(fmt.Sprintf("%dK", uploadLimit/1024)))
	api.GET("/images", service.listImagesHandler)
	api.GET("/images/archive", service.downloadArchiveHandler)
	api.POST("/images/reprocess", service.reprocessImagesHandler)
	api.GET("/images/:id", service.getImageHandler)
	api.DELETE("/images/:id", service.deleteImageHandler)
	api.GET("/images/:id/preview", service.previewHandler)
	api.GET("/images/:id/download", service.downloadImageHandler)
	api.POST("/images/:id/convert", service.convertImageHandler)
	api.POST("/images/:id/retry", service.retryImageHandler)
	api.POST("/images/:id/move", service.moveImageHandler)
}

func (service *APIService) probeHandler(ctx echo.Context) error {
	if !service.coreService.Ping(ctx.Request().Context()) {
		return ctx.String(http.StatusServiceUnavailable, "database unavailable")
	}
	return ctx.String(http.StatusOK, "API Service is running")
}

// identityMiddleware resolves the workspace owner. A forwarded user id wins
// and refreshes the stored profile; otherwise a session id is taken from the
// header or cookie, and a new session cookie is issued when neither is set.
func (service *APIService) identityMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		request := ctx.Request()
		owner := core.Owner{UserID: request.Header.Get(HeaderUserID)}

		if owner.UserID != "" {
			_, err := service.coreService.EnsureUser(request.Context(), core.UserProfile{
				ID:              owner.UserID,
				Email:           request.Header.Get(HeaderUserEmail),
				FirstName:       request.Header.Get(HeaderUserFirstName),
				LastName:        request.Header.Get(HeaderUserLastName),
				ProfileImageURL: request.Header.Get(HeaderUserProfileImageURL),
			})
			if err != nil {
				slog.Error("identityMiddleware: failed to store user", "user_id", owner.UserID, "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch user")
			}
		}

		owner.SessionID = request.Header.Get(HeaderSessionID)
		if owner.SessionID == "" {
			if cookie, err := ctx.Cookie(SessionCookieName); err == nil {
				owner.SessionID = cookie.Value
			}
		}
		if owner.UserID == "" && owner.SessionID == "" {
			owner.SessionID = uuid.NewString()
			ctx.SetCookie(&http.Cookie{
				Name:     SessionCookieName,
				Value:    owner.SessionID,
				Path:     "/",
				MaxAge:   int(sessionMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx.Set(ownerContextKey, owner)
		return next(ctx)
	}
}

// requireUser rejects requests without a forwarded user id
func (service *APIService) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if ownerOf(ctx).UserID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		return next(ctx)
	}
}

func ownerOf(ctx echo.Context) core.Owner {
	owner, _ := ctx.Get(ownerContextKey).(core.Owner)
	return owner
}

// toHTTPError maps core errors onto status codes. Unknown errors are logged
// and answered with fallback.
func toHTTPError(err error, handler, fallback string) error {
	var validationErr *upload.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, core.ErrInvalidOptions):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidOwner):
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, core.ErrImageNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Image not found")
	case errors.Is(err, core.ErrPresetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Preset not found")
	case errors.Is(err, core.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, core.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "Image is still being processed")
	case errors.Is(err, core.ErrNoImagesReady):
		return echo.NewHTTPError(http.StatusConflict, "No images ready")
	case errors.Is(err, worker.ErrQueueFull):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Processing queue is full, please retry")
	}
	slog.Error(handler+": "+fallback, "status", http.StatusInternalServerError, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, fallback)
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
