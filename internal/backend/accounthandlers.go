package backend

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/imagepress/internal/core"
)

func (service *APIService) getUserHandler(ctx echo.Context) error {
	user, err := service.coreService.GetUser(ctx.Request().Context(), ownerOf(ctx).UserID)
	if err != nil {
		return toHTTPError(err, "getUserHandler", "Failed to fetch user")
	}
	return ctx.JSON(http.StatusOK, user)
}

func (service *APIService) saveHistoryHandler(ctx echo.Context) error {
	var input core.HistoryInput
	if err := ctx.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	if err := ctx.Validate(&input); err != nil {
		return err
	}
	entry, err := service.coreService.SaveCompressionHistory(ctx.Request().Context(), ownerOf(ctx).UserID, input)
	if err != nil {
		return toHTTPError(err, "saveHistoryHandler", "Failed to save compression history")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (service *APIService) getHistoryHandler(ctx echo.Context) error {
	limit := 0
	if raw := ctx.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive number")
		}
		limit = parsed
	}
	history, err := service.coreService.GetCompressionHistory(ctx.Request().Context(), ownerOf(ctx).UserID, limit)
	if err != nil {
		return toHTTPError(err, "getHistoryHandler", "Failed to fetch compression history")
	}
	return ctx.JSON(http.StatusOK, history)
}

func (service *APIService) createPresetHandler(ctx echo.Context) error {
	var input core.PresetInput
	if err := ctx.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	if err := ctx.Validate(&input); err != nil {
		return err
	}
	preset, err := service.coreService.CreatePreset(ctx.Request().Context(), ownerOf(ctx).UserID, input)
	if err != nil {
		return toHTTPError(err, "createPresetHandler", "Failed to create preset")
	}
	return ctx.JSON(http.StatusOK, preset)
}

func (service *APIService) getPresetsHandler(ctx echo.Context) error {
	presets, err := service.coreService.GetPresets(ctx.Request().Context(), ownerOf(ctx).UserID)
	if err != nil {
		return toHTTPError(err, "getPresetsHandler", "Failed to fetch presets")
	}
	return ctx.JSON(http.StatusOK, presets)
}

func (service *APIService) getPresetHandler(ctx echo.Context) error {
	preset, err := service.coreService.GetPreset(ctx.Request().Context(), ownerOf(ctx).UserID, ctx.Param("id"))
	if err != nil {
		return toHTTPError(err, "getPresetHandler", "Failed to fetch preset")
	}
	return ctx.JSON(http.StatusOK, preset)
}

func (service *APIService) updatePresetHandler(ctx echo.Context) error {
	var patch core.PresetPatch
	if err := ctx.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	if err := ctx.Validate(&patch); err != nil {
		return err
	}
	preset, err := service.coreService.UpdatePreset(ctx.Request().Context(), ownerOf(ctx).UserID, ctx.Param("id"), patch)
	if err != nil {
		return toHTTPError(err, "updatePresetHandler", "Failed to update preset")
	}
	return ctx.JSON(http.StatusOK, preset)
}

func (service *APIService) deletePresetHandler(ctx echo.Context) error {
	if err := service.coreService.DeletePreset(ctx.Request().Context(), ownerOf(ctx).UserID, ctx.Param("id")); err != nil {
		return toHTTPError(err, "deletePresetHandler", "Failed to delete preset")
	}
	return ctx.JSON(http.StatusOK, map[string]bool{"success": true})
}
