package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/planetaketo/storefront/internal/pkg/fulfillment"
	"github.com/planetaketo/storefront/internal/pkg/metrics/counter"
)

const downloadTimeout = 30 * time.Second

// DownloadController validates and redeems magic-link download tokens.
type DownloadController struct {
	svc *fulfillment.Service
}

// NewDownloadController wires the download endpoints.
func NewDownloadController(svc *fulfillment.Service) *DownloadController {
	return &DownloadController{svc: svc}
}

// HandleValidateToken reports link validity and the remaining download count
// without consuming a download.
func (ctrl *DownloadController) HandleValidateToken(c *fiber.Ctx) error {
	token := c.Params("token")

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()

	link, err := ctrl.svc.ValidateToken(ctx, token)
	if err != nil {
		status, message := downloadErrorResponse(err)
		if status == fiber.StatusInternalServerError {
			log.Errorf("token validation failed: %v", err)
			message = "Error al validar el enlace"
		}
		return c.Status(status).JSON(fiber.Map{"valid": false, "error": message})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"valid":               true,
		"remaining_downloads": link.Remaining(),
		"download_url":        "/api/download/" + token,
	})
}

// HandleDownload redeems a token and streams the product file as an
// attachment. Limit and validity failures answer with a structured JSON
// reason, never a stack trace.
func (ctrl *DownloadController) HandleDownload(c *fiber.Ctx) error {
	token := c.Params("token")

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()

	file, err := ctrl.svc.Redeem(ctx, token)
	if err != nil {
		bumpCounter(counter.DownloadsRejected)
		status, message := downloadErrorResponse(err)
		if status == fiber.StatusInternalServerError {
			log.Errorf("download redemption failed: %v", err)
			message = "Error al descargar el archivo"
		}
		return c.Status(status).JSON(fiber.Map{"error": message})
	}

	bumpCounter(counter.DownloadsServed)
	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.FileName))
	return c.Status(fiber.StatusOK).Send(file.Data)
}

// downloadErrorResponse maps redemption errors to HTTP status and a
// user-facing reason, distinguishing "limit reached" from "invalid token".
func downloadErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, fulfillment.ErrLinkNotFound):
		return fiber.StatusNotFound, "Enlace de descarga no encontrado"
	case errors.Is(err, fulfillment.ErrLinkExhausted):
		return fiber.StatusForbidden, "Límite de descargas alcanzado"
	case errors.Is(err, fulfillment.ErrLinkExpired):
		return fiber.StatusForbidden, "Enlace de descarga expirado"
	default:
		return fiber.StatusInternalServerError, ""
	}
}
