package handlers

import (
	"encoding/json"
	"io"

	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"

	"tokoadmin/internal/middleware"
	"tokoadmin/internal/services"
)

const (
	// ProductListPath is where successful mutations redirect to.
	ProductListPath = "/admin/products/"

	flashesKey     = "flashes"
	maxUploadBytes = 8 * 1024 * 1024
)

// ProductAdminHandler serves the product administration pages as JSON documents.
type ProductAdminHandler struct {
	service  *services.ProductAdminService
	sessions *session.Store
	log      *zap.SugaredLogger
}

// NewProductAdminHandler creates a new ProductAdminHandler.
func NewProductAdminHandler(service *services.ProductAdminService, sessions *session.Store, log *zap.SugaredLogger) *ProductAdminHandler {
	return &ProductAdminHandler{
		service:  service,
		sessions: sessions,
		log:      log,
	}
}

// RegisterRoutes registers the product routes below router.
func (h *ProductAdminHandler) RegisterRoutes(router fiber.Router) {
	products := router.Group("/products")
	products.Get("/", h.HandleList)
	products.Get("/add", h.HandleAdd)
	products.Post("/add", h.HandleAdd)
	products.Get("/edit/:id", h.HandleEdit)
	products.Post("/edit/:id", h.HandleEdit)
	products.Get("/delete/:id", h.HandleDelete)
	products.Post("/delete/:id", h.HandleDelete)
	products.Delete("/delete/image/:id", h.HandleDeleteImage)
}

// HandleList returns all products and consumes pending flash messages.
func (h *ProductAdminHandler) HandleList(c *fiber.Ctx) error {
	products, err := h.service.List(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"products": products,
		"flashes":  h.takeFlashes(c),
	})
}

// HandleAdd shows the creation form (GET) or creates a product (POST).
func (h *ProductAdminHandler) HandleAdd(c *fiber.Ctx) error {
	sub, err := bindSubmission(c)
	if err != nil {
		return badRequest(c, err)
	}
	out, err := h.service.Create(c.UserContext(), middleware.ActorFrom(c), sub)
	if err != nil {
		return h.respondError(c, err)
	}
	return h.respondOutcome(c, out)
}

// HandleEdit shows the edit form (GET) or updates the product (POST).
func (h *ProductAdminHandler) HandleEdit(c *fiber.Ctx) error {
	sub, err := bindSubmission(c)
	if err != nil {
		return badRequest(c, err)
	}
	out, err := h.service.Edit(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), sub)
	if err != nil {
		return h.respondError(c, err)
	}
	return h.respondOutcome(c, out)
}

// HandleDelete shows the confirmation (GET) or deletes the product (POST
// with the confirmation's _token).
func (h *ProductAdminHandler) HandleDelete(c *fiber.Ctx) error {
	sub := services.DeleteSubmission{
		Submitted: c.Method() == fiber.MethodPost,
		Token:     c.FormValue("_token"),
	}
	out, err := h.service.Delete(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), sub)
	if err != nil {
		return h.respondError(c, err)
	}
	if out.Redirect {
		return h.redirect(c, out.Flash)
	}
	return c.JSON(fiber.Map{
		"product":      out.Product,
		"delete_token": out.DeleteToken,
	})
}

type deleteImageRequest struct {
	Token string `json:"_token"`
}

// HandleDeleteImage deletes one image. The body must carry the image's _token.
func (h *ProductAdminHandler) HandleDeleteImage(c *fiber.Ctx) error {
	var req deleteImageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	err := h.service.DeleteImage(c.UserContext(), middleware.ActorFrom(c), c.Params("id"), req.Token)
	if err != nil {
		status, message := classify(err)
		if status == fiber.StatusInternalServerError {
			h.log.Errorw("delete image", "image_id", c.Params("id"), "error", err)
		}
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *ProductAdminHandler) respondOutcome(c *fiber.Ctx, out *services.ProductOutcome) error {
	if out.Redirect {
		return h.redirect(c, out.Flash)
	}
	status := fiber.StatusOK
	if len(out.Errors) > 0 {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(fiber.Map{
		"product":      out.Product,
		"form":         out.Form,
		"errors":       out.Errors,
		"image_tokens": out.ImageTokens,
	})
}

func (h *ProductAdminHandler) respondError(c *fiber.Ctx, err error) error {
	status, message := classify(err)
	if status == fiber.StatusInternalServerError {
		h.log.Errorw("product admin request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(status).JSON(fiber.Map{"message": message, "error": err.Error()})
	}
	return c.Status(status).JSON(fiber.Map{"message": message})
}

func (h *ProductAdminHandler) redirect(c *fiber.Ctx, flash *services.Flash) error {
	if flash != nil {
		if err := h.addFlash(c, *flash); err != nil {
			h.log.Warnw("could not store flash message", "error", err)
		}
	}
	return c.Redirect(ProductListPath, fiber.StatusSeeOther)
}

func (h *ProductAdminHandler) addFlash(c *fiber.Ctx, flash services.Flash) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return errors.Wrap(err, "load session")
	}
	var flashes []services.Flash
	if raw, ok := sess.Get(flashesKey).(string); ok {
		_ = json.Unmarshal([]byte(raw), &flashes)
	}
	flashes = append(flashes, flash)
	raw, err := json.Marshal(flashes)
	if err != nil {
		return errors.Wrap(err, "encode flashes")
	}
	sess.Set(flashesKey, string(raw))
	return sess.Save()
}

func (h *ProductAdminHandler) takeFlashes(c *fiber.Ctx) []services.Flash {
	flashes := []services.Flash{}
	sess, err := h.sessions.Get(c)
	if err != nil {
		h.log.Warnw("could not load session", "error", err)
		return flashes
	}
	raw, ok := sess.Get(flashesKey).(string)
	if !ok {
		return flashes
	}
	if err := json.Unmarshal([]byte(raw), &flashes); err != nil {
		h.log.Warnw("dropping unreadable flashes", "error", err)
	}
	sess.Delete(flashesKey)
	if err := sess.Save(); err != nil {
		h.log.Warnw("could not save session", "error", err)
	}
	return flashes
}

// bindSubmission maps the request onto a submission. Only POST submits.
func bindSubmission(c *fiber.Ctx) (services.ProductSubmission, error) {
	sub := services.ProductSubmission{Submitted: c.Method() == fiber.MethodPost}
	if !sub.Submitted {
		return sub, nil
	}
	if err := c.BodyParser(&sub.Form); err != nil {
		return sub, errors.Wrap(err, "parse form")
	}

	form, err := c.MultipartForm()
	if err != nil {
		// url-encoded submissions carry no files
		return sub, nil
	}
	for _, fh := range form.File["images"] {
		if fh.Size > maxUploadBytes {
			return sub, errors.Errorf("%s exceeds %d bytes", fh.Filename, maxUploadBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return sub, errors.Wrapf(err, "open %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return sub, errors.Wrapf(err, "read %s", fh.Filename)
		}
		sub.Images = append(sub.Images, services.Upload{Filename: fh.Filename, Data: data})
	}
	return sub, nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}
