package services

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"tokoadmin/internal/imagestore"
	"tokoadmin/internal/metrics"
	"tokoadmin/internal/models"
	"tokoadmin/internal/repositories"
)

// Product images are stored in one folder with a fixed thumbnail size.
const (
	ImageFolder = "products"
	ImageWidth  = 300
	ImageHeight = 300
)

// TokenManager issues and checks per-action CSRF tokens.
type TokenManager interface {
	Issue(subject, topic string) (string, error)
	Validate(token, subject, topic string) error
}

// DeleteImageTopic is the CSRF topic guarding deletion of one image.
func DeleteImageTopic(imageID string) string { return "delete" + imageID }

// DeleteProductTopic is the CSRF topic guarding deletion of one product.
func DeleteProductTopic(productID string) string { return "delete-product" + productID }

// Flash is a one-time notification for the next page the user sees.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ProductOutcome tells the HTTP layer what to render. When Redirect is set
// the operation succeeded and the client goes back to the product list.
type ProductOutcome struct {
	Redirect    bool
	Flash       *Flash
	Product     *models.Product
	Form        ProductForm
	Errors      []FieldError
	ImageTokens map[string]string
	DeleteToken string
}

// DeleteSubmission is a delete-product request. Submitted is false for the
// confirmation step.
type DeleteSubmission struct {
	Submitted bool
	Token     string
}

// ProductAdminService implements the product administration workflow.
type ProductAdminService struct {
	repo    repositories.ProductRepository
	images  imagestore.Store
	policy  AuthorizationPolicy
	slugger Slugger
	tokens  TokenManager
	forms   *FormValidator
	metrics *metrics.Metrics
	events  eventSink
	log     *zap.SugaredLogger
}

// ProductAdminDeps groups the collaborators of ProductAdminService.
// Publisher and Metrics are optional.
type ProductAdminDeps struct {
	Repo      repositories.ProductRepository
	Images    imagestore.Store
	Policy    AuthorizationPolicy
	Slugger   Slugger
	Tokens    TokenManager
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Log       *zap.SugaredLogger
}

// NewProductAdminService creates a new ProductAdminService.
func NewProductAdminService(deps ProductAdminDeps) *ProductAdminService {
	return &ProductAdminService{
		repo:    deps.Repo,
		images:  deps.Images,
		policy:  deps.Policy,
		slugger: deps.Slugger,
		tokens:  deps.Tokens,
		forms:   NewFormValidator(),
		metrics: deps.Metrics,
		events:  eventSink{publisher: deps.Publisher, log: deps.Log},
		log:     deps.Log,
	}
}

// List returns every product with its images, newest first.
func (s *ProductAdminService) List(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.GetAll(ctx)
	if err != nil {
		s.metrics.Observe("list", metrics.ResultError)
		return nil, errors.Wrap(err, "list products")
	}
	s.metrics.Observe("list", metrics.ResultSuccess)
	return products, nil
}

// Create adds a product. Only administrators may create products.
func (s *ProductAdminService) Create(ctx context.Context, actor Actor, sub ProductSubmission) (*ProductOutcome, error) {
	if !s.policy.HasRole(actor, models.RoleAdmin) {
		s.metrics.Observe("create", metrics.ResultUnauthorized)
		return nil, errors.Wrapf(ErrUnauthorized, "create product as %q", actor.Username)
	}

	product := &models.Product{OwnerID: actor.ID}
	if !sub.Submitted {
		return &ProductOutcome{Product: product}, nil
	}
	sub.Form = sub.Form.Trimmed()
	if errs := s.validate(sub); len(errs) > 0 {
		s.metrics.Observe("create", metrics.ResultInvalid)
		return &ProductOutcome{Product: product, Form: sub.Form, Errors: errs}, nil
	}

	if err := s.save(ctx, product, sub); err != nil {
		s.metrics.Observe("create", metrics.ResultError)
		return nil, err
	}
	s.metrics.Observe("create", metrics.ResultSuccess)
	s.log.Infow("product created", "product_id", product.ID, "slug", product.Slug, "images", len(product.Images), "actor", actor.ID)
	s.events.emit(CatalogEvent{Type: EventProductCreated, ProductID: product.ID, ActorID: actor.ID})

	return &ProductOutcome{
		Redirect: true,
		Flash:    &Flash{Kind: "success", Message: "Product added successfully"},
		Product:  product,
	}, nil
}

// Edit updates an existing product. The form shows the price in major
// units; that conversion is never written back on its own.
func (s *ProductAdminService) Edit(ctx context.Context, actor Actor, id string, sub ProductSubmission) (*ProductOutcome, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanActOn(actor, ActionEdit, product) {
		s.metrics.Observe("edit", metrics.ResultUnauthorized)
		return nil, errors.Wrapf(ErrUnauthorized, "edit product %s", id)
	}

	if !sub.Submitted {
		tokens, err := s.imageTokens(actor, product)
		if err != nil {
			return nil, err
		}
		return &ProductOutcome{Product: product, Form: FormFromProduct(product), ImageTokens: tokens}, nil
	}
	sub.Form = sub.Form.Trimmed()
	if errs := s.validate(sub); len(errs) > 0 {
		s.metrics.Observe("edit", metrics.ResultInvalid)
		tokens, err := s.imageTokens(actor, product)
		if err != nil {
			return nil, err
		}
		return &ProductOutcome{Product: product, Form: sub.Form, Errors: errs, ImageTokens: tokens}, nil
	}

	if err := s.save(ctx, product, sub); err != nil {
		s.metrics.Observe("edit", metrics.ResultError)
		return nil, err
	}
	s.metrics.Observe("edit", metrics.ResultSuccess)
	s.log.Infow("product updated", "product_id", product.ID, "slug", product.Slug, "images", len(product.Images), "actor", actor.ID)
	s.events.emit(CatalogEvent{Type: EventProductUpdated, ProductID: product.ID, ActorID: actor.ID})

	return &ProductOutcome{
		Redirect: true,
		Flash:    &Flash{Kind: "success", Message: "Product updated successfully"},
		Product:  product,
	}, nil
}

// Delete removes a product, its image records and their stored artifacts.
// An unsubmitted request returns the confirmation step with a CSRF token.
func (s *ProductAdminService) Delete(ctx context.Context, actor Actor, id string, sub DeleteSubmission) (*ProductOutcome, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanActOn(actor, ActionDelete, product) {
		s.metrics.Observe("delete", metrics.ResultUnauthorized)
		return nil, errors.Wrapf(ErrUnauthorized, "delete product %s", id)
	}

	if !sub.Submitted {
		token, err := s.tokens.Issue(actor.ID, DeleteProductTopic(product.ID))
		if err != nil {
			return nil, errors.Wrap(err, "issue delete token")
		}
		return &ProductOutcome{Product: product, DeleteToken: token}, nil
	}
	if err := s.tokens.Validate(sub.Token, actor.ID, DeleteProductTopic(product.ID)); err != nil {
		s.metrics.Observe("delete", metrics.ResultRejected)
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	if err := s.repo.Delete(ctx, product.ID); err != nil {
		s.metrics.Observe("delete", metrics.ResultError)
		return nil, &PersistenceError{Op: "delete product " + product.ID, Err: err}
	}

	refs := make([]string, 0, len(product.Images))
	for _, img := range product.Images {
		refs = append(refs, img.Name)
	}
	orphans := s.discard(ctx, product.ID, refs)
	if len(orphans) > 0 {
		s.log.Warnw("product deleted with orphaned artifacts", "product_id", product.ID, "orphans", orphans)
	}

	s.metrics.Observe("delete", metrics.ResultSuccess)
	s.log.Infow("product deleted", "product_id", product.ID, "actor", actor.ID)
	s.events.emit(CatalogEvent{Type: EventProductDeleted, ProductID: product.ID, ActorID: actor.ID})

	return &ProductOutcome{
		Redirect: true,
		Flash:    &Flash{Kind: "success", Message: "Product deleted successfully"},
		Product:  product,
	}, nil
}

// DeleteImage removes one image. The record is deleted only after the
// stored artifact is gone; an artifact that is already missing counts as
// removed.
func (s *ProductAdminService) DeleteImage(ctx context.Context, actor Actor, imageID, token string) error {
	image, err := s.repo.GetImageByID(ctx, imageID)
	if err != nil {
		return err
	}
	if err := s.tokens.Validate(token, actor.ID, DeleteImageTopic(image.ID)); err != nil {
		s.metrics.Observe("delete_image", metrics.ResultRejected)
		return errors.Wrap(ErrInvalidToken, err.Error())
	}
	product, err := s.repo.GetByID(ctx, image.ProductID)
	if err != nil {
		return err
	}
	if !s.policy.CanActOn(actor, ActionEdit, product) {
		s.metrics.Observe("delete_image", metrics.ResultUnauthorized)
		return errors.Wrapf(ErrUnauthorized, "delete image %s", imageID)
	}

	var artifactErr error
	err = s.repo.DeleteImage(ctx, image.ID, func() error {
		err := s.images.Delete(ctx, image.Name, ImageFolder, ImageWidth, ImageHeight)
		if err != nil && !errors.Is(err, imagestore.ErrArtifactNotFound) {
			artifactErr = err
			return err
		}
		return nil
	})
	switch {
	case artifactErr != nil:
		s.metrics.Observe("delete_image", metrics.ResultRejected)
		s.log.Warnw("image artifact deletion failed", "image_id", image.ID, "reference", image.Name, "error", artifactErr)
		return errors.Wrap(ErrArtifactDeletionFailed, artifactErr.Error())
	case err != nil:
		s.metrics.Observe("delete_image", metrics.ResultError)
		return &PersistenceError{Op: "delete image " + image.ID, Err: err}
	}

	s.metrics.Observe("delete_image", metrics.ResultSuccess)
	s.log.Infow("image deleted", "image_id", image.ID, "product_id", image.ProductID, "actor", actor.ID)
	s.events.emit(CatalogEvent{
		Type:      EventImageDeleted,
		ProductID: image.ProductID,
		ImageID:   image.ID,
		Reference: image.Name,
		ActorID:   actor.ID,
	})
	return nil
}

// validate runs the form rules and rejects names that leave nothing to slug.
func (s *ProductAdminService) validate(sub ProductSubmission) []FieldError {
	errs := s.forms.Validate(sub)
	for _, e := range errs {
		if e.Field == "name" {
			return errs
		}
	}
	if s.slugger.Slug(sub.Form.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "Must contain at least one letter or digit"})
	}
	return errs
}

// save stores the uploads, derives slug and price and persists the product
// with its new images. On failure every artifact stored here is removed again.
func (s *ProductAdminService) save(ctx context.Context, product *models.Product, sub ProductSubmission) error {
	price, err := models.ParsePrice(strings.TrimSpace(sub.Form.Price))
	if err != nil {
		return errors.Wrap(err, "parse validated price")
	}
	stock := 0
	if raw := strings.TrimSpace(sub.Form.Stock); raw != "" {
		if stock, err = strconv.Atoi(raw); err != nil {
			return errors.Wrap(err, "parse validated stock")
		}
	}

	stored := make([]string, 0, len(sub.Images))
	for _, up := range sub.Images {
		ref, err := s.images.Add(ctx, bytes.NewReader(up.Data), ImageFolder, ImageWidth, ImageHeight)
		if err != nil {
			orphans := s.discard(ctx, product.ID, stored)
			return &PersistenceError{Op: "store image " + up.Filename, Err: err, Orphans: orphans}
		}
		stored = append(stored, ref)
		product.Images = append(product.Images, models.Image{Name: ref, Position: len(product.Images)})
	}

	product.Name = strings.TrimSpace(sub.Form.Name)
	product.Description = strings.TrimSpace(sub.Form.Description)
	product.Stock = stock
	product.Slug = s.slugger.Slug(product.Name)
	product.PriceCents = models.PriceToCents(price)

	if err := s.repo.Save(ctx, product); err != nil {
		orphans := s.discard(ctx, product.ID, stored)
		return &PersistenceError{Op: "save product", Err: err, Orphans: orphans}
	}
	return nil
}

// discard deletes stored artifacts and returns the references it could not
// remove. Each of those is announced for the artifact janitor.
func (s *ProductAdminService) discard(ctx context.Context, productID string, refs []string) []string {
	var orphans []string
	for _, ref := range refs {
		err := s.images.Delete(ctx, ref, ImageFolder, ImageWidth, ImageHeight)
		if err == nil || errors.Is(err, imagestore.ErrArtifactNotFound) {
			continue
		}
		s.log.Warnw("could not remove image artifact", "reference", ref, "error", err)
		orphans = append(orphans, ref)
		s.events.emit(CatalogEvent{
			Type:      EventArtifactOrphaned,
			ProductID: productID,
			Reference: ref,
			Folder:    ImageFolder,
			Width:     ImageWidth,
			Height:    ImageHeight,
		})
	}
	s.metrics.Orphaned(len(orphans))
	return orphans
}

func (s *ProductAdminService) imageTokens(actor Actor, product *models.Product) (map[string]string, error) {
	tokens := make(map[string]string, len(product.Images))
	for _, img := range product.Images {
		token, err := s.tokens.Issue(actor.ID, DeleteImageTopic(img.ID))
		if err != nil {
			return nil, errors.Wrapf(err, "issue token for image %s", img.ID)
		}
		tokens[img.ID] = token
	}
	return tokens, nil
}
