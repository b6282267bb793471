package services

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"tokoadmin/internal/models"
)

// ProductForm carries the editable product fields as submitted.
// Price is a major-unit amount such as "19.99".
type ProductForm struct {
	Name        string `json:"name" form:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" form:"description" validate:"max=2000"`
	Price       string `json:"price" form:"price" validate:"required,price"`
	Stock       string `json:"stock" form:"stock" validate:"omitempty,stock"`
}

// Upload is one submitted image file.
type Upload struct {
	Filename string
	Data     []byte
}

// ProductSubmission is a bound create or edit request. Submitted is false
// when the client only asked for the form.
type ProductSubmission struct {
	Submitted bool
	Form      ProductForm
	Images    []Upload
}

// FieldError is a validation message for one form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Trimmed returns the form with surrounding whitespace removed from every field.
func (f ProductForm) Trimmed() ProductForm {
	return ProductForm{
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
		Price:       strings.TrimSpace(f.Price),
		Stock:       strings.TrimSpace(f.Stock),
	}
}

// FormFromProduct pre-fills a form for editing. The price is shown in major
// units; the product itself is not modified.
func FormFromProduct(p *models.Product) ProductForm {
	return ProductForm{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price().StringFixed(2),
		Stock:       strconv.Itoa(p.Stock),
	}
}

// FormValidator checks product submissions.
type FormValidator struct {
	validate *validator.Validate
}

// NewFormValidator registers the price and stock rules.
func NewFormValidator() *FormValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		_, err := models.ParsePrice(strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
	_ = v.RegisterValidation("stock", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
		return err == nil && n >= 0
	})
	return &FormValidator{validate: v}
}

// Validate returns every field error of the submission; nil means valid.
// Fields are checked as they will be stored, without surrounding whitespace.
func (f *FormValidator) Validate(sub ProductSubmission) []FieldError {
	var errs []FieldError
	form := sub.Form.Trimmed()
	if err := f.validate.Struct(form); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range verrs {
				errs = append(errs, FieldError{Field: e.Field(), Message: fieldMessage(e)})
			}
		} else {
			errs = append(errs, FieldError{Field: "form", Message: err.Error()})
		}
	}
	for _, up := range sub.Images {
		mime := mimetype.Detect(up.Data).String()
		if !allowedImageTypes[mime] {
			errs = append(errs, FieldError{
				Field:   "images",
				Message: up.Filename + ": unsupported file type " + mime,
			})
		}
	}
	return errs
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Must be at least " + e.Param() + " characters"
	case "max":
		return "Must be at most " + e.Param() + " characters"
	case "price":
		return "Enter a positive amount with at most two decimals"
	case "stock":
		return "Enter a whole number of zero or more"
	default:
		return "Field '" + e.Field() + "' failed on the '" + e.Tag() + "' tag"
	}
}
