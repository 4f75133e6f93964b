package registration

import (
	"context"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator"

	"gainfair/internal/catalog"
)

// Form is what a visitor submits.
type Form struct {
	Name         string   `json:"name" validate:"required"`
	Email        string   `json:"email" validate:"required,emailshape"`
	Phone        string   `json:"phone" validate:"required"`
	Country      string   `json:"country" validate:"required"`
	Organization string   `json:"organization"`
	ProductID    string   `json:"registration_product_id"`
	AddOns       []string `json:"add_ons"`
}

// Normalize trims every text field and drops empty add-on ids.
func (f Form) Normalize() Form {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Country = strings.TrimSpace(f.Country)
	f.Organization = strings.TrimSpace(f.Organization)
	f.ProductID = strings.TrimSpace(f.ProductID)
	addOns := make([]string, 0, len(f.AddOns))
	for _, id := range f.AddOns {
		if id = strings.TrimSpace(id); id != "" {
			addOns = append(addOns, id)
		}
	}
	f.AddOns = addOns
	return f
}

// FieldErrors maps a form field (its JSON name) to one message.
type FieldErrors map[string]string

const (
	MsgNameRequired         = "Name is required"
	MsgEmailRequired        = "Email is required"
	MsgEmailInvalid         = "Email is invalid"
	MsgPhoneRequired        = "Phone is required"
	MsgCountryRequired      = "Country is required"
	MsgOrganizationRequired = "Organization is required for this registration type"
	MsgSelectProduct        = "Please select a registration type"
	MsgUnknownAddOn         = "Unknown add-on"
)

var emailShape = regexp.MustCompile(`^\S+@\S+\.\S+$`)

type categoryKey struct{}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("emailshape", func(fl validator.FieldLevel) bool {
		return emailShape.MatchString(fl.Field().String())
	}); err != nil {
		panic("registration: register emailshape: " + err.Error())
	}
	v.RegisterStructValidationCtx(organizationRule, Form{})
	return v
}

func organizationRule(ctx context.Context, sl validator.StructLevel) {
	f := sl.Current().Interface().(Form)
	category, _ := ctx.Value(categoryKey{}).(catalog.Category)
	if category.RequiresOrganization() && strings.TrimSpace(f.Organization) == "" {
		sl.ReportError(f.Organization, "organization", "Organization", "orgrequired", string(category))
	}
}

var messages = map[string]string{
	"name/required":            MsgNameRequired,
	"email/required":           MsgEmailRequired,
	"email/emailshape":         MsgEmailInvalid,
	"phone/required":           MsgPhoneRequired,
	"country/required":         MsgCountryRequired,
	"organization/orgrequired": MsgOrganizationRequired,
}

// Validate checks the contact fields of f for a product of the given
// category. It never touches the network. An empty result means valid.
func Validate(ctx context.Context, f Form, category catalog.Category) FieldErrors {
	f = f.Normalize()
	errs := FieldErrors{}
	err := validate.StructCtx(context.WithValue(ctx, categoryKey{}, category), f)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			field := fe.Field()
			if _, seen := errs[field]; seen {
				continue
			}
			if msg, ok := messages[field+"/"+fe.Tag()]; ok {
				errs[field] = msg
			}
		}
	}
	return errs
}

// ValidateSelection runs Validate and also checks the product and add-on
// ids against the catalog.
func ValidateSelection(ctx context.Context, cat *catalog.Catalog, f Form) FieldErrors {
	f = f.Normalize()
	var category catalog.Category
	if p, ok := cat.Product(f.ProductID); ok {
		category = p.Category
	}
	errs := Validate(ctx, f, category)
	for field, msg := range ValidateCatalogSelection(cat, f.ProductID, f.AddOns) {
		errs[field] = msg
	}
	return errs
}

// ValidateCatalogSelection checks only the product and add-on ids. It is
// what a price quote needs before any contact field is filled in.
func ValidateCatalogSelection(cat *catalog.Catalog, productID string, addOns []string) FieldErrors {
	errs := FieldErrors{}
	if _, ok := cat.Product(strings.TrimSpace(productID)); !ok {
		errs["registration_product_id"] = MsgSelectProduct
	}
	for _, id := range addOns {
		if _, ok := cat.AddOn(strings.TrimSpace(id)); !ok {
			errs["add_ons"] = MsgUnknownAddOn
			break
		}
	}
	return errs
}
