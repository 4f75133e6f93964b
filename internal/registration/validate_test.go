package registration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"gainfair/internal/catalog"
)

func TestValidateEachFieldIndependently(t *testing.T) {
	ctx := context.Background()
	base := lan()
	assert.Empty(t, Validate(ctx, base, catalog.CategoryUser))

	cases := []struct {
		name  string
		edit  func(*Form)
		field string
		msg   string
	}{
		{"blank name", func(f *Form) { f.Name = "   " }, "name", MsgNameRequired},
		{"missing email", func(f *Form) { f.Email = "" }, "email", MsgEmailRequired},
		{"email without at", func(f *Form) { f.Email = "lan.example.com" }, "email", MsgEmailInvalid},
		{"email without dot", func(f *Form) { f.Email = "lan@example" }, "email", MsgEmailInvalid},
		{"blank phone", func(f *Form) { f.Phone = " " }, "phone", MsgPhoneRequired},
		{"blank country", func(f *Form) { f.Country = "" }, "country", MsgCountryRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := base
			tc.edit(&f)
			errs := Validate(ctx, f, catalog.CategoryUser)
			assert.Equal(t, FieldErrors{tc.field: tc.msg}, errs)
		})
	}
}

func TestOrganizationRequiredByCategory(t *testing.T) {
	ctx := context.Background()
	f := lan()
	f.Organization = "  "
	assert.Empty(t, Validate(ctx, f, catalog.CategoryUser))
	for _, c := range []catalog.Category{catalog.CategoryAgent, catalog.CategoryExhibitor, catalog.CategorySponsor} {
		assert.Equal(t, FieldErrors{"organization": MsgOrganizationRequired}, Validate(ctx, f, c), c)
	}
	f.Organization = "Green Pass"
	assert.Empty(t, Validate(ctx, f, catalog.CategorySponsor))
}

func TestValidateSelectionChecksCatalog(t *testing.T) {
	ctx := context.Background()
	cat := catalog.Default()
	f := lan()
	f.ProductID = "platinum_plus"
	f.AddOns = []string{"workshop", "yacht"}
	errs := ValidateSelection(ctx, cat, f)
	assert.Equal(t, MsgSelectProduct, errs["registration_product_id"])
	assert.Equal(t, MsgUnknownAddOn, errs["add_ons"])

	f.ProductID = "agent"
	f.AddOns = nil
	errs = ValidateSelection(ctx, cat, f)
	assert.Equal(t, FieldErrors{"organization": MsgOrganizationRequired}, errs)
}

func TestValidateCatalogSelectionIgnoresContactFields(t *testing.T) {
	cat := catalog.Default()
	assert.Empty(t, ValidateCatalogSelection(cat, "exhibitor", []string{"workshop", "vip"}))
	assert.Empty(t, ValidateCatalogSelection(cat, " agent ", nil))

	errs := ValidateCatalogSelection(cat, "", []string{"yacht"})
	assert.Equal(t, FieldErrors{"registration_product_id": MsgSelectProduct, "add_ons": MsgUnknownAddOn}, errs)
}

func TestValidatorRegistersEmailShape(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Var("lan@example.com", "emailshape"))
	assert.Error(t, v.Var("lan@example", "emailshape"))
}
