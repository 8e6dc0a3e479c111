package catalog

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle flag shared by configuration records.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var statusRule = validation.In(StatusActive, StatusInactive)

// Category groups products.
type Category struct {
	ID        string    `json:"id,omitempty"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parentId,omitempty"`
	Status    Status    `json:"status,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func (c Category) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Code, validation.Required, validation.Length(1, 50)),
		validation.Field(&c.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Status, statusRule),
	)
}

// Department is an organisational unit inside a property.
type Department struct {
	ID        string    `json:"id,omitempty"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Manager   string    `json:"manager,omitempty"`
	Status    Status    `json:"status,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func (d Department) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Code, validation.Required, validation.Length(1, 50)),
		validation.Field(&d.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&d.Status, statusRule),
	)
}

// Unit is a unit of measure. Rate converts one of this unit into its base unit.
type Unit struct {
	ID     string          `json:"id,omitempty"`
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Base   string          `json:"base,omitempty"`
	Rate   decimal.Decimal `json:"rate"`
	Status Status          `json:"status,omitempty"`
}

func (u Unit) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Code, validation.Required, validation.Length(1, 20)),
		validation.Field(&u.Name, validation.Required, validation.Length(1, 50)),
		validation.Field(&u.Rate, validation.By(positive)),
		validation.Field(&u.Status, statusRule),
	)
}

// TaxProfile is a named tax rate, expressed as a percentage.
type TaxProfile struct {
	ID        string          `json:"id,omitempty"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	Inclusive bool            `json:"inclusive"`
	Status    Status          `json:"status,omitempty"`
}

func (t TaxProfile) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Code, validation.Required, validation.Length(1, 20)),
		validation.Field(&t.Name, validation.Required),
		validation.Field(&t.Rate, validation.By(percentage)),
		validation.Field(&t.Status, statusRule),
	)
}

// Product is a stocked item.
type Product struct {
	ID            string          `json:"id,omitempty"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	CategoryID    string          `json:"categoryId,omitempty"`
	UnitID        string          `json:"unitId"`
	TaxProfileID  string          `json:"taxProfileId,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	MinStock      decimal.Decimal `json:"minStock"`
	Status        Status          `json:"status,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt,omitempty"`
}

func (p Product) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Code, validation.Required, validation.Length(1, 50)),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.UnitID, validation.Required),
		validation.Field(&p.PurchasePrice, validation.By(nonNegative)),
		validation.Field(&p.MinStock, validation.By(nonNegative)),
		validation.Field(&p.Status, statusRule),
	)
}

// Role is a named permission set.
type Role struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (r Role) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Permissions, validation.Each(validation.Required)),
	)
}

// Vendor supplies products.
type Vendor struct {
	ID        string `json:"id,omitempty"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	TaxNumber string `json:"taxNumber,omitempty"`
	Status    Status `json:"status,omitempty"`
}

func (v Vendor) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Code, validation.Required, validation.Length(1, 50)),
		validation.Field(&v.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&v.Status, statusRule),
	)
}

// PriceList holds the agreed vendor price for a product.
type PriceList struct {
	ID        string          `json:"id,omitempty"`
	VendorID  string          `json:"vendorId"`
	ProductID string          `json:"productId"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	ValidFrom time.Time       `json:"validFrom"`
	ValidTo   *time.Time      `json:"validTo,omitempty"`
}

func (p PriceList) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.VendorID, validation.Required),
		validation.Field(&p.ProductID, validation.Required),
		validation.Field(&p.Price, validation.By(nonNegative)),
		validation.Field(&p.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&p.ValidTo, validation.By(func(value any) error {
			to, _ := value.(*time.Time)
			if to != nil && to.Before(p.ValidFrom) {
				return validation.NewError("validation_valid_to", "must not be before validFrom")
			}
			return nil
		})),
	)
}

// Active reports whether the price applies at t.
func (p PriceList) Active(t time.Time) bool {
	if t.Before(p.ValidFrom) {
		return false
	}
	return p.ValidTo == nil || !t.After(*p.ValidTo)
}

// Location is a storage location.
type Location struct {
	ID         string `json:"id,omitempty"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Department string `json:"departmentId,omitempty"`
	Status     Status `json:"status,omitempty"`
}

func (l Location) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Code, validation.Required, validation.Length(1, 50)),
		validation.Field(&l.Name, validation.Required),
		validation.Field(&l.Status, statusRule),
	)
}

// BusinessUnit is a tenant scope. It lives in the platform namespace.
type BusinessUnit struct {
	ID       string `json:"id,omitempty"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone,omitempty"`
}

func (b BusinessUnit) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Code, validation.Required, validation.Length(1, 50)),
		validation.Field(&b.Name, validation.Required),
		validation.Field(&b.Currency, validation.Required, validation.Length(3, 3)),
	)
}

func positive(value any) error {
	d, _ := value.(decimal.Decimal)
	if !d.IsPositive() {
		return validation.NewError("validation_positive", "must be greater than 0")
	}
	return nil
}

func nonNegative(value any) error {
	d, _ := value.(decimal.Decimal)
	if d.IsNegative() {
		return validation.NewError("validation_non_negative", "must not be negative")
	}
	return nil
}

func percentage(value any) error {
	d, _ := value.(decimal.Decimal)
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return validation.NewError("validation_percentage", "must be between 0 and 100")
	}
	return nil
}
