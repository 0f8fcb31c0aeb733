package httpapi

import (
	"strings"

	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
)

type CreateRequestBody struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Title       string `json:"title"`
	Details     string `json:"details"`
	Comment     string `json:"comment"`
	PriceMode   string `json:"price_mode"`
	ClientPrice *int64 `json:"client_price"`
}

func (b *CreateRequestBody) input() (lifecycle.CreateInput, string) {
	mode := lifecycle.PriceMode(strings.ToUpper(strings.TrimSpace(b.PriceMode)))
	switch mode {
	case lifecycle.PriceFixed, lifecycle.PriceBid:
	default:
		return lifecycle.CreateInput{}, "price_mode must be FIXED or BID"
	}
	return lifecycle.CreateInput{
		Origin:      b.Origin,
		Destination: b.Destination,
		Title:       b.Title,
		Details:     b.Details,
		Comment:     b.Comment,
		PriceMode:   mode,
		ClientPrice: b.ClientPrice,
	}, ""
}

type BidBody struct {
	Price   int64  `json:"price"`
	Comment string `json:"comment"`
}

func (b *BidBody) validate() string {
	if b.Price <= 0 {
		return "price must be positive"
	}
	return ""
}

type StatusBody struct {
	Status string `json:"status"`
}

type ProfileBody struct {
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"license_number"`
	Notes         string `json:"notes"`
}

func (b *ProfileBody) input() eligibility.ProfileInput {
	return eligibility.ProfileInput{
		FullName:      b.FullName,
		Phone:         b.Phone,
		LicenseNumber: b.LicenseNumber,
		Notes:         b.Notes,
	}
}

type ResourceBody struct {
	Make     string `json:"make"`
	Model    string `json:"model"`
	Color    string `json:"color"`
	Plate    string `json:"plate"`
	Seats    int    `json:"seats"`
	PhotoURL string `json:"photo_url"`
}

func (b *ResourceBody) input() eligibility.ResourceInput {
	return eligibility.ResourceInput{
		Make:     b.Make,
		Model:    b.Model,
		Color:    b.Color,
		Plate:    b.Plate,
		Seats:    b.Seats,
		PhotoURL: b.PhotoURL,
	}
}

type ActiveBody struct {
	Active *bool `json:"active"`
}

// ProviderView is what a requester sees about whoever took the request.
type ProviderView struct {
	UserID   string                `json:"user_id"`
	Username string                `json:"username,omitempty"`
	Name     string                `json:"name,omitempty"`
	FullName string                `json:"full_name,omitempty"`
	Phone    string                `json:"phone,omitempty"`
	Resource *eligibility.Resource `json:"resource,omitempty"`
}
