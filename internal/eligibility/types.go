package eligibility

import (
	"context"
	"time"
)

// Profile is a provider's application to work in one vertical.
type Profile struct {
	ID            string    `json:"id"`
	Domain        string    `json:"domain"`
	UserID        string    `json:"user_id"`
	Approved      bool      `json:"approved"`
	Rejected      bool      `json:"rejected"`
	Active        bool      `json:"active"`
	FullName      string    `json:"full_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	LicenseNumber string    `json:"license_number,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Resource is the equipment a provider works with, such as a vehicle.
type Resource struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	UserID    string    `json:"user_id"`
	Make      string    `json:"make,omitempty"`
	Model     string    `json:"model,omitempty"`
	Color     string    `json:"color,omitempty"`
	Plate     string    `json:"plate,omitempty"`
	Seats     int       `json:"seats,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileInput is the provider-editable part of a profile.
type ProfileInput struct {
	FullName      string
	Phone         string
	LicenseNumber string
	Notes         string
}

// ResourceInput is the provider-editable part of a resource.
type ResourceInput struct {
	Make     string
	Model    string
	Color    string
	Plate    string
	Seats    int
	PhotoURL string
}

// Status bundles what the provider screen shows.
type Status struct {
	Profile  *Profile  `json:"profile"`
	Resource *Resource `json:"resource,omitempty"`
	// Reason is empty when the provider may work right now.
	Reason string `json:"reason,omitempty"`
}

// Pending is a profile waiting for moderation, with its resource.
type Pending struct {
	Profile  Profile   `json:"profile"`
	Resource *Resource `json:"resource,omitempty"`
}

// Store persists profiles and resources.
type Store interface {
	// CreateProfile inserts p unless a profile for (domain, user) exists;
	// either way it returns the stored profile.
	CreateProfile(ctx context.Context, p *Profile) (*Profile, error)
	// ListProfiles returns every stored profile for (domain, user), most
	// recently updated first.
	ListProfiles(ctx context.Context, domain, userID string) ([]Profile, error)
	DeleteProfiles(ctx context.Context, ids []string) error
	SaveProfile(ctx context.Context, p *Profile) error
	ListPendingProfiles(ctx context.Context, domain string) ([]Profile, error)

	// GetResource returns NotFound when the user has none.
	GetResource(ctx context.Context, domain, userID string) (*Resource, error)
	SaveResource(ctx context.Context, r *Resource) error

	// ActiveProviderContacts returns external ids of approved, unrejected,
	// active providers (with a verified resource when requireVerified),
	// excluding excludeUserID.
	ActiveProviderContacts(ctx context.Context, domain string, requireVerified bool, excludeUserID string) ([]int64, error)
}
