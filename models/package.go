package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Package is a bookable travel offer for a destination.
type Package struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Title         string             `json:"title" bson:"title"`
	Slug          string             `json:"slug" bson:"slug"`
	DestinationID primitive.ObjectID `json:"destinationId" bson:"destinationId"`
	Description   string             `json:"description" bson:"description"`
	DurationDays  int                `json:"durationDays" bson:"durationDays"`
	Price         Money              `json:"price" bson:"price"`
	Currency      string             `json:"currency" bson:"currency"`
	MaxTravelers  int                `json:"maxTravelers" bson:"maxTravelers"`
	Itinerary     []ItineraryDay     `json:"itinerary" bson:"itinerary"`
	Inclusions    []string           `json:"inclusions" bson:"inclusions"`
	Exclusions    []string           `json:"exclusions" bson:"exclusions"`
	IsFeatured    bool               `json:"isFeatured" bson:"isFeatured"`
	IsActive      bool               `json:"isActive" bson:"isActive"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ItineraryDay describes one day of a package.
type ItineraryDay struct {
	Day         int    `json:"day" bson:"day" validate:"min=1"`
	Title       string `json:"title" bson:"title" validate:"required,max=200"`
	Description string `json:"description,omitempty" bson:"description,omitempty" validate:"max=2000"`
}

// PackageRequest is the admin create/update body.
type PackageRequest struct {
	Title         string         `json:"title" validate:"required,min=3,max=160"`
	Slug          string         `json:"slug,omitempty" validate:"omitempty,max=180"`
	DestinationID string         `json:"destinationId" validate:"required,len=24,hexadecimal"`
	Description   string         `json:"description" validate:"max=10000"`
	DurationDays  int            `json:"durationDays" validate:"required,min=1,max=365"`
	Price         Money          `json:"price"`
	Currency      string         `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	MaxTravelers  int            `json:"maxTravelers" validate:"required,min=1,max=100"`
	Itinerary     []ItineraryDay `json:"itinerary,omitempty" validate:"max=365,dive"`
	Inclusions    []string       `json:"inclusions,omitempty" validate:"max=50,dive,max=200"`
	Exclusions    []string       `json:"exclusions,omitempty" validate:"max=50,dive,max=200"`
	IsFeatured    bool           `json:"isFeatured"`
	IsActive      *bool          `json:"isActive,omitempty"`
}

// PackageFilter narrows package listings.
type PackageFilter struct {
	DestinationID *primitive.ObjectID
	MinPrice      *Money
	MaxPrice      *Money
	MinDays       int
	MaxDays       int
	FeaturedOnly  bool
	ActiveOnly    bool
	Search        string
	Sort          string
}

// Package listing sort keys accepted by the API.
const (
	PackageSortPrice     = "price"
	PackageSortPriceDesc = "-price"
	PackageSortDuration  = "duration"
	PackageSortNewest    = "-createdAt"
)
