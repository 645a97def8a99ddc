package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Destination is a place travel packages go to.
type Destination struct {
	ID          primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Slug        string             `json:"slug" bson:"slug"`
	Country     string             `json:"country" bson:"country"`
	City        string             `json:"city,omitempty" bson:"city,omitempty"`
	Description string             `json:"description" bson:"description"`
	Highlights  []string           `json:"highlights" bson:"highlights"`
	ImageURLs   []string           `json:"imageUrls" bson:"imageUrls"`
	IsActive    bool               `json:"isActive" bson:"isActive"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// DestinationRequest is the admin create/update body.
type DestinationRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=120"`
	Slug        string   `json:"slug,omitempty" validate:"omitempty,max=140"`
	Country     string   `json:"country" validate:"required,min=2,max=80"`
	City        string   `json:"city,omitempty" validate:"max=80"`
	Description string   `json:"description" validate:"max=5000"`
	Highlights  []string `json:"highlights,omitempty" validate:"max=20,dive,max=200"`
	ImageURLs   []string `json:"imageUrls,omitempty" validate:"max=20,dive,url"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

// DestinationFilter narrows destination listings.
type DestinationFilter struct {
	Search     string
	Country    string
	ActiveOnly bool
}
