package models

import (
	"time"

	"github.com/lib/pq"
)

// Context is a campaign's configured set of geolocations and audience categories to track
type Context struct {
	ID                  string         `gorm:"primaryKey;size:64" json:"id"`
	Name                string         `gorm:"size:255" json:"name"`
	GeolocationIDs      pq.StringArray `gorm:"column:geolocations;type:text" json:"geolocations"`
	AudienceCategoryIDs pq.StringArray `gorm:"column:audience_categories;type:text" json:"audience_categories"`
	CreatedAt           time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null" json:"updated_at"`
}

func (Context) TableName() string { return "contexts" }

// Geolocation types
const (
	GeolocationTypeLocation = "location"
	GeolocationTypeCenter   = "center"
)

// FacebookLocation is one platform location key (region, country or city)
type FacebookLocation struct {
	Key  string `json:"key"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// GeoCenter is a point with a radius in kilometers
type GeoCenter struct {
	Center [2]float64 `json:"center"`
	Radius float64    `json:"radius"`
}

// Geolocation is a named target area
type Geolocation struct {
	ID        string             `gorm:"primaryKey;size:64" json:"id"`
	Name      string             `gorm:"size:255" json:"name"`
	Type      string             `gorm:"size:32" json:"type"`
	Facebook  []FacebookLocation `gorm:"type:text;serializer:json" json:"facebook,omitempty"`
	Center    *GeoCenter         `gorm:"type:text;serializer:json" json:"center,omitempty"`
	CreatedAt time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time          `gorm:"not null" json:"updated_at"`
}

func (Geolocation) TableName() string { return "geolocations" }

// AudienceCategory is a named targeting spec, usually a set of interests
type AudienceCategory struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	Title     string         `gorm:"size:255" json:"title"`
	Spec      map[string]any `gorm:"type:text;serializer:json" json:"spec"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (AudienceCategory) TableName() string { return "audience_categories" }
