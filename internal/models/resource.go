package models

import "time"

// Resource is a bookable staff member.
type Resource struct {
	ID          string    `yaml:"id" json:"id"`
	DisplayName string    `yaml:"display_name" json:"display_name"`
	Active      bool      `yaml:"active" json:"active"`
	SortOrder   int64     `yaml:"sort_order" json:"sort_order"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
	UpdatedAt   time.Time `yaml:"-" json:"updated_at"`
}
