package models

import "time"

// FaceDescriptor stores the 128-dimensional reference embedding used for
// identity checks during proctoring. Values are kept as a JSON array; the
// controller validates dimension and range before the row is written.
type FaceDescriptor struct {
	ID        uint   `gorm:"primaryKey"`
	UserIDRef string `gorm:"uniqueIndex"` // subject's public UserID
	Values    []byte // JSON-encoded [128]float64
	CreatedAt time.Time
	UpdatedAt time.Time
}
