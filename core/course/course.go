package course

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("course not found")
	ErrUnpublished  = errors.New("course is not published")
	ErrInvalidPrice = errors.New("course price is not valid")
)

// Course is the catalog's view of a course. Price is authoritative: a
// purchase is always charged this amount.
type Course struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	Published    bool            `json:"isPublished"`
	InstructorID string          `json:"instructorId,omitempty"`
}

// Purchasable reports why c cannot be sold, if it cannot. The price must be
// a positive amount of whole cents, since that is what gets charged and
// stored.
func (c Course) Purchasable() error {
	if !c.Published {
		return ErrUnpublished
	}
	if !c.Price.IsPositive() || !c.Price.Equal(c.Price.Round(2)) {
		return ErrInvalidPrice
	}
	return nil
}
