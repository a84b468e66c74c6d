package gateway

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Card is the payment card supplied by the buyer. It is sent to the gateway
// and never stored.
type Card struct {
	HolderName  string `json:"holderName" validate:"required"`
	Number      string `json:"number" validate:"required,numeric,min=12,max=19"`
	ExpireMonth string `json:"expireMonth" validate:"required,numeric,len=2"`
	ExpireYear  string `json:"expireYear" validate:"required,numeric,len=4"`
	CVC         string `json:"cvc" validate:"required,numeric,min=3,max=4"`
}

// String masks everything but the last four digits so a card can be logged
// or printed by accident without leaking it.
func (c Card) String() string {
	last := c.Number
	if len(last) > 4 {
		last = last[len(last)-4:]
	}
	return fmt.Sprintf("card[%s ****%s]", c.HolderName, last)
}

func (c Card) GoString() string { return c.String() }

type Buyer struct {
	Name           string `json:"name" validate:"required"`
	Surname        string `json:"surname" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"required"`
	IdentityNumber string `json:"identityNumber" validate:"required"`
	Address        string `json:"address" validate:"required"`
	City           string `json:"city" validate:"required"`
	Country        string `json:"country" validate:"required"`
	ZipCode        string `json:"zipCode"`
	IP             string `json:"ip" validate:"omitempty,ip"`
	LastLoginDate  string `json:"lastLoginDate"`
	RegisteredAt   string `json:"registrationDate"`
}

func (b Buyer) fullName() string {
	return strings.TrimSpace(b.Name + " " + b.Surname)
}

// Charge is everything needed to build a direct or 3DS payment request.
type Charge struct {
	ConversationID string
	UserID         string
	CourseID       string
	CourseTitle    string
	Amount         decimal.Decimal
	CallbackURL    string
	Card           Card
	Buyer          Buyer
}
