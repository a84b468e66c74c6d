package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	pathCharge       = "/payment/auth"
	pathInitialize3D = "/payment/3dsecure/initialize"
	pathComplete3D   = "/payment/3dsecure/auth"

	statusSuccess        = "success"
	paymentStatusSuccess = "SUCCESS"

	defaultBuyerDate = "2023-01-01 12:00:00"
	defaultBuyerIP   = "127.0.0.1"
)

type paymentCard struct {
	CardHolderName string `json:"cardHolderName"`
	CardNumber     string `json:"cardNumber"`
	ExpireMonth    string `json:"expireMonth"`
	ExpireYear     string `json:"expireYear"`
	CVC            string `json:"cvc"`
	RegisterCard   int    `json:"registerCard"`
}

type buyer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	GsmNumber           string `json:"gsmNumber"`
	Email               string `json:"email"`
	IdentityNumber      string `json:"identityNumber"`
	LastLoginDate       string `json:"lastLoginDate"`
	RegistrationDate    string `json:"registrationDate"`
	RegistrationAddress string `json:"registrationAddress"`
	IP                  string `json:"ip"`
	City                string `json:"city"`
	Country             string `json:"country"`
	ZipCode             string `json:"zipCode"`
}

type address struct {
	ContactName string `json:"contactName"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Address     string `json:"address"`
	ZipCode     string `json:"zipCode"`
}

type basketItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category1 string `json:"category1"`
	Category2 string `json:"category2"`
	ItemType  string `json:"itemType"`
	Price     string `json:"price"`
}

type paymentRequest struct {
	Locale          string       `json:"locale"`
	ConversationID  string       `json:"conversationId"`
	Price           string       `json:"price"`
	PaidPrice       string       `json:"paidPrice"`
	Currency        string       `json:"currency"`
	Installment     int          `json:"installment"`
	BasketID        string       `json:"basketId"`
	PaymentCard     paymentCard  `json:"paymentCard"`
	Buyer           buyer        `json:"buyer"`
	ShippingAddress address      `json:"shippingAddress"`
	BillingAddress  address      `json:"billingAddress"`
	BasketItems     []basketItem `json:"basketItems"`
}

type threeDSInitRequest struct {
	paymentRequest
	PaymentChannel string `json:"paymentChannel"`
	PaymentGroup   string `json:"paymentGroup"`
	CallbackURL    string `json:"callbackUrl"`
}

type threeDSCompleteRequest struct {
	Locale               string `json:"locale"`
	ConversationID       string `json:"conversationId"`
	PaymentID            string `json:"paymentId"`
	PaymentTransactionID string `json:"paymentTransactionId,omitempty"`
}

type response struct {
	Status               string          `json:"status"`
	ErrorCode            string          `json:"errorCode"`
	ErrorMessage         string          `json:"errorMessage"`
	ErrorGroup           string          `json:"errorGroup"`
	Locale               string          `json:"locale"`
	SystemTime           int64           `json:"systemTime"`
	ConversationID       string          `json:"conversationId"`
	PaymentID            string          `json:"paymentId"`
	PaymentStatus        string          `json:"paymentStatus"`
	FraudStatus          *int            `json:"fraudStatus"`
	CardType             string          `json:"cardType"`
	CardAssociation      string          `json:"cardAssociation"`
	CardFamily           string          `json:"cardFamily"`
	BinNumber            string          `json:"binNumber"`
	LastFourDigits       string          `json:"lastFourDigits"`
	Currency             string          `json:"currency"`
	Price                decimal.Decimal `json:"price"`
	PaidPrice            decimal.Decimal `json:"paidPrice"`
	ThreeDSHTMLContent   string          `json:"threeDSHtmlContent"`
	PaymentTransactionID string          `json:"paymentTransactionId"`
}

func newPaymentRequest(locale, currency string, c Charge) paymentRequest {
	price := c.Amount.StringFixed(2)

	b := c.Buyer
	ip := b.IP
	if ip == "" {
		ip = defaultBuyerIP
	}
	lastLogin := b.LastLoginDate
	if lastLogin == "" {
		lastLogin = defaultBuyerDate
	}
	registered := b.RegisteredAt
	if registered == "" {
		registered = defaultBuyerDate
	}

	addr := address{
		ContactName: b.fullName(),
		City:        b.City,
		Country:     b.Country,
		Address:     b.Address,
		ZipCode:     b.ZipCode,
	}

	return paymentRequest{
		Locale:         locale,
		ConversationID: c.ConversationID,
		Price:          price,
		PaidPrice:      price,
		Currency:       currency,
		Installment:    1,
		BasketID:       "B" + c.CourseID,
		PaymentCard: paymentCard{
			CardHolderName: c.Card.HolderName,
			CardNumber:     c.Card.Number,
			ExpireMonth:    c.Card.ExpireMonth,
			ExpireYear:     c.Card.ExpireYear,
			CVC:            c.Card.CVC,
		},
		Buyer: buyer{
			ID:                  "BY" + c.UserID,
			Name:                b.Name,
			Surname:             b.Surname,
			GsmNumber:           b.Phone,
			Email:               b.Email,
			IdentityNumber:      b.IdentityNumber,
			LastLoginDate:       lastLogin,
			RegistrationDate:    registered,
			RegistrationAddress: b.Address,
			IP:                  ip,
			City:                b.City,
			Country:             b.Country,
			ZipCode:             b.ZipCode,
		},
		ShippingAddress: addr,
		BillingAddress:  addr,
		BasketItems: []basketItem{{
			ID:        "BI" + c.CourseID,
			Name:      c.CourseTitle,
			Category1: "Eğitim",
			Category2: "Online Kurs",
			ItemType:  "VIRTUAL",
			Price:     price,
		}},
	}
}

// encode is the single serializer for request bodies: the bytes it returns
// are both signed and sent.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
