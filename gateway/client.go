package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/irsalhamdi/course-checkout/metrics"
	"github.com/sirupsen/logrus"
)

// Synthetic error codes for failures that never got a usable answer from
// the gateway.
const (
	CodeEncoding             = "ENCODING_ERROR"
	CodeTransport            = "TRANSPORT_ERROR"
	CodeMalformedResponse    = "MALFORMED_RESPONSE"
	CodeHTTP                 = "HTTP_ERROR"
	CodeConversationMismatch = "CONVERSATION_MISMATCH"
	CodeMissing3DSContent    = "MISSING_3DS_CONTENT"
)

const maxResponseBytes = 1 << 20

type Config struct {
	APIKey      string
	SecretKey   string
	BaseURL     string
	NonceHeader string
	Locale      string
	Currency    string
	Timeout     time.Duration
}

// PaymentOutcome is the normalized result of a charge or a 3DS completion.
// TransactionID is the gateway's payment id for the settled charge.
type PaymentOutcome struct {
	OK            bool
	TransactionID string
	FraudStatus   *int
	CardBrand     string
	CardFamily    string
	LastFour      string
	ErrorCode     string
	ErrorMessage  string
	ErrorGroup    string
}

type ThreeDSOutcome struct {
	OK           bool
	HTMLContent  string
	PaymentID    string
	ErrorCode    string
	ErrorMessage string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithNonce replaces the nonce source, mostly so tests get stable headers.
func WithNonce(fn func() string) Option {
	return func(c *Client) { c.nonce = fn }
}

type Client struct {
	cfg    Config
	signer *Signer
	http   *http.Client
	nonce  func() string
	log    logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger, opts ...Option) (*Client, error) {
	signer, err := NewSigner(cfg.APIKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if cfg.NonceHeader == "" {
		cfg.NonceHeader = "x-iyzi-rnd"
	}
	if cfg.Locale == "" {
		cfg.Locale = "tr"
	}
	if cfg.Currency == "" {
		cfg.Currency = "TRY"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		signer: signer,
		http:   &http.Client{Timeout: cfg.Timeout},
		nonce:  NewNonce,
		log:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ChargeDirect(ctx context.Context, ch Charge) PaymentOutcome {
	body := newPaymentRequest(c.cfg.Locale, c.cfg.Currency, ch)

	res, fail := c.call(ctx, "charge", pathCharge, ch.ConversationID, body)
	if fail != nil {
		return PaymentOutcome{ErrorCode: fail.code, ErrorMessage: fail.msg}
	}
	return paymentOutcome(res)
}

func (c *Client) Initiate3DS(ctx context.Context, ch Charge) ThreeDSOutcome {
	body := threeDSInitRequest{
		paymentRequest: newPaymentRequest(c.cfg.Locale, c.cfg.Currency, ch),
		PaymentChannel: "WEB",
		PaymentGroup:   "PRODUCT",
		CallbackURL:    ch.CallbackURL,
	}

	res, fail := c.call(ctx, "3ds_initialize", pathInitialize3D, ch.ConversationID, body)
	if fail != nil {
		return ThreeDSOutcome{ErrorCode: fail.code, ErrorMessage: fail.msg}
	}

	if res.Status != statusSuccess {
		return ThreeDSOutcome{ErrorCode: res.ErrorCode, ErrorMessage: res.ErrorMessage}
	}
	if res.ThreeDSHTMLContent == "" {
		return ThreeDSOutcome{
			ErrorCode:    CodeMissing3DSContent,
			ErrorMessage: "gateway accepted the 3DS initialization without challenge content",
		}
	}

	return ThreeDSOutcome{
		OK:          true,
		HTMLContent: res.ThreeDSHTMLContent,
		PaymentID:   res.PaymentID,
	}
}

func (c *Client) Complete3DS(ctx context.Context, conversationID, paymentID string) PaymentOutcome {
	body := threeDSCompleteRequest{
		Locale:         c.cfg.Locale,
		ConversationID: conversationID,
		PaymentID:      paymentID,
	}

	res, fail := c.call(ctx, "3ds_complete", pathComplete3D, conversationID, body)
	if fail != nil {
		return PaymentOutcome{ErrorCode: fail.code, ErrorMessage: fail.msg}
	}
	return paymentOutcome(res)
}

func paymentOutcome(res response) PaymentOutcome {
	out := PaymentOutcome{
		TransactionID: res.PaymentID,
		FraudStatus:   res.FraudStatus,
		CardBrand:     res.CardAssociation,
		CardFamily:    res.CardFamily,
		LastFour:      res.LastFourDigits,
		ErrorCode:     res.ErrorCode,
		ErrorMessage:  res.ErrorMessage,
		ErrorGroup:    res.ErrorGroup,
	}

	// a charge is settled only when the gateway says so explicitly
	if res.Status == statusSuccess && res.PaymentStatus == paymentStatusSuccess {
		out.OK = true
		return out
	}

	if out.ErrorCode == "" && out.ErrorMessage == "" {
		out.ErrorMessage = fmt.Sprintf("payment not confirmed: status[%s] paymentStatus[%s]", res.Status, res.PaymentStatus)
	}
	return out
}

type callFailure struct {
	code string
	msg  string
}

// call signs and posts body, then decodes the answer. A non-nil failure
// means no trustworthy gateway verdict exists.
func (c *Client) call(ctx context.Context, op, path, conversationID string, body any) (response, *callFailure) {
	start := time.Now()
	log := c.log.WithFields(logrus.Fields{
		"operation":       op,
		"conversation_id": conversationID,
	})

	res, fail := c.do(ctx, path, conversationID, body)

	result := "success"
	switch {
	case fail != nil:
		result = strings.ToLower(fail.code)
		log.WithField("code", fail.code).Warnf("gateway call failed: %s", fail.msg)
	case res.Status != statusSuccess:
		result = "declined"
		log.WithFields(logrus.Fields{
			"error_code":  res.ErrorCode,
			"error_group": res.ErrorGroup,
		}).Info("gateway declined")
	}
	metrics.GatewayDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())

	return res, fail
}

func (c *Client) do(ctx context.Context, path, conversationID string, body any) (response, *callFailure) {
	var res response

	b, err := encode(body)
	if err != nil {
		return res, &callFailure{CodeEncoding, fmt.Sprintf("encoding request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return res, &callFailure{CodeTransport, fmt.Sprintf("building request: %v", err)}
	}

	nonce := c.nonce()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.signer.Sign(nonce, path, b))
	req.Header.Set(c.cfg.NonceHeader, nonce)

	resp, err := c.http.Do(req)
	if err != nil {
		return res, &callFailure{CodeTransport, fmt.Sprintf("calling gateway: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return res, &callFailure{CodeTransport, fmt.Sprintf("reading response: %v", err)}
	}

	decodeErr := json.Unmarshal(raw, &res)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && res.ErrorCode != "" {
			return res, &callFailure{res.ErrorCode, res.ErrorMessage}
		}
		return res, &callFailure{CodeHTTP, fmt.Sprintf("gateway answered with status %d", resp.StatusCode)}
	}

	if decodeErr != nil {
		return res, &callFailure{CodeMalformedResponse, fmt.Sprintf("decoding response: %v", decodeErr)}
	}
	if res.Status == "" {
		return res, &callFailure{CodeMalformedResponse, "response carries no status"}
	}

	if res.ConversationID != "" && res.ConversationID != conversationID {
		return res, &callFailure{
			CodeConversationMismatch,
			fmt.Sprintf("response conversation[%s] does not match request conversation[%s]", res.ConversationID, conversationID),
		}
	}

	return res, nil
}
