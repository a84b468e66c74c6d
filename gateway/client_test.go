package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	testKey    = "api-key"
	testSecret = "secret-key"
	testNonce  = "170000000000012345678"
)

type received struct {
	path string
	body map[string]any
}

type mockGateway struct {
	t     *testing.T
	reply func(path string, body map[string]any) (int, string)

	mu    sync.Mutex
	calls []received
}

func (m *mockGateway) recorded() []received {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]received(nil), m.calls...)
}

func (m *mockGateway) handle() http.Handler {
	signer, err := NewSigner(testKey, testSecret)
	if err != nil {
		m.t.Fatal(err)
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if r.Header.Get("x-iyzi-rnd") != testNonce {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != signer.Sign(testNonce, r.URL.Path, raw) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.calls = append(m.calls, received{path: r.URL.Path, body: body})
		m.mu.Unlock()

		code, resp := m.reply(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		io.WriteString(w, resp)
	})

	r := mux.NewRouter()
	r.Handle(pathCharge, h).Methods(http.MethodPost)
	r.Handle(pathInitialize3D, h).Methods(http.MethodPost)
	r.Handle(pathComplete3D, h).Methods(http.MethodPost)
	return r
}

func newTestClient(t *testing.T, m *mockGateway) *Client {
	m.t = t
	srv := httptest.NewServer(m.handle())
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	c, err := New(Config{
		APIKey:    testKey,
		SecretKey: testSecret,
		BaseURL:   srv.URL,
	}, log, WithNonce(func() string { return testNonce }))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testCharge() Charge {
	return Charge{
		ConversationID: "payment-1",
		UserID:         "7",
		CourseID:       "42",
		CourseTitle:    "Go <Concurrency>",
		Amount:         decimal.RequireFromString("99.9"),
		CallbackURL:    "http://localhost/callback",
		Card: Card{
			HolderName:  "John Doe",
			Number:      "5528790000000008",
			ExpireMonth: "12",
			ExpireYear:  "2030",
			CVC:         "123",
		},
		Buyer: Buyer{
			Name:           "John",
			Surname:        "Doe",
			Email:          "john@example.com",
			Phone:          "+905350000000",
			IdentityNumber: "74300864791",
			Address:        "Nidakule Goztepe",
			City:           "Istanbul",
			Country:        "Turkey",
			ZipCode:        "34732",
		},
	}
}

func TestChargeDirectSuccess(t *testing.T) {
	m := &mockGateway{reply: func(path string, body map[string]any) (int, string) {
		return 200, `{"status":"success","conversationId":"payment-1","paymentId":"pay-123","paymentStatus":"SUCCESS","fraudStatus":1,"cardAssociation":"MASTER_CARD","cardFamily":"Bonus","lastFourDigits":"0008","price":99.9,"paidPrice":99.9}`
	}}
	c := newTestClient(t, m)

	got := c.ChargeDirect(context.Background(), testCharge())

	one := 1
	exp := PaymentOutcome{
		OK:            true,
		TransactionID: "pay-123",
		FraudStatus:   &one,
		CardBrand:     "MASTER_CARD",
		CardFamily:    "Bonus",
		LastFour:      "0008",
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected outcome (-exp +got):\n%s", diff)
	}

	calls := m.recorded()
	if len(calls) != 1 || calls[0].path != pathCharge {
		t.Fatalf("expected one call to %s, got %+v", pathCharge, calls)
	}

	body := calls[0].body
	checks := map[string]any{
		"locale":         "tr",
		"conversationId": "payment-1",
		"price":          "99.90",
		"paidPrice":      "99.90",
		"currency":       "TRY",
		"installment":    float64(1),
		"basketId":       "B42",
	}
	for k, v := range checks {
		if body[k] != v {
			t.Fatalf("body[%s]: expected %v, got %v", k, v, body[k])
		}
	}

	buyer := body["buyer"].(map[string]any)
	if buyer["id"] != "BY7" || buyer["ip"] != defaultBuyerIP || buyer["registrationDate"] != defaultBuyerDate {
		t.Fatalf("unexpected buyer: %v", buyer)
	}

	items := body["basketItems"].([]any)
	item := items[0].(map[string]any)
	if item["id"] != "BI42" || item["itemType"] != "VIRTUAL" || item["price"] != "99.90" || item["name"] != "Go <Concurrency>" {
		t.Fatalf("unexpected basket item: %v", item)
	}

	card := body["paymentCard"].(map[string]any)
	if card["registerCard"] != float64(0) || card["cardNumber"] != "5528790000000008" {
		t.Fatalf("unexpected payment card: %v", card)
	}

	if _, ok := body["callbackUrl"]; ok {
		t.Fatal("direct charge must not carry a callback url")
	}
}

func TestChargeDirectFailures(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		resp     string
		expCode  string
		expMsg   string
		expGroup string
	}{
		{
			name:     "declined",
			code:     200,
			resp:     `{"status":"failure","conversationId":"payment-1","errorCode":"10051","errorMessage":"Kart limiti yetersiz","errorGroup":"NOT_SUFFICIENT_FUNDS"}`,
			expCode:  "10051",
			expMsg:   "Kart limiti yetersiz",
			expGroup: "NOT_SUFFICIENT_FUNDS",
		},
		{
			name:    "2xx with unpaid payment status",
			code:    200,
			resp:    `{"status":"success","conversationId":"payment-1","paymentId":"p","paymentStatus":"FAILURE"}`,
			expCode: "",
			expMsg:  "payment not confirmed: status[success] paymentStatus[FAILURE]",
		},
		{
			name:    "2xx without payment status",
			code:    200,
			resp:    `{"status":"success","conversationId":"payment-1","paymentId":"p-1"}`,
			expCode: "",
			expMsg:  "payment not confirmed: status[success] paymentStatus[]",
		},
		{
			name:    "malformed body",
			code:    200,
			resp:    `<html>oops</html>`,
			expCode: CodeMalformedResponse,
		},
		{
			name:    "missing status",
			code:    200,
			resp:    `{"conversationId":"payment-1"}`,
			expCode: CodeMalformedResponse,
		},
		{
			name:    "server error",
			code:    502,
			resp:    `bad gateway`,
			expCode: CodeHTTP,
		},
		{
			name:    "http error with gateway code",
			code:    401,
			resp:    `{"status":"failure","errorCode":"1001","errorMessage":"api bilgileri bulunamadı"}`,
			expCode: "1001",
			expMsg:  "api bilgileri bulunamadı",
		},
		{
			name:    "conversation mismatch",
			code:    200,
			resp:    `{"status":"success","conversationId":"payment-2","paymentId":"p","paymentStatus":"SUCCESS"}`,
			expCode: CodeConversationMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockGateway{reply: func(string, map[string]any) (int, string) { return tt.code, tt.resp }}
			c := newTestClient(t, m)

			got := c.ChargeDirect(context.Background(), testCharge())
			if got.OK {
				t.Fatal("expected a failed outcome")
			}
			if got.ErrorCode != tt.expCode {
				t.Fatalf("expected code %q, got %q (%s)", tt.expCode, got.ErrorCode, got.ErrorMessage)
			}
			if tt.expMsg != "" && got.ErrorMessage != tt.expMsg {
				t.Fatalf("expected message %q, got %q", tt.expMsg, got.ErrorMessage)
			}
			if got.ErrorGroup != tt.expGroup {
				t.Fatalf("expected group %q, got %q", tt.expGroup, got.ErrorGroup)
			}
		})
	}
}

func TestChargeDirectTransportError(t *testing.T) {
	m := &mockGateway{reply: func(string, map[string]any) (int, string) { return 200, `{}` }}
	m.t = t
	srv := httptest.NewServer(m.handle())
	url := srv.URL
	srv.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	c, err := New(Config{APIKey: testKey, SecretKey: testSecret, BaseURL: url}, log)
	if err != nil {
		t.Fatal(err)
	}

	got := c.ChargeDirect(context.Background(), testCharge())
	if got.OK || got.ErrorCode != CodeTransport {
		t.Fatalf("expected transport failure, got %+v", got)
	}
}

func TestChargeDirectCanceledContext(t *testing.T) {
	m := &mockGateway{reply: func(string, map[string]any) (int, string) { return 200, `{}` }}
	c := newTestClient(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := c.ChargeDirect(ctx, testCharge())
	if got.OK || got.ErrorCode != CodeTransport {
		t.Fatalf("expected transport failure, got %+v", got)
	}
	if calls := m.recorded(); len(calls) != 0 {
		t.Fatalf("expected no call to reach the gateway, got %d", len(calls))
	}
}

func TestInitiate3DS(t *testing.T) {
	m := &mockGateway{reply: func(path string, body map[string]any) (int, string) {
		return 200, `{"status":"success","conversationId":"payment-1","paymentId":"pay-3ds","threeDSHtmlContent":"PGh0bWw+"}`
	}}
	c := newTestClient(t, m)

	got := c.Initiate3DS(context.Background(), testCharge())

	exp := ThreeDSOutcome{OK: true, HTMLContent: "PGh0bWw+", PaymentID: "pay-3ds"}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected outcome (-exp +got):\n%s", diff)
	}

	calls := m.recorded()
	body := calls[0].body
	if calls[0].path != pathInitialize3D {
		t.Fatalf("expected call to %s, got %s", pathInitialize3D, calls[0].path)
	}
	if body["paymentChannel"] != "WEB" || body["paymentGroup"] != "PRODUCT" || body["callbackUrl"] != "http://localhost/callback" {
		t.Fatalf("unexpected 3DS fields: %v", body)
	}
	if body["basketId"] != "B42" {
		t.Fatalf("expected the payment fields to be inlined, got %v", body)
	}
}

func TestInitiate3DSWithoutContent(t *testing.T) {
	m := &mockGateway{reply: func(string, map[string]any) (int, string) {
		return 200, `{"status":"success","conversationId":"payment-1","paymentId":"pay-3ds"}`
	}}
	c := newTestClient(t, m)

	got := c.Initiate3DS(context.Background(), testCharge())
	if got.OK || got.ErrorCode != CodeMissing3DSContent {
		t.Fatalf("expected missing content failure, got %+v", got)
	}
}

func TestInitiate3DSDeclined(t *testing.T) {
	m := &mockGateway{reply: func(string, map[string]any) (int, string) {
		return 200, `{"status":"failure","errorCode":"5001","errorMessage":"3DS not supported"}`
	}}
	c := newTestClient(t, m)

	got := c.Initiate3DS(context.Background(), testCharge())
	exp := ThreeDSOutcome{ErrorCode: "5001", ErrorMessage: "3DS not supported"}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("unexpected outcome (-exp +got):\n%s", diff)
	}
}

func TestComplete3DS(t *testing.T) {
	m := &mockGateway{reply: func(path string, body map[string]any) (int, string) {
		return 200, `{"status":"success","conversationId":"payment-1","paymentId":"pay-3ds","paymentStatus":"SUCCESS"}`
	}}
	c := newTestClient(t, m)

	got := c.Complete3DS(context.Background(), "payment-1", "pay-3ds")
	if !got.OK || got.TransactionID != "pay-3ds" {
		t.Fatalf("expected success, got %+v", got)
	}

	exp := map[string]any{
		"locale":         "tr",
		"conversationId": "payment-1",
		"paymentId":      "pay-3ds",
	}
	if diff := cmp.Diff(exp, m.recorded()[0].body); diff != "" {
		t.Fatalf("unexpected complete body (-exp +got):\n%s", diff)
	}
}

func TestEncodeKeepsMarkup(t *testing.T) {
	b, err := encode(map[string]string{"name": "a<b>&c"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"name":"a<b>&c"}` {
		t.Fatalf("unexpected encoding: %s", b)
	}
}

func TestCardStringMasksNumber(t *testing.T) {
	c := testCharge().Card
	if got := c.String(); got != "card[John Doe ****0008]" {
		t.Fatalf("unexpected card string: %s", got)
	}
}
