package purchase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/irsalhamdi/course-checkout/core/course"
	"github.com/irsalhamdi/course-checkout/core/enrollment"
	"github.com/irsalhamdi/course-checkout/core/payment"
	"github.com/irsalhamdi/course-checkout/gateway"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// memLedger keeps the SQL ledger's guarantees in memory: one enrollment per
// user and course, and status changes only out of open states.
type memLedger struct {
	mu          sync.Mutex
	payments    map[string]payment.Payment
	enrollments map[string]enrollment.Enrollment
	events      int
}

func newMemLedger() *memLedger {
	return &memLedger{
		payments:    make(map[string]payment.Payment),
		enrollments: make(map[string]enrollment.Enrollment),
	}
}

func pairKey(userID, courseID string) string { return userID + "|" + courseID }

func (l *memLedger) HasEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.enrollments[pairKey(userID, courseID)]
	return ok, nil
}

func (l *memLedger) IsPurchased(ctx context.Context, userID, courseID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.enrollments[pairKey(userID, courseID)]
	return ok && e.Status.Grants(), nil
}

func (l *memLedger) CreatePending(ctx context.Context, p payment.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, q := range l.payments {
		if q.ConversationID == p.ConversationID {
			return errors.New("duplicate conversation id")
		}
	}
	l.payments[p.ID] = p
	return nil
}

func (l *memLedger) MarkAwaiting3DS(ctx context.Context, paymentID, gatewayPaymentID string) (payment.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[paymentID]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	if !p.Status.Open() {
		return p, payment.ErrFinalized
	}
	p.Status = payment.Awaiting3DS
	p.GatewayPaymentID = ptr(gatewayPaymentID)
	l.payments[p.ID] = p
	return p, nil
}

func (l *memLedger) FindPayment(ctx context.Context, id string) (payment.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return p, nil
}

func (l *memLedger) FindByConversation(ctx context.Context, conversationID string) (payment.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.ConversationID == conversationID {
			return p, nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (l *memLedger) Settle(ctx context.Context, s Settlement) (Settled, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.payments[s.PaymentID]
	if !ok {
		return Settled{}, payment.ErrNotFound
	}
	if !p.Status.Open() {
		return Settled{Payment: p}, payment.ErrFinalized
	}

	key := pairKey(p.UserID, p.CourseID)
	if _, exists := l.enrollments[key]; exists {
		p.Status = payment.Failed
		p.ErrorCode = ptr(CodeAlreadyPurchased)
		p.ErrorMessage = ptr("course already purchased")
		p.TransactionID = ptr(s.TransactionID)
		l.payments[p.ID] = p
		return Settled{Payment: p}, enrollment.ErrExists
	}

	p.Status = s.Status
	p.TransactionID = ptr(s.TransactionID)
	p.UpdatedAt = s.At
	l.payments[p.ID] = p

	e := enrollment.New(s.EnrollmentID, p.UserID, p.CourseID, p.ID, s.At)
	l.enrollments[key] = e
	l.events++

	return Settled{Payment: p, Enrollment: e}, nil
}

func (l *memLedger) Fail(ctx context.Context, f Failure) (payment.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.payments[f.PaymentID]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	if !p.Status.Open() {
		return p, payment.ErrFinalized
	}

	p.Status = payment.Failed
	p.ErrorCode = ptr(f.Code)
	p.ErrorMessage = ptr(f.Message)
	if f.TransactionID != "" {
		p.TransactionID = ptr(f.TransactionID)
	}
	p.UpdatedAt = f.At
	l.payments[p.ID] = p
	return p, nil
}

func (l *memLedger) FailStale(ctx context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, p := range l.payments {
		if p.Status.Open() && p.UpdatedAt.Before(before) {
			p.Status = payment.Failed
			p.ErrorCode = ptr(CodeStalePayment)
			l.payments[id] = p
			n++
		}
	}
	return n, nil
}

func (l *memLedger) enroll(userID, courseID string, status enrollment.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := enrollment.New("seed-"+courseID, userID, courseID, "seed", time.Now())
	e.Status = status
	l.enrollments[pairKey(userID, courseID)] = e
}

func (l *memLedger) list() []payment.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps := make([]payment.Payment, 0, len(l.payments))
	for _, p := range l.payments {
		ps = append(ps, p)
	}
	return ps
}

func (l *memLedger) enrollmentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.enrollments)
}

type fakeCatalog struct {
	courses map[string]course.Course
	err     error
}

func (c *fakeCatalog) Lookup(ctx context.Context, id string) (course.Course, error) {
	if c.err != nil {
		return course.Course{}, c.err
	}
	crs, ok := c.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	return crs, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	charges   []gateway.Charge
	completes int

	direct   gateway.PaymentOutcome
	init     gateway.ThreeDSOutcome
	complete gateway.PaymentOutcome

	// onCharge runs inside ChargeDirect, before the outcome is returned.
	onCharge func(ctx context.Context, ch gateway.Charge)
}

func (g *fakeGateway) ChargeDirect(ctx context.Context, ch gateway.Charge) gateway.PaymentOutcome {
	g.mu.Lock()
	g.charges = append(g.charges, ch)
	hook := g.onCharge
	g.mu.Unlock()

	if hook != nil {
		hook(ctx, ch)
	}
	return g.direct
}

func (g *fakeGateway) Initiate3DS(ctx context.Context, ch gateway.Charge) gateway.ThreeDSOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, ch)
	return g.init
}

func (g *fakeGateway) Complete3DS(ctx context.Context, conversationID, paymentID string) gateway.PaymentOutcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completes++
	return g.complete
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

func (g *fakeGateway) completeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completes
}

func okGateway() *fakeGateway {
	return &fakeGateway{
		direct:   gateway.PaymentOutcome{OK: true, TransactionID: "tx-direct"},
		init:     gateway.ThreeDSOutcome{OK: true, HTMLContent: "PGh0bWw+", PaymentID: "gw-3ds"},
		complete: gateway.PaymentOutcome{OK: true, TransactionID: "gw-3ds"},
	}
}

const (
	courseGo    = "c-go"
	courseDraft = "c-draft"
	courseFree  = "c-free"
	courseTiny  = "c-tiny"
)

func testCatalog() *fakeCatalog {
	return &fakeCatalog{courses: map[string]course.Course{
		courseGo:    {ID: courseGo, Title: "Go", Price: decimal.RequireFromString("99.90"), Published: true},
		courseDraft: {ID: courseDraft, Title: "Draft", Price: decimal.RequireFromString("10"), Published: false},
		courseFree:  {ID: courseFree, Title: "Free", Price: decimal.Zero, Published: true},
		courseTiny:  {ID: courseTiny, Title: "Tiny", Price: decimal.RequireFromString("0.004"), Published: true},
	}}
}

func discardLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	ledger  *memLedger
	gateway *fakeGateway
	catalog *fakeCatalog
	orch    *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ledger:  newMemLedger(),
		gateway: okGateway(),
		catalog: testCatalog(),
	}
	f.orch = NewOrchestrator(f.catalog, f.gateway, f.ledger, Config{
		Provider:    "IYZICO",
		Currency:    "TRY",
		CallbackURL: "http://localhost:8000/purchases/3ds/callback",
	}, discardLog())
	return f
}

func testRequest(userID, courseID string) Request {
	return Request{
		UserID:   userID,
		CourseID: courseID,
		Card: gateway.Card{
			HolderName:  "John Doe",
			Number:      "5528790000000008",
			ExpireMonth: "12",
			ExpireYear:  "2030",
			CVC:         "123",
		},
		Buyer: gateway.Buyer{
			Name:           "John",
			Surname:        "Doe",
			Email:          "john@example.com",
			Phone:          "+905350000000",
			IdentityNumber: "74300864791",
			Address:        "Nidakule Goztepe",
			City:           "Istanbul",
			Country:        "Turkey",
		},
	}
}
