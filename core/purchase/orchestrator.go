package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-checkout/core/course"
	"github.com/irsalhamdi/course-checkout/core/enrollment"
	"github.com/irsalhamdi/course-checkout/core/payment"
	"github.com/irsalhamdi/course-checkout/gateway"
	"github.com/irsalhamdi/course-checkout/metrics"
	"github.com/irsalhamdi/course-checkout/validate"
	"github.com/sirupsen/logrus"
)

const (
	flowDirect   = "direct"
	flow3DS      = "3ds"
	flowCallback = "3ds_callback"

	callbackSuccess = "success"
)

type CourseLookup interface {
	Lookup(ctx context.Context, id string) (course.Course, error)
}

type Gateway interface {
	ChargeDirect(ctx context.Context, ch gateway.Charge) gateway.PaymentOutcome
	Initiate3DS(ctx context.Context, ch gateway.Charge) gateway.ThreeDSOutcome
	Complete3DS(ctx context.Context, conversationID, paymentID string) gateway.PaymentOutcome
}

type Config struct {
	Provider    string
	Currency    string
	CallbackURL string
}

// Orchestrator drives a purchase from validation to enrollment. It is the
// only writer of payments and enrollments.
//
// Gateway calls and everything after them run detached from the caller's
// context: once a charge is requested, its verdict is always recorded even
// if the caller went away. The gateway client's own timeout bounds them.
type Orchestrator struct {
	catalog CourseLookup
	gateway Gateway
	ledger  Ledger
	cfg     Config
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewOrchestrator(catalog CourseLookup, gw Gateway, ledger Ledger, cfg Config, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		catalog: catalog,
		gateway: gw,
		ledger:  ledger,
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (o *Orchestrator) PurchaseDirect(ctx context.Context, req Request) (Outcome, error) {
	out, err := o.purchaseDirect(ctx, req)
	o.record(flowDirect, out, err)
	return out, err
}

func (o *Orchestrator) purchaseDirect(ctx context.Context, req Request) (Outcome, error) {
	p, c, early, err := o.begin(ctx, req)
	if err != nil || early != nil {
		return orZero(early), err
	}

	ctx = context.WithoutCancel(ctx)
	res := o.gateway.ChargeDirect(ctx, o.charge(p, c, req))
	if !res.OK {
		return o.fail(ctx, p, Failure{
			PaymentID: p.ID,
			Code:      res.ErrorCode,
			Message:   res.ErrorMessage,
		})
	}

	return o.settle(ctx, p, payment.Success, res.TransactionID)
}

// Purchase3DSInitiate starts a 3DS payment. On success the payment waits
// for the gateway callback and the outcome carries the challenge markup.
func (o *Orchestrator) Purchase3DSInitiate(ctx context.Context, req Request) (Outcome, error) {
	out, err := o.purchase3DSInitiate(ctx, req)
	o.record(flow3DS, out, err)
	return out, err
}

func (o *Orchestrator) purchase3DSInitiate(ctx context.Context, req Request) (Outcome, error) {
	p, c, early, err := o.begin(ctx, req)
	if err != nil || early != nil {
		return orZero(early), err
	}

	ctx = context.WithoutCancel(ctx)
	res := o.gateway.Initiate3DS(ctx, o.charge(p, c, req))
	if !res.OK {
		return o.fail(ctx, p, Failure{
			PaymentID: p.ID,
			Code:      res.ErrorCode,
			Message:   res.ErrorMessage,
		})
	}

	stored, err := o.ledger.MarkAwaiting3DS(ctx, p.ID, res.PaymentID)
	if errors.Is(err, payment.ErrFinalized) {
		return outcomeOf(stored), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("marking payment[%s] as awaiting 3DS: %w", p.ID, err)
	}

	o.paymentLog(p).WithField("gateway_payment_id", res.PaymentID).Info("3DS challenge issued")

	return Outcome{
		Status:             StatusRequires3DS,
		Message:            "complete the 3DS challenge to finish the payment",
		PaymentID:          p.ID,
		ConversationID:     p.ConversationID,
		Amount:             p.Amount.StringFixed(2),
		Currency:           p.Currency,
		ThreeDSHTMLContent: res.HTMLContent,
		CallbackURL:        o.cfg.CallbackURL,
	}, nil
}

// Purchase3DSCallback finishes a 3DS payment from the gateway's callback.
// A callback for an already decided payment gets the stored answer and no
// gateway call is made.
func (o *Orchestrator) Purchase3DSCallback(ctx context.Context, cb CallbackParams) (Outcome, error) {
	out, err := o.purchase3DSCallback(ctx, cb)
	o.record(flowCallback, out, err)
	return out, err
}

func (o *Orchestrator) purchase3DSCallback(ctx context.Context, cb CallbackParams) (Outcome, error) {
	if cb.ConversationID == "" {
		return Outcome{}, ErrUnknownConversation
	}

	p, err := o.ledger.FindByConversation(ctx, cb.ConversationID)
	if errors.Is(err, payment.ErrNotFound) {
		return Outcome{}, fmt.Errorf("conversation[%s]: %w", cb.ConversationID, ErrUnknownConversation)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("fetching payment of conversation[%s]: %w", cb.ConversationID, err)
	}

	log := o.paymentLog(p).WithFields(logrus.Fields{
		"callback_status": cb.Status,
		"md_status":       cb.MDStatus,
	})

	if !p.Status.Open() {
		log.WithField("status", p.Status).Info("callback for a finalized payment, answering the stored result")
		return outcomeOf(p), nil
	}

	if p.Status != payment.Awaiting3DS {
		log.Warn("callback for a payment that is not awaiting 3DS")
		return Outcome{
			Status:         StatusPending,
			Message:        "payment is not awaiting a 3DS result",
			PaymentID:      p.ID,
			ConversationID: p.ConversationID,
		}, nil
	}

	gwID := cb.PaymentID
	if stored := deref(p.GatewayPaymentID); stored != "" {
		if gwID != "" && gwID != stored {
			log.WithFields(logrus.Fields{
				"gateway_payment_id":  stored,
				"callback_payment_id": gwID,
			}).Warn("rejecting callback for a different gateway payment")
			return Outcome{}, ErrCallbackMismatch
		}
		gwID = stored
	}

	ctx = context.WithoutCancel(ctx)

	if cb.Status != callbackSuccess || gwID == "" {
		msg := cb.ErrorMessage
		if msg == "" {
			msg = "3DS authentication failed"
		}
		return o.fail(ctx, p, Failure{
			PaymentID: p.ID,
			Code:      Code3DSFailed,
			Message:   msg,
		})
	}

	res := o.gateway.Complete3DS(ctx, p.ConversationID, gwID)
	if !res.OK {
		return o.fail(ctx, p, Failure{
			PaymentID: p.ID,
			Code:      res.ErrorCode,
			Message:   res.ErrorMessage,
		})
	}

	return o.settle(ctx, p, payment.Completed, res.TransactionID)
}

func (o *Orchestrator) IsPurchased(ctx context.Context, userID, courseID string) (bool, error) {
	ok, err := o.ledger.IsPurchased(ctx, userID, courseID)
	if err != nil {
		return false, fmt.Errorf("checking purchase of course[%s] by user[%s]: %w", courseID, userID, err)
	}
	return ok, nil
}

func (o *Orchestrator) Payment(ctx context.Context, id string) (payment.Payment, error) {
	return o.ledger.FindPayment(ctx, id)
}

// SweepStale fails payments left open for longer than olderThan and returns
// how many it failed.
func (o *Orchestrator) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	before := o.now().Add(-olderThan)

	n, err := o.ledger.FailStale(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failing payments open since before %s: %w", before.Format(time.RFC3339), err)
	}

	if n > 0 {
		metrics.StalePaymentsFailed.Add(float64(n))
		o.log.WithFields(logrus.Fields{
			"count":  n,
			"before": before,
		}).Warn("failed stale payments")
	}
	return n, nil
}

// RunSweeper calls SweepStale every interval until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context, every, olderThan time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.SweepStale(ctx, olderThan); err != nil {
				o.log.WithField("message", err).Error("sweeping stale payments")
			}
		}
	}
}

// begin validates the request and records a PENDING payment. A non-nil
// Outcome means the purchase ended before any payment was created.
func (o *Orchestrator) begin(ctx context.Context, req Request) (payment.Payment, course.Course, *Outcome, error) {
	c, err := o.catalog.Lookup(ctx, req.CourseID)
	switch {
	case errors.Is(err, course.ErrNotFound):
		return payment.Payment{}, course.Course{}, &Outcome{
			Status:    StatusFailure,
			Message:   "course not found",
			ErrorCode: CodeCourseNotFound,
		}, nil
	case err != nil:
		return payment.Payment{}, course.Course{}, &Outcome{
			Status:  StatusCourseUnavailable,
			Message: "course catalog is unavailable, try again later",
		}, nil
	}

	if err := c.Purchasable(); err != nil {
		code := CodeInvalidPrice
		if errors.Is(err, course.ErrUnpublished) {
			code = CodeCourseUnpublished
		}
		return payment.Payment{}, course.Course{}, &Outcome{
			Status:    StatusFailure,
			Message:   err.Error(),
			ErrorCode: code,
		}, nil
	}

	enrolled, err := o.ledger.HasEnrollment(ctx, req.UserID, req.CourseID)
	if err != nil {
		return payment.Payment{}, course.Course{}, nil, fmt.Errorf("checking enrollment of user[%s] in course[%s]: %w", req.UserID, req.CourseID, err)
	}
	if enrolled {
		return payment.Payment{}, course.Course{}, &Outcome{
			Status:    StatusAlreadyPurchased,
			Message:   "course already purchased",
			ErrorCode: CodeAlreadyPurchased,
		}, nil
	}

	if req.Amount != nil && !req.Amount.Equal(c.Price) {
		o.log.WithFields(logrus.Fields{
			"course_id":    c.ID,
			"client_price": req.Amount.String(),
			"price":        c.Price.String(),
		}).Info("client price differs from catalog price")
	}

	now := o.now()
	id := validate.GenerateID()
	p := payment.Payment{
		ID:             id,
		UserID:         req.UserID,
		CourseID:       c.ID,
		Amount:         c.Price,
		Currency:       o.cfg.Currency,
		Status:         payment.Pending,
		Provider:       o.cfg.Provider,
		ConversationID: payment.ConversationID(id),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := o.ledger.CreatePending(ctx, p); err != nil {
		return payment.Payment{}, course.Course{}, nil, fmt.Errorf("creating pending payment for user[%s] course[%s]: %w", req.UserID, c.ID, err)
	}

	return p, c, nil, nil
}

func (o *Orchestrator) charge(p payment.Payment, c course.Course, req Request) gateway.Charge {
	return gateway.Charge{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
		CourseID:       p.CourseID,
		CourseTitle:    c.Title,
		Amount:         p.Amount,
		CallbackURL:    o.cfg.CallbackURL,
		Card:           req.Card,
		Buyer:          req.Buyer,
	}
}

func (o *Orchestrator) settle(ctx context.Context, p payment.Payment, status payment.Status, transactionID string) (Outcome, error) {
	log := o.paymentLog(p).WithField("transaction_id", transactionID)

	s, err := o.ledger.Settle(ctx, Settlement{
		PaymentID:     p.ID,
		Status:        status,
		TransactionID: transactionID,
		EnrollmentID:  validate.GenerateID(),
		At:            o.now(),
	})

	switch {
	case err == nil:
		log.WithField("enrollment_id", s.Enrollment.ID).Info("payment settled and user enrolled")
		return Outcome{
			Status:         StatusSuccess,
			Message:        "payment completed, enrolled in course",
			PaymentID:      p.ID,
			ConversationID: p.ConversationID,
			EnrollmentID:   s.Enrollment.ID,
			TransactionID:  transactionID,
			Amount:         p.Amount.StringFixed(2),
			Currency:       p.Currency,
		}, nil

	case errors.Is(err, enrollment.ErrExists):
		log.Warn("charged payment lost the enrollment race, refund required")
		return Outcome{
			Status:         StatusAlreadyPurchased,
			Message:        "course already purchased, this charge will be refunded",
			PaymentID:      p.ID,
			ConversationID: p.ConversationID,
			TransactionID:  transactionID,
			ErrorCode:      CodeAlreadyPurchased,
		}, nil

	case errors.Is(err, payment.ErrFinalized):
		log.WithField("status", s.Payment.Status).Info("payment was finalized concurrently")
		return outcomeOf(s.Payment), nil
	}

	log.WithField("message", err).Error("gateway confirmed the payment but settling it failed")
	return Outcome{}, err
}

func (o *Orchestrator) fail(ctx context.Context, p payment.Payment, f Failure) (Outcome, error) {
	if f.Message == "" {
		f.Message = "payment failed"
	}
	f.At = o.now()

	stored, err := o.ledger.Fail(ctx, f)
	if errors.Is(err, payment.ErrFinalized) {
		o.paymentLog(p).WithField("status", stored.Status).Info("payment was finalized concurrently")
		return outcomeOf(stored), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("failing payment[%s]: %w", p.ID, err)
	}

	o.paymentLog(p).WithField("error_code", f.Code).Info("payment failed")

	return Outcome{
		Status:         StatusFailure,
		Message:        f.Message,
		PaymentID:      p.ID,
		ConversationID: p.ConversationID,
		ErrorCode:      f.Code,
	}, nil
}

func (o *Orchestrator) paymentLog(p payment.Payment) logrus.FieldLogger {
	return o.log.WithFields(logrus.Fields{
		"payment_id":      p.ID,
		"user_id":         p.UserID,
		"course_id":       p.CourseID,
		"conversation_id": p.ConversationID,
	})
}

func (o *Orchestrator) record(flow string, out Outcome, err error) {
	status := string(out.Status)
	if err != nil {
		status = "ERROR"
	}
	metrics.PurchaseOutcomes.WithLabelValues(flow, status).Inc()
}

func orZero(o *Outcome) Outcome {
	if o == nil {
		return Outcome{}
	}
	return *o
}
