package purchase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/course-checkout/api/web"
	"github.com/irsalhamdi/course-checkout/api/weberr"
	"github.com/irsalhamdi/course-checkout/core/claims"
	"github.com/irsalhamdi/course-checkout/core/payment"
	"github.com/irsalhamdi/course-checkout/validate"
)

func decodeRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (Request, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return Request{}, weberr.NotAuthorized(errors.New("user not authenticated"))
	}

	var req Request
	if err := web.Decode(w, r, &req); err != nil {
		return Request{}, weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}

	if err := validate.Check(req); err != nil {
		return Request{}, weberr.Invalid(err)
	}

	req.UserID = clm.UserID
	return req, nil
}

func HandleDirect(o *Orchestrator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		req, err := decodeRequest(ctx, w, r)
		if err != nil {
			return err
		}

		out, err := o.PurchaseDirect(ctx, req)
		if err != nil {
			return fmt.Errorf("purchasing course[%s] for user[%s]: %w", req.CourseID, req.UserID, err)
		}

		return web.Respond(ctx, w, out, httpStatus(out))
	}
}

func HandleInitiate3DS(o *Orchestrator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		req, err := decodeRequest(ctx, w, r)
		if err != nil {
			return err
		}

		out, err := o.Purchase3DSInitiate(ctx, req)
		if err != nil {
			return fmt.Errorf("initializing 3DS purchase of course[%s] for user[%s]: %w", req.CourseID, req.UserID, err)
		}

		return web.Respond(ctx, w, out, httpStatus(out))
	}
}

// HandleCallback receives the gateway's post-challenge redirect. It is not
// authenticated: the conversation id must match an open payment and the
// settlement itself is confirmed with a signed gateway call.
func HandleCallback(o *Orchestrator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		r.Body = http.MaxBytesReader(w, r.Body, web.MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return weberr.BadRequest(fmt.Errorf("parsing callback form: %w", err))
		}

		cb := CallbackParams{
			Status:         r.Form.Get("status"),
			PaymentID:      r.Form.Get("paymentId"),
			ConversationID: r.Form.Get("conversationId"),
			MDStatus:       r.Form.Get("mdStatus"),
			ErrorMessage:   r.Form.Get("errorMessage"),
		}

		out, err := o.Purchase3DSCallback(ctx, cb)
		switch {
		case errors.Is(err, ErrUnknownConversation):
			return weberr.NotFound(err, weberr.WithFields(map[string]any{
				"conversation_id": cb.ConversationID,
			}))
		case errors.Is(err, ErrCallbackMismatch):
			return weberr.Invalid(err, weberr.WithFields(map[string]any{
				"conversation_id":     cb.ConversationID,
				"callback_payment_id": cb.PaymentID,
			}))
		case err != nil:
			return fmt.Errorf("processing 3DS callback for conversation[%s]: %w", cb.ConversationID, err)
		}

		return web.Respond(ctx, w, out, httpStatus(out))
	}
}

func HandleCheck(o *Orchestrator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		courseID := r.URL.Query().Get("courseId")
		if courseID == "" {
			return weberr.Invalid(errors.New("courseId is required"))
		}

		ok, err := o.IsPurchased(ctx, clm.UserID, courseID)
		if err != nil {
			return err
		}

		resp := struct {
			CourseID  string `json:"courseId"`
			Purchased bool   `json:"purchased"`
		}{courseID, ok}

		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleShowPayment(o *Orchestrator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")

		if err := validate.CheckID(id); err != nil {
			return weberr.Invalid(err)
		}

		p, err := o.Payment(ctx, id)
		if err != nil {
			if errors.Is(err, payment.ErrNotFound) {
				return weberr.NotFound(fmt.Errorf("payment[%s]: %w", id, err))
			}
			return fmt.Errorf("fetching payment[%s]: %w", id, err)
		}

		if !claims.IsAdmin(ctx) && !claims.IsUser(ctx, p.UserID) {
			return weberr.NotFound(
				fmt.Errorf("payment[%s] is not visible to the caller", id),
				weberr.WithFields(map[string]any{"owner_id": p.UserID}),
			)
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

func httpStatus(out Outcome) int {
	switch out.Status {
	case StatusSuccess, StatusRequires3DS, StatusPending:
		return http.StatusOK
	case StatusAlreadyPurchased:
		return http.StatusConflict
	case StatusCourseUnavailable:
		return http.StatusServiceUnavailable
	}

	switch out.ErrorCode {
	case CodeCourseNotFound:
		return http.StatusNotFound
	case CodeCourseUnpublished, CodeInvalidPrice:
		return http.StatusUnprocessableEntity
	}
	return http.StatusPaymentRequired
}
