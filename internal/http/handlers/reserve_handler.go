// Reservation HTTP handlers.
//
// This file exposes the mini-app facing endpoints:
//   - GET  /reserve?all=true       (availability per amount)
//   - GET  /reserve?amount=300     (reserve one link)
//   - POST /reserve                (confirm paid or cancel a reservation)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. The verification
// outcome for "paid" is deferred to the sweeper by default; deployments that
// opt into synchronous verification get the outcome inline, with oracle
// failures degrading to "not yet confirmed" rather than hard errors.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-donation-backend/internal/http/middleware"
	"github.com/tbourn/go-donation-backend/internal/services"
	"github.com/tbourn/go-donation-backend/internal/sysutil"
	"github.com/tbourn/go-donation-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AllocationService defines link allocation operations consumed by HTTP
// handlers. Implementations should be safe for concurrent use and must honor
// the provided context for cancellation and timeouts.
type AllocationService interface {
	// Reserve picks an eligible link for amount and returns its widget URL.
	Reserve(ctx context.Context, amount int) (string, error)
	// Claim records a payment assertion for the link at url.
	Claim(ctx context.Context, url, claimant string) error
	// Cancel returns the link at url to the pool.
	Cancel(ctx context.Context, url string) error
	// Availability reports eligible link counts per configured amount.
	Availability(ctx context.Context) (map[int]int64, error)
}

// VerificationService defines the finalization operation used when
// synchronous verification is enabled.
type VerificationService interface {
	// Verify finalizes a claimed link against the balance oracle.
	Verify(ctx context.Context, url string) (services.VerifyOutcome, error)
}

// SweeperService defines the reconciliation pass behind /cleanup.
type SweeperService interface {
	// Sweep finalizes stale claims and reports aggregate counts.
	Sweep(ctx context.Context) (services.SweepReport, error)
}

// Greeter sends the webhook greeting reply. Implemented by the Telegram
// client in production; failures are logged and swallowed.
type Greeter interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for reservations, cleanup, and the bot
// webhook. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	allocSvc  AllocationService
	verifySvc VerificationService
	sweepSvc  SweeperService
	greeter   Greeter

	// verifyOnClaim enables the synchronous verification path for "paid".
	verifyOnClaim bool
}

// New constructs a Handlers instance bound to the given services. greeter
// may be nil when no bot token is configured.
func New(alloc AllocationService, verify VerificationService, sweep SweeperService, greeter Greeter, verifyOnClaim bool) *Handlers {
	return &Handlers{
		allocSvc:      alloc,
		verifySvc:     verify,
		sweepSvc:      sweep,
		greeter:       greeter,
		verifyOnClaim: verifyOnClaim,
	}
}

//
// DTOs
//

// ReserveResponse is returned when a link was successfully reserved.
type ReserveResponse struct {
	// WidgetURL is the externally hosted payment page to open.
	WidgetURL string `json:"widgetUrl" example:"https://tinyurl.com/ye7dfa8x"`
	// Reserved is always true on success.
	Reserved bool `json:"reserved" example:"true"`
}

// AvailabilityResponse reports eligible link counts keyed by amount.
type AvailabilityResponse struct {
	Availability map[int]int64 `json:"availability"`
}

// ConfirmRequest is the JSON payload for confirming or cancelling a
// reservation.
type ConfirmRequest struct {
	// Link is the previously reserved widget URL.
	Link string `json:"link" binding:"required" example:"https://tinyurl.com/ye7dfa8x"`
	// Action is "paid" (claim) or "cancel" (release).
	Action string `json:"action" binding:"required,oneof=paid cancel" example:"paid"`
	// ClaimantLabel optionally identifies who claims to have paid.
	ClaimantLabel string `json:"claimant_label" example:"alice"`
}

// ConfirmResponse acknowledges a claim or cancel. Verified is only present
// when synchronous verification ran.
type ConfirmResponse struct {
	Success  bool  `json:"success"`
	Verified *bool `json:"verified,omitempty"`
}

//
// Handlers
//

// Reserve godoc
// @ID          reserveLink
// @Summary     Reserve a donation link or query availability
// @Description With all=true, returns eligible link counts per amount. With amount=N, reserves one link of that denomination and returns its widget URL.
// @Tags        Reservations
// @Produce     json
//
// @Param       all     query  bool  false "Return availability for all amounts"
// @Param       amount  query  int   false "Donation amount to reserve" example(300)
//
// @Success     200  {object}  handlers.ReserveResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unrecognized amount"
// @Failure     503  {object}  handlers.ErrorResponse  "Pool exhausted"
// @Router      /reserve [get]
func (h *Handlers) Reserve(c *gin.Context) {
	ctx := c.Request.Context()

	if sysutil.IsTruthy(c.Query("all")) {
		av, err := h.allocSvc.Availability(ctx)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
			return
		}
		ok(c, http.StatusOK, AvailabilityResponse{Availability: av})
		return
	}

	amount := utils.AtoiDefault(c.Query("amount"), 0)
	widgetURL, err := h.allocSvc.Reserve(ctx, amount)
	switch {
	case err == nil:
		middleware.ObserveReservation(amount, "reserved")
		ok(c, http.StatusOK, ReserveResponse{WidgetURL: widgetURL, Reserved: true})
	case errors.Is(err, services.ErrInvalidAmount):
		middleware.ObserveReservation(amount, "invalid_amount")
		fail(c, http.StatusBadRequest, ErrCodeInvalidAmount, "invalid amount")
	case errors.Is(err, services.ErrNoAvailableLinks):
		middleware.ObserveReservation(amount, "exhausted")
		fail(c, http.StatusServiceUnavailable, ErrCodeNoLinks,
			"all links for this amount are currently reserved or used")
	case errors.Is(err, services.ErrStoreConflict):
		middleware.ObserveReservation(amount, "conflict")
		fail(c, http.StatusServiceUnavailable, ErrCodeConflict, "try again shortly")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// Confirm godoc
// @ID          confirmLink
// @Summary     Confirm payment or cancel a reservation
// @Description action=paid claims the link (verification deferred to the cleanup pass unless synchronous verification is enabled); action=cancel returns it to the pool immediately.
// @Tags        Reservations
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ConfirmRequest  true  "Confirmation payload"
//
// @Success     200  {object}  handlers.ConfirmResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Link not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Link already retired"
// @Router      /reserve [post]
func (h *Handlers) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "link and action (paid|cancel) required")
		return
	}
	ctx := c.Request.Context()
	link := strings.TrimSpace(req.Link)

	switch req.Action {
	case "paid":
		if err := h.allocSvc.Claim(ctx, link, strings.TrimSpace(req.ClaimantLabel)); err != nil {
			h.confirmError(c, err)
			return
		}
		if !h.verifyOnClaim || h.verifySvc == nil {
			ok(c, http.StatusOK, ConfirmResponse{Success: true})
			return
		}

		outcome, err := h.verifySvc.Verify(ctx, link)
		if err != nil {
			// Oracle trouble is not a claim failure: the claim stands and the
			// sweeper will finalize it later.
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Str("link", link).Msg("synchronous verification deferred")
			verified := false
			ok(c, http.StatusOK, ConfirmResponse{Success: true, Verified: &verified})
			return
		}
		verified := outcome == services.OutcomeConfirmed
		ok(c, http.StatusOK, ConfirmResponse{Success: true, Verified: &verified})

	case "cancel":
		if err := h.allocSvc.Cancel(ctx, link); err != nil {
			h.confirmError(c, err)
			return
		}
		ok(c, http.StatusOK, ConfirmResponse{Success: true})

	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action must be paid or cancel")
	}
}

// confirmError maps claim/cancel service errors onto HTTP responses.
func (h *Handlers) confirmError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrLinkNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "link not found")
	case errors.Is(err, services.ErrLinkRetired):
		fail(c, http.StatusConflict, ErrCodeLinkRetired, "link already verified and retired")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
