// Package ledgerdelivery manages delivery layer of wallets and transfers.
//
// Every route acts on the wallet of the authenticated owner, taken from the token
// payload set by middleware.AuthMiddleware.
package ledgerdelivery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

// Service provides service layer interface needed by ledger delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package ledgerdelivery
type Service interface {
	CreateAccount(ctx context.Context, ownerID string) (domain.Account, error)
	Deposit(ctx context.Context, ref domain.AccountRef, amount moneypkg.Money) (domain.Entry, error)
	Withdraw(ctx context.Context, ref domain.AccountRef, amount moneypkg.Money) (domain.Entry, error)
	Transfer(ctx context.Context, source, destination uuid.UUID, amount moneypkg.Money) (domain.Entry, error)
	CurrentBalance(ctx context.Context, ref domain.AccountRef) (domain.Balance, error)
	HistoricalBalance(ctx context.Context, ref domain.AccountRef, asOf time.Time) (domain.Balance, error)
	Statement(ctx context.Context, ref domain.AccountRef, asOf time.Time) ([]domain.Entry, error)
	AccountID(ctx context.Context, ownerID string) (uuid.UUID, error)
}

// Handler facilitates ledger delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns ledger handler.
func NewHandler(s Service) Handler {
	return Handler{service: s}
}

type accountData struct {
	Account domain.Account `json:"account"`
}

type entryData struct {
	Entry domain.Entry `json:"entry"`
}

type balanceData struct {
	Balance domain.Balance `json:"balance"`
}

type entriesData struct {
	Entries []domain.Entry `json:"entries"`
}

// bindErrorMsg turns a binding error into the message returned to the client.
func bindErrorMsg(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		field := ve[0]
		return field.Field() + web.GetErrorMsg(field)
	}

	return "invalid request"
}

// writeError maps service errors to HTTP statuses. Unexpected errors are hidden behind
// errorspkg.ErrInternal.
func writeError(gctx *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		gctx.JSON(http.StatusNotFound, web.Error(err))
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		gctx.JSON(http.StatusConflict, web.Error(err))
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrOperationNotAllowed),
		errors.Is(err, domain.ErrInvalidOwner):
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case errors.Is(err, domain.ErrBusy):
		gctx.JSON(http.StatusServiceUnavailable, web.Error(err))
	default:
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}

// Create handles http request to open the caller's wallet.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	authPayload := middleware.Payload(gctx)

	account, err := h.service.CreateAccount(ctx, authPayload.OwnerID)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: accountData{account}})
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required,money"`
}

// Deposit handles http request to deposit money into the caller's wallet.
func (h *Handler) Deposit(gctx *gin.Context) {
	h.move(gctx, h.service.Deposit)
}

// Withdraw handles http request to withdraw money from the caller's wallet.
func (h *Handler) Withdraw(gctx *gin.Context) {
	h.move(gctx, h.service.Withdraw)
}

func (h *Handler) move(
	gctx *gin.Context,
	op func(ctx context.Context, ref domain.AccountRef, amount moneypkg.Money) (domain.Entry, error),
) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req amountRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: bindErrorMsg(err)})

		return
	}

	amount, err := moneypkg.ParseAmount(req.Amount)
	if err != nil {
		gctx.JSON(http.StatusBadRequest, web.Error(err))
		return
	}

	authPayload := middleware.Payload(gctx)

	entry, err := op(ctx, domain.RefByOwner(authPayload.OwnerID), amount)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: entryData{entry}})
}

type transferRequest struct {
	DestinationAccountID string `json:"destination_account_id" binding:"required,uuid"`
	Amount               string `json:"amount" binding:"required,money"`
}

// Transfer handles http request to move money from the caller's wallet to another one.
func (h *Handler) Transfer(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req transferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: bindErrorMsg(err)})

		return
	}

	// The uuid binding tag has already validated the id.
	destination := uuid.MustParse(req.DestinationAccountID)

	amount, err := moneypkg.ParseAmount(req.Amount)
	if err != nil {
		gctx.JSON(http.StatusBadRequest, web.Error(err))
		return
	}

	authPayload := middleware.Payload(gctx)

	source, err := h.service.AccountID(ctx, authPayload.OwnerID)
	if err != nil {
		writeError(gctx, err)
		return
	}

	entry, err := h.service.Transfer(ctx, source, destination, amount)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: entryData{entry}})
}

type asOfRequest struct {
	At time.Time `form:"at" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Balance handles http request to get the caller's balance, now or at the instant
// given by the "at" query parameter.
func (h *Handler) Balance(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req asOfRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: "At must be an RFC3339 timestamp"})

		return
	}

	ref := domain.RefByOwner(middleware.Payload(gctx).OwnerID)

	var (
		balance domain.Balance
		err     error
	)

	if req.At.IsZero() {
		balance, err = h.service.CurrentBalance(ctx, ref)
	} else {
		balance, err = h.service.HistoricalBalance(ctx, ref, req.At)
	}

	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: balanceData{balance}})
}

// Statement handles http request to list the entries of the caller's wallet up to the
// "at" query parameter, or now.
func (h *Handler) Statement(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req asOfRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: "At must be an RFC3339 timestamp"})

		return
	}

	asOf := req.At
	if asOf.IsZero() {
		asOf = time.Now()
	}

	entries, err := h.service.Statement(ctx, domain.RefByOwner(middleware.Payload(gctx).OwnerID), asOf)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: entriesData{entries}})
}
