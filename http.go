package bankgrow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	statusOK = []byte(`{"status":"OK"}`)
)

type balanceJSONResp struct {
	Balance decimal.Decimal `json:"balance"`
}

type accountJSONResp struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	GrowthCeiling decimal.Decimal `json:"growth_ceiling"`
}

type transferJSONReq struct {
	FromUserID string          `json:"from_user_id"`
	ToUserID   string          `json:"to_user_id"`
	Amount     decimal.Decimal `json:"amount"`
}

func NewHTTPHandler(svc Service, log *zerolog.Logger) http.Handler {
	hndlr := &httpHandler{
		Svc: svc,
		Log: log,
	}
	mux := chi.NewMux()
	mux.NotFound(HTTPNotFound)
	mux.Route("/accounts", func(r chi.Router) {
		r.Post("/", hndlr.CreateAccount)
		r.Get("/", hndlr.Accounts)
		r.Route("/{userID:[0-9]+}", func(rr chi.Router) {
			rr.Post("/deposit", hndlr.Deposit)
			rr.Post("/withdraw", hndlr.Withdraw)
			rr.Get("/balance", hndlr.Balance)
			rr.Get("/statement", hndlr.Statement)
		})
	})
	mux.Post("/transfers", hndlr.Transfer)

	return mux
}

type httpHandler struct {
	Svc Service
	Log *zerolog.Logger
}

func (h *httpHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID        string          `json:"user_id"`
		Balance       decimal.Decimal `json:"balance"`
		GrowthCeiling decimal.Decimal `json:"growth_ceiling"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.Log.Err(err).Str("method", "create account").Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return
	}
	defer r.Body.Close()
	userID, err := snowflake.ParseString(body.UserID)
	if err != nil {
		h.Log.Err(err).Str("method", "create account").Msg("error parsing user ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"user_id": "invalid format"}})
		return
	}

	acct, err := h.Svc.CreateAccount(CreateAccountReq{
		UserID:        userID,
		Balance:       body.Balance,
		GrowthCeiling: body.GrowthCeiling,
	})
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := accountJSONResp{
		UserID:        acct.UserID.String(),
		Balance:       acct.Balance,
		GrowthCeiling: acct.GrowthCeiling,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		WriteHTTPError(w, err)
	}
}

func (h *httpHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, "deposit", h.Svc.Deposit)
}

func (h *httpHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.charge(w, r, "withdraw", h.Svc.Withdraw)
}

func (h *httpHandler) charge(w http.ResponseWriter, r *http.Request, method string, op func(ChargeReq) (*decimal.Decimal, error)) {
	var req ChargeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Log.Err(err).Str("method", method).Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return
	}
	defer r.Body.Close()
	pid := chi.URLParam(r, "userID")
	userID, err := snowflake.ParseString(pid)
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("error parsing user ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"userID": "invalid format"}})
		return
	}
	req.UserID = userID

	bal, err := op(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := balanceJSONResp{Balance: *bal}
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		WriteHTTPError(w, err)
	}
}

func (h *httpHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var body transferJSONReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.Log.Err(err).Str("method", "transfer").Msg("error unmarshalling JSON")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}})
		return
	}
	defer r.Body.Close()
	fromID, err := snowflake.ParseString(body.FromUserID)
	if err != nil {
		h.Log.Err(err).Str("method", "transfer").Msg("error parsing source user ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"from_user_id": "invalid format"}})
		return
	}
	toID, err := snowflake.ParseString(body.ToUserID)
	if err != nil {
		h.Log.Err(err).Str("method", "transfer").Msg("error parsing destination user ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"to_user_id": "invalid format"}})
		return
	}

	req := TransferReq{
		Amount:     body.Amount,
		FromUserID: fromID,
		ToUserID:   toID,
	}
	if err = h.Svc.Transfer(req); err != nil {
		WriteHTTPError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(statusOK); err != nil {
		WriteHTTPError(w, err)
	}
}

func (h *httpHandler) Balance(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "userID")
	userID, err := snowflake.ParseString(pid)
	if err != nil {
		h.Log.Err(err).Str("method", "balance").Msg("error parsing user ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"userID": "invalid format"}})
		return
	}

	bal, err := h.Svc.Balance(BalanceReq{UserID: userID})
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := balanceJSONResp{Balance: *bal}
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		WriteHTTPError(w, err)
	}
}

func (h *httpHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	accts, err := h.Svc.Accounts()
	if err != nil {
		WriteHTTPError(w, err)
		return
	}

	resp := make([]accountJSONResp, 0, len(accts))
	for _, a := range accts {
		resp = append(resp, accountJSONResp{
			UserID:        a.UserID.String(),
			Balance:       a.Balance,
			GrowthCeiling: a.GrowthCeiling,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(resp); err != nil {
		WriteHTTPError(w, err)
	}
}

func (h *httpHandler) Statement(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "userID")
	userID, err := snowflake.ParseString(pid)
	if err != nil {
		h.Log.Err(err).Str("method", "statement").Msg("error parsing user ID")
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"userID": "invalid format"}})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	if err = h.Svc.Statement(w, StatementReq{UserID: userID}); err != nil {
		WriteHTTPError(w, err)
		return
	}
}

func WriteHTTPError(w http.ResponseWriter, err error) {
	var ne error
	defer func() {
		if ne != nil {
			log.Error().
				Err(ne).
				Msg("error response encoding failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	errnf := &ErrNotFound{}
	errbr := &ErrBadRequest{}
	errif := &ErrInsufficientFunds{}
	errcm := &ErrConcurrentModification{}
	errce := &ErrCeilingExceeded{}
	switch {
	case errors.As(err, errnf):
		w.WriteHeader(http.StatusNotFound)
		ne = json.NewEncoder(w).Encode(errnf)
	case errors.As(err, errbr):
		w.WriteHeader(http.StatusBadRequest)
		ne = json.NewEncoder(w).Encode(errbr)
	case errors.As(err, errif):
		w.WriteHeader(http.StatusUnprocessableEntity)
		ne = json.NewEncoder(w).Encode(errif)
	case errors.As(err, errce):
		w.WriteHeader(http.StatusUnprocessableEntity)
		ne = json.NewEncoder(w).Encode(errce)
	case errors.As(err, errcm):
		// Retryable; distinguish it from final business rejections.
		w.WriteHeader(http.StatusConflict)
		ne = json.NewEncoder(w).Encode(errcm)
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, context.DeadlineExceeded):
		// A timed-out store call may or may not have applied; either way the
		// outcome is retryable, not a server fault.
		w.WriteHeader(http.StatusServiceUnavailable)
		resp := map[string]string{
			"message": "service unavailable, try again later",
		}
		ne = json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusInternalServerError)
		resp := map[string]string{
			"message": ErrInternalServer.Error(),
		}
		ne = json.NewEncoder(w).Encode(resp)
	}
}

func HTTPNotFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]string{
		"path": r.URL.Path,
	}
	json.NewEncoder(w).Encode(resp)
}
