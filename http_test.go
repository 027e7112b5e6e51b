package bankgrow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tksoft/bankgrow"
	"github.com/tksoft/bankgrow/mocks"
)

func TestHTTPDeposit(t *testing.T) {
	nooplog := zerolog.Nop()

	t.Run("returns the new balance on success", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		bal := decimal.NewFromInt(1234)
		svc.EXPECT().
			Deposit(gomock.AssignableToTypeOf(bankgrow.ChargeReq{})).
			DoAndReturn(func(r bankgrow.ChargeReq) (*decimal.Decimal, error) {
				return &bal, nil
			}).
			Times(1)

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"amount":1234.00}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts/1834563581361305763/deposit", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusOK, w.Code)
		resp := map[string]string{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		as.Nil(err)
		as.Contains(resp, "balance")
		as.Equal(resp["balance"], "1234")
	})

	t.Run("returns an error on an invalid user ID", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)

		body := bytes.NewBufferString(`{"amount":1234.00}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts/24j24g*()/deposit", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusNotFound, w.Code)
		resp := map[string]string{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		reqrd.Nil(err)
		as.Contains(resp, "path")
	})

	t.Run("returns an error on a malformed request body", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)

		body := bytes.NewBufferString(`{"amount":1234.00`)
		req := httptest.NewRequest(http.MethodPost, "/accounts/123456789/deposit", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusBadRequest, w.Code)
		resp := map[string]map[string]string{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		reqrd.Nil(err)
		as.Contains(resp, "fields")
		as.Contains(resp["fields"], "request body")
	})
}

func TestHTTPWithdraw(t *testing.T) {
	nooplog := zerolog.Nop()

	t.Run("maps insufficient funds to 422", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Withdraw(gomock.AssignableToTypeOf(bankgrow.ChargeReq{})).
			Return(nil, bankgrow.ErrInsufficientFunds{UserID: 1834563581361305763})

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"amount":50.00}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts/1834563581361305763/withdraw", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusUnprocessableEntity, w.Code)
		resp := map[string]int64{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		reqrd.Nil(err)
		as.Contains(resp, "user_id")
	})

	t.Run("maps a lost race to 409 so the caller can retry", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Withdraw(gomock.AssignableToTypeOf(bankgrow.ChargeReq{})).
			Return(nil, bankgrow.ErrConcurrentModification{UserID: 1834563581361305763})

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"amount":50.00}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts/1834563581361305763/withdraw", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusConflict, w.Code)
	})

	t.Run("maps a timed-out store call to 503 so the caller can retry", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Withdraw(gomock.AssignableToTypeOf(bankgrow.ChargeReq{})).
			Return(nil, fmt.Errorf("withdraw user 1834563581361305763: %w", context.DeadlineExceeded))

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"amount":50.00}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts/1834563581361305763/withdraw", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusServiceUnavailable, w.Code)
		resp := map[string]string{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		reqrd.Nil(err)
		as.Contains(resp["message"], "try again")
	})

	t.Run("maps an unclassified failure to 500", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Withdraw(gomock.AssignableToTypeOf(bankgrow.ChargeReq{})).
			Return(nil, errors.New("connection reset by peer"))

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"amount":50.00}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts/1834563581361305763/withdraw", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusInternalServerError, w.Code)
		resp := map[string]string{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		reqrd.Nil(err)
		as.Equal(bankgrow.ErrInternalServer.Error(), resp["message"])
	})
}

func TestHTTPTransfer(t *testing.T) {
	nooplog := zerolog.Nop()

	t.Run("returns OK on success", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Transfer(gomock.AssignableToTypeOf(bankgrow.TransferReq{})).
			Return(nil).
			Times(1)

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"from_user_id":"1834563581361305763","to_user_id":"1834563581361305764","amount":25.00}`)
		req := httptest.NewRequest(http.MethodPost, "/transfers", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusOK, w.Code)
		resp := map[string]string{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		as.Nil(err)
		as.Equal("OK", resp["status"])
	})

	t.Run("maps a self-transfer rejection to 400", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Transfer(gomock.AssignableToTypeOf(bankgrow.TransferReq{})).
			Return(bankgrow.ErrBadRequest{Fields: map[string]string{"to_user_id": "cannot transfer to the same account"}})

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"from_user_id":"1834563581361305763","to_user_id":"1834563581361305763","amount":25.00}`)
		req := httptest.NewRequest(http.MethodPost, "/transfers", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusBadRequest, w.Code)
	})
}

func TestHTTPBalance(t *testing.T) {
	nooplog := zerolog.Nop()

	t.Run("returns the balance amount", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		balance := decimal.NewFromFloat(123.45)
		svc.EXPECT().
			Balance(gomock.AssignableToTypeOf(bankgrow.BalanceReq{})).
			DoAndReturn(func(r bankgrow.BalanceReq) (*decimal.Decimal, error) {
				return &balance, nil
			}).
			Times(1)

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		req := httptest.NewRequest(http.MethodGet, "/accounts/1834563581361305763/balance", nil)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusOK, w.Code)
		resp := map[string]string{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		as.Nil(err)
		as.Contains(resp, "balance")
		as.Equal(resp["balance"], balance.String())
	})

	t.Run("returns 404 for an unknown account", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			Balance(gomock.AssignableToTypeOf(bankgrow.BalanceReq{})).
			Return(nil, bankgrow.ErrNotFound{UserID: 1834563581361305763})

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		req := httptest.NewRequest(http.MethodGet, "/accounts/1834563581361305763/balance", nil)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusNotFound, w.Code)
	})
}

func TestHTTPCreateAccount(t *testing.T) {
	nooplog := zerolog.Nop()

	t.Run("returns 201 with the created account", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		svc.EXPECT().
			CreateAccount(gomock.AssignableToTypeOf(bankgrow.CreateAccountReq{})).
			DoAndReturn(func(r bankgrow.CreateAccountReq) (*bankgrow.Account, error) {
				return &bankgrow.Account{
					UserID:        r.UserID,
					Balance:       r.Balance,
					GrowthCeiling: r.GrowthCeiling,
				}, nil
			})

		hndlr := bankgrow.NewHTTPHandler(svc, &nooplog)
		body := bytes.NewBufferString(`{"user_id":"1834563581361305763","balance":100.00,"growth_ceiling":150.00}`)
		req := httptest.NewRequest(http.MethodPost, "/accounts", body)
		w := httptest.NewRecorder()
		hndlr.ServeHTTP(w, req)

		as.Equal(http.StatusCreated, w.Code)
		resp := map[string]any{}
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		reqrd.Nil(err)
		as.Equal("1834563581361305763", resp["user_id"])
	})
}
