//go:build integration

package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/integrationtest"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/randompkg"
	"github.com/go-petr/pet-ledger/pkg/tokenpkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

func send(t *testing.T, method, url, owner string, body, data any) (int, string) {
	t.Helper()

	maker, err := tokenpkg.NewMaker(server.Config.TokenType, server.Config.TokenSymmetricKey)
	require.NoError(t, err)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)

	d := server.Config.AccessTokenDuration
	require.NoError(t, middleware.AddAuthorization(req, maker, middleware.AuthTypeBearer, owner, d))

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	res := web.Response{Data: data}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&res))

	return recorder.Code, res.Error
}

type walletData struct {
	Account domain.Account `json:"account"`
}

type balanceData struct {
	Balance domain.Balance `json:"balance"`
}

type entriesData struct {
	Entries []domain.Entry `json:"entries"`
}

func TestTransferAPI(t *testing.T) {
	defer integrationtest.Flush(t, server.DB)

	u1, u2 := randompkg.Owner(), randompkg.Owner()

	var w1, w2 walletData
	code, _ := send(t, http.MethodPost, "/wallets", u1, nil, &w1)
	require.Equal(t, http.StatusOK, code)
	code, _ = send(t, http.MethodPost, "/wallets", u2, nil, &w2)
	require.Equal(t, http.StatusOK, code)

	code, _ = send(t, http.MethodPost, "/wallets/deposit", u1, map[string]string{"amount": "100.00"}, nil)
	require.Equal(t, http.StatusOK, code)

	body := map[string]string{"destination_account_id": w2.Account.ID.String(), "amount": "40.00"}
	code, _ = send(t, http.MethodPost, "/transfers", u1, body, nil)
	require.Equal(t, http.StatusOK, code)

	body = map[string]string{"destination_account_id": w2.Account.ID.String(), "amount": "60.01"}
	code, msg := send(t, http.MethodPost, "/transfers", u1, body, nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, msg, domain.ErrInsufficientFunds.Error())

	var b1, b2 balanceData
	send(t, http.MethodGet, "/wallets/balance", u1, nil, &b1)
	send(t, http.MethodGet, "/wallets/balance", u2, nil, &b2)
	require.Equal(t, "60.00", b1.Balance.Balance.String())
	require.Equal(t, "40.00", b2.Balance.Balance.String())

	var statement entriesData
	code, _ = send(t, http.MethodGet, "/wallets/statement", u2, nil, &statement)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, statement.Entries, 1)
	require.Equal(t, domain.EntryTransfer, statement.Entries[0].Kind())
}

func TestConcurrentTransfersAPI(t *testing.T) {
	defer integrationtest.Flush(t, server.DB)

	u1, u2 := randompkg.Owner(), randompkg.Owner()

	var w1, w2 walletData
	send(t, http.MethodPost, "/wallets", u1, nil, &w1)
	send(t, http.MethodPost, "/wallets", u2, nil, &w2)
	send(t, http.MethodPost, "/wallets/deposit", u1, map[string]string{"amount": "50.00"}, nil)
	send(t, http.MethodPost, "/wallets/deposit", u2, map[string]string{"amount": "50.00"}, nil)

	const n = 10

	var wg sync.WaitGroup

	codes := make(chan int, 2*n)

	for i := 0; i < n; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			body := map[string]string{"destination_account_id": w2.Account.ID.String(), "amount": "1.00"}
			code, _ := send(t, http.MethodPost, "/transfers", u1, body, nil)
			codes <- code
		}()

		go func() {
			defer wg.Done()
			body := map[string]string{"destination_account_id": w1.Account.ID.String(), "amount": "1.00"}
			code, _ := send(t, http.MethodPost, "/transfers", u2, body, nil)
			codes <- code
		}()
	}

	wg.Wait()
	close(codes)

	for code := range codes {
		require.Equal(t, http.StatusOK, code)
	}

	var b1, b2 balanceData
	send(t, http.MethodGet, "/wallets/balance", u1, nil, &b1)
	send(t, http.MethodGet, "/wallets/balance", u2, nil, &b2)
	require.Equal(t, "50.00", b1.Balance.Balance.String())
	require.Equal(t, "50.00", b2.Balance.Balance.String())
}
