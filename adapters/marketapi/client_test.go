package marketapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/agora/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const seller = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) SignText(ctx context.Context, addr common.Address, msg []byte) ([]byte, error) {
	args := m.Called(ctx, addr, msg)
	sig, _ := args.Get(0).([]byte)
	return sig, args.Error(1)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newBackend(t *testing.T) (*httptest.Server, *http.ServeMux) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mux
}

func TestClient_PurchaseEndpoints(t *testing.T) {
	srv, mux := newBackend(t)
	var confirmed core.PurchaseConfirmation

	mux.HandleFunc("GET /get_seller/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Item not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"seller_address": seller})
	})
	mux.HandleFunc("GET /static/deployedAddress.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"contractAddress": "0x5FbDB2315678afecb367f032d93F642f64180aa3", "abi": []any{}})
	})
	mux.HandleFunc("POST /buy/offer/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "8" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Item nicht verfügbar oder nicht gefunden."})
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&confirmed))
		writeJSON(w, http.StatusOK, map[string]any{"message": "Kauf erfolgreich!", "transaction_id": 1})
	})

	client := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	got, err := client.SellerAddress(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, seller, got)

	_, err = client.SellerAddress(ctx, 9)
	assert.ErrorIs(t, err, core.ErrItemNotFound)
	assert.ErrorIs(t, err, core.ErrBackend)

	cfg, err := client.ContractConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", cfg.ContractAddress)
	assert.JSONEq(t, `[]`, string(cfg.ABI))

	require.NoError(t, client.ConfirmPurchase(ctx, 7, core.PurchaseConfirmation{BuyerAddress: seller, TxHash: "0x01"}))
	assert.Equal(t, core.PurchaseConfirmation{BuyerAddress: seller, TxHash: "0x01"}, confirmed)

	err = client.ConfirmPurchase(ctx, 8, core.PurchaseConfirmation{BuyerAddress: seller})
	require.ErrorIs(t, err, core.ErrBackend)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Item nicht verfügbar oder nicht gefunden.", apiErr.Message)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(srv.URL, time.Second).SellerAddress(context.Background(), 1)
	assert.ErrorIs(t, err, core.ErrBackend)
}

func TestClient_ProfileAndTransactions(t *testing.T) {
	srv, mux := newBackend(t)
	mux.HandleFunc("POST /api/profile", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, seller, req["user_address"])
		writeJSON(w, http.StatusOK, core.Profile{Sales: []core.Item{{ID: 1, Name: "Lamp"}}, Purchases: []core.Item{}})
	})
	mux.HandleFunc("POST /api/transactions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{
			"item_name": "Rug", "seller_address": seller, "date": "2025-01-02 03:04:05", "price_eth": "2", "image_url": "",
		}})
	})

	client := NewClient(srv.URL, 0)
	ctx := context.Background()

	profile, err := client.Profile(ctx, seller)
	require.NoError(t, err)
	require.Len(t, profile.Sales, 1)
	assert.Equal(t, "Lamp", profile.Sales[0].Name)

	views, err := client.Transactions(ctx, seller)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Rug", views[0].ItemName)
	assert.Equal(t, "2025-01-02 03:04:05", views[0].Date)
}

func TestClient_AuthenticatedItemCalls(t *testing.T) {
	srv, mux := newBackend(t)
	addr := common.HexToAddress(seller)

	mux.HandleFunc("POST /auth/challenge", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"token": "challenge-token", "message": "Sign in to Agora"})
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "challenge-token", req["challenge_token"])
		assert.Equal(t, "0x0102", req["signature"])
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-token", "token_type": "Bearer"})
	})
	mux.HandleFunc("POST /api/item/{id}/update", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Desk lamp", r.FormValue("itemName"))
		assert.Equal(t, seller, r.FormValue("userAddress"))
		assert.Empty(t, r.FormValue("itemDescription"))
		f, header, err := r.FormFile("itemImage")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "lamp.png", header.Filename)
		assert.Equal(t, "png", string(data))
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok", "item": map[string]any{"id": 3, "name": "Desk lamp"}})
	})
	mux.HandleFunc("DELETE /api/item/{id}/delete", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid authorization header"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	})

	signer := &mockSigner{}
	signer.On("SignText", mock.Anything, addr, []byte("Sign in to Agora")).Return([]byte{1, 2}, nil).Once()

	ctx := context.Background()
	anonymous := NewClient(srv.URL, time.Second)
	assert.ErrorIs(t, anonymous.DeleteItem(ctx, seller, 3), core.ErrBackend)

	client, err := anonymous.Authenticate(ctx, signer, addr)
	require.NoError(t, err)
	assert.Equal(t, "access-token", client.Token())
	assert.Empty(t, anonymous.Token(), "authenticate returns a copy")
	signer.AssertExpectations(t)

	item, err := client.UpdateItem(ctx, seller, 3, ItemEdit{Name: "Desk lamp", ImageFilename: "lamp.png", Image: strings.NewReader("png")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), item.ID)
	assert.Equal(t, "Desk lamp", item.Name)

	require.NoError(t, client.DeleteItem(ctx, seller, 3))
}

func TestClient_AuthenticateRejected(t *testing.T) {
	srv, mux := newBackend(t)
	mux.HandleFunc("POST /auth/challenge", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"token": "t", "message": "m"})
	})

	signer := &mockSigner{}
	signer.On("SignText", mock.Anything, mock.Anything, mock.Anything).Return(nil, core.ErrUserRejected)

	_, err := NewClient(srv.URL, time.Second).Authenticate(context.Background(), signer, common.HexToAddress(seller))
	assert.ErrorIs(t, err, core.ErrUserRejected)
}
