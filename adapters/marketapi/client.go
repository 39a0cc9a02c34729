// Package marketapi is the HTTP client of the marketplace backend.
package marketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

const defaultTimeout = 15 * time.Second

// Client calls the marketplace backend. Every failure wraps core.ErrBackend;
// nothing is retried.
type Client struct {
	baseURL string
	client  *http.Client
	token   string
}

var _ ports.MarketAPI = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of the client that sends token as bearer.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the bearer token, if any.
func (c *Client) Token() string {
	return c.token
}

// Error is a non-2xx answer of the backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status=%d %s", core.ErrBackend, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return core.ErrBackend }

func (c *Client) SellerAddress(ctx context.Context, itemID int64) (string, error) {
	var resp struct {
		SellerAddress string `json:"seller_address"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_seller/"+strconv.FormatInt(itemID, 10), nil, "", &resp); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return "", fmt.Errorf("%w: %w", core.ErrItemNotFound, err)
		}
		return "", err
	}
	return resp.SellerAddress, nil
}

func (c *Client) ContractConfig(ctx context.Context) (*core.ContractConfig, error) {
	var cfg core.ContractConfig
	if err := c.do(ctx, http.MethodGet, "/static/deployedAddress.json", nil, "", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) ConfirmPurchase(ctx context.Context, itemID int64, confirmation core.PurchaseConfirmation) error {
	return c.doJSON(ctx, http.MethodPost, "/buy/offer/"+strconv.FormatInt(itemID, 10), confirmation, nil)
}

func (c *Client) Profile(ctx context.Context, address string) (*core.Profile, error) {
	var profile core.Profile
	if err := c.doJSON(ctx, http.MethodPost, "/api/profile", userAddress{address}, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) Transactions(ctx context.Context, address string) ([]core.TransactionView, error) {
	var views []core.TransactionView
	if err := c.doJSON(ctx, http.MethodPost, "/api/transactions", userAddress{address}, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// ItemEdit is the multipart body of an item update. Empty fields are kept.
type ItemEdit struct {
	Name          string
	Description   string
	Price         string
	ImageFilename string
	Image         io.Reader
}

// UpdateItem edits a listing. Requires a token.
func (c *Client) UpdateItem(ctx context.Context, owner string, itemID int64, edit ItemEdit) (*core.Item, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"itemId", strconv.FormatInt(itemID, 10)},
		{"itemName", edit.Name},
		{"itemDescription", edit.Description},
		{"itemPrice", edit.Price},
		{"userAddress", owner},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if edit.Image != nil {
		fw, err := mw.CreateFormFile("itemImage", edit.ImageFilename)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(fw, edit.Image); err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp struct {
		Item core.Item `json:"item"`
	}
	path := "/api/item/" + strconv.FormatInt(itemID, 10) + "/update"
	if err := c.do(ctx, http.MethodPost, path, &body, mw.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return &resp.Item, nil
}

// DeleteItem removes a listing. Requires a token.
func (c *Client) DeleteItem(ctx context.Context, owner string, itemID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/item/"+strconv.FormatInt(itemID, 10)+"/delete", userAddress{owner}, nil)
}

// Authenticate signs in addr through the challenge flow and returns a client
// carrying the access token.
func (c *Client) Authenticate(ctx context.Context, signer ports.TextSigner, addr common.Address) (*Client, error) {
	var challenge struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/challenge", map[string]string{"address": addr.Hex()}, &challenge); err != nil {
		return nil, err
	}

	sig, err := signer.SignText(ctx, addr, []byte(challenge.Message))
	if err != nil {
		return nil, err
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	login := map[string]string{
		"challenge_token": challenge.Token,
		"signature":       hexutil.Encode(sig),
		"address":         addr.Hex(),
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", login, &tokens); err != nil {
		return nil, err
	}
	return c.WithToken(tokens.AccessToken), nil
}

type userAddress struct {
	UserAddress string `json:"user_address"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, bytes.NewReader(payload), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrBackend, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", core.ErrBackend, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", core.ErrBackend, path, err)
	}
	return nil
}
