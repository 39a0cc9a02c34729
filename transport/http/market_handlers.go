package http

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/service"
	"go.uber.org/zap"
)

// MarketHandlers serves the marketplace endpoints
type MarketHandlers struct {
	market         *service.MarketService
	deploymentFile string
	log            *zap.Logger
}

// NewMarketHandlers creates marketplace handlers. deploymentFile is the
// contract record served at /static/deployedAddress.json.
func NewMarketHandlers(market *service.MarketService, deploymentFile string, log *zap.Logger) *MarketHandlers {
	return &MarketHandlers{
		market:         market,
		deploymentFile: deploymentFile,
		log:            logger.OrNop(log),
	}
}

type addressRequest struct {
	UserAddress string `json:"user_address" binding:"required"`
}

// Available lists the items that can be bought
func (h *MarketHandlers) Available(c *gin.Context) {
	items, err := h.market.ListAvailable(c.Request.Context())
	if err != nil {
		h.internal(c, "failed to list items", err)
		return
	}
	if items == nil {
		items = []core.Item{}
	}
	c.JSON(http.StatusOK, items)
}

// Offer creates a listing from the sell form
func (h *MarketHandlers) Offer(c *gin.Context) {
	offer := service.Offer{
		Name:          c.PostForm("itemName"),
		Description:   c.PostForm("itemDescription"),
		Price:         c.PostForm("itemPrice"),
		SellerAddress: c.PostForm("sellerAddress"),
	}

	image, closeImage, err := formImage(c, "itemImage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image upload"})
		return
	}
	defer closeImage()

	item, err := h.market.CreateOffer(c.Request.Context(), offer, image)
	if err != nil {
		if h.clientError(c, err) {
			return
		}
		h.internal(c, "failed to create offer", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("Das Angebot für '%s' wurde erfolgreich erstellt!", item.Name),
		"item":    item,
	})
}

// Seller returns the seller address of an item
func (h *MarketHandlers) Seller(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	seller, err := h.market.SellerAddress(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		h.internal(c, "failed to look up seller", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"seller_address": seller})
}

// Buy records a purchase confirmed by the buyer's wallet
func (h *MarketHandlers) Buy(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	var req core.PurchaseConfirmation
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tx, err := h.market.RecordPurchase(c.Request.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrItemNotFound), errors.Is(err, core.ErrItemUnavailable):
			c.JSON(http.StatusBadRequest, gin.H{"error": core.UserMessage(err)})
		case errors.Is(err, core.ErrDuplicateTx):
			c.JSON(http.StatusConflict, gin.H{"error": "Transaction already recorded"})
		case errors.Is(err, core.ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid buyer address"})
		default:
			h.internal(c, "failed to record purchase", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Kauf erfolgreich!",
		"transaction_id": tx.ID,
	})
}

// Profile returns the sales and purchases of an address
func (h *MarketHandlers) Profile(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Benutzeradresse nicht gefunden"})
		return
	}

	profile, err := h.market.Profile(c.Request.Context(), req.UserAddress)
	if err != nil {
		if h.clientError(c, err) {
			return
		}
		h.internal(c, "failed to load profile", err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Transactions returns the purchase history of an address
func (h *MarketHandlers) Transactions(c *gin.Context) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Benutzeradresse nicht gefunden"})
		return
	}

	views, err := h.market.Transactions(c.Request.Context(), req.UserAddress)
	if err != nil {
		if h.clientError(c, err) {
			return
		}
		h.internal(c, "failed to load transactions", err)
		return
	}

	c.JSON(http.StatusOK, views)
}

// UpdateItem edits a listing of the authenticated seller
func (h *MarketHandlers) UpdateItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	owner, ok := h.owner(c, c.PostForm("userAddress"))
	if !ok {
		return
	}

	image, closeImage, err := formImage(c, "itemImage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image upload"})
		return
	}
	defer closeImage()

	edit := service.Edit{
		Name:        c.PostForm("itemName"),
		Description: c.PostForm("itemDescription"),
		Price:       c.PostForm("itemPrice"),
	}
	item, err := h.market.UpdateItem(c.Request.Context(), owner, id, edit, image)
	if err != nil {
		if h.clientError(c, err) {
			return
		}
		h.internal(c, "failed to update item", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Artikel aktualisiert", "item": item})
}

// DeleteItem removes a listing of the authenticated seller
func (h *MarketHandlers) DeleteItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}

	var req struct {
		UserAddress string `json:"user_address"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}
	owner, ok := h.owner(c, req.UserAddress)
	if !ok {
		return
	}

	if err := h.market.DeleteItem(c.Request.Context(), owner, id); err != nil {
		if h.clientError(c, err) {
			return
		}
		h.internal(c, "failed to delete item", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Artikel gelöscht"})
}

// Deployment serves the deployed contract record
func (h *MarketHandlers) Deployment(c *gin.Context) {
	if h.deploymentFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not deployed"})
		return
	}
	if _, err := os.Stat(h.deploymentFile); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not deployed"})
		return
	}
	c.File(h.deploymentFile)
}

// owner resolves the acting seller from the bearer token. A user address in
// the body, when given, must name the same account.
func (h *MarketHandlers) owner(c *gin.Context, claimed string) (string, bool) {
	address, ok := UserAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return "", false
	}
	if claimed != "" && !core.SameAddress(address, claimed) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Address does not match the signed-in wallet"})
		return "", false
	}
	return address, true
}

// clientError writes the response for errors caused by the request and
// reports whether it did.
func (h *MarketHandlers) clientError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, core.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
	case errors.Is(err, core.ErrNotItemOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not the seller of this item"})
	case errors.Is(err, core.ErrItemUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "Item already sold"})
	default:
		return false
	}
	return true
}

func (h *MarketHandlers) internal(c *gin.Context, msg string, err error) {
	h.log.Error(msg, zap.String(logger.RequestIDKey, logger.RequestID(c)), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func itemID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return 0, false
	}
	return id, true
}

// formImage opens an optional multipart file. The returned func closes it.
func formImage(c *gin.Context, field string) (*service.Image, func(), error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	f, err := header.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &service.Image{Filename: header.Filename, Content: f}, func() { f.Close() }, nil
}
