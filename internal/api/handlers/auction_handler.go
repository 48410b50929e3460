package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"agri-auction/internal/domain"
	"agri-auction/internal/services"
	"agri-auction/pkg/logger"
)

type AuctionHandler struct {
	auctionManager *services.AuctionManager
	bidService     *services.BidService
	settler        *services.AuctionSettler
	log            logger.Logger
}

type CreateAuctionRequest struct {
	ProductID    string    `json:"product_id"`
	SellerID     string    `json:"seller_id"`
	Quantity     float64   `json:"quantity"`
	StartPrice   float64   `json:"start_price"`
	ReservePrice *float64  `json:"reserve_price,omitempty"`
	MinIncrement *float64  `json:"min_increment,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

type PlaceBidRequest struct {
	BidderID   string  `json:"bidder_id"`
	BidderName string  `json:"bidder_name"`
	Amount     float64 `json:"amount"`
}

// SellerRequest identifies the seller acting on an auction.
type SellerRequest struct {
	SellerID string `json:"seller_id"`
}

type AuctionResponse struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	SellerID     string    `json:"seller_id"`
	Quantity     float64   `json:"quantity"`
	StartPrice   float64   `json:"start_price"`
	CurrentPrice float64   `json:"current_price"`
	ReservePrice *float64  `json:"reserve_price,omitempty"`
	MinIncrement *float64  `json:"min_increment,omitempty"`
	MinimumBid   float64   `json:"minimum_bid"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
}

type BidResponse struct {
	ID         string    `json:"id"`
	AuctionID  string    `json:"auction_id"`
	BidderID   string    `json:"bidder_id"`
	BidderName string    `json:"bidder_name,omitempty"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type OrderResponse struct {
	ID            string    `json:"id"`
	AuctionID     string    `json:"auction_id"`
	ProductID     string    `json:"product_id"`
	SellerID      string    `json:"seller_id"`
	BuyerID       string    `json:"buyer_id"`
	BidID         string    `json:"bid_id"`
	Quantity      float64   `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	TotalAmount   float64   `json:"total_amount"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	CreatedAt     time.Time `json:"created_at"`
}

type SettlementResponse struct {
	AuctionID    string         `json:"auction_id"`
	Outcome      string         `json:"outcome"`
	WinningBid   *BidResponse   `json:"winning_bid,omitempty"`
	Order        *OrderResponse `json:"order,omitempty"`
	RejectedBids int            `json:"rejected_bids"`
}

type ErrorResponse struct {
	Error        string   `json:"error"`
	Reason       string   `json:"reason,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	MinimumBid   *float64 `json:"minimum_bid,omitempty"`
}

func NewAuctionHandler(auctionManager *services.AuctionManager, bidService *services.BidService,
	settler *services.AuctionSettler, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctionManager: auctionManager,
		bidService:     bidService,
		settler:        settler,
		log:            log,
	}
}

func (h *AuctionHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions/:id", h.GetAuction)
	g.POST("/auctions/:id/cancel", h.CancelAuction)
	g.POST("/auctions/:id/settle", h.SettleAuction)
	g.GET("/auctions/:id/order", h.GetOrder)
	g.GET("/auctions/:id/bids", h.ListBids)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.POST("/auctions/:id/bids/:bidId/accept", h.AcceptBid)
	g.POST("/auctions/:id/bids/:bidId/reject", h.RejectBid)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	auction, err := h.auctionManager.CreateAuction(c.Request().Context(), services.CreateAuctionParams{
		ProductID:    req.ProductID,
		SellerID:     req.SellerID,
		Quantity:     req.Quantity,
		StartPrice:   req.StartPrice,
		ReservePrice: req.ReservePrice,
		MinIncrement: req.MinIncrement,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.auctionManager.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) CancelAuction(c echo.Context) error {
	var req SellerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	auction, err := h.auctionManager.CancelAuction(c.Request().Context(), c.Param("id"), req.SellerID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

func (h *AuctionHandler) SettleAuction(c echo.Context) error {
	result, err := h.settler.Settle(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSettlementResponse(result))
}

func (h *AuctionHandler) GetOrder(c echo.Context) error {
	order, err := h.auctionManager.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *AuctionHandler) ListBids(c echo.Context) error {
	bids, err := h.auctionManager.ListBids(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, *toBidResponse(b))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	bid, err := h.bidService.PlaceBid(c.Request().Context(), c.Param("id"), req.BidderID, req.BidderName, req.Amount)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toBidResponse(bid))
}

func (h *AuctionHandler) AcceptBid(c echo.Context) error {
	var req SellerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	result, err := h.settler.AcceptBid(c.Request().Context(), c.Param("id"), c.Param("bidId"), req.SellerID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSettlementResponse(result))
}

func (h *AuctionHandler) RejectBid(c echo.Context) error {
	var req SellerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	bid, err := h.settler.RejectBid(c.Request().Context(), c.Param("id"), c.Param("bidId"), req.SellerID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toBidResponse(bid))
}

func (h *AuctionHandler) writeError(c echo.Context, err error) error {
	var rejected *domain.BidRejectedError
	if errors.As(err, &rejected) {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:        rejected.Error(),
			Reason:       string(rejected.Reason),
			CurrentPrice: &rejected.CurrentPrice,
			MinimumBid:   &rejected.MinimumBid,
		})
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.Path(), "error", err)
		return c.JSON(status, ErrorResponse{Error: "internal error"})
	}
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound),
		errors.Is(err, domain.ErrBidNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAuctionSeller):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAuctionNotActive),
		errors.Is(err, domain.ErrAuctionNotEnded),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrBidNotOpen),
		errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAuction),
		errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func toAuctionResponse(a *domain.Auction) *AuctionResponse {
	return &AuctionResponse{
		ID:           a.ID,
		ProductID:    a.ProductID,
		SellerID:     a.SellerID,
		Quantity:     a.Quantity,
		StartPrice:   a.StartPrice,
		CurrentPrice: a.CurrentPrice,
		ReservePrice: a.ReservePrice,
		MinIncrement: a.MinIncrement,
		MinimumBid:   services.MinimumBid(a),
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Status:       a.Status.String(),
	}
}

func toBidResponse(b *domain.Bid) *BidResponse {
	return &BidResponse{
		ID:         b.ID,
		AuctionID:  b.AuctionID,
		BidderID:   b.BidderID,
		BidderName: b.BidderName,
		Amount:     b.Amount,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
	}
}

func toOrderResponse(o *domain.Order) *OrderResponse {
	return &OrderResponse{
		ID:            o.ID,
		AuctionID:     o.AuctionID,
		ProductID:     o.ProductID,
		SellerID:      o.SellerID,
		BuyerID:       o.BuyerID,
		BidID:         o.BidID,
		Quantity:      o.Quantity,
		UnitPrice:     o.UnitPrice,
		TotalAmount:   o.TotalAmount,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt,
	}
}

func toSettlementResponse(r *domain.SettlementResult) *SettlementResponse {
	resp := &SettlementResponse{
		AuctionID:    r.AuctionID,
		Outcome:      string(r.Outcome),
		RejectedBids: r.Rejected,
	}
	if r.WinningBid != nil {
		resp.WinningBid = toBidResponse(r.WinningBid)
	}
	if r.Order != nil {
		resp.Order = toOrderResponse(r.Order)
	}
	return resp
}
