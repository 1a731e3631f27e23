package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-erp/stockyard/internal/documents"
	"github.com/stockyard-erp/stockyard/internal/platform/httpx"
	"github.com/stockyard-erp/stockyard/internal/shared"
	"github.com/stockyard-erp/stockyard/internal/stock"
)

// Handler wires HTTP endpoints for the procurement module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchase-orders", h.handleCreatePO)
	r.Get("/purchase-orders", h.handleListPOs)
	r.Get("/purchase-orders/{id}", h.handleGetPO)
	r.Post("/goods-receipts", h.handleCreateGRN)
	r.Get("/goods-receipts/{id}", h.handleGetGRN)
	r.Post("/purchase-returns", h.handleCreateReturn)
}

type lineRequest struct {
	ItemID   int64 `json:"item_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

type createPORequest struct {
	Number       string        `json:"number"`
	VendorID     int64         `json:"vendor_id" validate:"required,gt=0"`
	WarehouseID  int64         `json:"warehouse_id" validate:"required,gt=0"`
	DeliveryDate string        `json:"delivery_date"`
	Remarks      string        `json:"remarks"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createGRNRequest struct {
	Number      string        `json:"number"`
	POID        int64         `json:"po_id" validate:"required,gt=0"`
	WarehouseID int64         `json:"warehouse_id" validate:"required,gt=0"`
	Remarks     string        `json:"remarks"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createReturnRequest struct {
	GRNID       int64         `json:"grn_id" validate:"required,gt=0"`
	WarehouseID int64         `json:"warehouse_id"`
	Remarks     string        `json:"remarks"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type poResponse struct {
	ID           int64          `json:"id"`
	Number       string         `json:"number"`
	VendorID     int64          `json:"vendor_id"`
	WarehouseID  int64          `json:"warehouse_id"`
	Status       string         `json:"status"`
	DeliveryDate string         `json:"delivery_date,omitempty"`
	Remarks      string         `json:"remarks,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	Lines        []lineResponse `json:"lines,omitempty"`
}

type lineResponse struct {
	ItemID   int64 `json:"item_id"`
	Quantity int64 `json:"quantity"`
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var deliveryDate time.Time
	if req.DeliveryDate != "" {
		t, err := time.Parse("2006-01-02", req.DeliveryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid delivery_date")
			return
		}
		deliveryDate = t
	}
	actor := shared.ActorFromContext(r.Context())

	po, err := h.service.CreatePurchaseOrder(r.Context(), CreatePOInput{
		Number:       req.Number,
		VendorID:     req.VendorID,
		WarehouseID:  req.WarehouseID,
		DeliveryDate: deliveryDate,
		Remarks:      req.Remarks,
		ActorID:      actor.ID,
		Lines:        toLineInputs(req.Lines),
	})
	if err != nil {
		h.respondError(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPOResponse(po, nil))
}

func (h *Handler) handleListPOs(w http.ResponseWriter, r *http.Request) {
	pos, err := h.service.ListPurchaseOrders(r.Context())
	if err != nil {
		h.respondError(w, "list purchase orders", err)
		return
	}
	out := make([]poResponse, 0, len(pos))
	for _, po := range pos {
		out = append(out, toPOResponse(po, nil))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	po, lines, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPOResponse(po, lines))
}

func (h *Handler) handleCreateGRN(w http.ResponseWriter, r *http.Request) {
	var req createGRNRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	grn, err := h.service.CreateGoodsReceipt(r.Context(), CreateGRNInput{
		Number:      req.Number,
		POID:        req.POID,
		WarehouseID: req.WarehouseID,
		Remarks:     req.Remarks,
		ActorID:     actor.ID,
		Lines:       toLineInputs(req.Lines),
	})
	if err != nil {
		h.respondError(w, "create goods receipt", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":           grn.ID,
		"number":       grn.Number,
		"po_id":        grn.POID,
		"warehouse_id": grn.WarehouseID,
		"received_at":  grn.ReceivedAt.Format(time.RFC3339),
	})
}

func (h *Handler) handleGetGRN(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	grn, lines, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, "get goods receipt", err)
		return
	}
	outLines := make([]lineResponse, 0, len(lines))
	for _, l := range lines {
		outLines = append(outLines, lineResponse{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":           grn.ID,
		"number":       grn.Number,
		"po_id":        grn.POID,
		"warehouse_id": grn.WarehouseID,
		"remarks":      grn.Remarks,
		"received_at":  grn.ReceivedAt.Format(time.RFC3339),
		"lines":        outLines,
	})
}

func (h *Handler) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req createReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	ret, err := h.service.CreatePurchaseReturn(r.Context(), CreateReturnInput{
		GRNID:       req.GRNID,
		WarehouseID: req.WarehouseID,
		Remarks:     req.Remarks,
		ActorID:     actor.ID,
		Lines:       toLineInputs(req.Lines),
	})
	if err != nil {
		h.respondError(w, "create purchase return", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":           ret.ID,
		"number":       ret.Number,
		"grn_id":       ret.GRNID,
		"warehouse_id": ret.WarehouseID,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, documents.ErrSourceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation),
		errors.Is(err, documents.ErrInvalidQuantity),
		errors.Is(err, documents.ErrEmptyLines),
		errors.Is(err, documents.ErrItemNotInSource):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, documents.ErrExceedsAvailable), errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Quantity Conflict", err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return out
}

func toPOResponse(po PurchaseOrder, lines []POLine) poResponse {
	resp := poResponse{
		ID:          po.ID,
		Number:      po.Number,
		VendorID:    po.VendorID,
		WarehouseID: po.WarehouseID,
		Status:      string(po.Status),
		Remarks:     po.Remarks,
	}
	if !po.DeliveryDate.IsZero() {
		resp.DeliveryDate = po.DeliveryDate.Format("2006-01-02")
	}
	if !po.CreatedAt.IsZero() {
		resp.CreatedAt = po.CreatedAt.Format(time.RFC3339)
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, lineResponse{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return resp
}
