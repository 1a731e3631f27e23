package sales

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

// Handler wires HTTP endpoints for the sales module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales-orders", h.handleCreateSO)
	r.Get("/sales-orders", h.handleListSOs)
	r.Get("/sales-orders/{id}", h.handleGetSO)
	r.Post("/delivery-challans", h.handleCreateChallan)
	r.Get("/delivery-challans/{id}", h.handleGetChallan)
	r.Post("/invoices", h.handleCreateInvoice)
	r.Get("/invoices/{id}", h.handleGetInvoice)
	r.Post("/sales-returns", h.handleCreateReturn)
}

type lineRequest struct {
	ItemID   int64 `json:"item_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

type createSORequest struct {
	Number       string        `json:"number"`
	CustomerID   int64         `json:"customer_id" validate:"required,gt=0"`
	WarehouseID  int64         `json:"warehouse_id" validate:"required,gt=0"`
	DeliveryDate string        `json:"delivery_date"`
	Remarks      string        `json:"remarks"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createChallanRequest struct {
	Number      string        `json:"number"`
	SOID        int64         `json:"so_id" validate:"required,gt=0"`
	WarehouseID int64         `json:"warehouse_id"`
	Remarks     string        `json:"remarks"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createInvoiceRequest struct {
	ChallanID int64  `json:"challan_id" validate:"required,gt=0"`
	Remarks   string `json:"remarks"`
}

type createReturnRequest struct {
	InvoiceID   int64         `json:"invoice_id" validate:"required,gt=0"`
	WarehouseID int64         `json:"warehouse_id"`
	Remarks     string        `json:"remarks"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type soLineResponse struct {
	ItemID    int64 `json:"item_id"`
	Quantity  int64 `json:"quantity"`
	Delivered int64 `json:"delivered"`
}

type soResponse struct {
	ID           int64            `json:"id"`
	Number       string           `json:"number"`
	CustomerID   int64            `json:"customer_id"`
	WarehouseID  int64            `json:"warehouse_id"`
	Status       string           `json:"status"`
	DeliveryDate string           `json:"delivery_date,omitempty"`
	Remarks      string           `json:"remarks,omitempty"`
	CreatedAt    string           `json:"created_at,omitempty"`
	Lines        []soLineResponse `json:"lines,omitempty"`
}

func (h *Handler) handleCreateSO(w http.ResponseWriter, r *http.Request) {
	var req createSORequest
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

	so, err := h.service.CreateSalesOrder(r.Context(), CreateSOInput{
		Number:       req.Number,
		CustomerID:   req.CustomerID,
		WarehouseID:  req.WarehouseID,
		DeliveryDate: deliveryDate,
		Remarks:      req.Remarks,
		ActorID:      actor.ID,
		Lines:        toLineInputs(req.Lines),
	})
	if err != nil {
		h.respondError(w, "create sales order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSOResponse(so, nil))
}

func (h *Handler) handleListSOs(w http.ResponseWriter, r *http.Request) {
	var (
		sos []SalesOrder
		err error
	)
	if r.URL.Query().Get("undelivered") == "true" {
		sos, err = h.service.ListUndelivered(r.Context())
	} else {
		sos, err = h.service.ListSalesOrders(r.Context())
	}
	if err != nil {
		h.respondError(w, "list sales orders", err)
		return
	}
	out := make([]soResponse, 0, len(sos))
	for _, so := range sos {
		out = append(out, toSOResponse(so, nil))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetSO(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	so, lines, err := h.service.GetSalesOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, "get sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSOResponse(so, lines))
}

func (h *Handler) handleCreateChallan(w http.ResponseWriter, r *http.Request) {
	var req createChallanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	dc, err := h.service.CreateDeliveryChallan(r.Context(), CreateChallanInput{
		Number:      req.Number,
		SOID:        req.SOID,
		WarehouseID: req.WarehouseID,
		Remarks:     req.Remarks,
		ActorID:     actor.ID,
		Lines:       toLineInputs(req.Lines),
	})
	if err != nil {
		h.respondError(w, "create delivery challan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":           dc.ID,
		"number":       dc.Number,
		"so_id":        dc.SOID,
		"warehouse_id": dc.WarehouseID,
		"shipped_at":   dc.ShippedAt.Format(time.RFC3339),
	})
}

func (h *Handler) handleGetChallan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	dc, lines, err := h.service.GetDeliveryChallan(r.Context(), id)
	if err != nil {
		h.respondError(w, "get delivery challan", err)
		return
	}
	outLines := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		outLines = append(outLines, map[string]any{"item_id": l.ItemID, "quantity": l.Quantity})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":           dc.ID,
		"number":       dc.Number,
		"so_id":        dc.SOID,
		"warehouse_id": dc.WarehouseID,
		"remarks":      dc.Remarks,
		"shipped_at":   dc.ShippedAt.Format(time.RFC3339),
		"lines":        outLines,
	})
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	inv, err := h.service.CreateInvoiceFromChallan(r.Context(), CreateInvoiceInput{
		ChallanID: req.ChallanID,
		Remarks:   req.Remarks,
		ActorID:   actor.ID,
	})
	if err != nil {
		h.respondError(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         inv.ID,
		"number":     inv.Number,
		"challan_id": inv.ChallanID,
		"so_id":      inv.SOID,
	})
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	inv, lines, err := h.service.GetSalesInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}
	outLines := make([]map[string]any, 0, len(lines))
	for _, l := range lines {
		outLines = append(outLines, map[string]any{"item_id": l.ItemID, "quantity": l.Quantity})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":         inv.ID,
		"number":     inv.Number,
		"challan_id": inv.ChallanID,
		"so_id":      inv.SOID,
		"remarks":    inv.Remarks,
		"created_at": inv.CreatedAt.Format(time.RFC3339),
		"lines":      outLines,
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

	ret, err := h.service.CreateSalesReturn(r.Context(), CreateReturnInput{
		InvoiceID:   req.InvoiceID,
		WarehouseID: req.WarehouseID,
		Remarks:     req.Remarks,
		ActorID:     actor.ID,
		Lines:       toLineInputs(req.Lines),
	})
	if err != nil {
		h.respondError(w, "create sales return", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":           ret.ID,
		"number":       ret.Number,
		"invoice_id":   ret.InvoiceID,
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
	case errors.Is(err, ErrAlreadyInvoiced),
		errors.Is(err, documents.ErrExceedsAvailable),
		errors.Is(err, stock.ErrInsufficientStock):
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

func toSOResponse(so SalesOrder, lines []SOLine) soResponse {
	resp := soResponse{
		ID:          so.ID,
		Number:      so.Number,
		CustomerID:  so.CustomerID,
		WarehouseID: so.WarehouseID,
		Status:      string(so.Status),
		Remarks:     so.Remarks,
	}
	if !so.DeliveryDate.IsZero() {
		resp.DeliveryDate = so.DeliveryDate.Format("2006-01-02")
	}
	if !so.CreatedAt.IsZero() {
		resp.CreatedAt = so.CreatedAt.Format(time.RFC3339)
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, soLineResponse{ItemID: l.ItemID, Quantity: l.Quantity, Delivered: l.Delivered})
	}
	return resp
}
