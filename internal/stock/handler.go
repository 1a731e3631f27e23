package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-erp/stockyard/internal/platform/httpx"
	"github.com/stockyard-erp/stockyard/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.handleListBalances)
	r.Get("/balances/{itemID}/{warehouseID}", h.handleGetBalance)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/ledger", h.handleQueryLedger)
	})
	r.Post("/adjustments", h.handleAdjustment)
	r.Post("/transfers", h.handleTransfer)
}

type adjustmentRequest struct {
	ItemID      int64  `json:"item_id" validate:"required,gt=0"`
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Type        string `json:"type" validate:"required,oneof=increase decrease"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	Remarks     string `json:"remarks"`
}

type transferRequest struct {
	ItemID          int64  `json:"item_id" validate:"required,gt=0"`
	FromWarehouseID int64  `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64  `json:"to_warehouse_id" validate:"required,gt=0"`
	Quantity        int64  `json:"quantity" validate:"required,gt=0"`
	Remarks         string `json:"remarks"`
}

type ledgerEntryResponse struct {
	ID          int64  `json:"id"`
	ItemID      int64  `json:"item_id"`
	WarehouseID int64  `json:"warehouse_id"`
	Direction   string `json:"direction"`
	Quantity    int64  `json:"quantity"`
	Operation   string `json:"operation"`
	DocType     string `json:"doc_type,omitempty"`
	DocID       int64  `json:"doc_id,omitempty"`
	RefNo       string `json:"ref_no"`
	ActorID     int64  `json:"actor_id,omitempty"`
	Remarks     string `json:"remarks,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

type balanceResponse struct {
	ItemID        int64  `json:"item_id"`
	WarehouseID   int64  `json:"warehouse_id"`
	Quantity      int64  `json:"quantity"`
	LastUpdatedAt string `json:"last_updated_at"`
	LastUpdatedBy int64  `json:"last_updated_by,omitempty"`
	Remarks       string `json:"remarks,omitempty"`
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	itemID, err1 := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	warehouseID, err2 := strconv.ParseInt(chi.URLParam(r, "warehouseID"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item and warehouse ids must be integers")
		return
	}
	qty, err := h.service.GetBalance(r.Context(), itemID, warehouseID)
	if err != nil {
		h.logger.Error("get balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item_id": itemID, "warehouse_id": warehouseID, "quantity": qty})
}

func (h *Handler) handleListBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)

	balances, err := h.service.ListBalances(r.Context(), itemID, warehouseID)
	if err != nil {
		h.logger.Error("list balances", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			ItemID:        b.ItemID,
			WarehouseID:   b.WarehouseID,
			Quantity:      b.Quantity,
			LastUpdatedAt: b.LastUpdatedAt.Format(time.RFC3339),
			LastUpdatedBy: b.LastUpdatedBy,
			Remarks:       b.Remarks,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleQueryLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := LedgerFilter{}
	filter.ItemID, _ = strconv.ParseInt(q.Get("item_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.ActorID, _ = strconv.ParseInt(q.Get("actor_id"), 10, 64)
	filter.Operation = Operation(q.Get("operation"))
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		// End of day.
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	entries, err := h.service.QueryLedger(r.Context(), filter)
	if err != nil {
		h.logger.Error("query ledger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResponse{
			ID:          e.ID,
			ItemID:      e.ItemID,
			WarehouseID: e.WarehouseID,
			Direction:   string(e.Direction),
			Quantity:    e.Quantity,
			Operation:   string(e.Operation),
			DocType:     string(e.Document.Type),
			DocID:       e.Document.ID,
			RefNo:       e.RefNo,
			ActorID:     e.ActorID,
			Remarks:     e.Remarks,
			OccurredAt:  e.OccurredAt.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	entry, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Type:        AdjustmentType(req.Type),
		Quantity:    req.Quantity,
		ActorID:     actor.ID,
		Remarks:     req.Remarks,
	})
	if err != nil {
		h.respondStockError(w, "post adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"ref_no": entry.RefNo, "ledger_id": entry.ID})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())

	out, in, err := h.service.TransferStock(r.Context(), TransferInput{
		ItemID:          req.ItemID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Quantity:        req.Quantity,
		ActorID:         actor.ID,
		Remarks:         req.Remarks,
	})
	if err != nil {
		h.respondStockError(w, "post transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"out_ref_no": out.RefNo, "in_ref_no": in.RefNo})
}

func (h *Handler) respondStockError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidTransfer):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
