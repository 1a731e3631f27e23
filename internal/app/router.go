package app

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockyard-erp/stockyard/internal/masterdata/items"
	"github.com/stockyard-erp/stockyard/internal/masterdata/warehouses"
	"github.com/stockyard-erp/stockyard/internal/platform/httpx"
	"github.com/stockyard-erp/stockyard/internal/procurement"
	"github.com/stockyard-erp/stockyard/internal/sales"
	"github.com/stockyard-erp/stockyard/internal/stock"
	"github.com/stockyard-erp/stockyard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	StockHandler       *stock.Handler
	ProcurementHandler *procurement.Handler
	SalesHandler       *sales.Handler
	ItemsHandler       *items.Handler
	WarehousesHandler  *warehouses.Handler
	Pool               *pgxpool.Pool
	Redis              *redis.Client
	Jobs               *jobs.Client
}

// NewRouter constructs the chi.Router with Stockyard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded","postgres":"down"}`))
				return
			}
		}
		// Redis only backs background jobs; report it but stay healthy.
		redisStatus := "ok"
		if params.Redis == nil {
			redisStatus = "disabled"
		} else if err := params.Redis.Ping(req.Context()).Err(); err != nil {
			redisStatus = "down"
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","redis":"` + redisStatus + `"}`))
	})

	r.Route("/stock", func(r chi.Router) {
		params.StockHandler.MountRoutes(r)
	})
	r.Post("/admin/reconcile", func(w http.ResponseWriter, req *http.Request) {
		if params.Jobs == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "background queue is not connected")
			return
		}
		q := req.URL.Query()
		payload := jobs.StockReconcilePayload{}
		payload.ItemID, _ = strconv.ParseInt(q.Get("item_id"), 10, 64)
		payload.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
		info, err := params.Jobs.EnqueueStockReconcile(req.Context(), payload)
		if err != nil {
			params.Logger.Error("enqueue reconcile", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": info.ID, "queue": info.Queue})
	})
	r.Route("/procurement", func(r chi.Router) {
		params.ProcurementHandler.MountRoutes(r)
	})
	r.Route("/sales", func(r chi.Router) {
		params.SalesHandler.MountRoutes(r)
	})
	r.Route("/masterdata", func(r chi.Router) {
		params.ItemsHandler.MountRoutes(r)
		params.WarehousesHandler.MountRoutes(r)
	})

	return r
}
