package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Carts    cartService
	Checkout interface {
		checkoutService
		webhookService
	}
	Store          Pinger
	Metrics        *metrics.ServerMetrics
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	SessionTTL     time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	s := sessions{ttl: cfg.SessionTTL}

	cartHandler := NewCartHandler(cfg.Carts, s)
	checkoutHandler := NewCheckoutHandler(cfg.Checkout, s)
	webhookHandler := NewWebhookHandler(cfg.Checkout)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", healthHandler(cfg.Store))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/checkout", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/add", cartHandler.AddItem)
			r.Put("/item/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/item/{product_id}", cartHandler.RemoveItem)
		})
		r.Post("/process", checkoutHandler.ProcessCheckout)
		r.Post("/pay/{order_id}", checkoutHandler.RetryPayment)
		r.Post("/confirm/{order_id}", checkoutHandler.ConfirmPayment)
		r.Post("/refund/{order_id}", checkoutHandler.RefundPayment)
		r.Get("/order/{order_number}", checkoutHandler.GetOrderStatus)
		r.Post("/webhook/{provider}", webhookHandler.HandleWebhook)
	})

	return r
}

func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if store != nil {
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := store.Ping(pctx); err != nil {
				respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
