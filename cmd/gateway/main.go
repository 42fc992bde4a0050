package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/monicaDelao/log430-labo8/internal/gateway"
	"github.com/monicaDelao/log430-labo8/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	ordersServiceURL := os.Getenv("ORDERS_SERVICE_URL")
	if ordersServiceURL == "" {
		logger.Error("ORDERS_SERVICE_URL is required")
		os.Exit(1)
	}

	paymentsServiceURL := os.Getenv("PAYMENTS_SERVICE_URL")
	if paymentsServiceURL == "" {
		logger.Error("PAYMENTS_SERVICE_URL is required")
		os.Exit(1)
	}

	stocksServiceURL := os.Getenv("STOCKS_SERVICE_URL")
	if stocksServiceURL == "" {
		logger.Error("STOCKS_SERVICE_URL is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	ordersProxy := gateway.NewServiceProxy(ordersServiceURL, httpClient)
	paymentsProxy := gateway.NewServiceProxy(paymentsServiceURL, httpClient)
	stocksProxy := gateway.NewServiceProxy(stocksServiceURL, httpClient)
	handler := gateway.NewHandler(ordersProxy, paymentsProxy, stocksProxy, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("PATCH /orders/{id}/payment", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("DELETE /orders/{id}", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("POST /payments", telemetry.WithHTTPRoute(handler.HandlePayments))
	mux.HandleFunc("GET /payments/process/{id}", telemetry.WithHTTPRoute(handler.HandlePayments))
	mux.HandleFunc("GET /inventory/stock", telemetry.WithHTTPRoute(handler.HandleStocks))
	mux.HandleFunc("GET /inventory/stock/{productId}", telemetry.WithHTTPRoute(handler.HandleStocks))

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "gateway",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
