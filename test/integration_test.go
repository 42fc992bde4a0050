//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/monicaDelao/log430-labo8/internal/domain"
	"github.com/monicaDelao/log430-labo8/internal/messaging"
	"github.com/monicaDelao/log430-labo8/internal/orders"
	"github.com/monicaDelao/log430-labo8/internal/outbox"
	"github.com/monicaDelao/log430-labo8/internal/payments"
	"github.com/monicaDelao/log430-labo8/internal/saga"
	"github.com/monicaDelao/log430-labo8/internal/stocks"
)

func TestOrderRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := orders.NewOrderRepository(db)

	order := &domain.Order{
		UserID: "user-42",
		Items: []domain.OrderItem{
			{ProductID: "laptop-13", Quantity: 1, UnitPrice: 129900},
			{ProductID: "mouse-w", Quantity: 2, UnitPrice: 2999},
		},
		TotalAmount: 135898,
		PaymentLink: domain.NoPaymentLink,
	}

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	if order.ID == "" {
		t.Fatal("expected a generated order id")
	}

	loaded, err := repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected order to exist")
	}
	if loaded.UserID != "user-42" || loaded.TotalAmount != 135898 {
		t.Errorf("unexpected order: %+v", loaded)
	}
	if loaded.IsPaid {
		t.Error("new order should not be paid")
	}
	if loaded.PaymentLink != domain.NoPaymentLink {
		t.Errorf("expected payment link %q, got %q", domain.NoPaymentLink, loaded.PaymentLink)
	}
	if len(loaded.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(loaded.Items))
	}

	isPaid := true
	link := "http://gateway/payments/process/pay-1"
	updated, err := repo.SetPayment(ctx, order.ID, &isPaid, &link)
	if err != nil {
		t.Fatalf("failed to set payment: %v", err)
	}
	if !updated {
		t.Fatal("expected payment update to hit the order")
	}

	loaded, err = repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if !loaded.IsPaid || loaded.PaymentLink != link {
		t.Errorf("payment update not applied: %+v", loaded)
	}

	// Partial update: nil fields stay untouched.
	updated, err = repo.SetPayment(ctx, order.ID, nil, nil)
	if err != nil || !updated {
		t.Fatalf("no-op payment update failed: updated=%v err=%v", updated, err)
	}
	loaded, _ = repo.GetByID(ctx, order.ID)
	if !loaded.IsPaid || loaded.PaymentLink != link {
		t.Errorf("no-op update changed the order: %+v", loaded)
	}

	deleted, err := repo.Delete(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to delete order: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted order, got %d", deleted)
	}

	loaded, err = repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to look up deleted order: %v", err)
	}
	if loaded != nil {
		t.Error("expected deleted order to be gone")
	}
}

func TestStockRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := stocks.NewStockRepository(db)

	prices, err := repo.PricesFor(ctx, []string{"laptop-13", "mouse-w", "does-not-exist"})
	if err != nil {
		t.Fatalf("failed to resolve prices: %v", err)
	}
	if prices["laptop-13"] != 129900 || prices["mouse-w"] != 2999 {
		t.Errorf("unexpected prices: %v", prices)
	}
	if _, ok := prices["does-not-exist"]; ok {
		t.Error("unknown product should be absent from the price map")
	}

	quantityOf := func(id string) int {
		product, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("failed to get product %s: %v", id, err)
		}
		if product == nil {
			t.Fatalf("product %s not found", id)
		}
		return product.Quantity
	}

	before := quantityOf("keyboard-m")

	err = repo.CheckOut(ctx, []domain.EventItem{{ProductID: "keyboard-m", Quantity: 3}})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if got := quantityOf("keyboard-m"); got != before-3 {
		t.Errorf("expected quantity %d after checkout, got %d", before-3, got)
	}

	// One line over the available quantity fails the whole checkout;
	// the valid line must not be decremented either.
	monitorBefore := quantityOf("monitor-27")
	err = repo.CheckOut(ctx, []domain.EventItem{
		{ProductID: "monitor-27", Quantity: 1},
		{ProductID: "headset-bt", Quantity: 10000},
	})
	if !errors.Is(err, stocks.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := quantityOf("monitor-27"); got != monitorBefore {
		t.Errorf("partial checkout leaked: monitor-27 went from %d to %d", monitorBefore, got)
	}

	if err := repo.CheckIn(ctx, []domain.EventItem{{ProductID: "keyboard-m", Quantity: 3}}); err != nil {
		t.Fatalf("checkin failed: %v", err)
	}
	if got := quantityOf("keyboard-m"); got != before {
		t.Errorf("expected quantity restored to %d, got %d", before, got)
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("failed to list stock: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("expected 5 seeded products, got %d", len(all))
	}
}

func TestOutboxStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := outbox.NewStore(db)

	item := &outbox.Item{
		OrderID:     "order-1",
		UserID:      "user-1",
		TotalAmount: 5000,
		OrderItems:  []domain.EventItem{{ProductID: "mouse-w", Quantity: 2}},
	}

	if err := store.Stage(ctx, item); err != nil {
		t.Fatalf("failed to stage item: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected a generated outbox id")
	}
	if item.Status != outbox.StatusPending {
		t.Errorf("expected status %q, got %q", outbox.StatusPending, item.Status)
	}

	pending, err := store.ListPending(ctx, 0, 10)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != item.ID {
		t.Fatalf("expected the staged item to be pending, got %+v", pending)
	}
	if pending[0].TotalAmount != 5000 || len(pending[0].OrderItems) != 1 {
		t.Errorf("pending item lost data: %+v", pending[0])
	}

	claimed, err := store.Claim(ctx, item.ID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should win")
	}

	// A redelivered event claims the same row again and must lose.
	claimed, err = store.Claim(ctx, item.ID)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if claimed {
		t.Error("second claim should be a no-op")
	}

	pending, err = store.ListPending(ctx, 0, 10)
	if err != nil {
		t.Fatalf("failed to list pending after claim: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("claimed item still listed as pending: %+v", pending)
	}

	if err := store.MarkFailed(ctx, item.ID); err != nil {
		t.Fatalf("failed to mark item failed: %v", err)
	}
	claimed, err = store.Claim(ctx, item.ID)
	if err != nil {
		t.Fatalf("claim after failure errored: %v", err)
	}
	if claimed {
		t.Error("failed items are not claimable")
	}
}

// eventLog records every envelope published to the saga topic so tests
// can wait on terminal events without poking at consumer internals.
type eventLog struct {
	mu     sync.Mutex
	events []domain.Envelope
}

func (l *eventLog) record(evt domain.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
}

func (l *eventLog) find(orderID string, event domain.EventType) (domain.Envelope, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, evt := range l.events {
		if evt.OrderID == orderID && evt.Event == event {
			return evt, true
		}
	}
	return domain.Envelope{}, false
}

func (l *eventLog) waitFor(t *testing.T, orderID string, event domain.EventType, timeout time.Duration) domain.Envelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if evt, ok := l.find(orderID, event); ok {
			return evt
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s on order %s", event, orderID)
	return domain.Envelope{}
}

type noopProjection struct{}

func (noopProjection) Store(context.Context, *domain.Order) error { return nil }
func (noopProjection) Evict(context.Context, string) error        { return nil }

func TestSagaFlows(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.Default()
	const topic = "order.saga"
	const gatewayBaseURL = "http://localhost:8080"

	paymentsHandler := payments.NewHandler(logger)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments", paymentsHandler.HandleCreate)
	paymentsServer := httptest.NewServer(mux)
	defer paymentsServer.Close()

	orderRepo := orders.NewOrderRepository(db)
	stockRepo := stocks.NewStockRepository(db)
	outboxStore := outbox.NewStore(db)

	producer := messaging.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	commands := orders.NewCommands(orderRepo, stockRepo, noopProjection{}, producer, gatewayBaseURL, logger)
	paymentsClient := payments.NewClient(paymentsServer.URL, paymentsServer.Client())
	processor := outbox.NewProcessor(outboxStore, paymentsClient, producer, logger)

	registry := saga.NewRegistry(producer, logger)
	handlers := []saga.Handler{
		saga.NewOrderCreatedHandler(stockRepo, logger),
		saga.NewStockDecreasedHandler(outboxStore, processor, logger),
		saga.NewStockDecreaseFailedHandler(logger),
		saga.NewPaymentCreationFailedHandler(logger),
		saga.NewStockIncreasedHandler(stockRepo, logger),
		saga.NewPaymentCreatedHandler(commands, logger),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("failed to register handler for %s: %v", h.EventType(), err)
		}
	}

	consumer := messaging.NewConsumer(brokers, topic, "saga-worker-it",
		messaging.WithStartOffset(kafkago.FirstOffset))
	defer func() { _ = consumer.Close() }()
	go func() {
		_ = consumer.Consume(ctx, registry.Dispatch)
	}()

	// A second, independent reader mirrors the whole topic into an
	// in-memory log the assertions poll.
	log := &eventLog{}
	observer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "saga-observer-it",
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = observer.Close() }()
	go func() {
		for {
			msg, err := observer.ReadMessage(ctx)
			if err != nil {
				return
			}
			var evt domain.Envelope
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				continue
			}
			log.record(evt)
		}
	}()

	t.Run("order ends up paid", func(t *testing.T) {
		order, err := commands.Create(ctx, "user-happy", []orders.ItemRequest{
			{ProductID: "laptop-13", Quantity: 1},
			{ProductID: "mouse-w", Quantity: 2},
		})
		if err != nil {
			t.Fatalf("failed to create order: %v", err)
		}

		paid := log.waitFor(t, order.ID, domain.EventPaymentCreated, 90*time.Second)
		if paid.PaymentID == "" {
			t.Error("PaymentCreated without a payment id")
		}

		var loaded *domain.Order
		deadline := time.Now().Add(30 * time.Second)
		for time.Now().Before(deadline) {
			loaded, err = orderRepo.GetByID(ctx, order.ID)
			if err != nil {
				t.Fatalf("failed to reload order: %v", err)
			}
			if loaded != nil && loaded.IsPaid {
				break
			}
			time.Sleep(200 * time.Millisecond)
		}
		if loaded == nil || !loaded.IsPaid {
			t.Fatal("order never became paid")
		}
		wantPrefix := gatewayBaseURL + "/payments/process/"
		if !strings.HasPrefix(loaded.PaymentLink, wantPrefix) {
			t.Errorf("expected payment link under %q, got %q", wantPrefix, loaded.PaymentLink)
		}

		product, err := stockRepo.Get(ctx, "laptop-13")
		if err != nil {
			t.Fatalf("failed to load product: %v", err)
		}
		if product.Quantity != 9 {
			t.Errorf("expected laptop-13 quantity 9 after checkout, got %d", product.Quantity)
		}
	})

	t.Run("insufficient stock cancels the order", func(t *testing.T) {
		headsetBefore, err := stockRepo.Get(ctx, "headset-bt")
		if err != nil {
			t.Fatalf("failed to load product: %v", err)
		}

		order, err := commands.Create(ctx, "user-cancelled", []orders.ItemRequest{
			{ProductID: "headset-bt", Quantity: headsetBefore.Quantity + 1},
		})
		if err != nil {
			t.Fatalf("failed to create order: %v", err)
		}

		cancelled := log.waitFor(t, order.ID, domain.EventOrderCancelled, 90*time.Second)
		if !strings.HasPrefix(cancelled.CancellationReason, "insufficient stock") {
			t.Errorf("unexpected cancellation reason: %q", cancelled.CancellationReason)
		}

		headsetAfter, err := stockRepo.Get(ctx, "headset-bt")
		if err != nil {
			t.Fatalf("failed to reload product: %v", err)
		}
		if headsetAfter.Quantity != headsetBefore.Quantity {
			t.Errorf("failed checkout changed stock: %d -> %d", headsetBefore.Quantity, headsetAfter.Quantity)
		}

		loaded, err := orderRepo.GetByID(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to reload order: %v", err)
		}
		if loaded == nil {
			t.Fatal("expected the order row to survive cancellation")
		}
		if loaded.IsPaid {
			t.Error("cancelled order must not be paid")
		}
	})
}
