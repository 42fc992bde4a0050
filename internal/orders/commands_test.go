package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

type fakeOrderStore struct {
	createErr error
	created   []*domain.Order

	setPaymentErr error
	setPaymentOK  bool
	gotIsPaid     *bool
	gotLink       *string

	deleteCount int64
	deleteErr   error
}

func (s *fakeOrderStore) Create(_ context.Context, order *domain.Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	order.ID = "order-1"
	s.created = append(s.created, order)
	return nil
}

func (s *fakeOrderStore) SetPayment(_ context.Context, _ string, isPaid *bool, paymentLink *string) (bool, error) {
	if s.setPaymentErr != nil {
		return false, s.setPaymentErr
	}
	s.gotIsPaid = isPaid
	s.gotLink = paymentLink
	return s.setPaymentOK, nil
}

func (s *fakeOrderStore) Delete(_ context.Context, _ string) (int64, error) {
	return s.deleteCount, s.deleteErr
}

type fakeCatalog struct {
	prices map[string]int64
	err    error
}

func (c *fakeCatalog) PricesFor(_ context.Context, _ []string) (map[string]int64, error) {
	return c.prices, c.err
}

type fakeProjection struct {
	storeErr error
	stored   []string
	evicted  []string
}

func (p *fakeProjection) Store(_ context.Context, order *domain.Order) error {
	if p.storeErr != nil {
		return p.storeErr
	}
	p.stored = append(p.stored, order.ID)
	return nil
}

func (p *fakeProjection) Evict(_ context.Context, orderID string) error {
	p.evicted = append(p.evicted, orderID)
	return nil
}

type capturingPublisher struct {
	events []domain.Envelope
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.events = append(p.events, event.(domain.Envelope))
	return nil
}

func newTestCommands(store *fakeOrderStore, catalog *fakeCatalog, cache *fakeProjection, publisher *capturingPublisher) *Commands {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCommands(store, catalog, cache, publisher, "http://gateway:8080", logger)
}

func TestCommands_Create(t *testing.T) {
	t.Run("computes the total from prices captured at call time", func(t *testing.T) {
		store := &fakeOrderStore{}
		catalog := &fakeCatalog{prices: map[string]int64{"p1": 100, "p2": 250}}
		cache := &fakeProjection{}
		publisher := &capturingPublisher{}
		commands := newTestCommands(store, catalog, cache, publisher)

		order, err := commands.Create(context.Background(), "user-1", []ItemRequest{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p2", Quantity: 2},
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		if order.TotalAmount != 3*100+2*250 {
			t.Errorf("unexpected total %d", order.TotalAmount)
		}
		if order.PaymentLink != domain.NoPaymentLink {
			t.Errorf("expected sentinel payment link, got %q", order.PaymentLink)
		}
		if len(order.Items) != 2 || order.Items[0].UnitPrice != 100 {
			t.Errorf("unit prices not snapshotted: %+v", order.Items)
		}

		if len(cache.stored) != 1 || cache.stored[0] != "order-1" {
			t.Errorf("projection not written: %v", cache.stored)
		}

		if len(publisher.events) != 1 {
			t.Fatalf("expected exactly one terminal event, got %d", len(publisher.events))
		}
		evt := publisher.events[0]
		if evt.Event != domain.EventOrderCreated {
			t.Errorf("expected OrderCreated, got %s", evt.Event)
		}
		if evt.OrderID != "order-1" || evt.TotalAmount != order.TotalAmount {
			t.Errorf("event does not match order: %+v", evt)
		}
		if len(evt.OrderItems) != 2 {
			t.Errorf("event missing items: %+v", evt.OrderItems)
		}
	})

	t.Run("empty item list fails before any write", func(t *testing.T) {
		store := &fakeOrderStore{}
		cache := &fakeProjection{}
		publisher := &capturingPublisher{}
		commands := newTestCommands(store, &fakeCatalog{}, cache, publisher)

		_, err := commands.Create(context.Background(), "user-1", nil)
		if !errors.Is(err, ErrEmptyOrder) {
			t.Fatalf("expected ErrEmptyOrder, got %v", err)
		}

		if len(store.created) != 0 {
			t.Error("no order row may exist")
		}
		if len(cache.stored) != 0 {
			t.Error("no cache entry may exist")
		}
		if len(publisher.events) != 1 || publisher.events[0].Event != domain.EventOrderCreationFailed {
			t.Fatalf("expected exactly one OrderCreationFailed, got %+v", publisher.events)
		}
		if publisher.events[0].Error == "" {
			t.Error("failure event must carry the error message")
		}
	})

	t.Run("one unknown product fails the whole command", func(t *testing.T) {
		store := &fakeOrderStore{}
		catalog := &fakeCatalog{prices: map[string]int64{"p1": 100}}
		cache := &fakeProjection{}
		publisher := &capturingPublisher{}
		commands := newTestCommands(store, catalog, cache, publisher)

		_, err := commands.Create(context.Background(), "user-1", []ItemRequest{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "ghost", Quantity: 1},
		})
		if !errors.Is(err, ErrUnknownProduct) {
			t.Fatalf("expected ErrUnknownProduct, got %v", err)
		}

		if len(store.created) != 0 || len(cache.stored) != 0 {
			t.Error("partial failure must leave no order and no cache entry")
		}
		if len(publisher.events) != 1 || publisher.events[0].Event != domain.EventOrderCreationFailed {
			t.Fatalf("expected exactly one OrderCreationFailed, got %+v", publisher.events)
		}
	})

	t.Run("store failure rolls up to the caller and still emits the failure event", func(t *testing.T) {
		store := &fakeOrderStore{createErr: errors.New("connection reset")}
		catalog := &fakeCatalog{prices: map[string]int64{"p1": 100}}
		publisher := &capturingPublisher{}
		commands := newTestCommands(store, catalog, &fakeProjection{}, publisher)

		_, err := commands.Create(context.Background(), "user-1", []ItemRequest{{ProductID: "p1", Quantity: 1}})
		if err == nil {
			t.Fatal("expected an error")
		}

		if len(publisher.events) != 1 {
			t.Fatalf("expected exactly one terminal event, got %d", len(publisher.events))
		}
		evt := publisher.events[0]
		if evt.Event != domain.EventOrderCreationFailed || !strings.Contains(evt.Error, "connection reset") {
			t.Errorf("unexpected terminal event: %+v", evt)
		}
	})

	t.Run("cache failure does not undo the committed order", func(t *testing.T) {
		store := &fakeOrderStore{}
		catalog := &fakeCatalog{prices: map[string]int64{"p1": 100}}
		cache := &fakeProjection{storeErr: errors.New("redis down")}
		publisher := &capturingPublisher{}
		commands := newTestCommands(store, catalog, cache, publisher)

		order, err := commands.Create(context.Background(), "user-1", []ItemRequest{{ProductID: "p1", Quantity: 1}})
		if err != nil {
			t.Fatalf("cache failure must not fail the command: %v", err)
		}
		if order == nil || order.ID != "order-1" {
			t.Fatal("expected the committed order back")
		}
		if len(publisher.events) != 1 || publisher.events[0].Event != domain.EventOrderCreated {
			t.Errorf("expected OrderCreated despite cache failure, got %+v", publisher.events)
		}
	})
}

func TestCommands_SetPaymentDetails(t *testing.T) {
	t.Run("builds the canonical payment link", func(t *testing.T) {
		store := &fakeOrderStore{setPaymentOK: true}
		commands := newTestCommands(store, &fakeCatalog{}, &fakeProjection{}, &capturingPublisher{})

		isPaid := true
		paymentID := "pay-42"
		if !commands.SetPaymentDetails(context.Background(), "order-1", &isPaid, &paymentID) {
			t.Fatal("expected update to succeed")
		}

		if store.gotIsPaid == nil || !*store.gotIsPaid {
			t.Error("is_paid not applied")
		}
		if store.gotLink == nil || *store.gotLink != "http://gateway:8080/payments/process/pay-42" {
			t.Errorf("unexpected payment link: %v", store.gotLink)
		}
	})

	t.Run("nil fields are left unchanged", func(t *testing.T) {
		store := &fakeOrderStore{setPaymentOK: true}
		commands := newTestCommands(store, &fakeCatalog{}, &fakeProjection{}, &capturingPublisher{})

		if !commands.SetPaymentDetails(context.Background(), "order-1", nil, nil) {
			t.Fatal("expected update to succeed")
		}

		if store.gotIsPaid != nil || store.gotLink != nil {
			t.Error("nil arguments must not touch fields")
		}
	})

	t.Run("store errors report failure instead of raising", func(t *testing.T) {
		store := &fakeOrderStore{setPaymentErr: errors.New("deadlock")}
		commands := newTestCommands(store, &fakeCatalog{}, &fakeProjection{}, &capturingPublisher{})

		if commands.SetPaymentDetails(context.Background(), "order-1", nil, nil) {
			t.Error("expected failure to be reported as false")
		}
	})
}

func TestCommands_Delete(t *testing.T) {
	t.Run("existing order is removed and its projection evicted", func(t *testing.T) {
		store := &fakeOrderStore{deleteCount: 1}
		cache := &fakeProjection{}
		commands := newTestCommands(store, &fakeCatalog{}, cache, &capturingPublisher{})

		deleted, err := commands.Delete(context.Background(), "order-1")
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if deleted != 1 {
			t.Errorf("expected 1 deletion, got %d", deleted)
		}
		if len(cache.evicted) != 1 || cache.evicted[0] != "order-1" {
			t.Errorf("projection not evicted: %v", cache.evicted)
		}
	})

	t.Run("missing order reports zero without error or eviction", func(t *testing.T) {
		cache := &fakeProjection{}
		commands := newTestCommands(&fakeOrderStore{deleteCount: 0}, &fakeCatalog{}, cache, &capturingPublisher{})

		deleted, err := commands.Delete(context.Background(), "ghost")
		if err != nil {
			t.Fatalf("delete of missing order must not fail: %v", err)
		}
		if deleted != 0 {
			t.Errorf("expected 0 deletions, got %d", deleted)
		}
		if len(cache.evicted) != 0 {
			t.Error("nothing should be evicted for a missing order")
		}
	})
}
