// Package testutil provides fixtures and mocks for testing code built on
// snapmink.
package testutil

import (
	"context"
	"fmt"

	"github.com/AshkanYarmoradi/go-snapmink"
	"github.com/AshkanYarmoradi/go-snapmink/adapters/memory"
)

// OrderCreated event for testing.
type OrderCreated struct {
	OrderID    string `json:"orderId" msgpack:"orderId"`
	CustomerID string `json:"customerId" msgpack:"customerId"`
}

// ItemAdded event for testing.
type ItemAdded struct {
	OrderID  string  `json:"orderId" msgpack:"orderId"`
	SKU      string  `json:"sku" msgpack:"sku"`
	Quantity int     `json:"quantity" msgpack:"quantity"`
	Price    float64 `json:"price" msgpack:"price"`
}

// OrderShipped event for testing.
type OrderShipped struct {
	OrderID        string `json:"orderId" msgpack:"orderId"`
	TrackingNumber string `json:"trackingNumber" msgpack:"trackingNumber"`
}

// OrderItem is a line of an order.
type OrderItem struct {
	SKU      string  `json:"sku" msgpack:"sku"`
	Quantity int     `json:"quantity" msgpack:"quantity"`
	Price    float64 `json:"price" msgpack:"price"`
}

// Order is a snapshot-capable test aggregate. Its exported fields are
// its entire state.
type Order struct {
	snapmink.AggregateBase `json:"-" msgpack:"-"`

	CustomerID     string      `json:"customerId" msgpack:"customerId"`
	Items          []OrderItem `json:"items" msgpack:"items"`
	Status         string      `json:"status" msgpack:"status"`
	TrackingNumber string      `json:"trackingNumber,omitempty" msgpack:"trackingNumber,omitempty"`
}

// NewOrder creates an empty Order.
func NewOrder(id string) *Order {
	return &Order{AggregateBase: snapmink.NewAggregateBase(id, "Order")}
}

// OrderFactory is the snapmink.AggregateFactory for Order.
func OrderFactory(id string) snapmink.Aggregate {
	return NewOrder(id)
}

// Create records OrderCreated.
func (o *Order) Create(customerID string) error {
	if o.Status != "" {
		return fmt.Errorf("order already exists")
	}
	return o.record(OrderCreated{OrderID: o.AggregateID(), CustomerID: customerID})
}

// AddItem records ItemAdded.
func (o *Order) AddItem(sku string, qty int, price float64) error {
	if o.Status != "Created" {
		return fmt.Errorf("cannot add items: order status is %s", o.Status)
	}
	return o.record(ItemAdded{OrderID: o.AggregateID(), SKU: sku, Quantity: qty, Price: price})
}

// Ship records OrderShipped.
func (o *Order) Ship(trackingNumber string) error {
	if o.Status != "Created" {
		return fmt.Errorf("cannot ship: order status is %s", o.Status)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("cannot ship empty order")
	}
	return o.record(OrderShipped{OrderID: o.AggregateID(), TrackingNumber: trackingNumber})
}

func (o *Order) record(event interface{}) error {
	if err := o.when(event); err != nil {
		return err
	}
	o.Apply(event)
	return nil
}

// TotalAmount sums the order lines.
func (o *Order) TotalAmount() float64 {
	total := 0.0
	for _, item := range o.Items {
		total += float64(item.Quantity) * item.Price
	}
	return total
}

// ApplyEvent applies a historical event. The repository advances the
// version.
func (o *Order) ApplyEvent(event interface{}) error {
	return o.when(event)
}

func (o *Order) when(event interface{}) error {
	switch e := event.(type) {
	case OrderCreated:
		o.CustomerID = e.CustomerID
		o.Status = "Created"
	case ItemAdded:
		o.Items = append(o.Items, OrderItem{SKU: e.SKU, Quantity: e.Quantity, Price: e.Price})
	case OrderShipped:
		o.Status = "Shipped"
		o.TrackingNumber = e.TrackingNumber
	default:
		return fmt.Errorf("unknown event type: %T", event)
	}
	return nil
}

// RegisterTestEvents registers the Order events with the store.
func RegisterTestEvents(store *snapmink.EventStore) {
	store.RegisterEvents(OrderCreated{}, ItemAdded{}, OrderShipped{})
}

// NewTestStore returns an event store over a fresh memory adapter with the
// Order events registered.
func NewTestStore(opts ...snapmink.Option) (*snapmink.EventStore, *memory.MemoryAdapter) {
	adapter := memory.NewAdapter()
	store := snapmink.New(adapter, opts...)
	RegisterTestEvents(store)
	return store, adapter
}

// SeedOrder creates an order with the given number of items and saves it,
// leaving a stream of items+1 events.
func SeedOrder(ctx context.Context, store *snapmink.EventStore, id string, items int) (*Order, error) {
	order := NewOrder(id)
	if err := order.Create("customer-" + id); err != nil {
		return nil, err
	}
	for i := 0; i < items; i++ {
		if err := order.AddItem(fmt.Sprintf("SKU-%03d", i+1), 1, float64(i+1)); err != nil {
			return nil, err
		}
	}
	if err := store.SaveAggregate(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}
