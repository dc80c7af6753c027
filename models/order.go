package models

import (
	"encoding/json"
	"time"
)

// OrderStatus represents the current progress of an order.
// The backend owns the full lifecycle; the rider client only consumes it.
// Unknown values coming off the wire are preserved verbatim and simply
// fall outside every bucket.
type OrderStatus string

const (
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderKind distinguishes how an order reaches the customer.
type OrderKind string

const (
	OrderKindDelivery OrderKind = "delivery"
	OrderKindPickup   OrderKind = "pickup"
	OrderKindDineIn   OrderKind = "dine_in"
)

// Order is one in-flight order as seen by the courier.
// Customer, Value and Address are opaque pass-through payloads; the engine
// never interprets them, so they are kept as raw JSON.
type Order struct {
	ID                string          `json:"id"`
	Status            OrderStatus     `json:"status"`
	Kind              OrderKind       `json:"kind"`
	AssignedCourierID *string         `json:"assigned_courier_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Customer          json.RawMessage `json:"customer,omitempty"`
	Value             json.RawMessage `json:"value,omitempty"`
	Address           json.RawMessage `json:"address,omitempty"`
}

// Clone returns a copy of the order that shares no pointers with the
// original. Raw payload bytes are treated as immutable and not duplicated.
func (o Order) Clone() Order {
	c := o
	if o.AssignedCourierID != nil {
		v := *o.AssignedCourierID
		c.AssignedCourierID = &v
	}
	return c
}

// Bucket groups statuses for the rider view.
type Bucket string

const (
	BucketReady          Bucket = "ready"
	BucketOutForDelivery Bucket = "out_for_delivery"
	BucketFinished       Bucket = "finished"
)

// BucketFor classifies a status into a rider-view bucket.
// Unknown statuses belong to no bucket and return ok=false.
func BucketFor(s OrderStatus) (Bucket, bool) {
	switch s {
	case OrderStatusReady:
		return BucketReady, true
	case OrderStatusOutForDelivery:
		return BucketOutForDelivery, true
	case OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled:
		return BucketFinished, true
	default:
		return "", false
	}
}

// CanTransition reports whether the rider is allowed to request the given
// status change. Only ready -> out for delivery and out for delivery ->
// delivered are rider-initiated; everything else belongs to the backend.
func CanTransition(from, to OrderStatus) bool {
	switch {
	case from == OrderStatusReady && to == OrderStatusOutForDelivery:
		return true
	case from == OrderStatusOutForDelivery && to == OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// Snapshot is a complete, self-sufficient list of the orders currently
// visible to one courier. Each snapshot fully supersedes the previous one;
// it is never treated as an event log.
type Snapshot []Order

// Clone returns a freshly allocated snapshot whose elements share no
// pointers with the original. Consumers rely on this for identity-based
// change detection.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for i := range s {
		out[i] = s[i].Clone()
	}
	return out
}

// ByID builds an id lookup over the snapshot.
func (s Snapshot) ByID() map[string]Order {
	m := make(map[string]Order, len(s))
	for _, o := range s {
		m[o.ID] = o
	}
	return m
}

// InBucket returns the orders whose status classifies into the given bucket.
func (s Snapshot) InBucket(b Bucket) Snapshot {
	var out Snapshot
	for _, o := range s {
		if got, ok := BucketFor(o.Status); ok && got == b {
			out = append(out, o)
		}
	}
	return out
}

// CachedSnapshot is the last accepted snapshot persisted locally so the
// rider never stares at an empty screen while the first fetch is pending.
type CachedSnapshot struct {
	Orders     Snapshot  `json:"orders"`
	CapturedAt time.Time `json:"captured_at"`
}

// Expired reports whether the cache is older than ttl at the given instant.
func (c CachedSnapshot) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.CapturedAt) > ttl
}
