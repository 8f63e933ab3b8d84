package order

// Order events are published to EventsTopic keyed by order id, with the
// event type in the EventTypeHeader header and a Record as JSON payload.
const (
	EventsTopic      = "order-events"
	EventTypeHeader  = "event_type"
	EventOrderPlaced = "order.placed"
)
