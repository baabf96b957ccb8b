package domain

const (
	TopicOrderAccepted   = "order-accepted"
	TopicOrderDispatched = "order-dispatched"
)

// OrderAcceptedEvent only correlates; consumers re-read the order from the store.
type OrderAcceptedEvent struct {
	OrderID int64 `json:"orderId"`
}

type OrderDispatchedEvent struct {
	OrderID int64 `json:"orderId"`
}
