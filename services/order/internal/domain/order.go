package domain

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderStatusAccepted   OrderStatus = "ACCEPTED"
	OrderStatusRejected   OrderStatus = "REJECTED"
	OrderStatusDispatched OrderStatus = "DISPATCHED"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// Book is the catalog snapshot an order is accepted against.
type Book struct {
	Isbn   string  `json:"isbn"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Price  float64 `json:"price"`
}

type Order struct {
	ID               int64       `json:"id" db:"id"`
	BookIsbn         string      `json:"bookIsbn" db:"book_isbn"`
	BookName         *string     `json:"bookName" db:"book_name"`
	BookPrice        *float64    `json:"bookPrice" db:"book_price"`
	Quantity         int         `json:"quantity" db:"quantity"`
	Status           OrderStatus `json:"status" db:"status"`
	CreatedDate      time.Time   `json:"createdDate" db:"created_date"`
	LastModifiedDate time.Time   `json:"lastModifiedDate" db:"last_modified_date"`
	CreatedBy        string      `json:"createdBy" db:"created_by"`
	LastModifiedBy   string      `json:"lastModifiedBy" db:"last_modified_by"`
	Version          int         `json:"version" db:"version"`
}

func NewAcceptedOrder(book *Book, quantity int, owner string) *Order {
	name := book.Title
	price := book.Price

	return &Order{
		BookIsbn:       book.Isbn,
		BookName:       &name,
		BookPrice:      &price,
		Quantity:       quantity,
		Status:         OrderStatusAccepted,
		CreatedBy:      owner,
		LastModifiedBy: owner,
	}
}

func NewRejectedOrder(isbn string, quantity int, owner string) *Order {
	return &Order{
		BookIsbn:       isbn,
		Quantity:       quantity,
		Status:         OrderStatusRejected,
		CreatedBy:      owner,
		LastModifiedBy: owner,
	}
}

// Dispatch moves an accepted order to DISPATCHED. A repeated confirmation
// reports changed=false so callers can skip the write.
func (o *Order) Dispatch() (changed bool, err error) {
	switch o.Status {
	case OrderStatusAccepted:
		o.Status = OrderStatusDispatched
		return true, nil
	case OrderStatusDispatched:
		return false, nil
	default:
		return false, ErrInvalidTransition
	}
}
