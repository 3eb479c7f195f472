package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is a booking's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Active reports whether the booking holds capacity on its service.
func (s Status) Active() bool { return s != StatusCancelled }

// Service is a bag-storage offering. AvailableBag is the remaining
// capacity and always equals TotalAvailableBag minus the bags held by the
// service's non-cancelled bookings.
type Service struct {
	ID                primitive.ObjectID   `json:"id" bson:"_id"`
	Creator           string               `json:"creator" bson:"creator"`
	ServiceName       string               `json:"service_name" bson:"service_name" validate:"required,max=200"`
	Category          string               `json:"category" bson:"category" validate:"required,max=100"`
	Address           string               `json:"address" bson:"address" validate:"required,max=300"`
	Latitude          float64              `json:"latitude" bson:"latitude" validate:"latitude"`
	Longitude         float64              `json:"longitude" bson:"longitude" validate:"longitude"`
	ServiceTime       string               `json:"service_time" bson:"service_time" validate:"required,max=100"`
	ServiceDate       []string             `json:"service_date" bson:"service_date" validate:"dive,datetime=2006-01-02"`
	AvailableBag      int                  `json:"available_bag" bson:"available_bag"`
	TotalAvailableBag int                  `json:"total_available_bag" bson:"total_available_bag" validate:"gte=0"`
	Bookings          []primitive.ObjectID `json:"bookings" bson:"bookings,omitempty"`
	CreatedAt         time.Time            `json:"created_at" bson:"created_at"`
}

// Offers reports whether every date is one the service is open on. A
// service without listed dates accepts any date.
func (s Service) Offers(dates []string) bool {
	if len(s.ServiceDate) == 0 {
		return true
	}
	open := make(map[string]struct{}, len(s.ServiceDate))
	for _, d := range s.ServiceDate {
		open[d] = struct{}{}
	}
	for _, d := range dates {
		if _, ok := open[d]; !ok {
			return false
		}
	}
	return true
}

// Booking reserves BookingBag units of a Service's capacity.
type Booking struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	Creator     string             `json:"creator" bson:"creator"`
	ServiceID   primitive.ObjectID `json:"service_id" bson:"service_id" validate:"required"`
	BookingDate []string           `json:"booking_date" bson:"booking_date" validate:"required,min=1,dive,datetime=2006-01-02"`
	BookingBag  int                `json:"booking_bag" bson:"booking_bag" validate:"required,gte=1"`
	Confirm     Status             `json:"confirm" bson:"confirm"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
}

type ServiceUpdate struct {
	ServiceName       Optional[string]   `json:"service_name" validate:"omitempty,max=200"`
	Category          Optional[string]   `json:"category" validate:"omitempty,max=100"`
	Address           Optional[string]   `json:"address" validate:"omitempty,max=300"`
	Latitude          Optional[float64]  `json:"latitude" validate:"omitempty,latitude"`
	Longitude         Optional[float64]  `json:"longitude" validate:"omitempty,longitude"`
	ServiceTime       Optional[string]   `json:"service_time" validate:"omitempty,max=100"`
	ServiceDate       Optional[[]string] `json:"service_date" validate:"omitempty,dive,datetime=2006-01-02"`
	TotalAvailableBag Optional[int]      `json:"total_available_bag" validate:"omitempty,gte=0"`
}

type BookingUpdate struct {
	BookingDate Optional[[]string] `json:"booking_date" validate:"omitempty,min=1,dive,datetime=2006-01-02"`
	BookingBag  Optional[int]      `json:"booking_bag" validate:"omitempty,gte=1"`
}

type BookingStatusUpdate struct {
	Confirm Status `json:"confirm" validate:"required,oneof=pending confirmed cancelled"`
}
