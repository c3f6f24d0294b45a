package model

import "time"

// AppointmentStatus represents the lifecycle status of a booked visit
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a service visit booked over the phone
type Appointment struct {
	ID           string            `json:"id"`
	CallSID      string            `json:"call_sid"`
	CustomerName string            `json:"customer_name"`
	Phone        string            `json:"phone"`
	Address      string            `json:"address"`
	Issue        string            `json:"issue"`
	Date         time.Time         `json:"date"`
	Window       string            `json:"window"`
	Emergency    bool              `json:"emergency"`
	Status       AppointmentStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}
