package models

import "time"

// Book and Event are read-mostly legacy datasets kept for counting,
// metrics and filtered lookups.

type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Publisher string    `json:"publisher,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Signed    bool      `json:"signed,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	EventDate time.Time `json:"eventDate"`
	CreatedAt time.Time `json:"createdAt"`
}
