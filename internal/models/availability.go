package models

// SlotAvailability is the read-only answer for one start time.
type SlotAvailability struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	Available  bool   `json:"available"`
	Reason     string `json:"reason,omitempty"`
	Note       string `json:"note,omitempty"`
	Capacity   int    `json:"capacity"`
	Booked     int    `json:"booked"`
	Remaining  int    `json:"remaining"`
	ResourceID string `json:"resource_id,omitempty"`
}

type DayAvailability struct {
	Date  string             `json:"date"`
	Open  bool               `json:"open"`
	Note  string             `json:"note,omitempty"`
	Slots []SlotAvailability `json:"slots"`
}
