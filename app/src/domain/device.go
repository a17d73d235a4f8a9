package domain

import "strings"

type Device struct {
	ID       int    `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Location string `json:"location" db:"location"`
}

type NewDevice struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Validate rejects devices without a name or location.
func (d NewDevice) Validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Location) == "" {
		return ErrInvalidInput
	}
	return nil
}

type Sensor struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Unit string `json:"unit" db:"unit"`
}

type NewSensor struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Validate rejects sensors without a name or unit.
func (s NewSensor) Validate() error {
	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Unit) == "" {
		return ErrInvalidInput
	}
	return nil
}
