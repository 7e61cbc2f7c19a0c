package models

import "time"

// SensorReading is one Meet je stad measurement.
type SensorReading struct {
	SensorID    int       `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Longitude   float64   `json:"longitude"`
	Latitude    float64   `json:"latitude"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Firmware    string    `json:"firmware_version,omitempty"`
}
