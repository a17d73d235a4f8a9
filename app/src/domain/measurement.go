package domain

import "time"

// MeasurementKey identifies the latest reading of one sensor on one device.
type MeasurementKey struct {
	DeviceID int
	SensorID int
}

// NewMeasurement is a producer-supplied reading. A nil Timestamp means
// "now" at ingestion time.
type NewMeasurement struct {
	DeviceID  int        `json:"device"`
	SensorID  int        `json:"sensor"`
	Value     float64    `json:"measurement"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Key returns the cache key of the reading.
func (m NewMeasurement) Key() MeasurementKey {
	return MeasurementKey{DeviceID: m.DeviceID, SensorID: m.SensorID}
}

// Measurement is a reading enriched with device and sensor metadata.
type Measurement struct {
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
	Value          float64   `json:"value" db:"value"`
	Unit           string    `json:"unit" db:"unit"`
	DeviceName     string    `json:"device_name" db:"device_name"`
	DeviceLocation string    `json:"device_location" db:"device_location"`
	SensorName     string    `json:"sensor_name" db:"sensor_name"`
}

// MeasurementRow is a stored measurement row ready to be inserted.
type MeasurementRow struct {
	Timestamp time.Time
	DeviceID  int
	SensorID  int
	Value     float64
}

// MeasurementStats summarises the history of one device/sensor pair.
type MeasurementStats struct {
	Count    int     `json:"count" db:"count"`
	Min      float64 `json:"min" db:"min"`
	Max      float64 `json:"max" db:"max"`
	Mean     float64 `json:"mean" db:"mean"`
	Stddev   float64 `json:"stddev" db:"stddev"`
	Variance float64 `json:"variance" db:"variance"`
}

// GaugeReading is one fresh measurement published to the metrics sink.
type GaugeReading struct {
	DeviceName     string
	DeviceLocation string
	SensorName     string
	Unit           string
	Value          float64
}

// GaugeFromMeasurement labels a measurement for the metrics sink.
func GaugeFromMeasurement(m Measurement) GaugeReading {
	return GaugeReading{
		DeviceName:     m.DeviceName,
		DeviceLocation: m.DeviceLocation,
		SensorName:     m.SensorName,
		Unit:           m.Unit,
		Value:          m.Value,
	}
}
