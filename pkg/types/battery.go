package types

import "time"

// Reading is a single structured snapshot extracted from one BMS screenshot.
// Cell-voltage fields are pointers because the extraction model returns null
// when a value is not visible in the screenshot; nil must be preserved and
// never coerced to zero, since zero would look like a real (alarming) reading.
type Reading struct {
	BatteryID             string   `json:"batteryId"`
	SOC                   float64  `json:"soc"`     // state of charge (%)
	Voltage               float64  `json:"voltage"` // pack voltage (V)
	Current               float64  `json:"current"` // positive = discharge (A)
	RemainingCapacity     float64  `json:"remainingCapacity"` // Ah
	MaxCellVoltage        *float64 `json:"maxCellVoltage"`
	MinCellVoltage        *float64 `json:"minCellVoltage"`
	AvgCellVoltage        *float64 `json:"avgCellVoltage"`
	CellVoltageDifference *float64 `json:"cellVoltageDifference"`
	CycleCount            float64  `json:"cycleCount"`
	Power                 float64  `json:"power"` // kW
	MOSChargeStatus       string   `json:"mosChargeStatus"`
	MOSDischargeStatus    string   `json:"mosDischargeStatus"`
	BalanceStatus         string   `json:"balanceStatus"`
	Timestamp             string   `json:"timestamp"` // time of day as shown on screen, "HH:MM[:SS]"
}

// RawDataPoint is a Reading whose on-screen time string has been resolved to
// an absolute timestamp. One is created per successfully processed upload and
// it is never mutated after insertion into a battery's raw series.
type RawDataPoint struct {
	Reading
	Timestamp time.Time `json:"timestamp"`
}

// AveragedDataPoint is an hour-aligned aggregation bucket. Every numeric
// field holds the running arithmetic mean of the UploadCount raw readings
// folded into the bucket; status strings and nullable cell-voltage fields
// hold the latest non-null value instead.
type AveragedDataPoint struct {
	RawDataPoint
	UploadCount int `json:"uploadCount"`
}

// Insight is one forward-looking observation generated for the dashboard.
type Insight struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	Icon        string `json:"icon"`
}

// AlertDigest condenses a list of active alerts into a summary and a
// recommended course of action.
type AlertDigest struct {
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

// Backup is the JSON document exported before a battery's data is cleared.
type Backup struct {
	BatteryID    string              `json:"batteryId"`
	ExportedAt   time.Time           `json:"exportedAt"`
	AveragedData []AveragedDataPoint `json:"averagedData"`
	RawData      []RawDataPoint      `json:"rawData"`
}

// Severity classifies a Notice.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notice is a user-visible notification (the equivalent of a toast in the
// dashboard UI). Components emit these through an optional notifier callback.
type Notice struct {
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}
