package store

import "github.com/batteryview/batteryview/pkg/types"

// Action is one tagged state transition. The reducer in reducer.go is the
// only code that interprets actions; components never mutate State directly.
type Action interface {
	name() string
}

// StartLoading marks the start of an upload batch or an on-demand advisory
// request. TotalFiles of zero keeps the previous file count (used by advisory
// requests, which have no files).
type StartLoading struct {
	TotalFiles int
}

// StopLoading clears the loading flag without touching upload counters.
type StopLoading struct{}

// ResetUploadState returns the upload progress to idle after a batch settles.
type ResetUploadState struct{}

// SetCurrentBattery selects a battery and resets its advisory outputs.
type SetCurrentBattery struct {
	ID string
}

// AddDataPoint folds one resolved reading into the identified battery's raw
// and averaged series. When no battery is selected yet, the battery becomes
// the current selection (first upload wins).
type AddDataPoint struct {
	BatteryID string
	Point     types.RawDataPoint
}

// SetAlerts replaces the active alert list.
type SetAlerts struct {
	Alerts []string
}

// SetHealthSummary replaces the health summary text.
type SetHealthSummary struct {
	Summary string
}

// SetAlertDigest replaces the condensed alert summary/recommendation.
type SetAlertDigest struct {
	Digest types.AlertDigest
}

// SetInsights replaces the forward-looking insight list.
type SetInsights struct {
	Insights []types.Insight
}

// ClearBatteryData removes every series for the identified battery and falls
// back to any remaining battery as the selection.
type ClearBatteryData struct {
	ID string
}

// UpdateUploadProgress advances the per-batch progress counters.
type UpdateUploadProgress struct {
	Processed int
	Total     int
}

func (StartLoading) name() string         { return "startLoading" }
func (StopLoading) name() string          { return "stopLoading" }
func (ResetUploadState) name() string     { return "resetUploadState" }
func (SetCurrentBattery) name() string    { return "setCurrentBattery" }
func (AddDataPoint) name() string         { return "addDataPoint" }
func (SetAlerts) name() string            { return "setAlerts" }
func (SetHealthSummary) name() string     { return "setHealthSummary" }
func (SetAlertDigest) name() string       { return "setAlertDigest" }
func (SetInsights) name() string          { return "setInsights" }
func (ClearBatteryData) name() string     { return "clearBatteryData" }
func (UpdateUploadProgress) name() string { return "updateUploadProgress" }
