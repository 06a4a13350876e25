package store

import (
	"github.com/batteryview/batteryview/pkg/aggregate"
	"github.com/batteryview/batteryview/pkg/types"
)

// State is the whole session: every battery's series pair, the current
// selection, upload progress, and the latest advisory outputs. Values inside
// maps and slices are copy-on-write, so a snapshot taken at any point stays
// internally consistent.
type State struct {
	Batteries        map[string][]types.AveragedDataPoint `json:"batteries"`
	RawBatteries     map[string][]types.RawDataPoint      `json:"rawBatteries"`
	CurrentBatteryID string                               `json:"currentBatteryId"`
	IsLoading        bool                                 `json:"isLoading"`
	Alerts           []string                             `json:"alerts"`
	HealthSummary    string                               `json:"healthSummary"`
	AlertDigest      types.AlertDigest                    `json:"alertDigest"`
	Insights         []types.Insight                      `json:"insights"`

	// UploadProgress is percent complete, nil when no batch is in progress.
	UploadProgress     *float64 `json:"uploadProgress"`
	ProcessedFileCount int      `json:"processedFileCount"`
	TotalFileCount     int      `json:"totalFileCount"`
}

// CurrentSeries returns the averaged series for the selected battery.
func (s State) CurrentSeries() []types.AveragedDataPoint {
	if s.CurrentBatteryID == "" {
		return nil
	}
	return s.Batteries[s.CurrentBatteryID]
}

// LatestDataPoint returns the most recent averaged point for the selected
// battery, if any.
func (s State) LatestDataPoint() (types.AveragedDataPoint, bool) {
	series := s.CurrentSeries()
	if len(series) == 0 {
		return types.AveragedDataPoint{}, false
	}
	return series[len(series)-1], true
}

func initialState() State {
	return State{
		Batteries:    map[string][]types.AveragedDataPoint{},
		RawBatteries: map[string][]types.RawDataPoint{},
	}
}

// reduce is the pure transition function: given the current state and one
// action it returns the next state, never mutating the old one.
func reduce(s State, a Action) State {
	switch a := a.(type) {
	case StartLoading:
		next := s
		next.IsLoading = true
		if a.TotalFiles > 0 {
			next.TotalFileCount = a.TotalFiles
			next.ProcessedFileCount = 0
			next.UploadProgress = progressPct(0, a.TotalFiles)
		}
		return next

	case StopLoading:
		next := s
		next.IsLoading = false
		return next

	case ResetUploadState:
		next := s
		next.IsLoading = false
		next.TotalFileCount = 0
		next.ProcessedFileCount = 0
		next.UploadProgress = nil
		return next

	case SetCurrentBattery:
		next := s
		next.CurrentBatteryID = a.ID
		next.Alerts = nil
		next.HealthSummary = ""
		next.AlertDigest = types.AlertDigest{}
		next.Insights = nil
		return next

	case AddDataPoint:
		batteries := cloneAveraged(s.Batteries)
		raws := cloneRaw(s.RawBatteries)
		newRaw, newAveraged := aggregate.AddReading(raws[a.BatteryID], batteries[a.BatteryID], a.Point)
		raws[a.BatteryID] = newRaw
		batteries[a.BatteryID] = newAveraged

		next := s
		next.Batteries = batteries
		next.RawBatteries = raws
		// new data invalidates previously generated insights
		next.Insights = nil
		if next.CurrentBatteryID == "" {
			next.CurrentBatteryID = a.BatteryID
		}
		return next

	case SetAlerts:
		next := s
		next.Alerts = a.Alerts
		return next

	case SetHealthSummary:
		next := s
		next.HealthSummary = a.Summary
		return next

	case SetAlertDigest:
		next := s
		next.AlertDigest = a.Digest
		return next

	case SetInsights:
		next := s
		next.Insights = a.Insights
		return next

	case ClearBatteryData:
		if a.ID == "" {
			return s
		}
		batteries := cloneAveraged(s.Batteries)
		raws := cloneRaw(s.RawBatteries)
		delete(batteries, a.ID)
		delete(raws, a.ID)

		next := s
		next.Batteries = batteries
		next.RawBatteries = raws
		if next.CurrentBatteryID == a.ID {
			next.CurrentBatteryID = anyBatteryID(batteries)
		}
		next.Alerts = nil
		next.HealthSummary = ""
		next.AlertDigest = types.AlertDigest{}
		next.Insights = nil
		return next

	case UpdateUploadProgress:
		next := s
		next.ProcessedFileCount = a.Processed
		next.TotalFileCount = a.Total
		next.UploadProgress = progressPct(a.Processed, a.Total)
		return next

	default:
		return s
	}
}

func progressPct(processed, total int) *float64 {
	if total <= 0 {
		return nil
	}
	pct := float64(processed) / float64(total) * 100
	return &pct
}

func anyBatteryID(batteries map[string][]types.AveragedDataPoint) string {
	for id := range batteries {
		return id
	}
	return ""
}

func cloneAveraged(m map[string][]types.AveragedDataPoint) map[string][]types.AveragedDataPoint {
	out := make(map[string][]types.AveragedDataPoint, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRaw(m map[string][]types.RawDataPoint) map[string][]types.RawDataPoint {
	out := make(map[string][]types.RawDataPoint, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
