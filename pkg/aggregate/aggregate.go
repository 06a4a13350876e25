// Package aggregate folds resolved BMS readings into per-battery series: a
// raw series with one entry per upload and an averaged series with one
// running-average bucket per calendar hour.
package aggregate

import (
	"sort"
	"time"

	"github.com/batteryview/batteryview/pkg/types"
)

// AddReading appends point to the raw series and merges it into the hourly
// bucket of the averaged series, returning updated copies of both. The input
// slices are never mutated so callers can treat prior snapshots as immutable.
func AddReading(raw []types.RawDataPoint, averaged []types.AveragedDataPoint, point types.RawDataPoint) ([]types.RawDataPoint, []types.AveragedDataPoint) {
	newRaw := make([]types.RawDataPoint, len(raw), len(raw)+1)
	copy(newRaw, raw)
	newRaw = append(newRaw, point)
	// Stable keeps insertion order for identical timestamps.
	sort.SliceStable(newRaw, func(i, j int) bool {
		return newRaw[i].Timestamp.Before(newRaw[j].Timestamp)
	})

	newAveraged := make([]types.AveragedDataPoint, len(averaged), len(averaged)+1)
	copy(newAveraged, averaged)

	key := HourKey(point.Timestamp)
	for i, bucket := range newAveraged {
		if HourKey(bucket.Timestamp).Equal(key) {
			newAveraged[i] = mergeIntoBucket(bucket, point)
			return newRaw, newAveraged
		}
	}

	newAveraged = append(newAveraged, types.AveragedDataPoint{
		RawDataPoint: point,
		UploadCount:  1,
	})
	sort.SliceStable(newAveraged, func(i, j int) bool {
		return newAveraged[i].Timestamp.Before(newAveraged[j].Timestamp)
	})
	return newRaw, newAveraged
}

// HourKey truncates a timestamp to the start of its calendar hour in its own
// location.
func HourKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// mergeIntoBucket folds one new reading into an existing hourly bucket.
// Numeric fields become the exact running mean, weighted by how many readings
// the bucket has already absorbed. Status strings and nullable cell voltages
// take the newest non-null value and keep the prior one otherwise. The
// bucket's timestamp never shifts to the new reading's exact time.
func mergeIntoBucket(bucket types.AveragedDataPoint, point types.RawDataPoint) types.AveragedDataPoint {
	oldCount := bucket.UploadCount
	if oldCount < 1 {
		oldCount = 1
	}
	merged := bucket
	merged.SOC = runningMean(bucket.SOC, point.SOC, oldCount)
	merged.Voltage = runningMean(bucket.Voltage, point.Voltage, oldCount)
	merged.Current = runningMean(bucket.Current, point.Current, oldCount)
	merged.RemainingCapacity = runningMean(bucket.RemainingCapacity, point.RemainingCapacity, oldCount)
	merged.CycleCount = runningMean(bucket.CycleCount, point.CycleCount, oldCount)
	merged.Power = runningMean(bucket.Power, point.Power, oldCount)

	merged.MaxCellVoltage = latestNonNull(bucket.MaxCellVoltage, point.MaxCellVoltage)
	merged.MinCellVoltage = latestNonNull(bucket.MinCellVoltage, point.MinCellVoltage)
	merged.AvgCellVoltage = latestNonNull(bucket.AvgCellVoltage, point.AvgCellVoltage)
	merged.CellVoltageDifference = latestNonNull(bucket.CellVoltageDifference, point.CellVoltageDifference)

	if point.MOSChargeStatus != "" {
		merged.MOSChargeStatus = point.MOSChargeStatus
	}
	if point.MOSDischargeStatus != "" {
		merged.MOSDischargeStatus = point.MOSDischargeStatus
	}
	if point.BalanceStatus != "" {
		merged.BalanceStatus = point.BalanceStatus
	}

	merged.UploadCount = oldCount + 1
	return merged
}

// runningMean computes (old*oldCount + value) / (oldCount+1), which keeps the
// stored value equal to the true arithmetic mean of every reading folded in.
func runningMean(old, value float64, oldCount int) float64 {
	return (old*float64(oldCount) + value) / float64(oldCount+1)
}

// latestNonNull returns a copy of next when it is non-null, otherwise prior.
func latestNonNull(prior, next *float64) *float64 {
	if next == nil {
		return prior
	}
	v := *next
	return &v
}
