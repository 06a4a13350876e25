package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/batteryview/batteryview/pkg/gemini"
	"github.com/batteryview/batteryview/pkg/log"
	"github.com/batteryview/batteryview/pkg/types"

	"github.com/levenlabs/go-lflag"
)

const extractPrompt = `You are an expert system designed to extract data from a Battery Management System (BMS) screenshot.

Analyze the provided screenshot and extract the key data points. Ensure the extracted values are accurate and properly formatted. If a value is not present in the screenshot, return null for that field.

Extract:
- batteryId: The unique identifier of the battery.
- soc: State of Charge (%)
- voltage: (V)
- current: (A)
- remainingCapacity: (Ah)
- maxCellVoltage, minCellVoltage, avgCellVoltage: (V)
- cellVoltageDifference: (V)
- cycleCount
- power: (kW)
- mosChargeStatus and mosDischargeStatus
- balanceStatus
- timestamp: the time of day shown on the screen ("HH:MM" or "HH:MM:SS")

Return a single JSON object with exactly those fields.`

// Gemini implements Service using a vision model.
type Gemini struct {
	client *gemini.Client
	model  string
}

// Configured sets up the extraction service backed by the shared Gemini
// client.
func Configured(c *gemini.Client) Service {
	g := &Gemini{client: c}
	model := lflag.String("extract-model", "gemini-1.5-flash-latest", "Vision model used to extract readings from screenshots")

	lflag.Do(func() {
		g.model = *model
	})

	return g
}

// Validate ensures the underlying client has a credential configured.
func (g *Gemini) Validate() error {
	return g.client.Validate()
}

// Extract asks the vision model for the reading in one screenshot.
func (g *Gemini) Extract(ctx context.Context, payload Payload) (types.Reading, error) {
	parts := []gemini.Part{
		{Text: extractPrompt},
		{InlineData: &gemini.Blob{MIMEType: payload.MIMEType, Data: payload.Data}},
	}

	var reading types.Reading
	if err := g.client.GenerateJSON(ctx, g.model, parts, &reading); err != nil {
		return types.Reading{}, fmt.Errorf("extraction failed for %s: %w", payload.FileName, err)
	}

	// a reading without a battery identifier cannot be aggregated anywhere
	if reading.BatteryID == "" {
		return types.Reading{}, errors.New("model could not identify a battery in the screenshot")
	}

	log.Ctx(ctx).DebugContext(ctx, "extracted reading",
		slog.String("file", payload.FileName),
		slog.String("batteryID", reading.BatteryID),
		slog.Float64("soc", reading.SOC),
		slog.Float64("voltage", reading.Voltage),
		slog.String("screenTime", reading.Timestamp),
	)
	return reading, nil
}
