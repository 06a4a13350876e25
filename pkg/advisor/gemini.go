package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/batteryview/batteryview/pkg/gemini"
	"github.com/batteryview/batteryview/pkg/log"
	"github.com/batteryview/batteryview/pkg/types"

	"github.com/levenlabs/go-lflag"
)

const healthPrompt = `You are an AI assistant specializing in battery health analysis.

Analyze the following battery data and generate a concise summary of the battery's current health status. Null cell-voltage values mean the sensor data was missing from the source, not that the cells read zero.

Battery data:
%s

Return a JSON object: {"summary": string}.`

const alertsPrompt = `You are an AI assistant specializing in identifying critical data deviations in battery data and generating alerts.

Analyze the following battery data and determine if any major deviations have occurred. Specifically, look for:
1. A rapid drop in SOC (State of Charge).
2. A high voltage difference between cells (maxCellVoltage - minCellVoltage).

If maxCellVoltage or minCellVoltage are null or 0, do not generate an alert for cell voltage inconsistency. Only generate alerts for valid, non-zero voltage readings that indicate a problem.

Based on your analysis, generate a list of alerts describing the issues. If no significant deviations are detected, return an empty list.

Battery data:
%s

Return a JSON object: {"alerts": [string]}.`

const alertSummaryPrompt = `You are an AI assistant specializing in summarizing battery alerts.

Given the following list of alerts, generate a concise summary highlighting the most critical issues affecting the battery, and one actionable recommendation that lets the user respond quickly.

Alerts:
%s

Return a JSON object: {"summary": string, "recommendation": string}.`

const insightsPrompt = `You are an expert power management AI for an off-grid battery system. Provide actionable, forward-looking insights based on the battery's current state, looking ahead 24-48 hours.

Generate exactly four insights answering: whether the generator will be needed, how solar charging is likely to go tomorrow, whether current consumption is sustainable, and one thing the user should do today. Each insight has a short headline-style title, a multi-sentence explanation, and a relevant Lucide icon name (e.g. "BatteryWarning", "Sun", "Droplets", "Lightbulb").

Current state:
%s

Return a JSON object: {"insights": [{"title": string, "explanation": string, "icon": string}]}.`

const recommendationPrompt = `You are an expert power management AI for an off-grid battery system.

Given the battery's state of charge, the current power draw/charge, and the location below, give one concise recommendation for power usage over the next day.

Current state:
%s

Return a JSON object: {"recommendation": string}.`

// Gemini implements Service against the Generative Language API.
type Gemini struct {
	client *gemini.Client
	model  string
}

// Configured sets up the advisory service backed by the shared Gemini client.
func Configured(c *gemini.Client) Service {
	g := &Gemini{client: c}
	model := lflag.String("advisor-model", "gemini-1.5-flash-latest", "Model used for health summaries, alerts, and insights")

	lflag.Do(func() {
		g.model = *model
	})

	return g
}

func (g *Gemini) generate(ctx context.Context, prompt string, payload, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	parts := []gemini.Part{{Text: fmt.Sprintf(prompt, string(body))}}
	return g.client.GenerateJSON(ctx, g.model, parts, dest)
}

// HealthSummary returns a concise summary of the battery's health.
func (g *Gemini) HealthSummary(ctx context.Context, snap Snapshot) (string, error) {
	var res struct {
		Summary string `json:"summary"`
	}
	if err := g.generate(ctx, healthPrompt, snap, &res); err != nil {
		return "", fmt.Errorf("health summary failed: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "health summary received", "batteryID", snap.BatteryID)
	return res.Summary, nil
}

// DeviationAlerts returns alerts for significant data deviations.
func (g *Gemini) DeviationAlerts(ctx context.Context, snap Snapshot) ([]string, error) {
	var res struct {
		Alerts []string `json:"alerts"`
	}
	if err := g.generate(ctx, alertsPrompt, snap, &res); err != nil {
		return nil, fmt.Errorf("deviation alerts failed: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "deviation alerts received", "batteryID", snap.BatteryID, "alerts", len(res.Alerts))
	return res.Alerts, nil
}

// AlertSummary condenses multiple alerts into a summary and recommendation.
func (g *Gemini) AlertSummary(ctx context.Context, alerts []string) (types.AlertDigest, error) {
	var sb strings.Builder
	for _, a := range alerts {
		sb.WriteString("- ")
		sb.WriteString(a)
		sb.WriteString("\n")
	}

	var res types.AlertDigest
	parts := []gemini.Part{{Text: fmt.Sprintf(alertSummaryPrompt, sb.String())}}
	if err := g.client.GenerateJSON(ctx, g.model, parts, &res); err != nil {
		return types.AlertDigest{}, fmt.Errorf("alert summary failed: %w", err)
	}
	return res, nil
}

// Insights generates forward-looking insights for fresh data.
func (g *Gemini) Insights(ctx context.Context, req InsightsRequest) ([]types.Insight, error) {
	var res struct {
		Insights []types.Insight `json:"insights"`
	}
	if err := g.generate(ctx, insightsPrompt, req, &res); err != nil {
		return nil, fmt.Errorf("insights failed: %w", err)
	}
	return res.Insights, nil
}

// PowerRecommendation returns usage advice for the current conditions.
func (g *Gemini) PowerRecommendation(ctx context.Context, req RecommendationRequest) (string, error) {
	var res struct {
		Recommendation string `json:"recommendation"`
	}
	if err := g.generate(ctx, recommendationPrompt, req, &res); err != nil {
		return "", fmt.Errorf("power recommendation failed: %w", err)
	}
	return res.Recommendation, nil
}
