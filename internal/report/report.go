// Package report computes the hydrology summary for a site and renders it
// as markdown: cross-section area by the trapezium rule, mean depth and
// velocity, discharge, and sediment statistics.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/riverwalks/rw/internal/models"
)

// SiteSummary holds the derived quantities for one site.
type SiteSummary struct {
	Site models.Site

	CrossSectionArea float64 // m^2
	MeanDepth        float64 // m
	MeanVelocity     float64 // m/s, 0 when no velocity readings
	Discharge        float64 // m^3/s, 0 when no velocity readings
	PointCount       int

	MeanSedimentSize      float64 // mm
	MeanSedimentRoundness float64 // Powers index
	SampleCount           int
}

// Summarize derives the summary quantities for a site from its readings.
func Summarize(site models.Site, points []models.MeasurementPoint, samples []models.SedimentSample) SiteSummary {
	s := SiteSummary{Site: site, PointCount: len(points), SampleCount: len(samples)}

	s.CrossSectionArea = crossSectionArea(site.RiverWidth, points)
	if site.RiverWidth > 0 {
		s.MeanDepth = s.CrossSectionArea / site.RiverWidth
	}

	var vSum float64
	var vCount int
	for _, p := range points {
		if p.Velocity != nil {
			vSum += *p.Velocity
			vCount++
		}
	}
	if vCount > 0 {
		s.MeanVelocity = vSum / float64(vCount)
		s.Discharge = s.CrossSectionArea * s.MeanVelocity
	}

	if len(samples) > 0 {
		var sizeSum, roundSum float64
		for _, sm := range samples {
			sizeSum += sm.SizeMM
			roundSum += float64(sm.RoundnessIndex)
		}
		s.MeanSedimentSize = sizeSum / float64(len(samples))
		s.MeanSedimentRoundness = roundSum / float64(len(samples))
	}

	return s
}

// crossSectionArea integrates depth across the channel with the trapezium
// rule. The banks count as zero-depth readings at distance 0 and at the
// recorded river width, so a single mid-channel point still yields a
// triangle rather than nothing.
func crossSectionArea(width float64, points []models.MeasurementPoint) float64 {
	if len(points) == 0 || width <= 0 {
		return 0
	}

	type station struct{ x, depth float64 }
	stations := make([]station, 0, len(points)+2)
	stations = append(stations, station{0, 0})
	for _, p := range points {
		if p.DistanceFromBank < 0 || p.DistanceFromBank > width {
			continue
		}
		stations = append(stations, station{p.DistanceFromBank, p.Depth})
	}
	stations = append(stations, station{width, 0})
	sort.Slice(stations, func(i, j int) bool { return stations[i].x < stations[j].x })

	var area float64
	for i := 1; i < len(stations); i++ {
		dx := stations[i].x - stations[i-1].x
		area += dx * (stations[i].depth + stations[i-1].depth) / 2
	}
	return area
}

// roundnessLabels maps the Powers roundness index to its name.
var roundnessLabels = map[int]string{
	1: "very angular",
	2: "angular",
	3: "sub-angular",
	4: "sub-rounded",
	5: "rounded",
	6: "well rounded",
}

// RoundnessLabel names a Powers index value, rounding to the nearest class.
func RoundnessLabel(index float64) string {
	n := int(index + 0.5)
	if label, ok := roundnessLabels[n]; ok {
		return label
	}
	return fmt.Sprintf("index %.1f", index)
}

// Markdown renders a full walk report. Sites render in site-number order as
// provided by the caller.
func Markdown(walk models.RiverWalk, summaries []SiteSummary) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", walk.Name)
	if walk.RiverName != "" {
		fmt.Fprintf(&sb, "**River:** %s", walk.RiverName)
		if walk.WalkDate != "" {
			fmt.Fprintf(&sb, "  |  **Date:** %s", walk.WalkDate)
		}
		sb.WriteString("\n\n")
	} else if walk.WalkDate != "" {
		fmt.Fprintf(&sb, "**Date:** %s\n\n", walk.WalkDate)
	}
	if walk.Notes != "" {
		fmt.Fprintf(&sb, "%s\n\n", walk.Notes)
	}

	if len(summaries) == 0 {
		sb.WriteString("No sites recorded yet.\n")
		return sb.String()
	}

	for _, s := range summaries {
		fmt.Fprintf(&sb, "## Site %d", s.Site.SiteNumber)
		if s.Site.SiteName != "" {
			fmt.Fprintf(&sb, ": %s", s.Site.SiteName)
		}
		sb.WriteString("\n\n")

		fmt.Fprintf(&sb, "- Width: %.2f m\n", s.Site.RiverWidth)
		if s.PointCount > 0 {
			fmt.Fprintf(&sb, "- Cross-section area: %.3f m²\n", s.CrossSectionArea)
			fmt.Fprintf(&sb, "- Mean depth: %.3f m (%d points)\n", s.MeanDepth, s.PointCount)
			if s.MeanVelocity > 0 {
				fmt.Fprintf(&sb, "- Mean velocity: %.3f m/s\n", s.MeanVelocity)
				fmt.Fprintf(&sb, "- Discharge: %.3f m³/s\n", s.Discharge)
			} else {
				sb.WriteString("- Discharge: no velocity readings\n")
			}
		} else {
			sb.WriteString("- No depth readings recorded\n")
		}
		if s.SampleCount > 0 {
			fmt.Fprintf(&sb, "- Sediment: mean size %.1f mm, %s (%d samples)\n",
				s.MeanSedimentSize, RoundnessLabel(s.MeanSedimentRoundness), s.SampleCount)
		}
		if s.Site.Notes != "" {
			fmt.Fprintf(&sb, "\n%s\n", s.Site.Notes)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
