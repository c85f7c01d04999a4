package report

import (
	"math"
	"strings"
	"testing"

	"github.com/riverwalks/rw/internal/models"
)

func fptr(v float64) *float64 { return &v }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCrossSectionArea(t *testing.T) {
	tests := []struct {
		name   string
		width  float64
		points []models.MeasurementPoint
		want   float64
	}{
		{
			name:  "no points",
			width: 10,
			want:  0,
		},
		{
			// Banks at 0 and 4 with one 1m-deep point at centre: two
			// triangles of 2*1/2 each.
			name:   "single midpoint",
			width:  4,
			points: []models.MeasurementPoint{{DistanceFromBank: 2, Depth: 1}},
			want:   2,
		},
		{
			// Uniform 1m depth across three stations of a 4m channel:
			// trapezia 0.5 + 1 + 1 + 0.5.
			name:  "uniform depth",
			width: 4,
			points: []models.MeasurementPoint{
				{DistanceFromBank: 1, Depth: 1},
				{DistanceFromBank: 2, Depth: 1},
				{DistanceFromBank: 3, Depth: 1},
			},
			want: 3,
		},
		{
			name:  "unsorted input",
			width: 4,
			points: []models.MeasurementPoint{
				{DistanceFromBank: 3, Depth: 1},
				{DistanceFromBank: 1, Depth: 1},
				{DistanceFromBank: 2, Depth: 1},
			},
			want: 3,
		},
		{
			name:  "out of channel readings ignored",
			width: 4,
			points: []models.MeasurementPoint{
				{DistanceFromBank: 2, Depth: 1},
				{DistanceFromBank: 9, Depth: 5},
				{DistanceFromBank: -1, Depth: 5},
			},
			want: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := crossSectionArea(tt.width, tt.points)
			if !almostEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	site := models.Site{SiteNumber: 1, RiverWidth: 4}
	points := []models.MeasurementPoint{
		{DistanceFromBank: 1, Depth: 1, Velocity: fptr(0.5)},
		{DistanceFromBank: 2, Depth: 1, Velocity: fptr(0.7)},
		{DistanceFromBank: 3, Depth: 1},
	}
	samples := []models.SedimentSample{
		{SizeMM: 10, RoundnessIndex: 4},
		{SizeMM: 20, RoundnessIndex: 6},
	}

	s := Summarize(site, points, samples)

	if !almostEqual(s.CrossSectionArea, 3) {
		t.Errorf("area: got %v", s.CrossSectionArea)
	}
	if !almostEqual(s.MeanDepth, 0.75) {
		t.Errorf("mean depth: got %v", s.MeanDepth)
	}
	// Velocity averages only the points that have a reading.
	if !almostEqual(s.MeanVelocity, 0.6) {
		t.Errorf("mean velocity: got %v", s.MeanVelocity)
	}
	if !almostEqual(s.Discharge, 1.8) {
		t.Errorf("discharge: got %v", s.Discharge)
	}
	if !almostEqual(s.MeanSedimentSize, 15) || !almostEqual(s.MeanSedimentRoundness, 5) {
		t.Errorf("sediment: size %v roundness %v", s.MeanSedimentSize, s.MeanSedimentRoundness)
	}
}

func TestSummarizeNoVelocity(t *testing.T) {
	site := models.Site{RiverWidth: 4}
	points := []models.MeasurementPoint{{DistanceFromBank: 2, Depth: 1}}

	s := Summarize(site, points, nil)
	if s.MeanVelocity != 0 || s.Discharge != 0 {
		t.Errorf("no velocity readings should yield zero discharge: %+v", s)
	}
}

func TestRoundnessLabel(t *testing.T) {
	tests := []struct {
		index float64
		want  string
	}{
		{1, "very angular"},
		{3.4, "sub-angular"},
		{3.6, "sub-rounded"},
		{6, "well rounded"},
		{9, "index 9.0"},
	}
	for _, tt := range tests {
		if got := RoundnessLabel(tt.index); got != tt.want {
			t.Errorf("RoundnessLabel(%v): got %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestMarkdown(t *testing.T) {
	walk := models.RiverWalk{Name: "Derwent study", RiverName: "Derwent", WalkDate: "2026-06-12"}
	site := models.Site{SiteNumber: 1, SiteName: "Meander", RiverWidth: 4}
	points := []models.MeasurementPoint{{DistanceFromBank: 2, Depth: 1, Velocity: fptr(0.5)}}

	md := Markdown(walk, []SiteSummary{Summarize(site, points, nil)})

	for _, want := range []string{
		"# Derwent study",
		"**River:** Derwent",
		"## Site 1: Meander",
		"Cross-section area: 2.000 m²",
		"Discharge: 1.000 m³/s",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdownNoSites(t *testing.T) {
	md := Markdown(models.RiverWalk{Name: "empty"}, nil)
	if !strings.Contains(md, "No sites recorded yet") {
		t.Errorf("got %q", md)
	}
}
