package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for one group over a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`
	Group           string  `csv:"group"`

	// Pool occupancy at window end
	Live        int     `csv:"live"`
	PeakLive    int     `csv:"peak_live"`
	Capacity    int     `csv:"capacity"`
	Utilization float64 `csv:"utilization"`

	// Slot transitions during window
	Spawned  int     `csv:"spawned"`
	Recycled int     `csv:"recycled"`
	Died     int     `csv:"died"`
	Dropped  int     `csv:"dropped"`
	DropRate float64 `csv:"drop_rate"`

	// Age distribution (sampled at window end)
	AgeMean float64 `csv:"age_mean"`
	AgeP10  float64 `csv:"age_p10"`
	AgeP50  float64 `csv:"age_p50"`
	AgeP90  float64 `csv:"age_p90"`

	// Speed distribution (sampled at window end)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`
}

// Percentile returns the empirical p-th quantile of a sorted slice.
// p is clamped to [0, 1]. Returns 0 if the slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Summarize calculates the mean and the 10th, 50th and 90th percentiles.
// values is not modified.
func Summarize(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean = stat.Mean(sorted, nil)
	return mean, Percentile(sorted, 0.10), Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.String("group", s.Group),
		slog.Int("live", s.Live),
		slog.Int("peak_live", s.PeakLive),
		slog.Int("capacity", s.Capacity),
		slog.Float64("utilization", s.Utilization),
		slog.Int("spawned", s.Spawned),
		slog.Int("recycled", s.Recycled),
		slog.Int("died", s.Died),
		slog.Int("dropped", s.Dropped),
		slog.Float64("drop_rate", s.DropRate),
		slog.Float64("age_mean", s.AgeMean),
		slog.Float64("age_p50", s.AgeP50),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_p50", s.SpeedP50),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"group", s.Group,
		"live", s.Live,
		"peak_live", s.PeakLive,
		"capacity", s.Capacity,
		"utilization", s.Utilization,
		"spawned", s.Spawned,
		"recycled", s.Recycled,
		"died", s.Died,
		"dropped", s.Dropped,
		"drop_rate", s.DropRate,
		"age_mean", s.AgeMean,
		"age_p10", s.AgeP10,
		"age_p50", s.AgeP50,
		"age_p90", s.AgeP90,
		"speed_mean", s.SpeedMean,
		"speed_p10", s.SpeedP10,
		"speed_p50", s.SpeedP50,
		"speed_p90", s.SpeedP90,
	)
}
