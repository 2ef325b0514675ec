package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pthm-cable/plume/config"
)

// csvSink appends gocsv rows to one file, writing the header with the
// first batch. The file is created on first use.
type csvSink struct {
	path   string
	file   *os.File
	header bool
}

func (c *csvSink) open() error {
	if c.file != nil {
		return nil
	}
	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(c.path), err)
	}
	c.file = f
	return nil
}

func (c *csvSink) write(rows any) error {
	if err := c.open(); err != nil {
		return err
	}
	marshal := gocsv.MarshalWithoutHeaders
	if !c.header {
		marshal = gocsv.Marshal
	}
	if err := marshal(rows, c.file); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(c.path), err)
	}
	c.header = true
	return nil
}

func (c *csvSink) close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// GroupSummary aggregates every window written for one group.
type GroupSummary struct {
	Group           string  `csv:"group"`
	Windows         int     `csv:"windows"`
	EndTick         int32   `csv:"end_tick"`
	Spawned         int     `csv:"spawned"`
	Recycled        int     `csv:"recycled"`
	Died            int     `csv:"died"`
	Dropped         int     `csv:"dropped"`
	DropRate        float64 `csv:"drop_rate"`
	WorstDropRate   float64 `csv:"worst_window_drop_rate"`
	PeakLive        int     `csv:"peak_live"`
	Capacity        int     `csv:"capacity"`
	PeakUtilization float64 `csv:"peak_utilization"`
}

func (s *GroupSummary) add(w WindowStats) {
	s.Windows++
	s.EndTick = w.WindowEndTick
	s.Spawned += w.Spawned
	s.Recycled += w.Recycled
	s.Died += w.Died
	s.Dropped += w.Dropped
	if total := s.Spawned + s.Dropped; total > 0 {
		s.DropRate = float64(s.Dropped) / float64(total)
	}
	s.WorstDropRate = max(s.WorstDropRate, w.DropRate)
	s.PeakLive = max(s.PeakLive, w.PeakLive)
	s.Capacity = w.Capacity
	if s.Capacity > 0 {
		s.PeakUtilization = float64(s.PeakLive) / float64(s.Capacity)
	}
}

// SummarizeRun folds window stats into one summary per group, in order of
// first appearance.
func SummarizeRun(windows []WindowStats) []GroupSummary {
	var out []GroupSummary
	index := make(map[string]int)
	for _, w := range windows {
		i, ok := index[w.Group]
		if !ok {
			i = len(out)
			index[w.Group] = i
			out = append(out, GroupSummary{Group: w.Group})
		}
		out[i].add(w)
	}
	return out
}

// SnapshotIndexRow is one row of snapshots/index.csv.
type SnapshotIndexRow struct {
	Tick       int32   `csv:"tick"`
	SimTimeSec float64 `csv:"sim_time"`
	Group      string  `csv:"group"`
	Live       int     `csv:"live"`
	Capacity   int     `csv:"capacity"`
	Dropped    int     `csv:"dropped"`
	File       string  `csv:"file"`
}

// OutputManager writes a run directory:
//
//	config.yaml           configuration the scene was built from
//	telemetry.csv         one row per group per stats window
//	perf.csv              one row per flush round
//	perf_groups.csv       per-group step cost per flush round
//	snapshots/*.json      group snapshots, listed in snapshots/index.csv
//	summary.csv           per-group run totals, written on Close
//
// A nil *OutputManager discards everything.
type OutputManager struct {
	dir string

	telemetry  csvSink
	perf       csvSink
	perfGroups csvSink
	snapIndex  csvSink
	summary    csvSink

	summaries []GroupSummary
	byGroup   map[string]int
	closed    bool
}

// NewOutputManager creates dir with empty telemetry.csv and perf.csv.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{
		dir:        dir,
		telemetry:  csvSink{path: filepath.Join(dir, "telemetry.csv")},
		perf:       csvSink{path: filepath.Join(dir, "perf.csv")},
		perfGroups: csvSink{path: filepath.Join(dir, "perf_groups.csv")},
		snapIndex:  csvSink{path: filepath.Join(dir, "snapshots", "index.csv")},
		summary:    csvSink{path: filepath.Join(dir, "summary.csv")},
		byGroup:    make(map[string]int),
	}
	if err := om.telemetry.open(); err != nil {
		return nil, err
	}
	if err := om.perf.open(); err != nil {
		om.telemetry.close()
		return nil, err
	}
	return om, nil
}

// WriteConfig saves the configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry appends a window to telemetry.csv and folds it into the
// group's run summary.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	i, ok := om.byGroup[stats.Group]
	if !ok {
		i = len(om.summaries)
		om.byGroup[stats.Group] = i
		om.summaries = append(om.summaries, GroupSummary{Group: stats.Group})
	}
	om.summaries[i].add(stats)
	return om.telemetry.write([]WindowStats{stats})
}

// WritePerf appends the perf window to perf.csv and its per-group rows to
// perf_groups.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	if err := om.perf.write([]PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return err
	}
	if rows := stats.GroupRows(windowEnd); len(rows) > 0 {
		return om.perfGroups.write(rows)
	}
	return nil
}

// WriteSnapshot saves a group snapshot under snapshots/ and lists it in the
// index. Returns the path written, or "" when output is disabled.
func (om *OutputManager) WriteSnapshot(snap *Snapshot) (string, error) {
	if om == nil || snap == nil {
		return "", nil
	}
	path, err := SaveSnapshot(snap, filepath.Join(om.dir, "snapshots"))
	if err != nil {
		return "", err
	}
	row := SnapshotIndexRow{
		Tick:       snap.Tick,
		SimTimeSec: snap.SimTimeSec,
		Group:      snap.Group,
		Live:       len(snap.Particles),
		Capacity:   snap.Capacity,
		Dropped:    snap.Totals.Dropped,
		File:       filepath.Base(path),
	}
	if err := om.snapIndex.write([]SnapshotIndexRow{row}); err != nil {
		return path, err
	}
	return path, nil
}

// Summaries returns the run totals per group so far.
func (om *OutputManager) Summaries() []GroupSummary {
	if om == nil {
		return nil
	}
	return om.summaries
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close writes summary.csv when any window was recorded, then closes every
// file. Later calls do nothing.
func (om *OutputManager) Close() error {
	if om == nil || om.closed {
		return nil
	}
	om.closed = true
	var errs []error
	if len(om.summaries) > 0 {
		errs = append(errs, om.summary.write(om.summaries))
	}
	for _, sink := range []*csvSink{&om.telemetry, &om.perf, &om.perfGroups, &om.snapIndex, &om.summary} {
		errs = append(errs, sink.close())
	}
	return errors.Join(errs...)
}
