// Package sim builds a particle scene from configuration and steps it,
// collecting perf timings and per-group telemetry along the way.
package sim

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mlange-42/ark/ecs"
	"github.com/pthm-cable/plume/affector"
	"github.com/pthm-cable/plume/components"
	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/emitter"
	"github.com/pthm-cable/plume/particle"
	"github.com/pthm-cable/plume/renderer"
	"github.com/pthm-cable/plume/scene"
	"github.com/pthm-cable/plume/telemetry"
)

// Options configures a simulation run beyond the config file.
type Options struct {
	Seed           int64   // 0 = config seed
	LogStats       bool    // log window and perf stats via slog
	StatsWindowSec float64 // 0 = config stats window
	OutputDir      string  // CSV logs and config snapshot, empty = off
	SnapshotDir    string  // group snapshots when no OutputDir is set
	StepsPerUpdate int     // ticks per Update call
	Extract        bool    // build render instances every tick
}

// groupTelemetry couples a particle system with its stats collector.
type groupTelemetry struct {
	name      string
	group     *particle.Group
	collector *telemetry.Collector
	sample    telemetry.Sample
}

// Sim holds the complete simulation state.
type Sim struct {
	cfg   *config.Config
	scene *scene.Scene
	dt    float64

	models    []*particle.Model
	nodes     map[string]ecs.Entity
	emitters  []*emitter.Cone
	baseFlow  []float64
	flowScale float64
	groups    []*groupTelemetry

	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	statsCallback func(telemetry.WindowStats)

	// State
	tick           int32
	windows        int
	paused         bool
	motion         bool
	logStats       bool
	extract        bool
	stepsPerUpdate int
	snapshotDir    string
	instances      []renderer.Instance
}

// New builds the scene described by cfg. Nodes come first, then emitters
// and affectors on child nodes of their owners, then particle systems, so
// auto-sized pools see the flow of every emitter in their subtree.
func New(cfg *config.Config, opts Options) (*Sim, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Simulation.Seed
	}
	window := opts.StatsWindowSec
	if window <= 0 {
		window = cfg.Telemetry.StatsWindow
	}
	steps := opts.StepsPerUpdate
	if steps < 1 {
		steps = 1
	}

	s := &Sim{
		cfg:            cfg,
		scene:          scene.New(),
		dt:             cfg.Simulation.DT,
		nodes:          make(map[string]ecs.Entity, len(cfg.Nodes)),
		flowScale:      1,
		motion:         true,
		logStats:       opts.LogStats,
		extract:        opts.Extract,
		stepsPerUpdate: steps,
		snapshotDir:    opts.SnapshotDir,
	}

	for i := range cfg.Species {
		s.models = append(s.models, cfg.BuildModel(i))
	}
	s.buildNodes()
	if err := s.buildEmitters(); err != nil {
		return nil, err
	}
	if err := s.buildAffectors(); err != nil {
		return nil, err
	}
	s.buildSystems(seed, window)
	s.watchSteps()

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("creating output: %w", err)
	}
	s.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	// Settle transforms so the first tick has no interpolation jump.
	s.scene.Animate()
	s.scene.Propagate()

	slog.Info("scene built",
		"nodes", s.scene.Len(),
		"species", len(s.models),
		"emitters", len(s.emitters),
		"systems", len(s.groups),
		"seed", seed,
	)
	return s, nil
}

func (s *Sim) buildNodes() {
	for i := range s.cfg.Nodes {
		n := &s.cfg.Nodes[i]
		local := n.NodeTransform()
		var e ecs.Entity
		if n.Parent == "" {
			e = s.scene.AddRoot(n.Name, local)
		} else {
			e = s.scene.AddChild(s.nodes[n.Parent], n.Name, local)
		}
		if o := n.Orbit; o != nil {
			s.scene.SetOrbit(e, components.Orbit{
				Center: o.Center.R3(),
				Axis:   o.Axis.R3(),
				Radius: o.Radius,
				Speed:  o.Speed,
				Phase:  o.Phase,
			})
		}
		s.nodes[n.Name] = e
	}
}

// attachNode adds an identity child under owner to carry one attachment.
func (s *Sim) attachNode(owner, name string) ecs.Entity {
	return s.scene.AddChild(s.nodes[owner], owner+"/"+name, particle.Identity())
}

func (s *Sim) species(name string) *particle.Model {
	if name == "" {
		return nil
	}
	return s.models[s.cfg.Derived.SpeciesIndex[name]]
}

func (s *Sim) buildEmitters() error {
	for i := range s.cfg.Emitters {
		ec := &s.cfg.Emitters[i]
		c := emitter.NewCone(s.species(ec.Species), ec.Rate)
		c.Name = ec.Name
		switch ec.Zone.Type {
		case config.ZonePoint:
			c.Zone = emitter.Point{At: ec.Zone.Center.R3()}
		case config.ZoneBox:
			c.Zone = emitter.NewBox(ec.Zone.Center.R3(), ec.Zone.Half.R3())
		default:
			return fmt.Errorf("emitter %q zone %q: %w", ec.Name, ec.Zone.Type, config.ErrUnknownZone)
		}
		if ec.Direction != (config.Vec3{}) {
			c.Direction = ec.Direction.R3()
		}
		c.Spread = ec.Spread * math.Pi / 180
		c.SpeedMin, c.SpeedMax = ec.Speed[0], ec.Speed[1]
		c.Inherit = ec.Inherit

		s.scene.AttachEmitter(s.attachNode(ec.Node, ec.Name), c)
		s.emitters = append(s.emitters, c)
		s.baseFlow = append(s.baseFlow, ec.Rate)
	}
	return nil
}

func (s *Sim) buildAffectors() error {
	for i := range s.cfg.Affectors {
		ac := &s.cfg.Affectors[i]
		m := s.species(ac.Species)
		var a particle.Affector
		switch ac.Type {
		case config.AffectorForce:
			a = &affector.Force{Species: m, Acceleration: ac.Vector.R3()}
		case config.AffectorDamping:
			a = &affector.Damping{Species: m, Rate: ac.Rate}
		case config.AffectorTurbulence:
			tb := affector.NewTurbulence(m, ac.Strength, ac.Frequency, ac.Seed)
			if ac.Speed != 0 {
				tb.Speed = ac.Speed
			}
			a = tb
		case config.AffectorKillPlane:
			a = &affector.KillPlane{Species: m, Point: ac.Point.R3(), Normal: ac.Normal.R3()}
		default:
			return fmt.Errorf("affector %q type %q: %w", ac.Name, ac.Type, config.ErrUnknownAffector)
		}
		s.scene.AttachAffector(s.attachNode(ac.Node, ac.Name), a, ac.Global)
	}
	return nil
}

func (s *Sim) buildSystems(seed int64, window float64) {
	for i := range s.cfg.Systems {
		sc := &s.cfg.Systems[i]
		m := s.species(sc.Species)
		owner := s.nodes[sc.Node]
		g := particle.NewGroup(m, particle.GroupOptions{
			Name:             sc.Name,
			ExpectedFlow:     s.scene.FlowInto(owner, m),
			CapacityQuantile: s.cfg.Capacity.Quantile,
			MinCapacity:      s.cfg.Capacity.Min,
			Seed:             seed + int64(i),
		})
		s.scene.AttachSystem(owner, g, sc.Global)
		s.groups = append(s.groups, &groupTelemetry{
			name:      sc.Name,
			group:     g,
			collector: telemetry.NewCollector(sc.Name, window, s.dt),
		})
		slog.Info("particle system created",
			"system", sc.Name,
			"species", m.Name,
			"capacity", g.Capacity(),
			"global", sc.Global,
		)
	}
}

// watchSteps reports every group update to the perf collector.
func (s *Sim) watchSteps() {
	names := make([]string, len(s.groups))
	index := make(map[*particle.Group]int, len(s.groups))
	for i, gt := range s.groups {
		names[i] = gt.name
		index[gt.group] = i
	}
	s.perfCollector = telemetry.NewPerfCollector(s.cfg.Telemetry.PerfCollectorWindow, names...)
	s.scene.SetStepObserver(func(sys scene.System, stepped int, d time.Duration) {
		i, ok := index[sys.Group]
		if !ok {
			i = -1
		}
		s.perfCollector.RecordGroupStep(i, stepped, d)
	})
}

// Update runs StepsPerUpdate ticks unless paused.
func (s *Sim) Update() {
	if s.paused {
		return
	}
	for i := 0; i < s.stepsPerUpdate; i++ {
		s.Step()
	}
}

// Step advances the simulation by one tick.
func (s *Sim) Step() {
	s.perfCollector.StartTick()

	s.perfCollector.StartPhase(telemetry.PhaseTransforms)
	if s.motion {
		s.scene.AdvanceClock(s.dt)
		s.scene.Animate()
	}
	s.scene.Propagate()

	s.perfCollector.StartPhase(telemetry.PhaseSimulate)
	s.scene.Simulate(s.dt)
	s.tick++

	if s.extract {
		s.perfCollector.StartPhase(telemetry.PhaseRenderExtract)
		s.extractInstances()
	}

	s.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	for _, gt := range s.groups {
		gt.collector.RecordStep(gt.group.LastStep(), gt.group.Count())
	}
	s.flushTelemetry()

	s.perfCollector.EndTick()
}

func (s *Sim) extractInstances() {
	s.instances = s.instances[:0]
	for _, sys := range s.scene.Systems() {
		s.instances = renderer.Extract(sys.Group, sys.Space, s.instances)
	}
}

// Tick returns the number of ticks stepped.
func (s *Sim) Tick() int32 { return s.tick }

// Time returns the simulated time in seconds.
func (s *Sim) Time() float64 { return float64(s.tick) * s.dt }

// DT returns the seconds per tick.
func (s *Sim) DT() float64 { return s.dt }

// Config returns the configuration the scene was built from.
func (s *Sim) Config() *config.Config { return s.cfg }

// Scene exposes the node hierarchy.
func (s *Sim) Scene() *scene.Scene { return s.scene }

// Systems returns the particle systems after the last tick.
func (s *Sim) Systems() []scene.System { return s.scene.Systems() }

// Group returns the group of the named system.
func (s *Sim) Group(name string) (*particle.Group, bool) {
	for _, gt := range s.groups {
		if gt.name == name {
			return gt.group, true
		}
	}
	return nil, false
}

// Instances returns the render instances built by the last tick. Empty
// unless extraction is enabled.
func (s *Sim) Instances() []renderer.Instance { return s.instances }

// SetExtract turns per-tick render extraction on or off.
func (s *Sim) SetExtract(on bool) { s.extract = on }

// Paused reports whether Update is suspended.
func (s *Sim) Paused() bool { return s.paused }

// SetPaused suspends or resumes Update.
func (s *Sim) SetPaused(p bool) { s.paused = p }

// Motion reports whether orbiting nodes move.
func (s *Sim) Motion() bool { return s.motion }

// SetMotion freezes or resumes node animation. Frozen nodes keep their
// current position; particles keep flowing.
func (s *Sim) SetMotion(on bool) { s.motion = on }

// FlowScale returns the multiplier applied to every configured emitter rate.
func (s *Sim) FlowScale() float64 { return s.flowScale }

// SetFlowScale scales every emitter's configured rate. Pools keep the
// capacity sized for the original flow, so raising it can drop spawns.
func (s *Sim) SetFlowScale(f float64) {
	s.flowScale = math.Max(0, f)
	for i, c := range s.emitters {
		c.SetFlow(s.baseFlow[i] * s.flowScale)
	}
}

// SetStatsCallback registers fn to receive every flushed window.
func (s *Sim) SetStatsCallback(fn func(telemetry.WindowStats)) { s.statsCallback = fn }

// PerfStats returns the rolling perf statistics.
func (s *Sim) PerfStats() telemetry.PerfStats { return s.perfCollector.Stats() }

// RecordFrame marks a rendered frame for FPS tracking.
func (s *Sim) RecordFrame() { s.perfCollector.RecordFrame() }

// Close flushes and closes output files.
func (s *Sim) Close() error {
	return s.outputManager.Close()
}
