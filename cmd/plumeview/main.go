// Particle scene viewer - interactive visualization with sliders.
//
// Usage: go run ./cmd/plumeview [-config path]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/plume/camera"
	"github.com/pthm-cable/plume/config"
	"github.com/pthm-cable/plume/renderer"
	"github.com/pthm-cable/plume/sim"
)

const (
	panelWidth = 300
	orbitSpeed = 0.005
	wheelZoom  = 0.9
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	snapshotDir := flag.String("snapshot-dir", "snapshots", "Directory for group snapshots (S key)")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	rl.InitWindow(int32(cfg.Viewer.Width), int32(cfg.Viewer.Height), "Plume")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Viewer.TargetFPS))

	s, err := sim.New(cfg, sim.Options{SnapshotDir: *snapshotDir, Extract: true})
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	viewW := float64(cfg.Viewer.Width - panelWidth)
	cam := camera.New(viewW, float64(cfg.Viewer.Height))
	cam.Target = r3.Vec{Y: 1}

	maxFlow := float32(cfg.Viewer.MaxFlowScale)
	if maxFlow < 1 {
		maxFlow = 1
	}
	var sorted []renderer.Instance

	for !rl.WindowShouldClose() {
		handleInput(s, cam)

		s.Update()
		s.RecordFrame()

		sorted = append(sorted[:0], s.Instances()...)
		renderer.SortBackToFront(sorted, cam.Eye())

		rl.BeginDrawing()
		rl.ClearBackground(rl.NewColor(12, 14, 20, 255))

		drawGround(cam)
		drawParticles(cam, sorted, cfg.Viewer.ParticleSize)

		// Control panel
		panelX := float32(viewW + 15)
		panelY := float32(10)
		rl.DrawRectangle(int32(viewW), 0, panelWidth, int32(cfg.Viewer.Height), rl.RayWhite)

		rl.DrawText("Plume", int32(panelX), int32(panelY), 20, rl.DarkGray)
		panelY += 35

		// Flow slider
		rl.DrawText("Flow scale (emitter rate multiplier)", int32(panelX), int32(panelY), 14, rl.Gray)
		panelY += 18
		flow := gui.SliderBar(
			rl.Rectangle{X: panelX, Y: panelY, Width: panelWidth - 90, Height: 20},
			"0", fmt.Sprintf("%.0f", maxFlow),
			float32(s.FlowScale()), 0, maxFlow,
		)
		if float64(flow) != s.FlowScale() {
			s.SetFlowScale(float64(flow))
		}
		panelY += 35

		// Buttons
		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 130, Height: 30}, toggleText(s.Motion(), "Freeze Motion", "Resume Motion")) {
			s.SetMotion(!s.Motion())
		}
		if gui.Button(rl.Rectangle{X: panelX + 140, Y: panelY, Width: 130, Height: 30}, toggleText(s.Paused(), "Resume", "Pause")) {
			s.SetPaused(!s.Paused())
		}
		panelY += 40
		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 130, Height: 30}, "Frame") {
			if lo, hi, ok := renderer.Bounds(sorted); ok {
				cam.Frame(lo, hi)
			}
		}
		if gui.Button(rl.Rectangle{X: panelX + 140, Y: panelY, Width: 130, Height: 30}, "Reset View") {
			cam.Reset()
			s.SetFlowScale(1)
		}
		panelY += 50

		// Stats
		rl.DrawLine(int32(panelX), int32(panelY), int32(panelX)+panelWidth-30, int32(panelY), rl.LightGray)
		panelY += 10
		rl.DrawText(fmt.Sprintf("Tick %d  t=%.1fs  FPS %d", s.Tick(), s.Time(), rl.GetFPS()), int32(panelX), int32(panelY), 14, rl.DarkGray)
		panelY += 22
		for _, sys := range s.Systems() {
			g := sys.Group
			last, totals := g.LastStep(), g.Totals()
			rl.DrawText(sys.Name, int32(panelX), int32(panelY), 16, rl.DarkGray)
			panelY += 18
			lines := []string{
				fmt.Sprintf("  live %d / %d", g.Count(), g.Capacity()),
				fmt.Sprintf("  step +%d -%d  recycled %d", last.Spawned, last.Died, last.Recycled),
				fmt.Sprintf("  dropped %d total", totals.Dropped),
			}
			for _, line := range lines {
				rl.DrawText(line, int32(panelX), int32(panelY), 14, rl.Gray)
				panelY += 16
			}
			panelY += 6
		}

		perf := s.PerfStats()
		panelY += 6
		rl.DrawText(fmt.Sprintf("Step %s avg, %s p90", perf.AvgTickDuration, perf.P90TickDuration), int32(panelX), int32(panelY), 14, rl.Gray)
		panelY += 16
		rl.DrawText(fmt.Sprintf("%.0f particles/tick, %.2fM/s", perf.ParticlesPerTick, perf.ParticlesPerSecond/1e6), int32(panelX), int32(panelY), 14, rl.Gray)
		for _, gp := range perf.Groups {
			panelY += 16
			rl.DrawText(fmt.Sprintf("  %s %.0f ns/particle", gp.Name, gp.NsPerParticle), int32(panelX), int32(panelY), 14, rl.Gray)
		}

		// Instructions
		rl.DrawText("Right drag: orbit  Wheel: zoom  Space: pause  S: snapshot", int32(panelX), int32(cfg.Viewer.Height-30), 10, rl.Gray)

		rl.EndDrawing()
	}
}

func handleInput(s *sim.Sim, cam *camera.Camera) {
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		d := rl.GetMouseDelta()
		cam.Orbit(-float64(d.X)*orbitSpeed, float64(d.Y)*orbitSpeed)
	}
	if rl.IsMouseButtonDown(rl.MouseButtonMiddle) {
		d := rl.GetMouseDelta()
		cam.Pan(float64(d.X), float64(d.Y))
	}
	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		if wheel > 0 {
			cam.ZoomAt(wheelZoom)
		} else {
			cam.ZoomAt(1 / wheelZoom)
		}
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		s.SetPaused(!s.Paused())
	}
	if rl.IsKeyPressed(rl.KeyM) {
		s.SetMotion(!s.Motion())
	}
	if rl.IsKeyPressed(rl.KeyS) {
		s.SaveSnapshots()
	}
	if rl.IsWindowResized() {
		cam.Resize(float64(rl.GetScreenWidth()-panelWidth), float64(rl.GetScreenHeight()))
	}
}

// drawGround draws a grid on the y=0 plane.
func drawGround(cam *camera.Camera) {
	const half = 6
	col := rl.NewColor(40, 44, 56, 255)
	for i := -half; i <= half; i++ {
		f := float64(i)
		drawSegment(cam, r3.Vec{X: f, Z: -half}, r3.Vec{X: f, Z: half}, col)
		drawSegment(cam, r3.Vec{X: -half, Z: f}, r3.Vec{X: half, Z: f}, col)
	}
}

func drawSegment(cam *camera.Camera, a, b r3.Vec, col rl.Color) {
	ax, ay, okA := cam.WorldToScreen(a)
	bx, by, okB := cam.WorldToScreen(b)
	if !okA || !okB {
		return
	}
	rl.DrawLineV(rl.Vector2{X: float32(ax), Y: float32(ay)}, rl.Vector2{X: float32(bx), Y: float32(by)}, col)
}

// drawParticles draws each instance as a disc sized by perspective.
func drawParticles(cam *camera.Camera, instances []renderer.Instance, scale float64) {
	for _, in := range instances {
		if !cam.IsVisible(in.Position, in.Size*scale) {
			continue
		}
		sx, sy, ok := cam.WorldToScreen(in.Position)
		if !ok {
			continue
		}
		r := cam.ProjectedSize(in.Position, in.Size*scale)
		if r < 1 {
			r = 1
		}
		c := in.RGBA8()
		rl.DrawCircleV(rl.Vector2{X: float32(sx), Y: float32(sy)}, float32(r), rl.NewColor(c[0], c[1], c[2], c[3]))
	}
}

func toggleText(on bool, onText, offText string) string {
	if on {
		return onText
	}
	return offText
}
