package camera

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestNew(t *testing.T) {
	cam := New(1280, 720)

	if cam.Target != (r3.Vec{}) {
		t.Errorf("expected target at origin, got %v", cam.Target)
	}
	if cam.Distance != defaultDistance {
		t.Errorf("expected distance %v, got %v", defaultDistance, cam.Distance)
	}
	if d := r3.Norm(r3.Sub(cam.Eye(), cam.Target)); math.Abs(d-cam.Distance) > 1e-9 {
		t.Errorf("expected eye %v from target, got %v", cam.Distance, d)
	}
}

func TestTargetProjectsToCenter(t *testing.T) {
	cam := New(1280, 720)
	cam.Target = r3.Vec{X: 3, Y: -1, Z: 2}
	cam.Yaw = 0.8

	sx, sy, ok := cam.WorldToScreen(cam.Target)
	if !ok {
		t.Fatal("expected target visible")
	}
	if math.Abs(sx-640) > 0.01 || math.Abs(sy-360) > 0.01 {
		t.Errorf("expected screen center (640, 360), got (%f, %f)", sx, sy)
	}
}

func TestScreenToWorldRoundtrip(t *testing.T) {
	cam := New(1280, 720)
	cam.Yaw = 1.1

	testCases := []struct{ sx, sy float64 }{
		{640, 360},  // center
		{100, 100},  // top-left
		{1200, 600}, // near bottom-right
	}

	for _, tc := range testCases {
		w := cam.ScreenToWorld(tc.sx, tc.sy, 7)
		sx, sy, ok := cam.WorldToScreen(w)
		if !ok || math.Abs(sx-tc.sx) > 0.01 || math.Abs(sy-tc.sy) > 0.01 {
			t.Errorf("roundtrip failed: (%f,%f) -> %v -> (%f,%f)", tc.sx, tc.sy, w, sx, sy)
		}
	}
}

func TestBehindCameraNotProjected(t *testing.T) {
	cam := New(1280, 720)
	behind := r3.Add(cam.Eye(), r3.Sub(cam.Eye(), cam.Target))
	if _, _, ok := cam.WorldToScreen(behind); ok {
		t.Error("expected point behind the camera to be rejected")
	}
	if cam.IsVisible(behind, 0.1) {
		t.Error("expected point behind the camera to be culled")
	}
}

func TestUpIsUpOnScreen(t *testing.T) {
	cam := New(1280, 720)
	_, sy, _ := cam.WorldToScreen(r3.Vec{Y: 1})
	if sy >= 360 {
		t.Errorf("expected point above target in upper half, got y=%f", sy)
	}
}

func TestOrbitClampsPitch(t *testing.T) {
	cam := New(1280, 720)
	cam.Orbit(0, 10)
	if cam.Pitch != maxPitch {
		t.Errorf("expected pitch clamped to %v, got %v", maxPitch, cam.Pitch)
	}
	cam.Orbit(0, -20)
	if cam.Pitch != -maxPitch {
		t.Errorf("expected pitch clamped to %v, got %v", -maxPitch, cam.Pitch)
	}
}

func TestDistanceClamp(t *testing.T) {
	cam := New(1280, 720)

	cam.SetDistance(0.1)
	if cam.Distance != cam.MinDistance {
		t.Errorf("expected distance clamped to %v, got %v", cam.MinDistance, cam.Distance)
	}

	cam.SetDistance(1e6)
	if cam.Distance != cam.MaxDistance {
		t.Errorf("expected distance clamped to %v, got %v", cam.MaxDistance, cam.Distance)
	}
}

func TestPanKeepsTargetUnderCursor(t *testing.T) {
	cam := New(1280, 720)
	before := cam.Target
	cam.Pan(100, 0)
	sx, sy, _ := cam.WorldToScreen(before)
	if math.Abs(sx-740) > 0.01 || math.Abs(sy-360) > 0.01 {
		t.Errorf("expected old target at (740, 360), got (%f, %f)", sx, sy)
	}
}

func TestIsVisible(t *testing.T) {
	cam := New(1280, 720)

	if !cam.IsVisible(cam.Target, 0.1) {
		t.Error("target should be visible")
	}
	_, right, _ := cam.Basis()
	if cam.IsVisible(r3.Scale(100, right), 0.1) {
		t.Error("far side point should not be visible")
	}
	if !cam.IsVisible(r3.Scale(6, right), 2) {
		t.Error("edge point with large radius should be visible")
	}
}

func TestFrame(t *testing.T) {
	cam := New(1280, 720)
	cam.Frame(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 3, Y: 1, Z: 1})
	if cam.Target != (r3.Vec{X: 1}) {
		t.Errorf("expected target (1,0,0), got %v", cam.Target)
	}
	for _, corner := range []r3.Vec{{X: -1, Y: -1, Z: -1}, {X: 3, Y: 1, Z: 1}} {
		if !cam.IsVisible(corner, 1e-6) {
			t.Errorf("expected corner %v in view", corner)
		}
	}
}

func TestReset(t *testing.T) {
	cam := New(1280, 720)
	cam.Target = r3.Vec{X: 5}
	cam.Yaw = 2
	cam.Distance = 50

	cam.Reset()

	if cam.Target != (r3.Vec{}) || cam.Yaw != 0 {
		t.Errorf("expected default view, got target %v yaw %v", cam.Target, cam.Yaw)
	}
	if cam.Distance != defaultDistance {
		t.Errorf("expected distance %v, got %v", defaultDistance, cam.Distance)
	}
}
