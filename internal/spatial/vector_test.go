package spatial

import "testing"

func TestDistanceSqrBoundary(t *testing.T) {
	a := Vec3{0, 0, 0}
	b := Vec3{150, 0, 0}
	const radius = 200.0
	d2 := a.DistanceSqr(b)
	if d2 > radius*radius {
		t.Fatalf("expected %v within radius %v", d2, radius*radius)
	}
}

func TestDistanceSqrExactBoundaryIsInside(t *testing.T) {
	a := Vec3{0, 0, 0}
	b := Vec3{200, 0, 0}
	const radius = 200.0
	d2 := a.DistanceSqr(b)
	if d2 != radius*radius {
		t.Fatalf("got %v, want exactly %v", d2, radius*radius)
	}
	// d2 <= radius^2 must hold (inclusive boundary is "inside" per spec).
	if d2 > radius*radius {
		t.Fatal("boundary distance must count as inside the aura")
	}
}

func TestDistanceSqrSymmetric(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, -5, 6}
	if a.DistanceSqr(b) != b.DistanceSqr(a) {
		t.Fatal("distance should be symmetric")
	}
}
