package cat

import "math"

// Point is a position in the engine frame. The bending plane is x-z and y
// runs along the anode wires.
type Point struct {
	X, Y, Z float64
}

func (p Point) Add(q Point) Point        { return Point{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }
func (p Point) Sub(q Point) Point        { return Point{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }
func (p Point) Scale(f float64) Point    { return Point{p.X * f, p.Y * f, p.Z * f} }
func (p Point) Dot(q Point) float64      { return p.X*q.X + p.Y*q.Y + p.Z*q.Z }
func (p Point) Norm() float64            { return math.Sqrt(p.Dot(p)) }
func (p Point) Distance(q Point) float64 { return p.Sub(q).Norm() }

// Unit returns p scaled to length one, or the zero vector.
func (p Point) Unit() Point {
	n := p.Norm()
	if n == 0 {
		return Point{}
	}
	return p.Scale(1 / n)
}

// Planar drops the y coordinate.
func (p Point) Planar() Point { return Point{X: p.X, Z: p.Z} }

// planarDistance is the distance in the bending plane.
func planarDistance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Z-b.Z)
}

// cross2 is the y component of a x b restricted to the bending plane.
func cross2(a, b Point) float64 {
	return a.Z*b.X - a.X*b.Z
}

// turnAngle is the bending plane angle in degrees between two directions.
func turnAngle(a, b Point) float64 {
	na, nb := math.Hypot(a.X, a.Z), math.Hypot(b.X, b.Z)
	if na == 0 || nb == 0 {
		return 0
	}
	c := (a.X*b.X + a.Z*b.Z) / (na * nb)
	return math.Acos(math.Max(-1, math.Min(1, c))) * 180 / math.Pi
}

// ToDetector maps an engine position onto the detector frame:
// detector (x, y, z) = engine (z, x, y).
func ToDetector(p Point) Point {
	return Point{X: p.Z, Y: p.X, Z: p.Y}
}

// ToCAT is the inverse of ToDetector.
func ToCAT(p Point) Point {
	return Point{X: p.Y, Y: p.Z, Z: p.X}
}
