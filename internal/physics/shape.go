package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeType discriminates the closed set of collider geometries.
type ShapeType string

const (
	ShapeCircle  ShapeType = "circle"
	ShapeBox     ShapeType = "box"
	ShapePolygon ShapeType = "polygon"
)

// Shape describes collider geometry in body-local coordinates. Exactly one
// variant is populated, selected by Type.
type Shape struct {
	Type ShapeType

	// Circle
	Radius float64

	// Box half extents.
	HalfW float64
	HalfH float64

	// Convex polygon vertices, counter-clockwise winding.
	Vertices []mgl64.Vec2
}

// CircleShape builds a circle collider.
func CircleShape(radius float64) Shape {
	return Shape{Type: ShapeCircle, Radius: radius}
}

// BoxShape builds a box collider from half extents.
func BoxShape(halfW, halfH float64) Shape {
	return Shape{Type: ShapeBox, HalfW: halfW, HalfH: halfH}
}

// PolygonShape builds a convex polygon collider from CCW vertices.
func PolygonShape(vertices ...mgl64.Vec2) Shape {
	return Shape{Type: ShapePolygon, Vertices: vertices}
}

// validate rejects zero-area, non-finite, or non-convex geometry.
func (s Shape) validate() error {
	switch s.Type {
	case ShapeCircle:
		if !isFinite(s.Radius) || s.Radius <= 0 {
			return fmt.Errorf("%w: circle radius %v", ErrInvalidShape, s.Radius)
		}
	case ShapeBox:
		if !isFinite(s.HalfW) || !isFinite(s.HalfH) || s.HalfW <= 0 || s.HalfH <= 0 {
			return fmt.Errorf("%w: box half extents %v x %v", ErrInvalidShape, s.HalfW, s.HalfH)
		}
	case ShapePolygon:
		if len(s.Vertices) < 3 {
			return fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", ErrInvalidShape, len(s.Vertices))
		}
		for _, v := range s.Vertices {
			if !isFinite(v.X()) || !isFinite(v.Y()) {
				return fmt.Errorf("%w: polygon vertex %v", ErrInvalidShape, v)
			}
		}
		if area := polygonArea(s.Vertices); area <= 1e-9 {
			return fmt.Errorf("%w: polygon area %v (need CCW winding and nonzero area)", ErrInvalidShape, area)
		}
		if !polygonConvex(s.Vertices) {
			return fmt.Errorf("%w: polygon is not convex", ErrInvalidShape)
		}
	default:
		return fmt.Errorf("%w: unrecognized shape type %q", ErrInvalidShape, s.Type)
	}
	return nil
}

// area returns the shape's area for mass derivation.
func (s Shape) area() float64 {
	switch s.Type {
	case ShapeCircle:
		return math.Pi * s.Radius * s.Radius
	case ShapeBox:
		return 4 * s.HalfW * s.HalfH
	case ShapePolygon:
		return polygonArea(s.Vertices)
	}
	return 0
}

// momentFactor returns the moment of inertia for the given mass about the
// shape's centroid.
func (s Shape) momentFactor(mass float64) float64 {
	switch s.Type {
	case ShapeCircle:
		return 0.5 * mass * s.Radius * s.Radius
	case ShapeBox:
		w, h := 2*s.HalfW, 2*s.HalfH
		return mass * (w*w + h*h) / 12
	case ShapePolygon:
		// Bounding-circle approximation keeps the solver simple; decorative
		// polygons never need exact spin response.
		r := 0.0
		for _, v := range s.Vertices {
			if l := v.Len(); l > r {
				r = l
			}
		}
		return 0.5 * mass * r * r
	}
	return 0
}

// boundingRadius returns the loose radius used for AABB construction.
func (s Shape) boundingRadius() float64 {
	switch s.Type {
	case ShapeCircle:
		return s.Radius
	case ShapeBox:
		return math.Hypot(s.HalfW, s.HalfH)
	case ShapePolygon:
		r := 0.0
		for _, v := range s.Vertices {
			if l := v.Len(); l > r {
				r = l
			}
		}
		return r
	}
	return 0
}

func polygonArea(verts []mgl64.Vec2) float64 {
	area := 0.0
	for i := range verts {
		j := (i + 1) % len(verts)
		area += verts[i].X()*verts[j].Y() - verts[j].X()*verts[i].Y()
	}
	return area / 2
}

func polygonConvex(verts []mgl64.Vec2) bool {
	n := len(verts)
	for i := 0; i < n; i++ {
		a := verts[i]
		b := verts[(i+1)%n]
		c := verts[(i+2)%n]
		ab := b.Sub(a)
		bc := c.Sub(b)
		if cross(ab, bc) < -1e-9 {
			return false
		}
	}
	return true
}

func cross(a, b mgl64.Vec2) float64 {
	return a.X()*b.Y() - a.Y()*b.X()
}

// perp rotates a vector 90 degrees counter-clockwise.
func perp(v mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{-v.Y(), v.X()}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// rotate applies a rotation by angle (radians) about the origin.
func rotate(v mgl64.Vec2, angle float64) mgl64.Vec2 {
	sin, cos := math.Sincos(angle)
	return mgl64.Vec2{v.X()*cos - v.Y()*sin, v.X()*sin + v.Y()*cos}
}
