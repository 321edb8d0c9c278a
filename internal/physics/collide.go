package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// manifold describes one resolvable contact. Normal points from a to b.
type manifold struct {
	a, b        *Body
	normal      mgl64.Vec2
	penetration float64
	point       mgl64.Vec2
}

// detect builds a manifold for the pair, or nil when the bodies are apart.
// The first body is always the dynamic circle driving the test; dynamic
// bodies are circles by construction (balls and transients).
func detect(a, b *Body) *manifold {
	minA, maxA := a.aabb()
	minB, maxB := b.aabb()
	if !aabbOverlap(minA, maxA, minB, maxB) {
		return nil
	}

	switch b.Shape.Type {
	case ShapeCircle:
		return collideCircleCircle(a, b)
	case ShapeBox:
		return collideCircleBox(a, b)
	case ShapePolygon:
		return collideCirclePolygon(a, b)
	}
	return nil
}

func collideCircleCircle(a, b *Body) *manifold {
	delta := b.Pos.Sub(a.Pos)
	distSq := delta.Dot(delta)
	total := a.Shape.Radius + b.Shape.Radius
	if distSq >= total*total {
		return nil
	}

	dist := math.Sqrt(distSq)
	var normal mgl64.Vec2
	if dist > 0 {
		normal = delta.Mul(1 / dist)
	} else {
		normal = mgl64.Vec2{1, 0}
	}
	penetration := total - dist
	point := a.Pos.Add(normal.Mul(a.Shape.Radius - penetration*0.5))

	return &manifold{a: a, b: b, normal: normal, penetration: penetration, point: point}
}

// collideCircleBox supports rotated boxes by solving in the box's local frame.
func collideCircleBox(circle, box *Body) *manifold {
	local := rotate(circle.Pos.Sub(box.Pos), -box.Angle)

	halfW, halfH := box.Shape.HalfW, box.Shape.HalfH
	closest := mgl64.Vec2{
		clamp(local.X(), -halfW, halfW),
		clamp(local.Y(), -halfH, halfH),
	}

	delta := local.Sub(closest)
	distSq := delta.Dot(delta)
	r := circle.Shape.Radius
	if distSq >= r*r {
		return nil
	}

	var localNormal mgl64.Vec2
	var penetration float64
	if distSq > 0 {
		dist := math.Sqrt(distSq)
		localNormal = delta.Mul(1 / dist)
		penetration = r - dist
	} else {
		// Center inside the box: push out along the axis of least depth.
		xDist := halfW - math.Abs(local.X())
		yDist := halfH - math.Abs(local.Y())
		if xDist < yDist {
			localNormal = mgl64.Vec2{sign(local.X()), 0}
			penetration = xDist + r
		} else {
			localNormal = mgl64.Vec2{0, sign(local.Y())}
			penetration = yDist + r
		}
	}

	worldNormal := rotate(localNormal, box.Angle)
	worldPoint := rotate(closest, box.Angle).Add(box.Pos)

	// Manifold normal points from circle to box.
	return &manifold{a: circle, b: box, normal: worldNormal.Mul(-1), penetration: penetration, point: worldPoint}
}

func collideCirclePolygon(circle, poly *Body) *manifold {
	local := rotate(circle.Pos.Sub(poly.Pos), -poly.Angle)
	r := circle.Shape.Radius
	verts := poly.Shape.Vertices

	// Closest point on the polygon boundary, tracking containment.
	inside := true
	bestDistSq := math.MaxFloat64
	var bestPoint mgl64.Vec2
	minDepth := math.MaxFloat64
	var depthNormal mgl64.Vec2

	for i := range verts {
		v0 := verts[i]
		v1 := verts[(i+1)%len(verts)]
		edge := v1.Sub(v0)
		outward := mgl64.Vec2{edge.Y(), -edge.X()} // CW normal of a CCW polygon points outward
		outLen := outward.Len()
		if outLen == 0 {
			continue
		}
		outward = outward.Mul(1 / outLen)

		side := local.Sub(v0).Dot(outward)
		if side > 0 {
			inside = false
		}
		if depth := -side; depth < minDepth {
			minDepth = depth
			depthNormal = outward
		}

		t := clamp(local.Sub(v0).Dot(edge)/edge.Dot(edge), 0, 1)
		candidate := v0.Add(edge.Mul(t))
		d := local.Sub(candidate)
		if dsq := d.Dot(d); dsq < bestDistSq {
			bestDistSq = dsq
			bestPoint = candidate
		}
	}

	var localNormal mgl64.Vec2
	var penetration float64
	if inside {
		localNormal = depthNormal
		penetration = minDepth + r
	} else {
		if bestDistSq >= r*r {
			return nil
		}
		dist := math.Sqrt(bestDistSq)
		if dist > 0 {
			localNormal = local.Sub(bestPoint).Mul(1 / dist)
		} else {
			localNormal = depthNormal
		}
		penetration = r - dist
	}

	worldNormal := rotate(localNormal, poly.Angle)
	worldPoint := rotate(bestPoint, poly.Angle).Add(poly.Pos)

	return &manifold{a: circle, b: poly, normal: worldNormal.Mul(-1), penetration: penetration, point: worldPoint}
}

// resolve applies the normal impulse, friction, and positional correction.
// Returns the magnitude of the normal impulse for contact reporting.
func resolve(m *manifold, tuning Tuning) float64 {
	a, b := m.a, m.b

	invMassSum := a.invMass + b.invMass
	if invMassSum == 0 {
		return 0
	}

	relVel := b.velocityAt(m.point).Sub(a.velocityAt(m.point))
	velAlongNormal := relVel.Dot(m.normal)
	if velAlongNormal > 0 {
		correctPositions(m, tuning)
		return 0
	}

	e := tuning.RestitutionMix.combine(a.Restitution, b.Restitution)
	j := -(1 + e) * velAlongNormal / invMassSum

	impulse := m.normal.Mul(j)
	a.applyImpulse(impulse.Mul(-1), m.point)
	b.applyImpulse(impulse, m.point)

	applyFriction(m, j, tuning)
	correctPositions(m, tuning)
	return j
}

func applyFriction(m *manifold, normalImpulse float64, tuning Tuning) {
	a, b := m.a, m.b

	relVel := b.velocityAt(m.point).Sub(a.velocityAt(m.point))
	tangent := relVel.Sub(m.normal.Mul(relVel.Dot(m.normal)))
	tangentMagSq := tangent.Dot(tangent)
	if tangentMagSq < 1e-8 {
		return
	}
	tangent = tangent.Mul(1 / math.Sqrt(tangentMagSq))

	invMassSum := a.invMass + b.invMass
	jt := -relVel.Dot(tangent) / invMassSum

	mu := tuning.FrictionMix.combine(a.Friction, b.Friction)
	if mu == 0 {
		return
	}
	normalForce := math.Abs(normalImpulse)

	var frictionImpulse mgl64.Vec2
	if math.Abs(jt) < normalForce*mu {
		frictionImpulse = tangent.Mul(jt)
	} else {
		frictionImpulse = tangent.Mul(-normalForce * mu * 0.8)
	}

	a.applyImpulse(frictionImpulse.Mul(-1), m.point)
	b.applyImpulse(frictionImpulse, m.point)
}

func correctPositions(m *manifold, tuning Tuning) {
	if m.penetration <= tuning.CorrectionSlop {
		return
	}
	a, b := m.a, m.b
	invMassSum := a.invMass + b.invMass
	if invMassSum == 0 {
		return
	}
	correction := (m.penetration - tuning.CorrectionSlop) / invMassSum * tuning.CorrectionPercent
	vec := m.normal.Mul(correction)

	if a.Motion == MotionDynamic {
		a.Pos = a.Pos.Sub(vec.Mul(a.invMass))
	}
	if b.Motion == MotionDynamic {
		b.Pos = b.Pos.Add(vec.Mul(b.invMass))
	}
}

// overlaps reports whether the dynamic circle touches the target body at all,
// used for sensor checks where no impulse response is wanted.
func overlaps(circle, target *Body) bool {
	return detect(circle, target) != nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
