package scene

import "github.com/go-gl/mathgl/mgl32"

// Transform is an entity's local placement relative to its parent.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// Identity returns a transform that leaves its children unchanged.
func Identity() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix returns the local transform as translate * rotate * scale.
func (t Transform) Matrix() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	m = m.Mul4(t.Rotation.Normalize().Mat4())
	return m.Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// Rotate applies an additional rotation of angle radians around axis.
func (t *Transform) Rotate(axis mgl32.Vec3, angle float32) {
	if axis.Len() == 0 {
		return
	}
	t.Rotation = mgl32.QuatRotate(angle, axis.Normalize()).Mul(t.Rotation).Normalize()
}
