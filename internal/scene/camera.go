package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	defaultFOV  = 60
	defaultNear = 0.001
	defaultFar  = 100000
)

var worldUp = mgl32.Vec3{0, 1, 0}

// Camera is a perspective camera. Pitch and Yaw are in degrees; a yaw of
// -90 looks down -Z.
type Camera struct {
	Position   mgl32.Vec3
	Pitch, Yaw float32
	FOV        float32 // vertical, degrees
	Near, Far  float32
}

// NewCamera returns a camera at the origin looking down -Z.
func NewCamera() *Camera {
	return &Camera{Yaw: -90, FOV: defaultFOV, Near: defaultNear, Far: defaultFar}
}

// Front is the unit vector the camera looks along.
func (c *Camera) Front() mgl32.Vec3 {
	tilt := float64(mgl32.DegToRad(c.Pitch))
	pan := float64(mgl32.DegToRad(c.Yaw))
	return mgl32.Vec3{
		float32(math.Cos(tilt) * math.Cos(pan)),
		float32(math.Sin(tilt)),
		float32(math.Cos(tilt) * math.Sin(pan)),
	}.Normalize()
}

// View returns the world-to-camera matrix.
func (c *Camera) View() mgl32.Mat4 {
	front := c.Front()
	right := front.Cross(worldUp).Normalize()
	up := right.Cross(front).Normalize()
	return mgl32.LookAtV(c.Position, c.Position.Add(front), up)
}

// Projection returns the perspective matrix for a viewport aspect ratio.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, c.Near, c.Far)
}
