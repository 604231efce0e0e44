package state

import (
	"math"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/pkg/protocol"
)

// Yaw returns a rotation of deg degrees about the vertical (Y) axis.
func Yaw(deg float64) protocol.Quaternion {
	half := deg * math.Pi / 360
	return protocol.Quaternion{0, math.Sin(half), 0, math.Cos(half)}
}

// Mul returns the Hamilton product a*b (apply b, then a).
func Mul(a, b protocol.Quaternion) protocol.Quaternion {
	ax, ay, az, aw := a[0], a[1], a[2], a[3]
	bx, by, bz, bw := b[0], b[1], b[2], b[3]
	return protocol.Quaternion{
		aw*bx + ax*bw + ay*bz - az*by,
		aw*by - ax*bz + ay*bw + az*bx,
		aw*bz + ax*by - ay*bx + az*bw,
		aw*bw - ax*bx - ay*by - az*bz,
	}
}

// YawOf extracts the rotation about Y in degrees.
func YawOf(q protocol.Quaternion) float64 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	siny := 2 * (w*y + x*z)
	cosy := 1 - 2*(y*y+x*x)
	return math.Atan2(siny, cosy) * 180 / math.Pi
}
