package core

// EXIF orientation values that need a rotation before serving.
const (
	OrientationUpsideDown = 3
	OrientationRotateCW   = 6
	OrientationRotateCCW  = 8
)

// RotationFor returns the clockwise rotation in degrees that fixes the given
// EXIF orientation. Mirrored orientations (2, 4, 5, 7) are left alone.
func RotationFor(orientation int) (degrees int, ok bool) {
	switch orientation {
	case OrientationUpsideDown:
		return 180, true
	case OrientationRotateCW:
		return 90, true
	case OrientationRotateCCW:
		return -90, true
	}
	return 0, false
}

// NeedsRotation reports whether orientation is 3, 6 or 8.
func NeedsRotation(orientation int) bool {
	_, ok := RotationFor(orientation)
	return ok
}
