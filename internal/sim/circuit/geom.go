package circuit

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/df-mc/dragonfly/server/block/cube"
)

type (
	Pos  = cube.Pos
	Face = cube.Face
	Axis = cube.Axis
)

// NodeID identifies a propagation participant. Two nodes at the same position
// with different faces are distinct.
type NodeID struct {
	Pos  Pos
	Face Face
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d,%d,%d/%s", id.Pos[0], id.Pos[1], id.Pos[2], FaceName(id.Face))
}

// Across returns the position on the other side of face f and the face of that
// position which touches pos.
func Across(pos Pos, f Face) (Pos, Face) { return pos.Side(f), f.Opposite() }

func FaceName(f Face) string {
	switch f {
	case cube.FaceDown:
		return "down"
	case cube.FaceUp:
		return "up"
	case cube.FaceNorth:
		return "north"
	case cube.FaceSouth:
		return "south"
	case cube.FaceWest:
		return "west"
	case cube.FaceEast:
		return "east"
	default:
		return "?"
	}
}

// ParseFace is the inverse of FaceName.
func ParseFace(s string) (Face, bool) {
	for _, f := range cube.Faces() {
		if FaceName(f) == s {
			return f, true
		}
	}
	return 0, false
}

func Horizontal(f Face) bool {
	return f == cube.FaceNorth || f == cube.FaceSouth || f == cube.FaceWest || f == cube.FaceEast
}

// Positive reports whether f points along the positive direction of its axis.
func Positive(f Face) bool {
	return f == cube.FaceUp || f == cube.FaceSouth || f == cube.FaceEast
}

// AxisFaces returns the negative and positive faces of axis a.
func AxisFaces(a Axis) (neg, pos Face) {
	switch a {
	case cube.X:
		return cube.FaceWest, cube.FaceEast
	case cube.Z:
		return cube.FaceNorth, cube.FaceSouth
	default:
		return cube.FaceDown, cube.FaceUp
	}
}

// RotateLeft turns a horizontal face a quarter counter-clockwise seen from above.
// Vertical faces are returned unchanged.
func RotateLeft(f Face) Face {
	switch f {
	case cube.FaceNorth:
		return cube.FaceWest
	case cube.FaceWest:
		return cube.FaceSouth
	case cube.FaceSouth:
		return cube.FaceEast
	case cube.FaceEast:
		return cube.FaceNorth
	default:
		return f
	}
}

func RotateRight(f Face) Face { return RotateLeft(RotateLeft(RotateLeft(f))) }

// SortPositions orders positions by x, then y, then z.
func SortPositions(ps []Pos) {
	slices.SortFunc(ps, ComparePos)
}

func ComparePos(a, b Pos) int {
	if c := cmp.Compare(a[0], b[0]); c != 0 {
		return c
	}
	if c := cmp.Compare(a[1], b[1]); c != 0 {
		return c
	}
	return cmp.Compare(a[2], b[2])
}
