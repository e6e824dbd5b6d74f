package wearable

import (
	"fmt"
	"strings"
)

// BodyShape is one of the two avatar base bodies.
type BodyShape int

const (
	Male BodyShape = iota
	Female
)

// BodyShapeCount is the number of body shapes.
const BodyShapeCount = 2

const (
	MaleURN   URN = "urn:decentraland:off-chain:base-avatars:basemale"
	FemaleURN URN = "urn:decentraland:off-chain:base-avatars:basefemale"
)

// BodyShapes lists all body shapes in index order.
var BodyShapes = [BodyShapeCount]BodyShape{Male, Female}

func (b BodyShape) String() string {
	if b == Female {
		return "female"
	}
	return "male"
}

// URN returns the URN of the base body definition.
func (b BodyShape) URN() URN {
	if b == Female {
		return FemaleURN
	}
	return MaleURN
}

// Other returns the opposite body shape.
func (b BodyShape) Other() BodyShape {
	if b == Female {
		return Male
	}
	return Female
}

// ParseBodyShape accepts "male", "female" or a base body URN in any case.
func ParseBodyShape(s string) (BodyShape, error) {
	switch v := NewURN(s); v {
	case "male", MaleURN:
		return Male, nil
	case "female", FemaleURN:
		return Female, nil
	default:
		return Male, fmt.Errorf("unknown body shape %q", strings.TrimSpace(s))
	}
}
