// Package keyboard describes the physical board: key positions, fingers, hands and layouts.
package keyboard

// Finger identifies the finger that types a key.
type Finger uint8

// Finger ids, ordered left to right across both hands.
const (
	LeftPinkie Finger = iota
	LeftRing
	LeftMiddle
	LeftIndex
	LeftThumb
	RightThumb
	RightIndex
	RightMiddle
	RightRing
	RightPinkie
	NoFinger
)

// FingerCount is the number of real fingers. NoFinger is not counted.
const FingerCount = int(NoFinger)

// Hand identifies a hand.
type Hand uint8

// Hand ids.
const (
	LeftHand Hand = iota
	RightHand
	NoHand
)

// HandCount is the number of real hands.
const HandCount = int(NoHand)

var fingerNames = [...]string{
	LeftPinkie:  "LP",
	LeftRing:    "LR",
	LeftMiddle:  "LM",
	LeftIndex:   "LI",
	LeftThumb:   "LT",
	RightThumb:  "RT",
	RightIndex:  "RI",
	RightMiddle: "RM",
	RightRing:   "RR",
	RightPinkie: "RP",
	NoFinger:    "--",
}

func (f Finger) String() string {
	if int(f) < len(fingerNames) {
		return fingerNames[f]
	}
	return "??"
}

// Valid reports whether f is a real finger.
func (f Finger) Valid() bool {
	return f < NoFinger
}

// Hand returns the hand the finger belongs to.
func (f Finger) Hand() Hand {
	switch {
	case f <= LeftThumb:
		return LeftHand
	case f <= RightPinkie:
		return RightHand
	default:
		return NoHand
	}
}

// IsIndex reports whether f is an index finger.
func (f Finger) IsIndex() bool {
	return f == LeftIndex || f == RightIndex
}

// IsThumb reports whether f is a thumb.
func (f Finger) IsThumb() bool {
	return f == LeftThumb || f == RightThumb
}

// HomeRow returns the row the finger rests on.
func (f Finger) HomeRow() int {
	if f.IsThumb() {
		return SpaceRow
	}
	return 1
}

func (h Hand) String() string {
	switch h {
	case LeftHand:
		return "left"
	case RightHand:
		return "right"
	default:
		return "none"
	}
}

// FingerWeights scales the cost of work done by each finger.
type FingerWeights [FingerCount]float64

// DefaultFingerWeights penalizes the weaker outer fingers.
func DefaultFingerWeights() FingerWeights {
	return FingerWeights{
		LeftPinkie:  1.5,
		LeftRing:    1.25,
		LeftMiddle:  1.0,
		LeftIndex:   1.0,
		LeftThumb:   1.0,
		RightThumb:  1.0,
		RightIndex:  1.0,
		RightMiddle: 1.0,
		RightRing:   1.25,
		RightPinkie: 1.5,
	}
}

// Weight returns the weight for f, or zero for NoFinger.
func (w FingerWeights) Weight(f Finger) float64 {
	if !f.Valid() {
		return 0
	}
	return w[f]
}
