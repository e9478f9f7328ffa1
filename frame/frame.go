package frame

// Tuple is the complete color+depth unit produced for one camera in one
// successful capture cycle. A tuple is never mutated after construction;
// the capture loop replaces cache entries wholesale.
type Tuple struct {
	Serial    string
	Index     int
	Width     int
	Height    int
	Color     []byte   // packed BGR24, Width*Height*3 bytes
	Depth     []uint16 // raw depth samples, Width*Height values
	DepthVis  []byte   // false-colored depth, packed BGR24
	Timestamp float64  // milliseconds since the Unix epoch
}
