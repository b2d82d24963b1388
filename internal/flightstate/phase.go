package flightstate

// Phase is the classified stage of flight. The order is the flight order;
// transitions never move backwards, which guards against sensor noise
// flickering the phase.
type Phase int

const (
	Idle Phase = iota
	PoweredAscent
	Coast
	Apogee
	Descent
	Landed
)

var phaseNames = map[Phase]string{
	Idle:          "idle",
	PoweredAscent: "powered_ascent",
	Coast:         "coast",
	Apogee:        "apogee",
	Descent:       "descent",
	Landed:        "landed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParsePhase maps a stored phase name back to its value. Unknown names map
// to Idle.
func ParsePhase(name string) Phase {
	for p, n := range phaseNames {
		if n == name {
			return p
		}
	}
	return Idle
}
