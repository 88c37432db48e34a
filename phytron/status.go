package phytron

// Status is the extended status word of one axis (SE)
type Status struct {
	PowerStageError  bool `json:"powerStageError"`
	UnderVoltage     bool `json:"underVoltage"`
	OverTemperature  bool `json:"overTemperature"`
	PowerStageActive bool `json:"powerStageActive"`
	LimitMinus       bool `json:"limitMinus"`
	LimitPlus        bool `json:"limitPlus"`
	StepFailure      bool `json:"stepFailure"`
	EncoderError     bool `json:"encoderError"`
	Standstill       bool `json:"standstill"`
	Referenced       bool `json:"referenced"`
}

var statusText = [...]string{
	"power stage error",
	"power stage under voltage",
	"power stage overtemperature",
	"power stage is active",
	"limit- is activated (emergency stop)",
	"limit+ is activated",
	"step failure",
	"encoder error",
	"motor stands still",
	"reference point is driven and OK",
}

// StatusFromBitfield decodes a status word
func StatusFromBitfield(b uint32) Status {
	var s Status
	s.PowerStageError = (b>>0)&1 == 1
	s.UnderVoltage = (b>>1)&1 == 1
	s.OverTemperature = (b>>2)&1 == 1
	s.PowerStageActive = (b>>3)&1 == 1
	s.LimitMinus = (b>>4)&1 == 1
	s.LimitPlus = (b>>5)&1 == 1
	s.StepFailure = (b>>6)&1 == 1
	s.EncoderError = (b>>7)&1 == 1
	s.Standstill = (b>>8)&1 == 1
	s.Referenced = (b>>9)&1 == 1
	return s
}

func (s Status) bits() [len(statusText)]bool {
	return [...]bool{
		s.PowerStageError,
		s.UnderVoltage,
		s.OverTemperature,
		s.PowerStageActive,
		s.LimitMinus,
		s.LimitPlus,
		s.StepFailure,
		s.EncoderError,
		s.Standstill,
		s.Referenced,
	}
}

// Bitfield is the inverse of StatusFromBitfield
func (s Status) Bitfield() uint32 {
	var out uint32
	for i, set := range s.bits() {
		if set {
			out |= 1 << uint(i)
		}
	}
	return out
}

// Running is true while the motor is not at standstill
func (s Status) Running() bool {
	return !s.Standstill
}

// Messages lists the text of every bit that is set
func (s Status) Messages() []string {
	var out []string
	for i, set := range s.bits() {
		if set {
			out = append(out, statusText[i])
		}
	}
	return out
}

// Faults lists the text of every fault bit that is set.  Limit switches are
// not faults on a rotational axis.
func (s Status) Faults(rotational bool) []string {
	var out []string
	for i, set := range s.bits() {
		if !set {
			continue
		}
		switch i {
		case 3, 8, 9:
			continue
		case 4, 5:
			if rotational {
				continue
			}
		}
		out = append(out, statusText[i])
	}
	return out
}

// swapLimits exchanges the limit switches, for axes mounted inverted
func (s Status) swapLimits() Status {
	s.LimitMinus, s.LimitPlus = s.LimitPlus, s.LimitMinus
	return s
}
