package epd

import "fmt"

// State is a step of the update cycle.
type State uint8

const (
	StateIdle State = iota
	StateHardwareReset
	StateWaitBusy1
	StateConfiguring
	StateTransmittingFrame1
	StateTransmittingFrame2
	StateWaitBusy2
	StatePowerOn
	StateWaitBusy3
	StateRefresh
	StateWaitBusy4
	StatePowerOff
	StateWaitBusy5
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateHardwareReset:      "hardware_reset",
	StateWaitBusy1:          "wait_busy_1",
	StateConfiguring:        "configuring",
	StateTransmittingFrame1: "transmitting_frame_1",
	StateTransmittingFrame2: "transmitting_frame_2",
	StateWaitBusy2:          "wait_busy_2",
	StatePowerOn:            "power_on",
	StateWaitBusy3:          "wait_busy_3",
	StateRefresh:            "refresh",
	StateWaitBusy4:          "wait_busy_4",
	StatePowerOff:           "power_off",
	StateWaitBusy5:          "wait_busy_5",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("epd: unknown state %q", b)
}
