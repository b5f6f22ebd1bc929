package epd

import "time"

// controller is the set of primitives a refresh cycle is written against.
// Failures are handled by the implementation so sequences read top to bottom.
type controller interface {
	sendCommand(cmd byte)
	sendData(data ...byte)
	sendFrame(b []byte)
	waitUntilIdle()
	delay(d time.Duration)
	enter(s State)
}

// cycle is the input of one refresh.
type cycle struct {
	regs     Registers
	border   BorderVariant
	current  []byte
	previous []byte
	blank    []byte
	settle   time.Duration
}

// softReset writes the reset value to PSR and lets the controller settle.
func softReset(ctrl controller, settle time.Duration) {
	ctrl.sendCommand(cmdPanelSettings)
	ctrl.sendData(softResetPSR)
	ctrl.delay(settle)
}

func configure(ctrl controller, c *cycle) {
	fast := c.regs.Mode == Fast
	if !fast {
		softReset(ctrl, c.settle)
	}
	ctrl.sendCommand(cmdInputTemp)
	ctrl.sendData(c.regs.Temp)
	ctrl.sendCommand(cmdActiveTemp)
	ctrl.sendData(c.regs.ActiveTemp)
	if fast && c.border == BorderSingle {
		ctrl.sendCommand(cmdVcomDataInterval)
		ctrl.sendData(borderWhite)
	}
	ctrl.sendCommand(cmdPanelSettings)
	ctrl.sendData(c.regs.PSR[0], c.regs.PSR[1])
	if fast && c.border == BorderSingle {
		ctrl.sendCommand(cmdVcomDataInterval)
		ctrl.sendData(vcomDataInterval)
	}
}

func sendFrame1(ctrl controller, c *cycle) {
	if c.regs.Mode == Fast && c.border == BorderDoubled {
		for range 2 {
			ctrl.sendCommand(cmdVcomDataInterval)
			ctrl.sendData(borderWhite)
		}
	}
	ctrl.sendCommand(cmdFrame1)
	ctrl.sendFrame(c.current)
}

func sendFrame2(ctrl controller, c *cycle) {
	ctrl.sendCommand(cmdFrame2)
	if c.regs.Mode == Fast {
		ctrl.sendFrame(c.previous)
	} else {
		ctrl.sendFrame(c.blank)
	}
	if c.regs.Mode == Fast && c.border == BorderDoubled {
		for range 2 {
			ctrl.sendCommand(cmdVcomDataInterval)
			ctrl.sendData(vcomDataInterval)
		}
	}
}

func sendTwice(ctrl controller, cmd byte) {
	ctrl.sendCommand(cmd)
	ctrl.sendCommand(cmd)
}

// runCycle drives the controller from WaitBusy1 back to Idle. Every power
// command is preceded by a busy wait.
func runCycle(ctrl controller, c *cycle) {
	ctrl.enter(StateWaitBusy1)
	ctrl.waitUntilIdle()

	ctrl.enter(StateConfiguring)
	configure(ctrl, c)

	ctrl.enter(StateTransmittingFrame1)
	sendFrame1(ctrl, c)

	ctrl.enter(StateTransmittingFrame2)
	sendFrame2(ctrl, c)

	ctrl.enter(StateWaitBusy2)
	ctrl.waitUntilIdle()
	ctrl.enter(StatePowerOn)
	sendTwice(ctrl, cmdPowerOn)

	ctrl.enter(StateWaitBusy3)
	ctrl.waitUntilIdle()
	ctrl.enter(StateRefresh)
	sendTwice(ctrl, cmdRefresh)

	ctrl.enter(StateWaitBusy4)
	ctrl.waitUntilIdle()
	ctrl.enter(StatePowerOff)
	sendTwice(ctrl, cmdPowerOff)

	ctrl.enter(StateWaitBusy5)
	ctrl.waitUntilIdle()

	ctrl.enter(StateIdle)
}
