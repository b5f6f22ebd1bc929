// Package epd drives the E2271KS0C1 2.71" monochrome e-paper panel (176×264
// physical pixels, used as a 264×176 landscape display) over SPI.
//
// The engine is binding-agnostic: it talks to the bus through the Bus
// interface and to the control lines through OutputPin/InputPin. Two bindings
// are provided, PeriphBus (periph.io spidev) and RPIOBus (go-rpio register
// access, linux only).
//
// Every update cycle runs the same sequence:
//
//	[hardware reset, first cycle only]
//	wait busy -> temperature, PSR (and border/VCOM in fast mode)
//	-> frame 1 (new image) -> frame 2 (previous image or zeros)
//	-> wait busy -> power on ×2 -> wait busy -> refresh ×2
//	-> wait busy -> power off ×2 -> wait busy
//
// A full refresh is done on the first cycle and every FullUpdateEvery cycles;
// all other cycles use the fast waveform, which needs the previously
// transmitted frame.
//
// Commands that are sent twice are sent twice on purpose: the controller
// family occasionally drops the first one and the refresh stays incomplete.
package epd
