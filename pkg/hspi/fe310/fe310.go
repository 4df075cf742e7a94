// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build tinygo

// Package fe310 drives the HSPI link from a SiFive FE310-G002 (HiFive1 Rev B)
// through the SPI1 controller and a GPIO handshake input.
//
// Pin map: GPIO 3 MOSI, GPIO 4 MISO, GPIO 5 SCK, GPIO 9 CS2, GPIO 10 handshake.
package fe310

import (
	"machine"
	"runtime/volatile"
	"unsafe"

	"github.com/Thermoquad/atbridge/pkg/hspi"
)

// GPIO0 registers
const (
	gpioInputVal = 0x10012000
	gpioInputEn  = 0x10012004
	gpioIOFEn    = 0x10012038
	gpioIOFSel   = 0x1001203C
)

// SPI1 registers
const (
	spi1Base   = 0x10024000
	spi1SCKDiv = spi1Base + 0x00
	spi1CSID   = spi1Base + 0x10
	spi1CSDef  = spi1Base + 0x14
	spi1CSMode = spi1Base + 0x18
	spi1Fmt    = spi1Base + 0x40
	spi1TxData = spi1Base + 0x48
	spi1RxData = spi1Base + 0x4C
	spi1FCtrl  = spi1Base + 0x60
)

// FMT register fields
const (
	fmtProtoShift  = 0
	fmtEndianShift = 2
	fmtLenShift    = 16
)

// Values above 0xFF in TXDATA/RXDATA mean the FIFO is full/empty
const fifoFlag = 0xFF

const (
	pinMOSI      = 3
	pinMISO      = 4
	pinSCK       = 5
	pinCS2       = 9
	pinHandshake = 10

	spiPins = 1<<pinMOSI | 1<<pinMISO | 1<<pinSCK | 1<<pinCS2
)

func reg(addr uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(addr))
}

// Peripheral implements hspi.Bus, hspi.Handshake and hspi.Clock on SPI1
type Peripheral struct{}

// New returns the SPI1 peripheral
func New() *Peripheral {
	return &Peripheral{}
}

// Configure implements hspi.Bus
func (p *Peripheral) Configure(cfg hspi.BusConfig) error {
	// Handshake pin is a plain GPIO input
	reg(gpioIOFEn).ClearBits(1 << pinHandshake)
	reg(gpioInputEn).SetBits(1 << pinHandshake)

	// Programmed I/O mode
	reg(spi1FCtrl).Set(0)

	format := uint32(cfg.Protocol) << fmtProtoShift
	if !cfg.MSBFirst {
		format |= 1 << fmtEndianShift
	}
	format |= uint32(cfg.FrameBits) << fmtLenShift
	reg(spi1Fmt).Set(format)

	if cfg.CSIdleHigh {
		reg(spi1CSDef).Set(0xFFFFFFFF)
	} else {
		reg(spi1CSDef).Set(0)
	}
	reg(spi1CSMode).Set(uint32(cfg.CSMode))
	reg(spi1CSID).Set(uint32(cfg.CSIndex))
	reg(spi1SCKDiv).Set(cfg.Divider)
	return nil
}

// EnablePins selects IOF0 and hands pins 3, 4, 5 and 9 to SPI1
func (p *Peripheral) EnablePins() error {
	reg(gpioIOFSel).Set(0)
	reg(gpioIOFEn).SetBits(spiPins)
	return nil
}

// TrySendByte implements hspi.Bus
func (p *Peripheral) TrySendByte(b byte) bool {
	if reg(spi1TxData).Get() > fifoFlag {
		return false
	}
	reg(spi1TxData).Set(uint32(b))
	return true
}

// TryRecvByte implements hspi.Bus. RXDATA is read exactly once per call,
// the read pops the FIFO.
func (p *Peripheral) TryRecvByte() (byte, bool) {
	v := reg(spi1RxData).Get()
	if v > fifoFlag {
		return 0, false
	}
	return byte(v), true
}

// Release implements hspi.Bus. In CS auto mode the controller deasserts
// chip-select on its own; the engine's settle delay covers the gap.
func (p *Peripheral) Release() {}

// Ready implements hspi.Handshake
func (p *Peripheral) Ready() bool {
	return reg(gpioInputVal).Get()&(1<<pinHandshake) != 0
}

// Delay implements hspi.Clock as a counted busy loop
func (p *Peripheral) Delay(iterations uint32) {
	var i volatile.Register32
	for i.Get() < iterations {
		i.Set(i.Get() + 1)
	}
}

// FrequencyHz implements hspi.Clock
func (p *Peripheral) FrequencyHz() uint32 {
	return machine.CPUFrequency()
}
