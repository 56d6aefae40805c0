// Copyright (C) 2025  aattww
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

// Package ntc reads an NTC thermistor in a battery powered voltage
// divider. The divider's high side can be switched through an enable
// pin so the thermistor only draws current while a measurement runs.
//
// Divider with an enable pin:
//
//	[GND]---[NTC]---+---[series resistor]---[enable pin]
//	                |
//	          [analog pin]
//
// Without one, the series resistor is tied to Vcc permanently.
package ntc

import (
	"math"
	"time"
)

// Thermistor and divider characteristics.
const (
	nominalResistance  = 10000.0 // at 25 C
	nominalTemperature = 25.0
	betaCoefficient    = 3380.0
	seriesResistor     = 10000.0
)

// Invalid is returned when no usable measurement could be taken.
const Invalid = -990

// adcMax is the full-scale value of the 10 bit converter.
const adcMax = 1023

// AnalogPin samples the divider midpoint, returning a raw 10 bit value.
type AnalogPin interface {
	Read() int
}

// PullupController is an optional AnalogPin capability: switching the
// pin's internal pullup lets Init detect a thermistor on dividers
// without an enable pin.
type PullupController interface {
	SetPullup(on bool)
}

// EnablePin switches the divider's high side.
type EnablePin interface {
	Set(on bool)
}

// Sensor is an NTC thermistor on an analog pin.
type Sensor struct {
	pin         AnalogPin
	enable      EnablePin // nil when the divider is always powered
	initialized bool

	sleep func(time.Duration) // injected for tests
}

// New creates a sensor. enable may be nil when the divider has no
// enable pin.
func New(pin AnalogPin, enable EnablePin) *Sensor {
	return &Sensor{
		pin:    pin,
		enable: enable,
		sleep:  time.Sleep,
	}
}

// Init verifies that a thermistor is actually connected and usable.
// Must be called before ReadTemperature.
func (s *Sensor) Init() bool {
	if s.enable == nil {
		// Pull the pin up so it does not float when nothing is wired to
		// it; a connected thermistor lands well inside the window.
		pullup, ok := s.pin.(PullupController)
		if ok {
			pullup.SetPullup(true)
		}
		s.sleep(50 * time.Millisecond)
		value := s.pin.Read()
		s.initialized = value > 400 && value < 923
		if ok {
			pullup.SetPullup(false)
		}
		return s.initialized
	}

	// With the divider unpowered a connected thermistor pulls the pin
	// to ground.
	s.enable.Set(false)
	s.sleep(50 * time.Millisecond)
	if s.pin.Read() >= 20 {
		s.initialized = false
		return false
	}

	// Powered up, a sane divider reads somewhere mid-scale.
	s.enable.Set(true)
	s.sleep(50 * time.Millisecond)
	value := s.pin.Read()
	s.enable.Set(false)

	s.initialized = value > 200 && value < 823
	return s.initialized
}

// ReadTemperature returns the current temperature in tenths of a degree
// Celsius, or Invalid when the sensor is missing, shorted or was never
// initialized.
func (s *Sensor) ReadTemperature() int16 {
	if !s.initialized {
		return Invalid
	}

	if s.enable != nil {
		s.enable.Set(true)
		s.sleep(50 * time.Millisecond)
	}

	average := 0.0
	for i := 0; i < 5; i++ {
		average += float64(s.pin.Read())
		s.sleep(10 * time.Millisecond)
	}

	if s.enable != nil {
		s.enable.Set(false)
	}

	average /= 5.0

	// 0 means shorted, full scale means missing; both would divide by
	// zero below.
	if average == 0.0 || average == adcMax {
		return Invalid
	}

	// Divider midpoint back to thermistor resistance.
	resistance := seriesResistor / (adcMax/average - 1)

	// Beta parameter form of the Steinhart-Hart equation.
	steinhart := resistance / nominalResistance
	steinhart = math.Log(steinhart)
	steinhart /= betaCoefficient
	steinhart += 1.0 / (nominalTemperature + 273.15)
	steinhart = 1.0 / steinhart
	steinhart -= 273.15

	return int16(math.Round(steinhart * 10))
}
