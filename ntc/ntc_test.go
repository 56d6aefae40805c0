package ntc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePin replays a sequence of raw ADC values; the last value repeats.
type fakePin struct {
	values []int
	pullup bool
}

func (p *fakePin) Read() int {
	v := p.values[0]
	if len(p.values) > 1 {
		p.values = p.values[1:]
	}
	return v
}

func (p *fakePin) SetPullup(on bool) { p.pullup = on }

type fakeEnable struct {
	on          bool
	transitions int
}

func (e *fakeEnable) Set(on bool) {
	if e.on != on {
		e.transitions++
	}
	e.on = on
}

func newTestSensor(pin AnalogPin, enable EnablePin) *Sensor {
	s := New(pin, enable)
	s.sleep = func(time.Duration) {}
	return s
}

func TestInitWithoutEnablePin(t *testing.T) {
	testCases := []struct {
		name  string
		value int
		ok    bool
	}{
		{name: "thermistor connected", value: 700, ok: true},
		{name: "pin stuck low", value: 300, ok: false},
		{name: "pin floating high", value: 1000, ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pin := &fakePin{values: []int{tc.value}}
			s := newTestSensor(pin, nil)
			assert.Equal(t, tc.ok, s.Init())
			assert.False(t, pin.pullup, "pullup must be released after probing")
		})
	}
}

func TestInitWithEnablePin(t *testing.T) {
	// Unpowered the thermistor pulls the pin to ground, powered the
	// divider reads mid-scale.
	pin := &fakePin{values: []int{5, 500}}
	enable := &fakeEnable{}
	s := newTestSensor(pin, enable)

	assert.True(t, s.Init())
	assert.False(t, enable.on, "divider must be unpowered after probing")
}

func TestInitWithEnablePinNoThermistor(t *testing.T) {
	// Without a thermistor the unpowered pin does not sit at ground.
	pin := &fakePin{values: []int{600}}
	s := newTestSensor(pin, &fakeEnable{})
	assert.False(t, s.Init())
}

func TestReadTemperatureUninitialized(t *testing.T) {
	s := newTestSensor(&fakePin{values: []int{512}}, nil)
	assert.Equal(t, int16(Invalid), s.ReadTemperature())
}

func TestReadTemperature(t *testing.T) {
	pin := &fakePin{values: []int{700}}
	s := newTestSensor(pin, nil)
	require.True(t, s.Init())

	// An ADC reading of 512 puts the thermistor at roughly its nominal
	// 10k, which is 24.9 C with these divider constants.
	pin.values = []int{512}
	assert.Equal(t, int16(249), s.ReadTemperature())
}

func TestReadTemperatureMonotonic(t *testing.T) {
	pin := &fakePin{values: []int{700}}
	s := newTestSensor(pin, nil)
	require.True(t, s.Init())

	// Higher ADC value means larger NTC resistance, so a colder reading.
	pin.values = []int{400}
	warm := s.ReadTemperature()
	pin.values = []int{600}
	cold := s.ReadTemperature()
	assert.Greater(t, warm, cold)
}

func TestReadTemperatureFaults(t *testing.T) {
	pin := &fakePin{values: []int{700}}
	s := newTestSensor(pin, nil)
	require.True(t, s.Init())

	// Shorted sensor.
	pin.values = []int{0}
	assert.Equal(t, int16(Invalid), s.ReadTemperature())

	// Missing sensor.
	pin.values = []int{1023}
	assert.Equal(t, int16(Invalid), s.ReadTemperature())
}

func TestReadTemperaturePowersDivider(t *testing.T) {
	pin := &fakePin{values: []int{5, 500}}
	enable := &fakeEnable{}
	s := newTestSensor(pin, enable)
	require.True(t, s.Init())

	pin.values = []int{512}
	s.ReadTemperature()
	assert.False(t, enable.on, "divider must be powered down after the measurement")
}
