package antex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridSpecCount(t *testing.T) {
	tests := []struct {
		gs   GridSpec
		want int
	}{
		{GridSpec{0, 90, 5}, 19},
		{GridSpec{0, 90, 30}, 4},
		{GridSpec{0, 10, 5}, 3},
		{GridSpec{0, 0.3, 0.1}, 4},
		{GridSpec{0, 90, 0}, 0},
		{GridSpec{90, 0, 5}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.gs.Count(), "grid %+v", tt.gs)
	}
}

func TestDecodeRow(t *testing.T) {
	gs := GridSpec{Zen1: 0, Zen2: 90, DZen: 30}

	az, samples, err := DecodeRow("   NOAZI    0.00   -2.50   -4.00    0.00", gs)
	require.NoError(t, err)
	assert.True(t, az.IsMean())
	assert.Equal(t, []Sample{{0, 0}, {30, -2.5}, {60, -4}, {90, 0}}, samples)

	az, samples, err = DecodeRow("   120.0    0.00   -3.00   -4.50   -0.50\r\n", gs)
	require.NoError(t, err)
	assert.Equal(t, Azimuth(120), az)
	assert.Len(t, samples, 4)
	assert.Equal(t, -0.5, samples[3].Value)
}

func TestDecodeRowIgnoresTrailingFields(t *testing.T) {
	_, samples, err := DecodeRow("   NOAZI    1.00    2.00    3.00    4.00", GridSpec{0, 10, 5})
	require.NoError(t, err)
	assert.Len(t, samples, 3)
}

func TestDecodeRowErrors(t *testing.T) {
	gs := GridSpec{Zen1: 0, Zen2: 10, DZen: 5}
	tests := []struct {
		name string
		line string
		gs   GridSpec
	}{
		{"short", "   NOAZI    0.00    0.00", gs},
		{"empty", "", gs},
		{"bad azimuth", "    abcd    0.00    0.00    0.00", gs},
		{"bad value", "   NOAZI    0.00    x.yz    0.00", gs},
		{"blank value", "   NOAZI    0.00            0.00", gs},
		{"negative azimuth", "    -1.0    0.00    0.00    0.00", gs},
		{"azimuth past 360", "   360.5    0.00    0.00    0.00", gs},
		{"zero step", "   NOAZI    0.00    0.00    0.00", GridSpec{0, 10, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeRow(tt.line, tt.gs)
			assert.Error(t, err)
		})
	}
}

func TestEncodeRowRoundTrip(t *testing.T) {
	gs := GridSpec{Zen1: 0, Zen2: 90, DZen: 5}
	samples := make([]Sample, gs.Count())
	for k := range samples {
		samples[k] = Sample{Elevation: gs.Elevation(k), Value: float64(k%7) - 3.25}
	}

	for _, az := range []Azimuth{NoAzimuth, 0, 5, 355} {
		line := EncodeRow(az, samples)
		assert.Len(t, line, fieldWidth*(len(samples)+1))

		gotAz, got, err := DecodeRow(line, gs)
		require.NoError(t, err)
		assert.Equal(t, az, gotAz)
		assert.Equal(t, samples, got)
	}
}

func TestGridHelpers(t *testing.T) {
	g := Grid{
		NoAzimuth: {{0, 1}, {5, -2}},
		240:       {{0, 0.5}, {5, 4.5}},
		0:         {{0, 0}, {5, -1}},
		120:       {{0, 0}, {5, -6}},
	}
	assert.Equal(t, []Azimuth{0, 120, 240}, g.Azimuths())
	assert.Equal(t, 6.0, g.MaxAbs())

	row, ok := g.Mean()
	require.True(t, ok)
	assert.Len(t, row, 2)

	_, ok = Grid{}.Mean()
	assert.False(t, ok)
}

func TestAzimuthText(t *testing.T) {
	for _, az := range []Azimuth{NoAzimuth, 0, 120, 37.5} {
		b, err := az.MarshalText()
		require.NoError(t, err)
		var got Azimuth
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, az, got)
	}
	assert.Equal(t, "NOAZI", NoAzimuth.String())

	var bad Azimuth
	assert.Error(t, bad.UnmarshalText([]byte("north")))
}
