package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-topo/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.SetGlobalLogger(nil)
}

// stereoWAV builds a 16-bit PCM stream from interleaved left/right samples
func stereoWAV(t *testing.T, interleaved []int16, sampleRate uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	dataSize := uint32(len(interleaved) * 2)

	buf.WriteString("RIFF")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, 36+dataSize))
	buf.WriteString("WAVEfmt ")
	for _, v := range []any{uint32(16), uint16(1), uint16(2), sampleRate, sampleRate * 4, uint16(4), uint16(16)} {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}
	buf.WriteString("data")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, dataSize))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, interleaved))
	return buf.Bytes()
}

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 0.8 * math.Sin(2*math.Pi*float64(i)/32)
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeWAV(&buf, samples, 128))

	data, err := NewDecoder(nil).DecodeBytes(context.Background(), buf.Bytes(), FormatWAV)
	require.NoError(t, err)

	assert.Equal(t, 128, data.SampleRate)
	assert.Equal(t, 1, data.Channels)
	assert.Equal(t, 2*time.Second, data.Duration)
	assert.Equal(t, 16, data.Metadata.BitsPerSample)
	require.Len(t, data.Samples, len(samples))
	assert.InDeltaSlice(t, samples, data.Samples, 1e-3)
}

func TestWAVStereoDownmix(t *testing.T) {
	input := stereoWAV(t, []int16{16384, -16384, 32767, 32767, -32768, -32768}, 8000)

	data, err := NewDecoder(nil).DecodeBytes(context.Background(), input, FormatWAV)
	require.NoError(t, err)

	assert.Equal(t, 2, data.Channels)
	assert.InDeltaSlice(t, []float64{0, 1, -1}, data.Samples, 1e-3)
}

func TestWAVSampleCounts(t *testing.T) {
	for _, n := range []int{5, 1000, 1001, 1007} {
		samples := make([]float64, n)
		for i := range samples {
			samples[i] = float64(i%7)/10 - 0.3
		}

		var buf bytes.Buffer
		require.NoError(t, EncodeWAV(&buf, samples, 8000))

		data, err := NewDecoder(nil).DecodeBytes(context.Background(), buf.Bytes(), FormatWAV)
		require.NoError(t, err, "n=%d", n)
		require.Len(t, data.Samples, n, "n=%d", n)
		assert.InDelta(t, samples[n-1], data.Samples[n-1], 1e-3, "n=%d", n)
		assert.False(t, data.Metadata.Truncated)
	}
}

func TestWAVMaxDurationInTail(t *testing.T) {
	// 1005 samples: the header-derived count stops at 1000
	var buf bytes.Buffer
	require.NoError(t, EncodeWAV(&buf, make([]float64, 1005), 4))

	data, err := NewDecoder(&DecoderConfig{MaxDuration: 250750 * time.Millisecond}).
		DecodeBytes(context.Background(), buf.Bytes(), FormatWAV)
	require.NoError(t, err)
	assert.Len(t, data.Samples, 1003)
	assert.True(t, data.Metadata.Truncated)
}

func TestWAVMaxDuration(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeWAV(&buf, make([]float64, 1000), 100))

	data, err := NewDecoder(&DecoderConfig{MaxDuration: 2 * time.Second}).
		DecodeBytes(context.Background(), buf.Bytes(), FormatWAV)
	require.NoError(t, err)
	assert.Len(t, data.Samples, 200)
	assert.True(t, data.Metadata.Truncated)
}

func TestWAVInvalid(t *testing.T) {
	_, err := NewDecoder(nil).DecodeBytes(context.Background(), []byte("not a wav file at all"), FormatWAV)
	assert.Error(t, err)

	assert.Error(t, EncodeWAV(&bytes.Buffer{}, []float64{0}, 0))
}

func TestCSV(t *testing.T) {
	input := "time,value\n0,1.5\n1,-2\n# comment\n2, 3.25\n"

	data, err := NewDecoder(&DecoderConfig{Column: 1, HasHeader: true}).
		DecodeBytes(context.Background(), []byte(input), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2, 3.25}, data.Samples)
	assert.Equal(t, 0, data.SampleRate)
	assert.Equal(t, 1, data.Metadata.Column)

	_, err = NewDecoder(&DecoderConfig{Column: 2}).
		DecodeBytes(context.Background(), []byte("1,2\n"), FormatCSV)
	assert.Error(t, err)

	_, err = NewDecoder(nil).DecodeBytes(context.Background(), []byte("abc\n"), FormatCSV)
	assert.Error(t, err)
}

func TestCSVSemicolon(t *testing.T) {
	data, err := NewDecoder(&DecoderConfig{Comma: ';'}).
		DecodeBytes(context.Background(), []byte("1;9\n2;9\n"), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, data.Samples)
}

func TestText(t *testing.T) {
	input := "# ecg export\n0.1 0.2\n\n0.3\n-4e-1\n"

	data, err := NewDecoder(nil).DecodeBytes(context.Background(), []byte(input), FormatText)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, -0.4}, data.Samples)

	_, err = NewDecoder(nil).DecodeBytes(context.Background(), []byte("\n# nothing\n"), FormatText)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = NewDecoder(nil).DecodeBytes(context.Background(), []byte("1\nNaN\n"), FormatText)
	assert.Error(t, err)
}

func TestNormalizationAndLimit(t *testing.T) {
	cfg := &DecoderConfig{MaxSamples: 4, EnableNormalization: true}
	data, err := NewDecoder(cfg).DecodeBytes(context.Background(), []byte("1\n2\n3\n4\n100\n"), FormatText)
	require.NoError(t, err)

	require.Len(t, data.Samples, 4)
	assert.True(t, data.Metadata.Truncated)
	mean := 0.0
	for _, v := range data.Samples {
		mean += v
	}
	assert.InDelta(t, 0, mean, 1e-12)
}

func TestHighPass(t *testing.T) {
	var b bytes.Buffer
	for i := range 2048 {
		// slow drift on top of a 10 Hz tone at 128 Hz
		v := math.Sin(2*math.Pi*10*float64(i)/128) + 5 + 0.0005*float64(i)
		require.NoError(t, WriteText(&b, []float64{v}))
	}

	cfg := &DecoderConfig{SampleRate: 128, HighPassCutoff: 0.5}
	data, err := NewDecoder(cfg).DecodeBytes(context.Background(), b.Bytes(), FormatText)
	require.NoError(t, err)
	assert.Equal(t, 128, data.SampleRate)
	assert.Equal(t, 16*time.Second, data.Duration)

	tail := data.Samples[1024:]
	mean := 0.0
	for _, v := range tail {
		mean += v
	}
	mean /= float64(len(tail))
	assert.InDelta(t, 0, mean, 0.05, "offset and drift are removed")

	_, err = NewDecoder(&DecoderConfig{HighPassCutoff: 0.5}).DecodeBytes(context.Background(), b.Bytes(), FormatText)
	assert.Error(t, err, "rate-less input needs a sample rate")
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signal.txt")

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, []float64{1, 2.5, -3}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	data, err := NewDecoder(nil).DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3}, data.Samples)
	assert.Equal(t, path, data.Metadata.Source)

	_, err = NewDecoder(nil).DecodeFile(context.Background(), filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	_, err = NewDecoder(nil).DecodeFile(context.Background(), filepath.Join(dir, "signal.mp3"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDecoder(nil).DecodeBytes(ctx, []byte("1\n"), FormatText)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]string{
		"a.wav": FormatWAV, "b.WAVE": FormatWAV, "c.csv": FormatCSV, "d.txt": FormatText, "e": FormatText,
	} {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatFromPath("x.flac")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
