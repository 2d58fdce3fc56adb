package transcode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-topo/algorithms/common"
	"github.com/RyanBlaney/sonido-topo/algorithms/filters"
	"github.com/RyanBlaney/sonido-topo/logging"
	"github.com/mjibson/go-dsp/wav"
)

// Supported input formats
const (
	FormatWAV  = "wav"
	FormatCSV  = "csv"
	FormatText = "txt"
)

var (
	// ErrUnsupportedFormat is returned for inputs that are not WAV, CSV or text
	ErrUnsupportedFormat = errors.New("unsupported signal format")

	// ErrNoSamples is returned when an input decodes to an empty signal
	ErrNoSamples = errors.New("input holds no samples")
)

// SignalData represents a decoded signal
type SignalData struct {
	Samples    []float64     `json:"-"`
	SampleRate int           `json:"sample_rate,omitempty"` // 0 when the format carries no rate
	Channels   int           `json:"channels"`              // channels in the source, before downmix
	Duration   time.Duration `json:"duration,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Metadata   *Metadata     `json:"metadata,omitempty"`
}

// Metadata describes where a signal came from
type Metadata struct {
	Source        string `json:"source"`
	Format        string `json:"format"`
	BitsPerSample int    `json:"bits_per_sample,omitempty"`
	Column        int    `json:"column,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	// WAV
	MaxDuration time.Duration `json:"max_duration"` // 0 means no limit

	// CSV / text
	Column     int  `json:"column"`      // zero-based column holding the signal
	Comma      rune `json:"comma"`       // field separator, ',' by default
	HasHeader  bool `json:"has_header"`  // skip the first record
	SampleRate int  `json:"sample_rate"` // rate of rate-less inputs, 0 if unknown

	// Shared
	MaxSamples          int     `json:"max_samples"`     // 0 means no limit
	HighPassCutoff      float64 `json:"highpass_cutoff"` // Hz, 0 disables baseline removal
	EnableNormalization bool    `json:"enable_normalization"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		Comma:               ',',
		EnableNormalization: false,
	}
}

// Decoder turns WAV, CSV and plain-text files into signals
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new signal decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	if config.Comma == 0 {
		config.Comma = ','
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "signal_decoder",
		}),
	}
}

// FormatFromPath infers the input format from a file extension
func FormatFromPath(path string) (string, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "wav", "wave":
		return FormatWAV, nil
	case "csv":
		return FormatCSV, nil
	case "txt", "dat", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
}

// DecodeFile decodes the file at path, choosing the format by extension
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*SignalData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "DecodeFile",
		"path":     path,
	})

	format, err := FormatFromPath(path)
	if err != nil {
		logger.Error(err, "Cannot decode file")
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Error(err, "Failed to open signal file")
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	data, err := d.Decode(ctx, bufio.NewReader(f), format)
	if err != nil {
		logger.Error(err, "Failed to decode signal file")
		return nil, err
	}
	data.Metadata.Source = path

	logger.Debug("Signal decoded", logging.Fields{
		"format":      format,
		"samples":     len(data.Samples),
		"sample_rate": data.SampleRate,
		"channels":    data.Channels,
	})
	return data, nil
}

// DecodeBytes decodes an in-memory input of the given format
func (d *Decoder) DecodeBytes(ctx context.Context, input []byte, format string) (*SignalData, error) {
	return d.Decode(ctx, bytes.NewReader(input), format)
}

// Decode reads a signal of the given format from r
func (d *Decoder) Decode(ctx context.Context, r io.Reader, format string) (*SignalData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		data *SignalData
		err  error
	)
	switch format {
	case FormatWAV:
		data, err = d.decodeWAV(r)
	case FormatCSV:
		data, err = d.decodeDelimited(ctx, r, d.config.Comma, FormatCSV)
	case FormatText:
		data, err = d.decodeText(ctx, r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	if len(data.Samples) == 0 {
		return nil, fmt.Errorf("%w: %s input", ErrNoSamples, format)
	}
	if !common.AllFinite(data.Samples) {
		return nil, fmt.Errorf("%s input contains a non-finite sample", format)
	}

	if d.config.MaxSamples > 0 && len(data.Samples) > d.config.MaxSamples {
		data.Samples = data.Samples[:d.config.MaxSamples]
		data.Metadata.Truncated = true
	}
	if data.SampleRate == 0 {
		data.SampleRate = d.config.SampleRate
	}
	if data.SampleRate > 0 {
		data.Duration = time.Duration(len(data.Samples)) * time.Second / time.Duration(data.SampleRate)
	}
	if d.config.HighPassCutoff > 0 {
		blocker, err := filters.NewDCBlockerWithCutoff(data.SampleRate, d.config.HighPassCutoff)
		if err != nil {
			return nil, fmt.Errorf("baseline removal: %w", err)
		}
		data.Samples = blocker.ProcessBuffer(data.Samples)
	}
	if d.config.EnableNormalization {
		data.Samples = common.Normalize(data.Samples)
	}

	data.Timestamp = time.Now()
	return data, nil
}

// decodeWAV reads PCM or float WAV data and averages channels to mono.
// Integer PCM is rescaled to [-1, 1].
func (d *Decoder) decodeWAV(r io.Reader) (*SignalData, error) {
	w, err := wav.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if w.NumChannels == 0 {
		return nil, fmt.Errorf("WAV header reports zero channels")
	}

	channels := int(w.NumChannels)
	limit := -1
	if d.config.MaxDuration > 0 && w.SampleRate > 0 {
		limit = int(d.config.MaxDuration.Seconds()*float64(w.SampleRate)) * channels
	}

	total := w.Samples - w.Samples%channels
	if limit >= 0 && limit < total {
		total = limit
	}

	var interleaved []float32
	if total > 0 {
		interleaved, err = w.ReadFloats(total)
		if err != nil {
			return nil, fmt.Errorf("failed to read WAV samples: %w", err)
		}
	}

	// go-dsp rounds the reported sample count down to a multiple of 8 for
	// 16-bit data, so the tail is read frame by frame
	truncated := false
	for {
		frame, err := w.ReadFloats(channels)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read WAV samples: %w", err)
		}
		if limit >= 0 && len(interleaved) >= limit {
			truncated = true
			break
		}
		interleaved = append(interleaved, frame...)
	}

	frames := len(interleaved) / channels
	samples := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			v := float64(interleaved[i*channels+c])
			if w.AudioFormat == 1 {
				// go-dsp maps integer PCM to [0, 1]
				v = 2*v - 1
			}
			sum += v
		}
		samples[i] = sum / float64(channels)
	}

	return &SignalData{
		Samples:    samples,
		SampleRate: int(w.SampleRate),
		Channels:   channels,
		Metadata: &Metadata{
			Format:        FormatWAV,
			BitsPerSample: int(w.BitsPerSample),
			Truncated:     truncated,
		},
	}, nil
}

// decodeText reads whitespace separated numbers, one or more per line
func (d *Decoder) decodeText(ctx context.Context, r io.Reader) (*SignalData, error) {
	scanner := bufio.NewScanner(r)
	var samples []float64
	line := 0
	for scanner.Scan() {
		line++
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		for _, field := range strings.Fields(text) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			samples = append(samples, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text input: %w", err)
	}

	return &SignalData{
		Samples:  samples,
		Channels: 1,
		Metadata: &Metadata{Format: FormatText},
	}, nil
}

// decodeDelimited reads the configured column of a delimited file
func (d *Decoder) decodeDelimited(ctx context.Context, r io.Reader, comma rune, format string) (*SignalData, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	column := d.config.Column
	var samples []float64
	for record := 0; ; record++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s record %d: %w", format, record, err)
		}
		if record == 0 && d.config.HasHeader {
			continue
		}
		if record%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if column >= len(fields) {
			return nil, fmt.Errorf("%s record %d has %d fields, column %d requested", format, record, len(fields), column)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[column]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", format, record, err)
		}
		samples = append(samples, v)
	}

	return &SignalData{
		Samples:  samples,
		Channels: 1,
		Metadata: &Metadata{Format: format, Column: column},
	}, nil
}

// EncodeWAV writes samples as a mono 16-bit PCM WAV stream. Samples are
// clipped to [-1, 1].
func EncodeWAV(w io.Writer, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}

	const bitsPerSample = 16
	dataSize := uint32(len(samples) * bitsPerSample / 8)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	writeLE(&buf, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeLE(&buf, uint32(16))
	writeLE(&buf, uint16(1)) // PCM
	writeLE(&buf, uint16(1)) // mono
	writeLE(&buf, uint32(sampleRate))
	writeLE(&buf, uint32(sampleRate*bitsPerSample/8))
	writeLE(&buf, uint16(bitsPerSample/8))
	writeLE(&buf, uint16(bitsPerSample))
	buf.WriteString("data")
	writeLE(&buf, dataSize)

	for _, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		writeLE(&buf, int16(math.Round(s*math.MaxInt16)))
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteText writes one sample per line
func WriteText(w io.Writer, samples []float64) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		if _, err := bw.WriteString(strconv.FormatFloat(s, 'g', -1, 64) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
