package signal

import (
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/errors"
)

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// Ingestor extracts a fixed window of samples from a newline separated text file.
type Ingestor struct {
	Size         int
	HeaderOffset int
	Skip         int
	FlatValue    float64
}

func NewIngestor(cfg config.SignalConfig) *Ingestor {
	return &Ingestor{
		Size:         cfg.Size,
		HeaderOffset: cfg.HeaderOffset,
		Skip:         cfg.Skip,
		FlatValue:    cfg.FlatValue,
	}
}

// Window returns the raw samples at lines [HeaderOffset+Skip, HeaderOffset+Skip+Size).
// Files with fewer lines fail with ErrShortWindow, non-numeric lines with ErrMalformedSample.
func (in *Ingestor) Window(text string) ([]float64, error) {
	lines := lineBreak.Split(text, -1)
	start := in.HeaderOffset + in.Skip
	end := start + in.Size

	if len(lines) < end {
		got := len(lines) - start
		if got < 0 {
			got = 0
		}
		return nil, errors.WithHintf(
			errors.Wrapf(errors.ErrShortWindow, "file has %d lines, window needs lines [%d, %d)", len(lines), start, end),
			"expected %d samples after line %d, found %d", in.Size, start, got)
	}

	window := make([]float64, in.Size)
	for i, line := range lines[start:end] {
		v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(errors.ErrMalformedSample, "line %d: %q", start+i, line)
		}
		window[i] = v
	}
	return window, nil
}

// Load extracts the window and min-max normalizes it.
func (in *Ingestor) Load(text string) ([]float64, error) {
	window, err := in.Window(text)
	if err != nil {
		return nil, err
	}
	return Normalize(window, in.FlatValue), nil
}

// Read is Load over the full contents of r.
func (in *Ingestor) Read(r io.Reader) ([]float64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read signal file")
	}
	return in.Load(string(data))
}
