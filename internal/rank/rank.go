// Package rank turns a model's probability row into the labelled, sorted and
// formatted list shown to the user.
package rank

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/text/message"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/errors"
)

type Prediction struct {
	ClassIndex  int     `json:"class_index"`
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	// FormattedPercentage is the percentage at fixed precision with the locale's decimal separator
	FormattedPercentage string `json:"formatted_percentage"`
	// Title is the percentage at full precision
	Title         string `json:"title"`
	CSSPercentage string `json:"css_percentage"`
	Color         string `json:"color"`
}

var (
	lowColor  = colorful.Color{R: 0xaa / 255.0, G: 0xaa / 255.0, B: 0xaa / 255.0}
	highColor = colorful.Color{R: 52 / 255.0, G: 152 / 255.0, B: 219 / 255.0}
)

// Ranker is safe for concurrent use.
type Ranker struct {
	labels    []string
	pattern   string
	printer   *message.Printer
	separator string
}

func NewRanker(cfg *config.Config) (*Ranker, error) {
	tag, err := cfg.Format.Tag()
	if err != nil {
		return nil, err
	}
	p := message.NewPrinter(tag)

	// the separator is whatever the locale puts between 1 and 5 in 1.5
	sep := strings.Trim(p.Sprintf("%.1f", 1.5), "15")
	if sep == "" {
		sep = "."
	}

	labels := make([]string, len(cfg.Labels))
	copy(labels, cfg.Labels)

	return &Ranker{
		labels:    labels,
		pattern:   fmt.Sprintf("%%.%df%%%%", cfg.Format.Decimals),
		printer:   p,
		separator: sep,
	}, nil
}

func (r *Ranker) Labels() []string {
	return append([]string(nil), r.labels...)
}

// Rank zips probs with the label table and sorts descending by probability.
// Equal probabilities keep class order. The vector is not renormalised.
func (r *Ranker) Rank(probs []float32) ([]Prediction, error) {
	if len(probs) != len(r.labels) {
		return nil, errors.Mark(
			errors.Wrapf(errors.ErrShapeMismatch, "model returned %d probabilities for %d labels", len(probs), len(r.labels)),
			errors.ErrInference)
	}

	out := make([]Prediction, len(probs))
	for i, p := range probs {
		prob := float64(p)
		out[i] = Prediction{
			ClassIndex:          i,
			Label:               r.labels[i],
			Probability:         prob,
			FormattedPercentage: r.FormatPercentage(prob),
			Title:               r.fullPrecision(prob*100) + "%",
			CSSPercentage:       strconv.FormatFloat(prob*100, 'f', -1, 64) + "%",
			Color:               Color(prob),
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Probability > out[b].Probability
	})
	return out, nil
}

// FormatPercentage formats a probability as a percentage, e.g. 0.7 -> "70,000%" in pt-BR.
func (r *Ranker) FormatPercentage(prob float64) string {
	return r.printer.Sprintf(r.pattern, prob*100)
}

func (r *Ranker) fullPrecision(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", r.separator, 1)
}

// Color blends grey to blue in linear RGB by prob.
func Color(prob float64) string {
	t := prob
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	r1, g1, b1 := lowColor.LinearRgb()
	r2, g2, b2 := highColor.LinearRgb()
	return colorful.LinearRgb(
		r1+t*(r2-r1),
		g1+t*(g2-g1),
		b1+t*(b2-b1),
	).Clamped().Hex()
}
