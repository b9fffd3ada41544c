// Package catalog holds the item vocabulary and the classification table used
// to compare assessment periods. A catalog is immutable once parsed; reloads
// produce a new value.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid catalog")

// Rounding controls how fractional sheet values become integer scores.
type Rounding string

const (
	RoundNearest  Rounding = "round"
	RoundTruncate Rounding = "truncate"
)

// Messages are the fixed classification texts outside the bucket table.
type Messages struct {
	NotEvaluated string `yaml:"not_evaluated" json:"not_evaluated"`
	Error        string `yaml:"error" json:"error"`
	Regression   string `yaml:"regression" json:"regression"`
	NoChange     string `yaml:"no_change" json:"no_change"`
	Unclassified string `yaml:"unclassified" json:"unclassified"`
}

// Bucket is the range [Lower, Upper) of positive deltas sharing a description.
type Bucket struct {
	Lower       float64 `yaml:"lower" json:"lower"`
	Upper       float64 `yaml:"upper" json:"upper"`
	Description string  `yaml:"description" json:"description"`
}

// Catalog is the vocabulary and classification table.
type Catalog struct {
	Version  string   `yaml:"version" json:"version"`
	Rounding Rounding `yaml:"rounding" json:"rounding"`
	Items    []string `yaml:"items" json:"items"`
	Messages Messages `yaml:"messages" json:"messages"`
	Buckets  []Bucket `yaml:"buckets" json:"buckets"`

	index map[string]int
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalid, err)
	}
	if c.Rounding == "" {
		c.Rounding = RoundNearest
	}
	for i := range c.Items {
		c.Items[i] = strings.TrimSpace(c.Items[i])
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.index = make(map[string]int, len(c.Items))
	for i, item := range c.Items {
		c.index[item] = i
	}
	return &c, nil
}

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// Validate checks the vocabulary and that the buckets partition (0, last upper].
func (c *Catalog) Validate() error {
	if c.Rounding != RoundNearest && c.Rounding != RoundTruncate {
		return fmt.Errorf("%w: unknown rounding %q", ErrInvalid, c.Rounding)
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: items must not be empty", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item == "" {
			return fmt.Errorf("%w: blank item label", ErrInvalid)
		}
		if _, dup := seen[item]; dup {
			return fmt.Errorf("%w: duplicate item %q", ErrInvalid, item)
		}
		seen[item] = struct{}{}
	}

	m := c.Messages
	if m.NotEvaluated == "" || m.Error == "" || m.Regression == "" || m.NoChange == "" || m.Unclassified == "" {
		return fmt.Errorf("%w: every message must be set", ErrInvalid)
	}

	if len(c.Buckets) == 0 {
		return fmt.Errorf("%w: buckets must not be empty", ErrInvalid)
	}
	if c.Buckets[0].Lower != 0 {
		return fmt.Errorf("%w: first bucket must start at 0, got %v", ErrInvalid, c.Buckets[0].Lower)
	}
	for i, b := range c.Buckets {
		if b.Upper <= b.Lower {
			return fmt.Errorf("%w: bucket %d has upper %v <= lower %v", ErrInvalid, i, b.Upper, b.Lower)
		}
		if strings.TrimSpace(b.Description) == "" {
			return fmt.Errorf("%w: bucket %d has no description", ErrInvalid, i)
		}
		if i > 0 && c.Buckets[i-1].Upper != b.Lower {
			return fmt.Errorf("%w: gap or overlap between bucket %d and %d", ErrInvalid, i-1, i)
		}
	}
	return nil
}

// Position returns the vocabulary index of label.
func (c *Catalog) Position(label string) (int, bool) {
	i, ok := c.index[label]
	return i, ok
}

// Upper is the inclusive upper bound of the classified range.
func (c *Catalog) Upper() float64 {
	return c.Buckets[len(c.Buckets)-1].Upper
}

// Bucket finds the bucket containing a positive delta.
func (c *Catalog) Bucket(delta int) (Bucket, bool) {
	d := float64(delta)
	if d <= 0 {
		return Bucket{}, false
	}
	last := len(c.Buckets) - 1
	for i, b := range c.Buckets {
		if d >= b.Lower && (d < b.Upper || (i == last && d == b.Upper)) {
			return b, true
		}
	}
	return Bucket{}, false
}

// MaxScoreMagnitude bounds accepted sheet values so deltas between two scores
// cannot overflow.
const MaxScoreMagnitude = 1_000_000

// Normalize turns a sheet value into an integer score. ok is false for NaN,
// infinities and values beyond MaxScoreMagnitude.
func (c *Catalog) Normalize(v float64) (score int, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if c.Rounding == RoundTruncate {
		v = math.Trunc(v)
	} else {
		v = math.Round(v)
	}
	if math.Abs(v) > MaxScoreMagnitude {
		return 0, false
	}
	return int(v), true
}

// Holder publishes the active catalog to concurrent readers.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder returns a holder primed with c.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Get returns the active catalog.
func (h *Holder) Get() *Catalog { return h.current.Load() }

// Swap replaces the active catalog and returns the previous one.
func (h *Holder) Swap(c *Catalog) *Catalog { return h.current.Swap(c) }
