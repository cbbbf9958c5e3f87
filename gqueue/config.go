package gqueue

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the capacity policy of a queue.
type Kind uint8

const (
	// KindUnbounded queues never block senders.
	KindUnbounded Kind = iota

	// KindBounded queues block senders while Capacity items are undelivered.
	KindBounded
)

// MaxCapacity is the largest capacity accepted for a bounded queue.
const MaxCapacity = 1 << 20

// Config selects the capacity policy for [New].
// Use [Unbounded] or [Bounded] to construct one.
type Config struct {
	Kind     Kind
	Capacity int
}

func Unbounded() Config {
	return Config{Kind: KindUnbounded}
}

func Bounded(capacity int) Config {
	return Config{Kind: KindBounded, Capacity: capacity}
}

func (c Config) Validate() error {
	switch c.Kind {
	case KindUnbounded:
		if c.Capacity != 0 {
			return fmt.Errorf("unbounded queue must not set capacity (got %d)", c.Capacity)
		}
		return nil
	case KindBounded:
		if c.Capacity <= 0 {
			return fmt.Errorf("bounded queue capacity must be positive (got %d)", c.Capacity)
		}
		if c.Capacity > MaxCapacity {
			return fmt.Errorf("bounded queue capacity must not exceed %d (got %d)", MaxCapacity, c.Capacity)
		}
		return nil
	default:
		return fmt.Errorf("unknown queue kind %d", c.Kind)
	}
}

// String returns the label used in benchmark output,
// e.g. "Unbounded" or "Bounded(1024)".
func (c Config) String() string {
	switch c.Kind {
	case KindUnbounded:
		return "Unbounded"
	case KindBounded:
		return "Bounded(" + strconv.Itoa(c.Capacity) + ")"
	default:
		return fmt.Sprintf("Kind(%d)", c.Kind)
	}
}

// ParseConfig accepts "unbounded" (case-insensitive),
// a positive integer capacity, or the String form of a Config.
func ParseConfig(s string) (Config, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unbounded") {
		return Unbounded(), nil
	}

	num := s
	if inner, ok := strings.CutPrefix(strings.ToLower(s), "bounded("); ok {
		num, ok = strings.CutSuffix(inner, ")")
		if !ok {
			return Config{}, fmt.Errorf("malformed queue config %q", s)
		}
	}

	n, err := strconv.Atoi(num)
	if err != nil {
		return Config{}, fmt.Errorf("parse queue capacity %q: %w", s, err)
	}
	c := Bounded(n)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ParseConfigs parses a comma-separated list of queue configs.
func ParseConfigs(s string) ([]Config, error) {
	var out []Config
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseConfig(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no queue configs in %q", s)
	}
	return out, nil
}
