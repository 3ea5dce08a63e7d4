package event

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMaxParticipants is Config.Max when the description's config block
// omits "max".
const DefaultMaxParticipants = 100

// DefaultStartPollDelta and DefaultStopPollDelta are applied when the
// description's config block does not give an explicit start_poll_at /
// stop_poll_at.
const (
	DefaultStartPollDelta = 5 * time.Hour
	DefaultStopPollDelta  = 2 * time.Hour
)

func init() {
	if !(DefaultStopPollDelta < DefaultStartPollDelta) {
		panic("event: DefaultStopPollDelta must be less than DefaultStartPollDelta")
	}
}

// PollDeltas overrides DefaultStartPollDelta/DefaultStopPollDelta for a
// process: the Manager resolves one from configuration at startup and
// threads it into every Event.StartPollAt/StopPollAt call so events
// without their own explicit poll anchors fall back to the operator's
// configured deltas rather than the hardcoded ones. A zero field leaves
// the corresponding hardcoded default in place.
type PollDeltas struct {
	Start time.Duration
	Stop  time.Duration
}

// PollAnchor is either an absolute instant or a wall-clock time-of-day to
// be composed with the event's own date.
type PollAnchor struct {
	// WallClock is true when only a time-of-day was given (no date).
	WallClock bool `json:"wall_clock"`

	// Absolute is set when WallClock is false.
	Absolute time.Time `json:"absolute,omitempty"`

	// Hour, Minute, Second hold the time-of-day when WallClock is true.
	Hour   int `json:"hour,omitempty"`
	Minute int `json:"minute,omitempty"`
	Second int `json:"second,omitempty"`
}

// UnmarshalYAML accepts either an RFC3339 datetime or a bare "HH:MM[:SS]"
// time-of-day string.
func (p *PollAnchor) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		p.WallClock = false
		p.Absolute = t
		return nil
	}

	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			p.WallClock = true
			p.Hour, p.Minute, p.Second = t.Hour(), t.Minute(), t.Second()
			return nil
		}
	}

	return fmt.Errorf("invalid poll anchor %q: must be an RFC3339 datetime or HH:MM[:SS]", s)
}

// Config is the per-event configuration block parsed from the calendar
// description.
type Config struct {
	Max int `yaml:"max" json:"max"`
	Min int `yaml:"min" json:"min"`

	StartPollAt *PollAnchor `yaml:"start_poll_at" json:"start_poll_at,omitempty"`
	StopPollAt  *PollAnchor `yaml:"stop_poll_at" json:"stop_poll_at,omitempty"`
}

// DefaultConfig returns a Config with the usual defaults: Max=100, Min=1,
// no explicit poll anchors.
func DefaultConfig() Config {
	return Config{Max: DefaultMaxParticipants, Min: 1}
}

// ConfigFromDescription parses the structured "config:" block out of a
// calendar event's description:
//   - a description that is not valid YAML at all is a parse error,
//   - valid YAML that is not a mapping, or a mapping without a "config"
//     key, yields the default Config (most descriptions are just prose),
//   - a "config" mapping with unrecognized keys is a parse error.
func ConfigFromDescription(description string) (Config, error) {
	cfg := DefaultConfig()

	var parsed interface{}
	if err := yaml.Unmarshal([]byte(description), &parsed); err != nil {
		return Config{}, fmt.Errorf("description is not valid YAML: %w", err)
	}

	asMap, ok := parsed.(map[string]interface{})
	if !ok {
		return cfg, nil
	}

	rawConfig, ok := asMap["config"]
	if !ok || rawConfig == nil {
		return cfg, nil
	}

	configBytes, err := yaml.Marshal(rawConfig)
	if err != nil {
		return Config{}, fmt.Errorf("re-marshal config block: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(configBytes))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config block: %w", err)
	}

	return cfg, nil
}
