package config

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Values holds the KEY: VALUE pairs of a solver configuration file.
// Keys are upper-cased; a later line overrides an earlier one.
type Values map[string]string

// Load reads a solver configuration file. An unreadable file yields a
// *ConfigLoadError, a malformed line an *InvalidConfigurationError.
func Load(path string) (Values, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	defer f.Close()
	v, err := Parse(f)
	if err != nil {
		if errors.Is(err, ErrInvalidConfiguration) {
			return nil, err
		}
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	return v, nil
}

// Parse reads line-oriented KEY: VALUE pairs. Blank lines, # comments and
// lines without a colon are skipped. Each line is split on its first colon;
// the value text is kept as written and only decoded when a getter asks for
// its key, so lines with unknown keys never fail.
func Parse(r io.Reader) (Values, error) {
	out := Values{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.ToUpper(strings.TrimSpace(k))
		val = strings.TrimSpace(val)
		if k == "" || val == "" {
			continue
		}
		out[k] = val
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scalar decodes the value of key as a YAML scalar, which strips quotes and
// trailing comments. A value that is not a scalar is invalid for key.
func (v Values) scalar(key string) (string, bool, error) {
	raw, ok := v[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := yaml.Unmarshal([]byte(raw), &s); err != nil {
		return "", true, Invalid(key, raw, "not a scalar value")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, nil
	}
	return s, true, nil
}

func (v Values) String(key, def string) (string, error) {
	s, ok, err := v.scalar(key)
	if err != nil || !ok {
		return def, err
	}
	return s, nil
}

func (v Values) Int(key string, def int) (int, error) {
	s, ok, err := v.scalar(key)
	if err != nil || !ok {
		return def, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, Invalid(key, s, "not an integer")
	}
	return n, nil
}

func (v Values) Float(key string, def float64) (float64, error) {
	s, ok, err := v.scalar(key)
	if err != nil || !ok {
		return def, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def, Invalid(key, s, "not a number")
	}
	return f, nil
}

// Choice returns the lower-cased value of key, which must be one of allowed.
func (v Values) Choice(key, def string, allowed ...string) (string, error) {
	s, ok, err := v.scalar(key)
	if err != nil || !ok {
		return def, err
	}
	s = strings.ToLower(s)
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return def, Invalid(key, s, "must be one of "+strings.Join(allowed, ", "))
}

// Probability reads a float in [0,1].
func (v Values) Probability(key string, def float64) (float64, error) {
	f, err := v.Float(key, def)
	if err != nil {
		return def, err
	}
	if f < 0 || f > 1 {
		return def, Invalid(key, f, "must be in [0,1]")
	}
	return f, nil
}

// Positive reads an integer > 0.
func (v Values) Positive(key string, def int) (int, error) {
	n, err := v.Int(key, def)
	if err != nil {
		return def, err
	}
	if n <= 0 {
		return def, Invalid(key, n, "must be > 0")
	}
	return n, nil
}
