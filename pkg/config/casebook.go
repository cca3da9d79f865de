package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/sqltext/pkg/keyfn"
	"github.com/umputun/sqltext/pkg/textops"
)

// Casebook defines the top-level config object, a set of named suites of cases
type Casebook struct {
	Mode   textops.Mode `yaml:"mode" toml:"mode"`     // default mode for all suites
	KeyFn  *keyfn.KeyFn `yaml:"key_fn" toml:"key_fn"` // default key fn for "key" cases
	Suites []Suite      `yaml:"suites" toml:"suites"` // list of suites

	overrides *Overrides
}

// SimpleCasebook defines simplified top-level config, just a list of cases.
// It is used for unmarshalling only, and result used to make the usual Casebook with a single "default" suite
type SimpleCasebook struct {
	Mode  textops.Mode `yaml:"mode" toml:"mode"`
	KeyFn *keyfn.KeyFn `yaml:"key_fn" toml:"key_fn"`
	Cases []Case       `yaml:"cases" toml:"cases"`
}

// Suite defines a named group of cases evaluated in the same mode
type Suite struct {
	Name  string       `yaml:"name" toml:"name"` // name of suite, mandatory
	Mode  textops.Mode `yaml:"mode" toml:"mode"` // optional, inherited from casebook
	KeyFn *keyfn.KeyFn `yaml:"key_fn" toml:"key_fn"`
	Cases []Case       `yaml:"cases" toml:"cases"`
}

// Op is an operation a case calls
type Op string

// enum of supported ops
const (
	OpPosition  Op = "position"
	OpSubstring Op = "substring"
	OpOverlay   Op = "overlay"
	OpLength    Op = "length"
	OpKey       Op = "key"
)

// Case defines a single call and its expected outcome.
// Len is optional, nil means the call has no FOR clause (substring to the end).
type Case struct {
	Name     string       `yaml:"name" toml:"name"`
	Op       Op           `yaml:"op" toml:"op"`
	Needle   string       `yaml:"needle" toml:"needle"`
	Haystack string       `yaml:"haystack" toml:"haystack"`
	Target   string       `yaml:"target" toml:"target"`
	Placing  string       `yaml:"placing" toml:"placing"`
	Key      string       `yaml:"key" toml:"key"`
	KeyFn    *keyfn.KeyFn `yaml:"key_fn" toml:"key_fn"`
	Pos      int          `yaml:"pos" toml:"pos"`
	Start    int          `yaml:"start" toml:"start"`
	Len      *int         `yaml:"len" toml:"len"`
	Hex      bool         `yaml:"hex" toml:"hex"` // needle, haystack, target, placing and expect are hex-encoded

	Expect      *string `yaml:"expect" toml:"expect"`
	ExpectInt   *int    `yaml:"expect_int" toml:"expect_int"`
	ExpectError bool    `yaml:"expect_error" toml:"expect_error"`
}

// Inputs holds decoded byte inputs of a case
type Inputs struct {
	Needle, Haystack, Target, Placing []byte
}

// Overrides defines overrides passed from cli
type Overrides struct {
	Mode  textops.Mode
	KeyFn *keyfn.KeyFn
}

// New creates a new Casebook by loading the configuration from the specified file.
// The file may be a full casebook with suites or a simple one with just a list of cases.
// Returns an error if the file can't be read or parsed, or if any suite or case is invalid.
func New(fname string, overrides *Overrides) (res *Casebook, err error) {
	log.Printf("[DEBUG] request to load casebook %q", fname)
	res = &Casebook{overrides: overrides}

	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return nil, fmt.Errorf("can't read casebook %s: %w", fname, err)
	}

	if err = unmarshalCasebookFile(fname, data, res); err != nil {
		return nil, fmt.Errorf("can't unmarshal casebook %s: %w", fname, err)
	}

	if err = res.normalize(); err != nil {
		return nil, fmt.Errorf("invalid casebook %s: %w", fname, err)
	}
	if err = res.checkConfig(); err != nil {
		return nil, fmt.Errorf("invalid casebook %s: %w", fname, err)
	}

	cases := 0
	for _, s := range res.Suites {
		cases += len(s.Cases)
	}
	log.Printf("[INFO] casebook %s loaded, suites: %d, cases: %d", fname, len(res.Suites), cases)
	return res, nil
}

// unmarshalCasebookFile is trying to parse casebook from the data bytes.
// It will try to guess format by file extension, yaml is the default.
// First it will try to unmarshal to a complete Casebook struct, if it fails,
// it will try to unmarshal to a SimpleCasebook struct and convert it to a complete Casebook struct.
func unmarshalCasebookFile(fname string, data []byte, res *Casebook) (err error) {

	unmarshal := func(data []byte, v any, isFull bool) error {
		cbType := "simple"
		if isFull {
			cbType = "full"
		}
		switch {
		case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
			yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
			yamlDecoder.KnownFields(true) // strict mode, fail on unknown fields
			if err = yamlDecoder.Decode(v); err != nil {
				return fmt.Errorf("can't unmarshal yaml casebook (%s mode) %s: %w", cbType, fname, err)
			}
		case strings.HasSuffix(fname, ".toml"):
			tomlDecoder := toml.NewDecoder(bytes.NewReader(data))
			tomlDecoder.DisallowUnknownFields()
			if err = tomlDecoder.Decode(v); err != nil {
				return fmt.Errorf("can't unmarshal toml casebook (%s mode) %s: %w", cbType, fname, err)
			}
		default:
			return fmt.Errorf("unknown config format %s", fname)
		}
		return nil
	}

	errs := new(multierror.Error)
	if err = unmarshal(data, res, true); err == nil && len(res.Suites) > 0 {
		return nil // success, this is full Casebook config
	}
	errs = multierror.Append(errs, err)

	simple := &SimpleCasebook{}
	if err = unmarshal(data, simple, false); err == nil && len(simple.Cases) > 0 {
		// success, this is SimpleCasebook config, convert it to full Casebook config
		res.Mode = simple.Mode
		res.KeyFn = simple.KeyFn
		res.Suites = []Suite{{Name: "default", Cases: simple.Cases}}
		return nil
	}
	errs = multierror.Append(errs, err)

	if errs.ErrorOrNil() == nil {
		return fmt.Errorf("no suites or cases found")
	}
	return errs.ErrorOrNil()
}

// normalize applies overrides and propagates casebook defaults to suites and suites defaults to cases
func (c *Casebook) normalize() error {
	if c.overrides != nil && c.overrides.Mode != "" {
		c.Mode = c.overrides.Mode
	}
	if c.overrides != nil && c.overrides.KeyFn != nil {
		c.KeyFn = c.overrides.KeyFn
	}

	mode, err := textops.ParseMode(string(c.Mode))
	if err != nil {
		return err
	}
	c.Mode = mode

	errs := new(multierror.Error)
	for i := range c.Suites {
		s := &c.Suites[i]
		switch {
		case c.overrides != nil && c.overrides.Mode != "":
			s.Mode = c.Mode // cli override wins over suite mode
		case s.Mode == "":
			s.Mode = c.Mode
		default:
			m, e := textops.ParseMode(string(s.Mode))
			if e != nil {
				errs = multierror.Append(errs, fmt.Errorf("suite %q: %w", s.Name, e))
				continue
			}
			s.Mode = m
		}
		if s.KeyFn == nil {
			s.KeyFn = c.KeyFn
		}
		for j := range s.Cases {
			cs := &s.Cases[j]
			if cs.Name == "" {
				cs.Name = fmt.Sprintf("%s#%d", cs.Op, j+1)
			}
			if cs.KeyFn == nil {
				cs.KeyFn = s.KeyFn
			}
		}
	}
	return errs.ErrorOrNil()
}

// checkConfig validates all suites and cases, reporting every problem found
func (c *Casebook) checkConfig() error {
	errs := new(multierror.Error)
	names := make(map[string]bool)
	for _, s := range c.Suites {
		if s.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("suite with %d cases has no name", len(s.Cases)))
			continue
		}
		if names[s.Name] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate suite name %q", s.Name))
		}
		names[s.Name] = true
		for _, cs := range s.Cases {
			if err := cs.check(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("suite %q, case %q: %w", s.Name, cs.Name, err))
			}
		}
	}
	return errs.ErrorOrNil()
}

func (cs Case) check() error {
	switch cs.Op {
	case OpPosition, OpLength:
		if cs.Expect != nil {
			return fmt.Errorf("%s expects expect_int, not expect", cs.Op)
		}
		if cs.ExpectInt == nil && !cs.ExpectError {
			return fmt.Errorf("no expectation set")
		}
	case OpSubstring, OpOverlay, OpKey:
		if cs.ExpectInt != nil {
			return fmt.Errorf("%s expects expect, not expect_int", cs.Op)
		}
		if cs.Expect == nil && !cs.ExpectError {
			return fmt.Errorf("no expectation set")
		}
	default:
		return fmt.Errorf("unknown op %q", cs.Op)
	}

	if cs.Op == OpOverlay && cs.Len == nil {
		return fmt.Errorf("overlay requires len")
	}
	if cs.Op == OpKey && cs.KeyFn == nil {
		return fmt.Errorf("key requires key_fn")
	}
	if _, err := cs.Inputs(); err != nil {
		return err
	}
	if _, err := cs.Expected(); err != nil {
		return err
	}
	return nil
}

// Inputs returns byte inputs of the case, decoded from hex if the case is hex-encoded
func (cs Case) Inputs() (Inputs, error) {
	if !cs.Hex {
		return Inputs{Needle: []byte(cs.Needle), Haystack: []byte(cs.Haystack),
			Target: []byte(cs.Target), Placing: []byte(cs.Placing)}, nil
	}

	errs := new(multierror.Error)
	decode := func(name, s string) []byte {
		b, err := hex.DecodeString(s)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't decode %s: %w", name, err))
		}
		return b
	}
	res := Inputs{
		Needle:   decode("needle", cs.Needle),
		Haystack: decode("haystack", cs.Haystack),
		Target:   decode("target", cs.Target),
		Placing:  decode("placing", cs.Placing),
	}
	return res, errs.ErrorOrNil()
}

// Expected returns expected bytes of the case, nil if not set
func (cs Case) Expected() ([]byte, error) {
	if cs.Expect == nil {
		return nil, nil
	}
	if !cs.Hex || cs.Op == OpKey {
		return []byte(*cs.Expect), nil
	}
	b, err := hex.DecodeString(*cs.Expect)
	if err != nil {
		return nil, fmt.Errorf("can't decode expect: %w", err)
	}
	return b, nil
}

// UseLen reports if the case has explicit length
func (cs Case) UseLen() bool {
	return cs.Len != nil
}

// Length returns explicit length or -1 if not set
func (cs Case) Length() int {
	if cs.Len == nil {
		return -1
	}
	return *cs.Len
}

// AllSuites returns the casebook's list of suites.
// Cases are copied, changes made by the caller don't affect the casebook.
func (c *Casebook) AllSuites() []Suite {
	res := make([]Suite, len(c.Suites))
	for i, s := range c.Suites {
		res[i] = s
		res[i].Cases = append([]Case(nil), s.Cases...)
	}
	return res
}

// Suite returns the suite with the specified name
func (c *Casebook) Suite(name string) (*Suite, error) {
	for _, s := range c.AllSuites() {
		if s.Name == name {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("suite %q not found", name)
}
