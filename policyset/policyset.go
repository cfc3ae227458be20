// Package policyset loads named formguard policies from YAML and keeps them current
// while the file changes on disk.
//
//	policies:
//	  submit_quote:
//	    endpoint: /api/submit-quote
//	    max_requests: 5
//	    window: 1h
//	    action: submit_quote
//	    require_bot_check: true
package policyset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/formguard"
)

var (
	ErrInvalidFile   = errors.New("policyset: invalid policy file")
	ErrUnknownPolicy = errors.New("policyset: unknown policy")
)

type document struct {
	Policies map[string]formguard.Policy `yaml:"policies" validate:"required,min=1,dive,keys,required,max=64,endkeys"`
}

var validate = validator.New()

// Parse decodes and validates a policy document. Unknown fields are rejected.
func Parse(data []byte) (map[string]formguard.Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	for name, p := range doc.Policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFile, name, err)
		}
	}
	return doc.Policies, nil
}

// Load reads and parses the file at path.
func Load(path string) (map[string]formguard.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return Parse(data)
}

// Defaults returns the predefined policies keyed by a short name.
func Defaults() map[string]formguard.Policy {
	return map[string]formguard.Policy{
		"discovery_save":      formguard.PolicyDiscoverySave,
		"discovery_submit":    formguard.PolicyDiscoverySubmit,
		"checkout_initialize": formguard.PolicyCheckoutInitialize,
		"checkout_verify":     formguard.PolicyCheckoutVerify,
		"submit_quote":        formguard.PolicySubmitQuote,
		"book_strategy":       formguard.PolicyBookStrategySession,
		"asset_accession":     formguard.PolicyAssetAccession,
	}
}

// Set is a concurrently readable set of named policies. Replace swaps the whole set
// at once; readers never observe a partial update.
type Set struct {
	policies atomic.Pointer[map[string]formguard.Policy]
	check    atomic.Pointer[func(formguard.Policy) error]
}

// NewSet returns a Set holding a copy of initial.
func NewSet(initial map[string]formguard.Policy) *Set {
	s := &Set{}
	s.Replace(initial)
	return s
}

// Replace installs a copy of policies.
func (s *Set) Replace(policies map[string]formguard.Policy) {
	cp := make(map[string]formguard.Policy, len(policies))
	for k, v := range policies {
		cp[k] = v
	}
	s.policies.Store(&cp)
}

// Get returns the named policy by value.
func (s *Set) Get(name string) (formguard.Policy, bool) {
	m := s.policies.Load()
	if m == nil {
		return formguard.Policy{}, false
	}
	p, ok := (*m)[name]
	return p, ok
}

// MustGet is Get for wiring code that treats a missing policy as a startup bug.
func (s *Set) MustGet(name string) formguard.Policy {
	p, ok := s.Get(name)
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrUnknownPolicy, name))
	}
	return p
}

// Names returns the policy names in sorted order.
func (s *Set) Names() []string {
	m := s.policies.Load()
	if m == nil {
		return nil
	}
	return sortedNames(*m)
}

func sortedNames(m map[string]formguard.Policy) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Constrain checks every current policy with check and applies check to every later
// Reload. Typically check is (*formguard.Guard).ValidatePolicy.
func (s *Set) Constrain(check func(formguard.Policy) error) error {
	if m := s.policies.Load(); m != nil {
		if err := checkAll(*m, check); err != nil {
			return err
		}
	}
	s.check.Store(&check)
	return nil
}

// Reload replaces the set with the file at path. On error the current set is kept.
func (s *Set) Reload(path string) error {
	policies, err := Load(path)
	if err != nil {
		return err
	}
	if check := s.check.Load(); check != nil {
		if err := checkAll(policies, *check); err != nil {
			return err
		}
	}
	s.Replace(policies)
	return nil
}

func checkAll(policies map[string]formguard.Policy, check func(formguard.Policy) error) error {
	for _, name := range sortedNames(policies) {
		if err := check(policies[name]); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidFile, name, err)
		}
	}
	return nil
}
