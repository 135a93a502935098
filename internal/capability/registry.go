package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Capability names recognized by the dispatch loop.
const (
	WebSearch = "web_search"
	Google    = "google"
)

// Card represents registry metadata for a step executor.
type Card struct {
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"input_schema"`
	OutputSchema map[string]interface{} `json:"output_schema"`
	SideEffects  []string               `json:"side_effects"`
	Checksum     string                 `json:"checksum"`
	Signature    string                 `json:"signature"`
}

// DefaultCards returns the built-in executor Cards with minimal schemas.
func DefaultCards() []Card {
	empty := func() map[string]interface{} {
		return map[string]interface{}{
			"$schema": "https://json-schema.org/draft/2020-12/schema",
			"type":    "object",
		}
	}
	return []Card{
		{Name: WebSearch, Version: "v1", Description: "Searches the web and distills findings", InputSchema: empty(), OutputSchema: empty(), SideEffects: []string{"network"}},
		{Name: Google, Version: "v1", Description: "Reads and mutates Google Calendar and Gmail", InputSchema: empty(), OutputSchema: empty(), SideEffects: []string{"network", "mutation"}},
	}
}

// Registry holds validated Cards keyed by capability name.
type Registry struct {
	caps map[string]Card
}

// ErrCapabilityMissing indicates a required capability is not registered.
var ErrCapabilityMissing = fmt.Errorf("required capability missing")

// NewRegistry validates Cards and ensures required capabilities exist.
func NewRegistry(cards []Card, signingSecret string, required []string) (*Registry, error) {
	reg := &Registry{caps: make(map[string]Card)}
	for _, c := range cards {
		if err := ValidateCard(c); err != nil {
			return nil, err
		}
		if c.Checksum != "" {
			if err := VerifyChecksum(c); err != nil {
				return nil, err
			}
		}
		if err := validateSignature(c, signingSecret); err != nil {
			return nil, fmt.Errorf("capability %s@%s signature invalid: %w", c.Name, c.Version, err)
		}
		existing, ok := reg.caps[c.Name]
		if !ok || versionGreater(c.Version, existing.Version) {
			reg.caps[c.Name] = c
		}
	}
	if len(required) == 0 {
		required = []string{WebSearch, Google}
	}
	for _, r := range required {
		if _, ok := reg.caps[r]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrCapabilityMissing, r)
		}
	}
	return reg, nil
}

// DefaultRegistry seeds the built-in cards, signs them with the
// configured secret and builds a validated registry over them.
func DefaultRegistry(signingSecret string) (*Registry, error) {
	if signingSecret == "" {
		return nil, fmt.Errorf("capabilities.signing_secret not configured")
	}
	cards := DefaultCards()
	for i := range cards {
		checksum, err := ComputeChecksum(cards[i])
		if err != nil {
			return nil, err
		}
		cards[i].Checksum = checksum
		sig, err := SignCard(cards[i], signingSecret)
		if err != nil {
			return nil, err
		}
		cards[i].Signature = sig
	}
	return NewRegistry(cards, signingSecret, nil)
}

// Capability returns the Card for a capability name.
func (r *Registry) Capability(name string) (Card, bool) {
	if r == nil {
		return Card{}, false
	}
	c, ok := r.caps[name]
	return c, ok
}

// Names returns the registered capability names.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.caps))
	for name := range r.caps {
		out = append(out, name)
	}
	return out
}

// ValidateCard checks that a Card carries the fields the loop relies on.
func ValidateCard(c Card) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("capability card missing name")
	}
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("capability card %s missing version", c.Name)
	}
	if err := validateSchema(c.InputSchema); err != nil {
		return fmt.Errorf("capability card %s input schema: %w", c.Name, err)
	}
	if err := validateSchema(c.OutputSchema); err != nil {
		return fmt.Errorf("capability card %s output schema: %w", c.Name, err)
	}
	return nil
}

func validateSchema(schema map[string]interface{}) error {
	if schema == nil {
		return fmt.Errorf("schema is nil")
	}
	if typ, ok := schema["type"]; ok {
		if _, isStr := typ.(string); !isStr {
			return fmt.Errorf("schema type must be a string")
		}
	}
	return nil
}

// VerifyChecksum recomputes the Card checksum and compares it to the stored one.
func VerifyChecksum(c Card) error {
	expected, err := ComputeChecksum(c)
	if err != nil {
		return err
	}
	if expected != c.Checksum {
		return fmt.Errorf("checksum mismatch for capability %s", c.Name)
	}
	return nil
}

// ComputeChecksum returns a deterministic hash of the Card payload (excluding signature field).
func ComputeChecksum(c Card) (string, error) {
	payload := map[string]interface{}{
		"name":          c.Name,
		"version":       c.Version,
		"description":   c.Description,
		"input_schema":  c.InputSchema,
		"output_schema": c.OutputSchema,
		"side_effects":  c.SideEffects,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// SignCard computes an HMAC signature using the signing secret.
func SignCard(c Card, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	checksum, err := ComputeChecksum(c)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func validateSignature(c Card, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := SignCard(c, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(c.Signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func versionGreater(a, b string) bool {
	if a == b {
		return false
	}
	// naive semver compare
	return compareVersions(splitVersion(a), splitVersion(b)) > 0
}

func splitVersion(v string) []int {
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		fmt.Sscanf(p, "%d", &out[i])
	}
	return out
}

func compareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai, bi := 0, 0
		if i < len(a) {
			ai = a[i]
		}
		if i < len(b) {
			bi = b[i]
		}
		if ai > bi {
			return 1
		}
		if ai < bi {
			return -1
		}
	}
	return 0
}
