package categories

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound = errors.New("category not found")
	ErrDisabled = errors.New("category is disabled")
)

// Registry holds the category profiles loaded from the configuration
// file. The profile set is replaced wholesale on Load/Reload, never
// partially updated.
type Registry struct {
	path       string
	strategies map[string]bool
	profiles   map[string]*Profile
	mu         sync.RWMutex
}

// NewRegistry creates a registry reading from path. knownStrategies is
// the set of valid custom fetch-strategy keys; a profile referencing an
// unknown key fails at load time.
func NewRegistry(path string, knownStrategies []string) *Registry {
	strategies := make(map[string]bool, len(knownStrategies))
	for _, name := range knownStrategies {
		strategies[name] = true
	}

	return &Registry{
		path:       path,
		strategies: strategies,
		profiles:   make(map[string]*Profile),
	}
}

func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read categories file: %w", err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse categories file: %w", err)
	}

	if len(file.Categories) == 0 {
		return fmt.Errorf("no categories defined in %s", r.path)
	}

	profiles := make(map[string]*Profile, len(file.Categories))
	for name, profile := range file.Categories {
		profile.Name = name
		if len(profile.SendHours) == 0 {
			profile.SendHours = profile.FetchHours
		}
		if err := r.validate(profile); err != nil {
			return fmt.Errorf("invalid category '%s': %w", name, err)
		}
		profiles[name] = profile
	}

	if err := validateTopicIDs(profiles); err != nil {
		return err
	}

	r.mu.Lock()
	r.profiles = profiles
	r.mu.Unlock()

	slog.Info("Categories loaded", "file", r.path, "count", len(profiles))

	return nil
}

// Reload re-reads the configuration file. On error the previous profile
// set stays in place.
func (r *Registry) Reload() error {
	return r.Load()
}

func (r *Registry) Get(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("category '%s': %w", name, ErrNotFound)
	}
	if !profile.Enabled {
		return nil, fmt.Errorf("category '%s': %w", name, ErrDisabled)
	}

	return profile, nil
}

// Enabled returns all enabled profiles sorted by name.
func (r *Registry) Enabled() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*Profile, 0, len(r.profiles))
	for _, profile := range r.profiles {
		if profile.Enabled {
			profiles = append(profiles, profile)
		}
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})

	return profiles
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

func (r *Registry) validate(profile *Profile) error {
	if profile.Name == "" {
		return fmt.Errorf("category name cannot be empty")
	}
	if profile.SearchTerms == "" {
		return fmt.Errorf("search terms cannot be empty")
	}
	if profile.TopicID <= 0 {
		return fmt.Errorf("topic ID must be positive")
	}
	if len(profile.FetchHours) == 0 {
		return fmt.Errorf("at least one fetch hour is required")
	}
	for _, hour := range profile.FetchHours {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("fetch hour %d is outside 0-23", hour)
		}
	}
	for _, hour := range profile.SendHours {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("send hour %d is outside 0-23", hour)
		}
	}
	if profile.MaxResults < 0 {
		return fmt.Errorf("max results must be non-negative")
	}
	if profile.Strategy != "" && !r.strategies[profile.Strategy] {
		return fmt.Errorf("unknown fetch strategy '%s'", profile.Strategy)
	}

	return nil
}

func validateTopicIDs(profiles map[string]*Profile) error {
	seen := make(map[int64]string)
	for _, profile := range profiles {
		if !profile.Enabled {
			continue
		}
		if other, ok := seen[profile.TopicID]; ok {
			return fmt.Errorf("duplicate topic ID %d shared by '%s' and '%s'", profile.TopicID, other, profile.Name)
		}
		seen[profile.TopicID] = profile.Name
	}
	return nil
}
