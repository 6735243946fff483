package categories

import (
	"gopkg.in/yaml.v3"
)

// Profile is a validated job-search category: what to search for, where
// the results go, and when the fetch and send cycles run.
type Profile struct {
	Name                string `yaml:"-"`
	SearchTerms         string `yaml:"search_terms"`
	TopicID             int64  `yaml:"topic_id"`
	FetchHours          []int  `yaml:"fetch_hours"`
	SendHours           []int  `yaml:"send_hours"`
	Enabled             bool   `yaml:"enabled"`
	MaxResults          int    `yaml:"max_results"`
	Strategy            string `yaml:"strategy"`
	ExtractDescriptions bool   `yaml:"extract_descriptions"`
}

// UnmarshalYAML decodes a profile with Enabled defaulting to true, so
// a category is active unless explicitly disabled.
func (p *Profile) UnmarshalYAML(value *yaml.Node) error {
	type rawProfile Profile
	raw := rawProfile{Enabled: true}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*p = Profile(raw)
	return nil
}

type configFile struct {
	Categories map[string]*Profile `yaml:"categories"`
}
