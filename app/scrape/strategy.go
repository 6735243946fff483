package scrape

import (
	"sort"
)

// FetchStrategy narrows the active site set for categories that declare
// a custom strategy. Strategies are statically registered; an unknown
// key in a category profile fails when the configuration loads.
type FetchStrategy interface {
	Name() string
	Select(sites []Site) []Site
}

type siteFilterStrategy struct {
	name      string
	siteNames map[string]bool
}

func (s *siteFilterStrategy) Name() string {
	return s.name
}

func (s *siteFilterStrategy) Select(sites []Site) []Site {
	selected := make([]Site, 0, len(sites))
	for _, site := range sites {
		if s.siteNames[site.Name()] {
			selected = append(selected, site)
		}
	}
	return selected
}

var strategyRegistry = map[string]FetchStrategy{
	"adzuna_only": &siteFilterStrategy{
		name:      "adzuna_only",
		siteNames: map[string]bool{"adzuna": true},
	},
	"remoteok_only": &siteFilterStrategy{
		name:      "remoteok_only",
		siteNames: map[string]bool{"remoteok": true},
	},
}

// KnownStrategies returns the registered strategy keys, sorted.
func KnownStrategies() []string {
	names := make([]string, 0, len(strategyRegistry))
	for name := range strategyRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func strategyFor(name string) (FetchStrategy, bool) {
	strategy, ok := strategyRegistry[name]
	return strategy, ok
}
