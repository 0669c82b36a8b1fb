package session

import (
	_ "embed"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"companion/internal/logger"
)

//go:embed personalities.yaml
var personalityCatalogData []byte

// PersonalityStyle pairs a style name with the system prompt it produces.
type PersonalityStyle struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Prompt      string `yaml:"prompt"`
}

type personalityCatalog struct {
	Styles []PersonalityStyle `yaml:"styles"`
}

var (
	personalityOnce   sync.Once
	personalityStyles map[string]PersonalityStyle
)

// fallbackStyle is used when the catalog fails to parse or the requested
// style is unknown.
const fallbackStyle = "custom"

func loadPersonalities() {
	personalityOnce.Do(func() {
		personalityStyles = make(map[string]PersonalityStyle)

		var catalog personalityCatalog
		if err := yaml.Unmarshal(personalityCatalogData, &catalog); err != nil {
			logger.Error("Failed to parse embedded personality catalog", "error", err)
			return
		}
		for _, style := range catalog.Styles {
			personalityStyles[style.Name] = style
		}
	})
}

// DefaultSystemPrompt returns the system prompt for the given personality
// style, falling back to the neutral style for unknown names.
func DefaultSystemPrompt(style string) string {
	loadPersonalities()

	if s, ok := personalityStyles[style]; ok {
		return s.Prompt
	}
	if s, ok := personalityStyles[fallbackStyle]; ok {
		logger.Debug("Unknown personality style, using fallback", "style", style)
		return s.Prompt
	}
	return ""
}

// StyleNames returns the known personality style names, sorted.
func StyleNames() []string {
	loadPersonalities()

	names := make([]string, 0, len(personalityStyles))
	for name := range personalityStyles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
