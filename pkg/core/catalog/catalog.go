// Package catalog holds the festival's static reference data: the ordered artist
// lineup used for voting and ranking, and the rewards shown on the dashboard.
//
// Catalog order is significant. It is the order artists are presented for voting
// and the tie-break when ranking by approval score.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lineup.yaml
var defaultLineup []byte

// Status is an artist's standing in the lineup.
type Status string

const (
	StatusConfirmed   Status = "CONFIRMED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusEliminated  Status = "ELIMINATED"
)

// ParseStatus accepts the canonical names and the Portuguese labels used by the
// festival's original data sheets.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CONFIRMED", "CONFIRMADO":
		return StatusConfirmed, nil
	case "UNDER_REVIEW", "EM_ANALISE", "EM ANÁLISE":
		return StatusUnderReview, nil
	case "ELIMINATED", "ELIMINADO":
		return StatusEliminated, nil
	default:
		return "", fmt.Errorf("unknown artist status %q", raw)
	}
}

func (s *Status) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

// Label is the text shown under the artist's name on the vote card.
func (s Status) Label() string {
	if s == StatusConfirmed {
		return "CONFIRMADO NO LINEUP"
	}
	return "EM ANÁLISE"
}

// Artist is immutable reference data.
type Artist struct {
	ID            int    `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Genre         string `yaml:"genre" json:"genre"`
	Description   string `yaml:"description" json:"description"`
	ImageRef      string `yaml:"image" json:"image_ref"`
	AudioRef      string `yaml:"audio" json:"audio_ref"`
	ApprovalScore int    `yaml:"approval_score" json:"approval_score"`
	Status        Status `yaml:"status" json:"status"`
	InLineup      bool   `yaml:"in_lineup" json:"in_lineup"`
}

// Reward is a perk redeemable with reward points.
type Reward struct {
	Title       string `yaml:"title" json:"title"`
	Cost        int    `yaml:"cost" json:"cost"`
	Icon        string `yaml:"icon" json:"icon"`
	Description string `yaml:"description" json:"description,omitempty"`
	Active      bool   `yaml:"active" json:"active"`
}

// Catalog is the read-only, ordered lineup plus rewards. It is safe for
// concurrent use because nothing mutates it after construction.
type Catalog struct {
	heroImage string
	artists   []Artist
	rewards   []Reward
}

type document struct {
	HeroImage string   `yaml:"hero_image"`
	Artists   []Artist `yaml:"artists"`
	Rewards   []Reward `yaml:"rewards"`
}

// New validates artists and rewards and builds a catalog. An empty artist list is
// allowed: voting is then complete from the start.
func New(artists []Artist, rewards []Reward) (*Catalog, error) {
	seen := make(map[int]struct{}, len(artists))
	for i, a := range artists {
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("artist %d: duplicate id %d", i, a.ID)
		}
		seen[a.ID] = struct{}{}
		if strings.TrimSpace(a.Name) == "" {
			return nil, fmt.Errorf("artist %d: name is required", i)
		}
		if a.ApprovalScore < 0 || a.ApprovalScore > 100 {
			return nil, fmt.Errorf("artist %d: approval_score %d out of range 0..100", i, a.ApprovalScore)
		}
		if a.Status == "" {
			return nil, fmt.Errorf("artist %d: status is required", i)
		}
	}
	for i, r := range rewards {
		if r.Cost < 0 {
			return nil, fmt.Errorf("reward %d: cost must be >= 0", i)
		}
	}
	return &Catalog{
		artists: append([]Artist(nil), artists...),
		rewards: append([]Reward(nil), rewards...),
	}, nil
}

// Parse decodes a YAML lineup document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode lineup: %w", err)
	}
	c, err := New(doc.Artists, doc.Rewards)
	if err != nil {
		return nil, err
	}
	c.heroImage = strings.TrimSpace(doc.HeroImage)
	return c, nil
}

// LoadFile reads a YAML lineup from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lineup %q: %w", path, err)
	}
	return Parse(data)
}

// Default returns the embedded festival lineup.
func Default() *Catalog {
	c, err := Parse(defaultLineup)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded lineup is invalid: %v", err))
	}
	return c
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.artists)
}

// At returns the artist at catalog position i.
func (c *Catalog) At(i int) (Artist, bool) {
	if c == nil || i < 0 || i >= len(c.artists) {
		return Artist{}, false
	}
	return c.artists[i], true
}

// Artists returns a copy of the lineup in catalog order.
func (c *Catalog) Artists() []Artist {
	if c == nil {
		return nil
	}
	return append([]Artist(nil), c.artists...)
}

func (c *Catalog) Rewards() []Reward {
	if c == nil {
		return nil
	}
	return append([]Reward(nil), c.rewards...)
}

func (c *Catalog) HeroImage() string {
	if c == nil {
		return ""
	}
	return c.heroImage
}
