// Package features computes the fixed-width feature vector per player over
// the observation window, and the label fields over their maturity windows.
//
// The feature set is declared in an embedded YAML catalog grouped into six
// semantic blocks. Each catalog entry must resolve to a typed accessor on
// the FeatureRow schema; the mapping is validated once at catalog load, so
// no per-row string-keyed access happens anywhere downstream.
package features

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/playsignal/pltv/internal/domain/model"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Risk is the leakage-risk level of a feature.
type Risk string

// Leakage-risk levels.
const (
	RiskNone   Risk = "none"
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Feature is one catalog entry.
type Feature struct {
	ID             string `yaml:"id"`
	Block          string `yaml:"-"`
	Risk           Risk   `yaml:"risk"`
	PaymentDerived bool   `yaml:"payment_derived"`
}

// Accessor reads a feature value from a row. Resolved once at catalog load.
type Accessor func(*model.FeatureRow) float64

// accessors maps catalog feature ids to the fixed FeatureRow schema.
var accessors = map[string]Accessor{
	"session_count":         func(r *model.FeatureRow) float64 { return r.SessionCount },
	"active_days":           func(r *model.FeatureRow) float64 { return r.ActiveDays },
	"total_session_minutes": func(r *model.FeatureRow) float64 { return r.TotalSessionMinutes },
	"avg_session_minutes":   func(r *model.FeatureRow) float64 { return r.AvgSessionMinutes },
	"max_level":             func(r *model.FeatureRow) float64 { return r.MaxLevel },
	"level_ups":             func(r *model.FeatureRow) float64 { return r.LevelUps },
	"quests_completed":      func(r *model.FeatureRow) float64 { return r.QuestsCompleted },
	"soft_earned":           func(r *model.FeatureRow) float64 { return r.SoftEarned },
	"soft_spent":            func(r *model.FeatureRow) float64 { return r.SoftSpent },
	"spend_earn_ratio":      func(r *model.FeatureRow) float64 { return r.SpendEarnRatio },
	"friends_added":         func(r *model.FeatureRow) float64 { return r.FriendsAdded },
	"chat_messages":         func(r *model.FeatureRow) float64 { return r.ChatMessages },
	"guild_joined":          func(r *model.FeatureRow) float64 { return r.GuildJoined },
	"revenue_d7":            func(r *model.FeatureRow) float64 { return r.RevenueD7 },
	"purchase_count_d7":     func(r *model.FeatureRow) float64 { return r.PurchaseCountD7 },
	"first_purchase_hour":   func(r *model.FeatureRow) float64 { return r.FirstPurchaseHour },
	"max_txn_usd":           func(r *model.FeatureRow) float64 { return r.MaxTxnUSD },
	"paid_install":          func(r *model.FeatureRow) float64 { return r.PaidInstall },
	"channel_score":         func(r *model.FeatureRow) float64 { return r.ChannelScore },
}

type catalogFile struct {
	Blocks []struct {
		Name     string    `yaml:"name"`
		Features []Feature `yaml:"features"`
	} `yaml:"blocks"`
}

// Catalog is the validated feature-block catalog.
type Catalog struct {
	features []Feature
	byID     map[string]Feature
}

// Load parses and validates a catalog. Every feature id must resolve to an
// accessor on the FeatureRow schema and carry a known risk level.
func Load(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]Feature)}
	for _, block := range f.Blocks {
		for _, feat := range block.Features {
			feat.Block = block.Name
			if _, ok := accessors[feat.ID]; !ok {
				return nil, fmt.Errorf("%w: %q has no accessor", ErrUnknownFeature, feat.ID)
			}
			switch feat.Risk {
			case RiskNone, RiskLow, RiskMedium, RiskHigh:
			default:
				return nil, fmt.Errorf("%w: feature %q risk %q", ErrInvalidRisk, feat.ID, feat.Risk)
			}
			if _, dup := c.byID[feat.ID]; dup {
				return nil, fmt.Errorf("duplicate feature id %q", feat.ID)
			}
			c.features = append(c.features, feat)
			c.byID[feat.ID] = feat
		}
	}
	if len(c.features) == 0 {
		return nil, ErrEmptyCatalog
	}
	return c, nil
}

// Default loads the embedded catalog.
func Default() (*Catalog, error) {
	return Load(defaultCatalogYAML)
}

// Features returns all catalog entries in declaration order.
func (c *Catalog) Features() []Feature {
	out := make([]Feature, len(c.features))
	copy(out, c.features)
	return out
}

// IDs returns all feature ids in declaration order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.features))
	for i, f := range c.features {
		ids[i] = f.ID
	}
	return ids
}

// Feature returns the catalog entry for id.
func (c *Catalog) Feature(id string) (Feature, bool) {
	f, ok := c.byID[id]
	return f, ok
}

// Accessor returns the typed accessor for id.
func (c *Catalog) Accessor(id string) (Accessor, error) {
	if _, ok := c.byID[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, id)
	}
	return accessors[id], nil
}

// Vector reads the given feature ids off a row in order.
func (c *Catalog) Vector(row *model.FeatureRow, ids []string) ([]float64, error) {
	vec := make([]float64, len(ids))
	for i, id := range ids {
		get, err := c.Accessor(id)
		if err != nil {
			return nil, err
		}
		vec[i] = get(row)
	}
	return vec, nil
}
