package relevance

// Keywords are the global lists shared by every source.
type Keywords struct {
	MustKeep           []string `yaml:"must_keep" toml:"must_keep"`
	LocaleInterest     []string `yaml:"locale_interest" toml:"locale_interest"`
	GlobalFocus        []string `yaml:"global_focus" toml:"global_focus"`
	InternationalTerms []string `yaml:"international_terms" toml:"international_terms"`
	HomeLocaleTerms    []string `yaml:"home_locale_terms" toml:"home_locale_terms"`
	Practical          []string `yaml:"practical" toml:"practical"`
}

// Weights are the tunable constants of the scoring rules.
type Weights struct {
	MustKeepScore          int   `yaml:"must_keep_score" toml:"must_keep_score"`
	ExcludePenalty         int   `yaml:"exclude_penalty" toml:"exclude_penalty"`
	PriorityTitle          int   `yaml:"priority_title" toml:"priority_title"`
	PriorityBody           int   `yaml:"priority_body" toml:"priority_body"`
	LocaleInterest         int   `yaml:"locale_interest" toml:"locale_interest"`
	GlobalFocus            int   `yaml:"global_focus" toml:"global_focus"`
	LocalSource            int   `yaml:"local_source" toml:"local_source"`
	LocalGlobalBonus       int   `yaml:"local_global_bonus" toml:"local_global_bonus"`
	InternationalHomeBonus int   `yaml:"international_home_bonus" toml:"international_home_bonus"`
	PracticalTitle         int   `yaml:"practical_title" toml:"practical_title"`
	LengthThresholds       []int `yaml:"length_thresholds" toml:"length_thresholds"`
	LengthBonus            int   `yaml:"length_bonus" toml:"length_bonus"`
}

// Rules is the complete scoring and ordering policy.
type Rules struct {
	Keywords Keywords `yaml:"keywords" toml:"keywords"`
	Weights  Weights  `yaml:"weights" toml:"weights"`
	// Tiers are descending lower bounds (exclusive) of the score buckets
	// used for the final ordering, e.g. [20, 10] gives >20, 11-20, <=10.
	Tiers []int `yaml:"tiers" toml:"tiers"`
}

// DefaultWeights returns the default scoring policy.
func DefaultWeights() Weights {
	return Weights{
		MustKeepScore:          100,
		ExcludePenalty:         5,
		PriorityTitle:          10,
		PriorityBody:           5,
		LocaleInterest:         4,
		GlobalFocus:            6,
		LocalSource:            5,
		LocalGlobalBonus:       8,
		InternationalHomeBonus: 10,
		PracticalTitle:         7,
		LengthThresholds:       []int{300, 500},
		LengthBonus:            2,
	}
}

// DefaultTiers returns the default score buckets.
func DefaultTiers() []int {
	return []int{20, 10}
}

// DefaultRules returns the default policy with empty keyword lists.
func DefaultRules() Rules {
	return Rules{
		Weights: DefaultWeights(),
		Tiers:   DefaultTiers(),
	}
}
