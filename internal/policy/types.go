package policy

// Config is the policy document enforced for one run.
type Config struct {
	Allowlist  []string       `yaml:"allowlist" json:"allowlist"`
	MaxSteps   int            `yaml:"max_steps" json:"max_steps"`
	MaxSeconds float64        `yaml:"max_sec" json:"max_sec"`
	Budgets    map[string]int `yaml:"budgets" json:"budgets"`
}

// Meta identifies where a policy came from.
type Meta struct {
	// Path is empty for the built-in default policy.
	Path string `json:"policy_path"`

	// Fingerprint is the blake3 hash of the normalized policy.
	Fingerprint string `json:"policy_fingerprint"`
}

// Defaults applied to fields a policy file leaves out.
const (
	DefaultMaxSteps   = 10
	DefaultMaxSeconds = 10.0
)

// policyFile mirrors Config with optional fields so absent keys can be
// told apart from explicit zeros.
type policyFile struct {
	Allowlist  []string       `yaml:"allowlist" json:"allowlist"`
	MaxSteps   *int           `yaml:"max_steps" json:"max_steps"`
	MaxSeconds *float64       `yaml:"max_sec" json:"max_sec"`
	Budgets    map[string]int `yaml:"budgets" json:"budgets"`
}

func (f policyFile) config() Config {
	cfg := Config{
		Allowlist:  f.Allowlist,
		MaxSteps:   DefaultMaxSteps,
		MaxSeconds: DefaultMaxSeconds,
		Budgets:    f.Budgets,
	}
	if f.MaxSteps != nil {
		cfg.MaxSteps = *f.MaxSteps
	}
	if f.MaxSeconds != nil {
		cfg.MaxSeconds = *f.MaxSeconds
	}
	if cfg.Allowlist == nil {
		cfg.Allowlist = []string{}
	}
	if cfg.Budgets == nil {
		cfg.Budgets = map[string]int{}
	}
	return cfg
}
