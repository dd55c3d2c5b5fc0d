package models

import "strings"

// SearchCriteria describes what the user is looking for.
type SearchCriteria struct {
	Keywords      []string `json:"keywords" yaml:"keywords"`
	Locations     []string `json:"locations" yaml:"locations"`
	SalaryMin     float64  `json:"salary_min" yaml:"salary_min"`
	SalaryMax     float64  `json:"salary_max" yaml:"salary_max"`
	ContractTypes []string `json:"contract_types,omitempty" yaml:"contract_types"`
	RemoteOK      bool     `json:"remote_ok" yaml:"remote_ok"`
	Exclusions    []string `json:"exclusions,omitempty" yaml:"exclusions"`
}

// UserProfile is the candidate side of scoring.
type UserProfile struct {
	Skills          []string `json:"skills" yaml:"skills"`
	ExperienceYears int      `json:"experience_years" yaml:"experience_years"`
	Education       string   `json:"education,omitempty" yaml:"education"`
}

// Validate reports the first problem that makes the criteria unusable for planning.
func (c SearchCriteria) Validate() error {
	if len(nonBlank(c.Keywords)) == 0 {
		return &ConfigError{Field: "search.keywords", Reason: "at least one keyword is required"}
	}
	if len(nonBlank(c.Locations)) == 0 {
		return &ConfigError{Field: "search.locations", Reason: "at least one location is required"}
	}
	if c.SalaryMin < 0 || c.SalaryMax < 0 {
		return &ConfigError{Field: "search.salary", Reason: "salary bounds cannot be negative"}
	}
	if c.SalaryMax > 0 && c.SalaryMin > c.SalaryMax {
		return &ConfigError{Field: "search.salary_min", Reason: "salary_min is greater than salary_max"}
	}
	return nil
}

// Clone returns a deep copy so a running pipeline never shares slices with its caller.
func (c SearchCriteria) Clone() SearchCriteria {
	c.Keywords = nonBlank(c.Keywords)
	c.Locations = nonBlank(c.Locations)
	c.ContractTypes = append([]string(nil), c.ContractTypes...)
	c.Exclusions = append([]string(nil), c.Exclusions...)
	return c
}

// Clone returns a deep copy of the profile.
func (p UserProfile) Clone() UserProfile {
	p.Skills = nonBlank(p.Skills)
	return p
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
