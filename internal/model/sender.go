package model

// Sender is a configured identity (a counsellor, or in multi-team setups a
// phone-scoped team member) on whose behalf outreach messages go out.
// The roster is fixed at process start and never changes during a run.
type Sender struct {
	Name       string `mapstructure:"name" json:"name"`
	Number     string `mapstructure:"number" json:"number"`
	DailyLimit int    `mapstructure:"daily_limit" json:"daily_limit"`
	Team       string `mapstructure:"team" json:"team,omitempty"`
}
