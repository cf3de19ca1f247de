package model

// ParseResult is the transient outcome of interpreting schedule text.
// Exactly one of CronExpression or Error is set.
type ParseResult struct {
	Success        bool     `json:"success"`
	CronExpression string   `json:"cron_expression,omitempty"`
	HumanReadable  string   `json:"human_readable,omitempty"`
	OneShot        bool     `json:"one_shot,omitempty"`
	Error          string   `json:"error,omitempty"`
	Examples       []string `json:"examples,omitempty"`
}
