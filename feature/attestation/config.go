package attestation

// Config holds the appraisal settings of the attestation controller.
type Config struct {
	// AllowMissingReference passes devices that have no golden measurement.
	AllowMissingReference bool `mapstructure:"allow_missing_reference" default:"false"`
	// MaxEvidenceBytes rejects larger evidence objects.
	MaxEvidenceBytes int64 `mapstructure:"max_evidence_bytes" default:"4194304"`
}

// Handler returns the state handler configured by c.
func (c Config) Handler() StateHandler {
	return StateHandler{
		Policy:           AppraisalPolicy{AllowMissingReference: c.AllowMissingReference},
		MaxEvidenceBytes: c.MaxEvidenceBytes,
	}
}
