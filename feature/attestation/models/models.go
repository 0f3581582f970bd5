package models

import (
	"fmt"
	"strings"
	"time"

	"site-controller/core/controller"
)

// SessionID identifies an attestation session. Machine level sessions have
// an empty DeviceID. The string form is "machine" or "machine/device".
type SessionID struct {
	MachineID string
	DeviceID  string
}

// MachineSession returns the id of the machine level session of machineID.
func MachineSession(machineID string) SessionID {
	return SessionID{MachineID: machineID}
}

// ParseSessionID parses "machine" or "machine/device".
func ParseSessionID(raw string) (SessionID, error) {
	machine, device, hasDevice := strings.Cut(raw, "/")
	if machine == "" {
		return SessionID{}, fmt.Errorf("invalid attestation session id %q: empty machine id", raw)
	}
	if hasDevice && device == "" {
		return SessionID{}, fmt.Errorf("invalid attestation session id %q: empty device id", raw)
	}
	return SessionID{MachineID: machine, DeviceID: device}, nil
}

func (id SessionID) String() string {
	if id.DeviceID == "" {
		return id.MachineID
	}
	return id.MachineID + "/" + id.DeviceID
}

// IsMachine reports whether id names a machine level session.
func (id SessionID) IsMachine() bool { return id.DeviceID == "" }

// Attestation states.
const (
	StateCheckIfAttestationSupported        = "check_if_attestation_supported"
	StateFetchAttestationTargetsAndUpdateDb = "fetch_attestation_targets_and_update_db"
	StateFetchData                          = "fetch_data"
	StateVerification                       = "verification"
	StateApplyEvidenceResultAppraisalPolicy = "apply_evidence_result_appraisal_policy"
	StateCompleted                          = "completed"
)

// Verification results.
const (
	ResultVerified    = "verified"
	ResultMismatch    = "mismatch"
	ResultNoReference = "no_reference"
	ResultUnsupported = "unsupported"
)

// Appraisals.
const (
	AppraisalPass = "pass"
	AppraisalFail = "fail"
)

// ControllerState is the controller owned state of a session.
type ControllerState struct {
	State     string `json:"state"`
	Result    string `json:"result,omitempty"`
	Appraisal string `json:"appraisal,omitempty"`
	Targets   int    `json:"targets,omitempty"`
}

// Session represents the 'attestation_sessions' table.
type Session struct {
	MachineID      string    `gorm:"column:machine_id;primaryKey;size:64" json:"machine_id"`
	DeviceID       string    `gorm:"column:device_id;primaryKey;size:128" json:"device_id"`
	Supported      bool      `gorm:"column:supported;not null" json:"supported"`
	EvidenceKey    string    `gorm:"column:evidence_key;size:512" json:"evidence_key,omitempty"`
	EvidenceDigest *string   `gorm:"column:evidence_digest;size:64" json:"evidence_digest,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	controller.ControllerColumns[ControllerState]
}

// TableName overrides the table name used by Session to `attestation_sessions`.
func (Session) TableName() string {
	return "attestation_sessions"
}

// ID returns the session id of s.
func (s *Session) ID() SessionID {
	return SessionID{MachineID: s.MachineID, DeviceID: s.DeviceID}
}

// GoldenMeasurement represents the 'attestation_golden_measurements' table.
type GoldenMeasurement struct {
	DeviceID  string    `gorm:"column:device_id;primaryKey;size:128" json:"device_id"`
	Digest    string    `gorm:"column:digest;size:64;not null" json:"digest"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name used by GoldenMeasurement to `attestation_golden_measurements`.
func (GoldenMeasurement) TableName() string {
	return "attestation_golden_measurements"
}
