package attestation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"

	"site-controller/core/configversion"
	"site-controller/core/controller"
	"site-controller/core/storage"
	"site-controller/feature/attestation/models"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMaxEvidenceBytes bounds the size of a downloaded evidence object.
const DefaultMaxEvidenceBytes = 4 << 20

// Metric labels of attestation handler errors.
const (
	LabelListEvidence   = "list_evidence"
	LabelFetchEvidence  = "fetch_evidence"
	LabelLoadReference  = "load_reference"
	LabelStorageMissing = "storage_unavailable"
)

// EvidencePrefix returns the object storage prefix holding the evidence of machineID.
func EvidencePrefix(machineID string) string {
	return "attestation/" + machineID + "/"
}

// AppraisalPolicy turns a verification result into an appraisal.
type AppraisalPolicy struct {
	// AllowMissingReference passes devices without a golden measurement.
	AllowMissingReference bool
}

// Appraise returns the appraisal of result.
func (p AppraisalPolicy) Appraise(result string) string {
	switch result {
	case models.ResultVerified:
		return models.AppraisalPass
	case models.ResultNoReference:
		if p.AllowMissingReference {
			return models.AppraisalPass
		}
	}
	return models.AppraisalFail
}

// StateHandler drives machine sessions through target discovery and device
// sessions through evidence verification.
type StateHandler struct {
	Policy           AppraisalPolicy
	MaxEvidenceBytes int64
}

func (h StateHandler) maxEvidenceBytes() int64 {
	if h.MaxEvidenceBytes <= 0 {
		return DefaultMaxEvidenceBytes
	}
	return h.MaxEvidenceBytes
}

func next(state string) controller.Outcome[models.ControllerState] {
	return controller.Transition(models.ControllerState{State: state})
}

// HandleObjectState implements controller.StateHandler.
func (h StateHandler) HandleObjectState(ctx context.Context, id models.SessionID, s *models.Session, cs configversion.Versioned[models.ControllerState], hctx *controller.HandlerContext[SessionMetrics]) (controller.Outcome[models.ControllerState], error) {
	noop := controller.DoNothing[models.ControllerState]()

	switch cs.Value.State {
	case models.StateCheckIfAttestationSupported:
		if !s.Supported {
			return controller.Transition(models.ControllerState{State: models.StateCompleted, Result: models.ResultUnsupported}), nil
		}
		return next(models.StateFetchAttestationTargetsAndUpdateDb), nil

	case models.StateFetchAttestationTargetsAndUpdateDb:
		return h.fetchTargets(ctx, id, hctx)

	case models.StateFetchData:
		return h.fetchData(ctx, id, s, hctx)

	case models.StateVerification:
		if s.EvidenceDigest == nil {
			return next(models.StateFetchData), nil
		}
		result, err := verify(ctx, hctx.Services.DB, id.DeviceID, *s.EvidenceDigest)
		if err != nil {
			return noop, err
		}
		return controller.Transition(models.ControllerState{State: models.StateApplyEvidenceResultAppraisalPolicy, Result: result}), nil

	case models.StateApplyEvidenceResultAppraisalPolicy:
		return controller.Transition(models.ControllerState{
			State:     models.StateCompleted,
			Result:    cs.Value.Result,
			Appraisal: h.Policy.Appraise(cs.Value.Result),
		}), nil

	case models.StateCompleted:
		if !id.IsMachine() || cs.Value.Result == models.ResultUnsupported {
			hctx.Metrics.Result = cs.Value.Result
			hctx.Metrics.Appraisal = cs.Value.Appraisal
		}
		return noop, nil
	}

	return noop, controller.HandlerErrorf(controller.LabelUnknown, "unknown attestation state %q", cs.Value.State)
}

// fetchTargets creates one device session per evidence object of the machine.
func (h StateHandler) fetchTargets(ctx context.Context, id models.SessionID, hctx *controller.HandlerContext[SessionMetrics]) (controller.Outcome[models.ControllerState], error) {
	noop := controller.DoNothing[models.ControllerState]()
	if hctx.Services.Storage == nil {
		return noop, controller.HandlerErrorf(LabelStorageMissing, "no evidence storage configured")
	}

	prefix := EvidencePrefix(id.MachineID)
	keys, err := storage.ListKeys(ctx, hctx.Services.Storage, hctx.Services.Bucket, prefix)
	if err != nil {
		return noop, controller.NewHandlerError(LabelListEvidence, err)
	}

	sessions := make([]models.Session, 0, len(keys))
	for _, key := range keys {
		device := DeviceFromKey(prefix, key)
		if device == "" {
			continue
		}
		sessions = append(sessions, models.Session{
			MachineID:         id.MachineID,
			DeviceID:          device,
			Supported:         true,
			EvidenceKey:       key,
			ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateFetchData}),
		})
	}
	if len(sessions) == 0 {
		return controller.Wait[models.ControllerState](fmt.Sprintf("no evidence under %s", prefix)), nil
	}

	hctx.Batch.Push(func(ctx context.Context, tx *gorm.DB) error {
		return tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&sessions).Error
	})
	hctx.Logger.Debug("Discovered attestation targets", zap.Int("count", len(sessions)))
	return controller.Transition(models.ControllerState{State: models.StateCompleted, Targets: len(sessions)}), nil
}

// fetchData downloads the evidence and records its digest.
func (h StateHandler) fetchData(ctx context.Context, id models.SessionID, s *models.Session, hctx *controller.HandlerContext[SessionMetrics]) (controller.Outcome[models.ControllerState], error) {
	noop := controller.DoNothing[models.ControllerState]()
	if hctx.Services.Storage == nil {
		return noop, controller.HandlerErrorf(LabelStorageMissing, "no evidence storage configured")
	}

	data, err := storage.ReadObject(ctx, hctx.Services.Storage, hctx.Services.Bucket, s.EvidenceKey, h.maxEvidenceBytes())
	if err != nil {
		return noop, controller.NewHandlerError(LabelFetchEvidence, err)
	}

	digest := Digest(data)
	hctx.Batch.Push(func(ctx context.Context, tx *gorm.DB) error {
		return tx.WithContext(ctx).Table(Table).
			Where(keys(id)).
			Update("evidence_digest", digest).Error
	})
	return next(models.StateVerification), nil
}

// verify compares digest with the golden measurement of deviceID.
func verify(ctx context.Context, db *gorm.DB, deviceID, digest string) (string, error) {
	var golden models.GoldenMeasurement
	err := db.WithContext(ctx).Where("device_id = ?", deviceID).Take(&golden).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ResultNoReference, nil
	}
	if err != nil {
		return "", controller.NewHandlerError(LabelLoadReference, err)
	}
	if !strings.EqualFold(golden.Digest, digest) {
		return models.ResultMismatch, nil
	}
	return models.ResultVerified, nil
}

// Digest returns the hex encoded BLAKE3-256 digest of evidence.
func Digest(evidence []byte) string {
	sum := blake3.Sum256(evidence)
	return hex.EncodeToString(sum[:])
}

// DeviceFromKey derives the device id from an evidence object key:
// "attestation/m1/gpu0.bin" yields "gpu0". Keys in nested directories are
// ignored.
func DeviceFromKey(prefix, key string) string {
	rel := strings.TrimPrefix(key, prefix)
	if rel == key || rel == "" || strings.Contains(rel, "/") {
		return ""
	}
	return strings.TrimSuffix(rel, path.Ext(rel))
}
