package attestation_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"site-controller/core/controller"
	"site-controller/core/database"
	"site-controller/core/storage/mocks"
	"site-controller/feature/attestation"
	"site-controller/feature/attestation/models"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const bucket = "evidence"

type fixture struct {
	db      *gorm.DB
	f       *attestation.Feature
	app     *fiber.App
	storage *mocks.Client
}

func setup(t *testing.T, policy attestation.AppraisalPolicy) *fixture {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)

	fx := &fixture{db: db, storage: new(mocks.Client)}
	cfg := controller.DefaultConfig()
	cfg.RecoveryGracePeriod = 0
	fx.f = attestation.NewFeature(controller.Dependencies{
		Config:   cfg,
		Services: &controller.Services{DB: db, Storage: fx.storage, Bucket: bucket},
		Logger:   zap.NewNop(),
	}, attestation.StateHandler{Policy: policy})
	require.NoError(t, fx.f.Migrate(context.Background(), db))
	fx.app = fiber.New()
	require.NoError(t, fx.f.Load(fx.app))
	return fx
}

func (fx *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := fx.app.Test(req)
	require.NoError(t, err)
	return resp
}

func (fx *fixture) iterate(t *testing.T) *controller.IterationSummary {
	t.Helper()
	summary, err := fx.f.Runner().RunIteration(context.Background())
	require.NoError(t, err)
	return summary
}

func (fx *fixture) state(t *testing.T, id models.SessionID) models.ControllerState {
	t.Helper()
	var s models.Session
	require.NoError(t, fx.db.Where("machine_id = ? AND device_id = ?", id.MachineID, id.DeviceID).Take(&s).Error)
	return s.ControllerState.Data
}

func (fx *fixture) evidence(objects map[string]string) {
	infos := make([]minio.ObjectInfo, 0, len(objects))
	for key, body := range objects {
		infos = append(infos, minio.ObjectInfo{Key: key})
		if attestation.DeviceFromKey(attestation.EvidencePrefix("m1"), key) == "" {
			continue
		}
		fx.storage.On("GetObject", mock.Anything, bucket, key, minio.GetObjectOptions{}).
			Return(io.NopCloser(strings.NewReader(body)), nil).Once()
	}
	fx.storage.On("ListObjects", mock.Anything, bucket, mock.MatchedBy(func(o minio.ListObjectsOptions) bool {
		return o.Prefix == "attestation/m1/" && o.Recursive
	})).Return(objectCh(infos...))
}

func objectCh(infos ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(infos))
	for _, info := range infos {
		ch <- info
	}
	close(ch)
	return ch
}

func TestAttestationFlow(t *testing.T) {
	fx := setup(t, attestation.AppraisalPolicy{})
	fx.evidence(map[string]string{
		"attestation/m1/gpu0.bin":     "gpu evidence",
		"attestation/m1/nic0.bin":     "tampered",
		"attestation/m1/cpu0.bin":     "cpu evidence",
		"attestation/m1/logs/run.txt": "ignored",
	})

	require.Equal(t, fiber.StatusCreated, fx.do(t, http.MethodPost, "/attestations", `{"machine_id":"m1","supported":true}`).StatusCode)
	require.Equal(t, fiber.StatusCreated, fx.do(t, http.MethodPost, "/attestations", `{"machine_id":"m2"}`).StatusCode)
	require.Equal(t, fiber.StatusConflict, fx.do(t, http.MethodPost, "/attestations", `{"machine_id":"m1"}`).StatusCode)

	putGolden := func(device, evidence string) {
		body := `{"digest":"` + attestation.Digest([]byte(evidence)) + `"}`
		require.Equal(t, fiber.StatusOK, fx.do(t, http.MethodPut, "/attestations/golden/"+device, body).StatusCode)
	}
	putGolden("gpu0", "gpu evidence")
	putGolden("nic0", "nic evidence")

	m1 := models.MachineSession("m1")
	m2 := models.MachineSession("m2")

	fx.iterate(t)
	assert.Equal(t, models.StateFetchAttestationTargetsAndUpdateDb, fx.state(t, m1).State)
	assert.Equal(t, models.ControllerState{State: models.StateCompleted, Result: models.ResultUnsupported}, fx.state(t, m2))

	fx.iterate(t)
	assert.Equal(t, models.ControllerState{State: models.StateCompleted, Targets: 3}, fx.state(t, m1))

	gpu := models.SessionID{MachineID: "m1", DeviceID: "gpu0"}
	nic := models.SessionID{MachineID: "m1", DeviceID: "nic0"}
	cpu := models.SessionID{MachineID: "m1", DeviceID: "cpu0"}
	assert.Equal(t, models.StateFetchData, fx.state(t, gpu).State)

	summary := fx.iterate(t)
	assert.Equal(t, 5, summary.Objects)
	for _, id := range []models.SessionID{gpu, nic, cpu} {
		assert.Equal(t, models.StateVerification, fx.state(t, id).State, id.String())
	}

	fx.iterate(t)
	assert.Equal(t, models.ResultVerified, fx.state(t, gpu).Result)
	assert.Equal(t, models.ResultMismatch, fx.state(t, nic).Result)
	assert.Equal(t, models.ResultNoReference, fx.state(t, cpu).Result)

	fx.iterate(t)
	assert.Equal(t, models.AppraisalPass, fx.state(t, gpu).Appraisal)
	assert.Equal(t, models.AppraisalFail, fx.state(t, nic).Appraisal)
	assert.Equal(t, models.AppraisalFail, fx.state(t, cpu).Appraisal)

	fx.iterate(t)
	expected := `
# HELP site_attestation_sessions_by_result The number of completed attestation sessions per verification result
# TYPE site_attestation_sessions_by_result gauge
site_attestation_sessions_by_result{appraisal="",fresh="true",result="unsupported"} 1
site_attestation_sessions_by_result{appraisal="fail",fresh="true",result="mismatch"} 1
site_attestation_sessions_by_result{appraisal="fail",fresh="true",result="no_reference"} 1
site_attestation_sessions_by_result{appraisal="pass",fresh="true",result="verified"} 1
`
	require.NoError(t, testutil.CollectAndCompare(fx.f.Runner(), strings.NewReader(expected), "site_attestation_sessions_by_result"))

	report, err := fx.f.Runner().Inspect(context.Background(), "m1/gpu0")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, report.State)

	resp := fx.do(t, http.MethodGet, "/attestations/m1", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var sessions []models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	require.Len(t, sessions, 4)
	assert.Equal(t, "", sessions[0].DeviceID)
	assert.Equal(t, "cpu0", sessions[1].DeviceID)
	require.NotNil(t, sessions[2].EvidenceDigest)
	assert.Equal(t, attestation.Digest([]byte("gpu evidence")), *sessions[2].EvidenceDigest)

	fx.storage.AssertExpectations(t)
}

func TestAllowMissingReference(t *testing.T) {
	policy := attestation.AppraisalPolicy{AllowMissingReference: true}
	assert.Equal(t, models.AppraisalPass, policy.Appraise(models.ResultNoReference))
	assert.Equal(t, models.AppraisalFail, policy.Appraise(models.ResultMismatch))
	assert.Equal(t, models.AppraisalFail, attestation.AppraisalPolicy{}.Appraise(models.ResultNoReference))
}

func TestFetchTargetsWaitsForEvidence(t *testing.T) {
	fx := setup(t, attestation.AppraisalPolicy{})
	fx.evidence(nil)
	require.Equal(t, fiber.StatusCreated, fx.do(t, http.MethodPost, "/attestations", `{"machine_id":"m1","supported":true}`).StatusCode)

	fx.iterate(t)
	summary := fx.iterate(t)
	assert.Equal(t, 1, summary.Outcomes[controller.OutcomeWait])
	assert.Equal(t, models.StateFetchAttestationTargetsAndUpdateDb, fx.state(t, models.MachineSession("m1")).State)
}

func TestFetchDataStorageError(t *testing.T) {
	fx := setup(t, attestation.AppraisalPolicy{})
	id := models.SessionID{MachineID: "m1", DeviceID: "gpu0"}
	require.NoError(t, fx.db.Create(&models.Session{
		MachineID:         id.MachineID,
		DeviceID:          id.DeviceID,
		Supported:         true,
		EvidenceKey:       "attestation/m1/gpu0.bin",
		ControllerColumns: controller.InitialColumns(models.ControllerState{State: models.StateFetchData}),
	}).Error)
	fx.storage.On("GetObject", mock.Anything, bucket, "attestation/m1/gpu0.bin", minio.GetObjectOptions{}).
		Return(nil, errors.New("connection reset"))

	summary := fx.iterate(t)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, models.StateFetchData, fx.state(t, id).State)

	report, err := fx.f.Runner().Inspect(context.Background(), id.String())
	require.NoError(t, err)
	require.NotNil(t, report.Outcome)
	assert.Contains(t, report.Outcome.Reason, "connection reset")
}

func TestRestart(t *testing.T) {
	fx := setup(t, attestation.AppraisalPolicy{})
	fx.evidence(map[string]string{"attestation/m1/gpu0.bin": "gpu evidence"})
	require.Equal(t, fiber.StatusCreated, fx.do(t, http.MethodPost, "/attestations", `{"machine_id":"m1","supported":true}`).StatusCode)
	fx.iterate(t)
	fx.iterate(t)

	var count int64
	require.NoError(t, fx.db.Model(&models.Session{}).Where("machine_id = ?", "m1").Count(&count).Error)
	assert.Equal(t, int64(2), count)

	require.Equal(t, fiber.StatusAccepted, fx.do(t, http.MethodPost, "/attestations/m1/restart", "").StatusCode)
	require.NoError(t, fx.db.Model(&models.Session{}).Where("machine_id = ?", "m1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, models.StateCheckIfAttestationSupported, fx.state(t, models.MachineSession("m1")).State)

	assert.Equal(t, fiber.StatusNotFound, fx.do(t, http.MethodPost, "/attestations/m9/restart", "").StatusCode)
}

func TestUploadEvidence(t *testing.T) {
	fx := setup(t, attestation.AppraisalPolicy{})
	fx.storage.On("PutObject", mock.Anything, bucket, "attestation/m1/gpu0.bin", []byte("gpu evidence"), int64(12), mock.Anything).
		Return(minio.UploadInfo{Size: 12}, nil)

	resp := fx.do(t, http.MethodPut, "/attestations/m1/evidence/gpu0", "gpu evidence")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "attestation/m1/gpu0.bin", body["key"])
	assert.Equal(t, attestation.Digest([]byte("gpu evidence")), body["digest"])

	assert.Equal(t, fiber.StatusBadRequest, fx.do(t, http.MethodPut, "/attestations/m1/evidence/gpu0", "").StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, fx.do(t, http.MethodPut, "/attestations/m1/evidence/gpu0.bin", "x").StatusCode)
	fx.storage.AssertExpectations(t)
}

func TestParseSessionID(t *testing.T) {
	tests := []struct {
		raw     string
		want    models.SessionID
		wantErr bool
	}{
		{raw: "m1", want: models.SessionID{MachineID: "m1"}},
		{raw: "m1/gpu0", want: models.SessionID{MachineID: "m1", DeviceID: "gpu0"}},
		{raw: "", wantErr: true},
		{raw: "/gpu0", wantErr: true},
		{raw: "m1/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := models.ParseSessionID(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}
}

func TestDeviceFromKey(t *testing.T) {
	prefix := attestation.EvidencePrefix("m1")
	assert.Equal(t, "gpu0", attestation.DeviceFromKey(prefix, "attestation/m1/gpu0.bin"))
	assert.Equal(t, "nic0", attestation.DeviceFromKey(prefix, "attestation/m1/nic0"))
	assert.Equal(t, "", attestation.DeviceFromKey(prefix, "attestation/m1/logs/run.txt"))
	assert.Equal(t, "", attestation.DeviceFromKey(prefix, "attestation/m2/gpu0.bin"))
}
