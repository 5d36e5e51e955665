package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAdmin struct {
	update    *model.SettingsUpdate
	resetTo   int64
	retention int
	message   string
}

func (f *fakeAdmin) Get(context.Context) (*model.ClinicSettings, error) {
	return &model.ClinicSettings{ClinicName: "Eastside", AverageServiceMinutes: 15}, nil
}

func (f *fakeAdmin) Update(_ context.Context, u model.SettingsUpdate) (*model.ClinicSettings, error) {
	f.update = &u
	if u.IsEmpty() {
		return nil, errors.BadRequest("no valid fields to update", nil)
	}
	return &model.ClinicSettings{ClinicName: "Eastside", AverageServiceMinutes: *u.AvgServiceTime}, nil
}

func (f *fakeAdmin) Reset(_ context.Context, start int64) error {
	f.resetTo = start
	return nil
}

func (f *fakeAdmin) Cleanup(_ context.Context, retentionHours int) (int64, error) {
	f.retention = retentionHours
	return 4, nil
}

func (f *fakeAdmin) Broadcast(_ context.Context, text string) (*model.BroadcastResult, error) {
	f.message = text
	return &model.BroadcastResult{Recipients: 2, Sent: 2}, nil
}

func setup() (*gin.Engine, *fakeAdmin) {
	f := &fakeAdmin{}
	r := gin.New()
	NewHandler(f, f, f, f).RegisterRoutes(r.Group("/api/v1"))
	return r, f
}

func send(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpdateSettings(t *testing.T) {
	r, f := setup()

	w := send(r, http.MethodPut, "/api/v1/admin/settings", `{"avg_service_time":20}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, *f.update.AvgServiceTime)
	assert.Nil(t, f.update.OpeningTime)
}

func TestUpdateSettingsRejectsUnknownFields(t *testing.T) {
	r, f := setup()

	w := send(r, http.MethodPut, "/api/v1/admin/settings", `{"avg_service_time":20,"current_queue_number":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "current_queue_number")
	assert.Nil(t, f.update)
}

func TestUpdateSettingsEmpty(t *testing.T) {
	r, _ := setup()
	w := send(r, http.MethodPut, "/api/v1/admin/settings", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetCounter(t *testing.T) {
	r, f := setup()

	require.Equal(t, http.StatusOK, send(r, http.MethodPost, "/api/v1/admin/counter/reset", "").Code)
	assert.Equal(t, int64(100), f.resetTo)

	require.Equal(t, http.StatusOK, send(r, http.MethodPost, "/api/v1/admin/counter/reset", `{"start":500}`).Code)
	assert.Equal(t, int64(500), f.resetTo)

	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodPost, "/api/v1/admin/counter/reset", `{"start":-1}`).Code)
}

func TestCleanupAndBroadcast(t *testing.T) {
	r, f := setup()

	w := send(r, http.MethodPost, "/api/v1/admin/cleanup", `{"retentionHours":48}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 48, f.retention)
	assert.Contains(t, w.Body.String(), `"removed":4`)

	w = send(r, http.MethodPost, "/api/v1/admin/broadcast", `{"message":"Doctor delayed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Doctor delayed", f.message)

	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodPost, "/api/v1/admin/broadcast", `{}`).Code)
}
