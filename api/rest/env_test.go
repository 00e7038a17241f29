package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modelquest/server/audit"
	"github.com/modelquest/server/cache"
	"github.com/modelquest/server/config"
	"github.com/modelquest/server/game/badge"
	"github.com/modelquest/server/game/leaderboard"
	"github.com/modelquest/server/game/submission"
	"github.com/modelquest/server/mlengine"
	"github.com/modelquest/server/model"
	"github.com/modelquest/server/scheduler"
	"github.com/modelquest/server/testutil"
)

const testAdminKey = "test-admin-key"

// price = 2*sqft + 3*rooms + 1
const housingTrainCSV = `sqft,rooms,price
100,1,204
150,2,307
200,2,407
250,3,510
120,1,244
180,2,367
300,4,613
90,1,184
210,3,430
160,2,327
`

type env struct {
	r     *gin.Engine
	db    *gorm.DB
	cache cache.Cache
	sec   config.SecurityConfig
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}

	datasets := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(datasets, "housing_train.csv"), []byte(housingTrainCSV), 0o644))

	board := leaderboard.NewService(db, c, logger)
	subs := submission.NewService(submission.Options{
		DB:          db,
		Evaluator:   mlengine.NewEvaluator(datasets, logger),
		Badges:      badge.NewService(db, logger),
		Leaderboard: board,
		PubSub:      ps,
		Logger:      logger,
		UploadsPath: t.TempDir(),
		Workers:     2,
		Timeout:     10 * time.Second,
	})
	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	r := gin.New()
	RegisterRoutes(r, Deps{
		DB:          db,
		Cache:       c,
		PubSub:      ps,
		Submissions: subs,
		Leaderboard: board,
		Audit:       auditSvc,
		Scheduler:   sched,
		Security:    sec,
		AdminKey:    testAdminKey,
		Logger:      logger,
	})
	return &env{r: r, db: db, cache: c, sec: sec}
}

func (e *env) seedQuest(t *testing.T, threshold float64) model.Quest {
	t.Helper()
	track := model.Track{Name: "Regression Basics", Order: 1}
	require.NoError(t, e.db.Create(&track).Error)
	quest := model.Quest{
		TrackID:     track.ID,
		Title:       "Linear Regression Challenge",
		TaskType:    "regression",
		Order:       1,
		XPReward:    100,
		DatasetName: "housing_train.csv",
		MetricName:  "r2_score",
		Threshold:   threshold,
		Config:      []byte(`{"target_column": "price"}`),
	}
	require.NoError(t, e.db.Create(&quest).Error)
	return quest
}

// register creates an account through the API and returns its token and id.
func (e *env) register(t *testing.T, username string) (string, int64) {
	t.Helper()
	w := e.doJSON(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.UserID
}

func (e *env) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) doAdmin(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", testAdminKey)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// uploadModel POSTs a model artifact as a multipart submission.
func (e *env) uploadModel(t *testing.T, token, path string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	fw, err := mpw.CreateFormFile("model_file", "model.gob")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func perfectModel(t *testing.T) []byte {
	t.Helper()
	data, err := mlengine.EncodeModelGob(&mlengine.ModelDoc{
		Format:    mlengine.ModelFormat,
		Kind:      mlengine.KindLinear,
		Weights:   []float64{2, 3},
		Intercept: 1,
	})
	require.NoError(t, err)
	return data
}

func weakModel(t *testing.T) []byte {
	t.Helper()
	data, err := mlengine.EncodeModelGob(&mlengine.ModelDoc{
		Format:    mlengine.ModelFormat,
		Kind:      mlengine.KindLinear,
		Weights:   []float64{0, 0},
		Intercept: 0,
	})
	require.NoError(t, err)
	return data
}
