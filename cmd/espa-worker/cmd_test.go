// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djzelenak/espa-worker/command"
	"github.com/djzelenak/espa-worker/command/commandtest"
	"github.com/djzelenak/espa-worker/dockerrun"
	"github.com/djzelenak/espa-worker/history"
	"github.com/djzelenak/espa-worker/model"
	"github.com/djzelenak/espa-worker/util"
	"github.com/djzelenak/espa-worker/worker"
)

func get(router *mux.Router, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, strings.NewReader(""))
	response := httptest.NewRecorder()
	router.ServeHTTP(response, req)
	return response
}

func mockNoDatabase(t *testing.T) {
	original := getDbConnectionFunc
	getDbConnectionFunc = func(util.LogContext) (*history.DB, error) { // Mock
		return nil, history.ErrNoDatabase
	}
	t.Cleanup(func() { getDbConnectionFunc = original })
}

func mockSQLite(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "history.db")
	original := getDbConnectionFunc
	getDbConnectionFunc = func(ctx util.LogContext) (*history.DB, error) { // Mock
		return history.Open(ctx, "sqlite://"+path)
	}
	t.Cleanup(func() { getDbConnectionFunc = original })
	return path
}

func mockLaunchServer(t *testing.T, fn func(portStr string, router *mux.Router)) {
	original := launchServerFunc
	launchServerFunc = fn
	t.Cleanup(func() { launchServerFunc = original })
}

func TestServe_CallsLaunchServer(t *testing.T) {
	mockNoDatabase(t)
	success := make(chan bool)
	mockLaunchServer(t, func(portStr string, router *mux.Router) { // Mock
		success <- true
	})
	timer := time.NewTimer(1 * time.Second)

	go serveAction(nil)

	select {
	case <-success:
	case <-timer.C:
		assert.Fail(t, "launchServer not called within 1 second of serve()")
	}
}

func TestServe_BaseHealthCheckEndpoint(t *testing.T) {
	mockNoDatabase(t)
	success := make(chan bool)
	mockLaunchServer(t, func(portStr string, router *mux.Router) { // Mock
		responseBody, _ := io.ReadAll(get(router, "/").Result().Body)
		success <- (string(responseBody) == "OK")
	})

	timer := time.NewTimer(1 * time.Second)

	go serveAction(nil)

	select {
	case ok := <-success:
		assert.True(t, ok, "health check did not answer OK")
	case <-timer.C:
		assert.Fail(t, "launchServer not called within 1 second of serve()")
	}
}

func TestServe_WithoutHistory(t *testing.T) {
	// Mock
	mockNoDatabase(t)
	var router *mux.Router
	mockLaunchServer(t, func(portStr string, r *mux.Router) { router = r })

	// Tested code
	serveAction(nil)

	// Asserts
	require.NotNil(t, router)
	assert.Equal(t, "Scheduler is not running.\n", get(router, "/status").Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/jobs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/jobs/order-1/LC08").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/start").Code, "serve has no scheduler to start")

	metrics := get(router, "/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "espa_worker_products_in_flight")
}

func TestServe_JobHistory(t *testing.T) {
	// Mock
	path := mockSQLite(t)
	db, err := history.Open(&util.BasicLogContext{}, "sqlite://"+path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, history.Migrate(db))
	store := history.NewStore(db)
	id, err := store.Start(context.Background(), model.ProductRequest{
		OrderID: "order-1", Scene: "LC08_L1TP_012029_20170213_20170415_01_T1", ProductType: model.ProductTypeLandsat,
	}, "test-host")
	require.NoError(t, err)

	var router *mux.Router
	mockLaunchServer(t, func(portStr string, r *mux.Router) {
		// Tested code, while the database is open
		response := get(r, "/jobs/order-1/LC08_L1TP_012029_20170213_20170415_01_T1")

		// Asserts
		assert.Equal(t, http.StatusOK, response.Code)
		assert.Equal(t, "application/json", response.Header().Get("Content-Type"))
		assert.Contains(t, response.Body.String(), `"id":"`+id+`"`)
		assert.Contains(t, response.Body.String(), `"status":"running"`)

		response = get(r, "/jobs?limit=1")
		assert.Equal(t, http.StatusOK, response.Code)
		assert.Contains(t, response.Body.String(), `"processing_loc":"test-host"`)

		assert.Equal(t, http.StatusNotFound, get(r, "/jobs/order-2/LC08").Code)
		assert.Equal(t, http.StatusBadRequest, get(r, "/jobs?limit=many").Code)
		router = r
	})

	serveAction(nil)
	assert.NotNil(t, router)
}

func TestCreateRouter_SchedulerNeedsChannel(t *testing.T) {
	scheduler := worker.NewScheduler(&worker.Worker{}, nil, 0)
	_, err := createRouter(&util.BasicLogContext{}, routerOptions{scheduler: scheduler})
	assert.EqualError(t, err, "A scheduler needs a message channel")
}

func TestMigrate_CreatesJobsTable(t *testing.T) {
	// Mock
	path := mockSQLite(t)

	// Tested code
	err := createCliApp().Run([]string{"espa-worker", "migrate"})

	// Asserts
	require.NoError(t, err)
	db, err := history.Open(&util.BasicLogContext{}, "sqlite://"+path)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestMigrate_NoDatabase(t *testing.T) {
	mockNoDatabase(t)
	err := createCliApp().Run([]string{"espa-worker", "migrate"})
	assert.EqualError(t, err, "Could not open database connection: No database configured")
}

func TestSchedule_ServesSchedulerControls(t *testing.T) {
	// Mock
	chdir(t, t.TempDir())
	mockNoDatabase(t)
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer apiServer.Close()
	t.Setenv("ESPA_API", apiServer.URL)
	t.Setenv(util.ESPA_SCHEDULE_FREQUENCY, "1h")

	var status, start, cancel string
	mockLaunchServer(t, func(portStr string, router *mux.Router) {
		status = get(router, "/status").Body.String()
		start = get(router, "/start").Body.String()
		cancel = get(router, "/cancel").Body.String()
	})

	// Tested code
	err := createCliApp().Run([]string{"espa-worker", "schedule"})

	// Asserts
	require.NoError(t, err)
	assert.Contains(t, status, "Status: Sleeping until")
	assert.Contains(t, status, "Previous job:\n\tNone")
	assert.True(t, strings.HasPrefix(start, "Begin job request submitted.\n"), start)
	assert.True(t, strings.HasPrefix(cancel, "Cancel request submitted.\n"), cancel)

	workerLog, err := os.ReadFile("espa-worker.log")
	require.NoError(t, err)
	assert.Contains(t, string(workerLog), "Job loop started with frequency 1h0m0s")
}

func TestSchedule_NoAPI(t *testing.T) {
	chdir(t, t.TempDir())
	mockNoDatabase(t)
	t.Setenv("ESPA_API", "")
	original := openWorkerFunc
	openWorkerFunc = func(path string) (*workerSession, error) { // Mock
		session, err := original(path)
		if err == nil {
			session.Worker.Config.Set("espa_api", "")
		}
		return session, err
	}
	defer func() { openWorkerFunc = original }()
	mockLaunchServer(t, func(string, *mux.Router) {
		assert.Fail(t, "the server must not start without an API")
	})

	err := createCliApp().Run([]string{"espa-worker", "schedule"})
	assert.EqualError(t, err, "ESPA_API is not defined!")
}

func TestProcess_InvalidJSON(t *testing.T) {
	err := createCliApp().Run([]string{"espa-worker", "process", "{not json"})
	assert.EqualError(t, err, "Product request data is not valid JSON")
}

func TestProcess_ReadsStdin(t *testing.T) {
	// Mock
	chdir(t, t.TempDir())
	mockNoDatabase(t)
	original := stdin
	stdin = strings.NewReader(`[{"orderid":"order-1","scene":"LC08_L1TP_012029_20170213_20170415_01_T1","product_type":"landsat"}]`)
	defer func() { stdin = original }()

	// Tested code
	err := createCliApp().Run([]string{"espa-worker", "process", "-"})

	// Asserts
	require.NoError(t, err, "a request that can not start is logged, not returned")
	workerLog, err := os.ReadFile("espa-worker.log")
	require.NoError(t, err)
	assert.Contains(t, string(workerLog), "Error missing JSON [options] record")
}

func TestOpenWorker_History(t *testing.T) {
	// Mock
	chdir(t, t.TempDir())
	mockSQLite(t)
	t.Setenv("ESPA_WORKER_CONCURRENCY", "")
	configFile := filepath.Join(t.TempDir(), "espa.toml")
	require.NoError(t, os.WriteFile(configFile, []byte("espa_worker_concurrency = 3\n"), 0644))

	// Tested code
	session, err := openWorker(configFile)

	// Asserts
	require.NoError(t, err)
	defer session.Close()
	assert.NotNil(t, session.History)
	assert.Same(t, session.History, session.Worker.History)
	assert.Equal(t, 3, session.Worker.Config.WorkerConcurrency())
	assert.Same(t, workerMetrics, session.Worker.Metrics)
	assert.IsType(t, command.ExecRunner{}, session.Worker.Runner)
	assert.FileExists(t, "espa-worker.log")
}

func TestOpenWorker_BadConfig(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := openWorker(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
	assert.NoFileExists(t, "espa-worker.log")
}

func TestDockerRun(t *testing.T) {
	// Mock
	t.Setenv(dockerrun.AuxDirEnv, "/aux")
	t.Setenv(dockerrun.EspaStorageEnv, "/storage")
	runner := &commandtest.Runner{Handler: func(commandtest.Call) (string, error) { return "done\n", nil }}
	original := dockerRunnerFunc
	dockerRunnerFunc = func() command.Runner { return runner }
	defer func() { dockerRunnerFunc = original }()

	app := createCliApp()
	var out bytes.Buffer
	app.Writer = &out

	// Tested code
	err := app.Run([]string{"espa-worker", "docker-run", "--tag", "2.35", `{ "orderid": "o" }`})

	// Asserts
	require.NoError(t, err)
	assert.Equal(t, "done\n", out.String())
	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "docker", calls[0].Name)
	args := calls[0].Args
	assert.Equal(t, "usgseros/espa-worker:2.35", args[len(args)-2])
	assert.Equal(t, `{"orderid":"o"}`, args[len(args)-1])
}

func TestDockerRun_MissingEnv(t *testing.T) {
	t.Setenv(dockerrun.AuxDirEnv, "")
	err := createCliApp().Run([]string{"espa-worker", "docker-run", `{}`})
	assert.EqualError(t, err, "ENV must have AUX_DIR set")
}

func TestVersion(t *testing.T) {
	app := createCliApp()
	var out bytes.Buffer
	app.Writer = &out
	require.NoError(t, app.Run([]string{"espa-worker", "version"}))
	assert.Equal(t, version+"\n", out.String())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
