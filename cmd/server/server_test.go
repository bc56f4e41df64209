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

	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"sql2csv/internal/adapter"
	"sql2csv/internal/config"
	"sql2csv/internal/discovery"
	"sql2csv/internal/export"
	"sql2csv/internal/query"
	"sql2csv/internal/renderer"
	"sql2csv/internal/sqlitetest"
)

type testServer struct {
	*httptest.Server
	cfg *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	path := sqlitetest.Create(t, "shop", sqlitetest.UsersFixture...)

	cfg := config.Default()
	cfg.Server.DataDir = filepath.Dir(path)
	cfg.Server.StaticDir = ""
	cfg.Export.OutputDir = t.TempDir()

	ts := httptest.NewServer(newServer(context.Background(), cfg, zerolog.Nop()).routes())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, cfg: cfg}
}

func (ts *testServer) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (ts *testServer) startExport(t *testing.T, body string) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/export", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(data))

	id := gjson.GetBytes(data, "task_id").String()
	require.NotEmpty(t, id)
	return id
}

func (ts *testServer) waitTask(t *testing.T, id string) string {
	t.Helper()
	var body string
	require.Eventually(t, func() bool {
		var status int
		status, body = ts.get(t, "/api/task/"+id)
		return status == http.StatusOK && TaskStatus(gjson.Get(body, "status").String()).Done()
	}, 5*time.Second, 20*time.Millisecond)
	return body
}

func TestTables(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.get(t, "/api/tables?path=shop.db")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "shop", gjson.Get(body, "database").String())
	assert.Equal(t, "Users", gjson.Get(body, "tables.0.name").String())
	assert.Equal(t, int64(2), gjson.Get(body, "tables.0.rowCount").Int())
	assert.Equal(t, int64(4), gjson.Get(body, "tables.0.columns").Int())
}

func TestPathsAreConfinedToDataDir(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.get(t, "/api/tables?path=../shop.db")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, gjson.Get(body, "error").String(), "outside")

	status, _ = ts.get(t, "/api/tables?path=/etc/passwd")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.get(t, "/api/tables")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.get(t, "/api/tables?path=missing.db")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDatabases(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.get(t, "/api/databases")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "shop", gjson.Get(body, "0.name").String())
	assert.Equal(t, "shop.db", gjson.Get(body, "0.path").String())
}

func TestSchema(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.get(t, "/api/schema?path=shop.db&format=json")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Users", gjson.Get(body, "0.table").String())

	status, body = ts.get(t, "/api/schema?path=shop.db&format=markdown")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(body, "# Database Schema Report"))

	status, _ = ts.get(t, "/api/schema?path=shop.db&format=yaml")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestExportTask(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startExport(t, `{"path":"shop.db","delimiter":"semicolon"}`)

	body := ts.waitTask(t, id)
	assert.Equal(t, string(StatusCompleted), gjson.Get(body, "status").String())
	assert.Equal(t, int64(100), gjson.Get(body, "progress").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "summary.succeeded").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "summary.rows").Int())
	assert.Equal(t, "Users", gjson.Get(body, "results.0.table_name").String())

	data, err := os.ReadFile(filepath.Join(ts.cfg.Export.OutputDir, "shop", "Users_extract.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `"Id";"Name";"Email";"Age"`+"\n"))
}

func TestExportTaskRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/export", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/export", "application/json", strings.NewReader(`{"path":"../x.db"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaskNotFound(t *testing.T) {
	ts := newTestServer(t)
	status, _ := ts.get(t, "/api/task/nope")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWebSocketPushesUntilDone(t *testing.T) {
	ts := newTestServer(t)
	id := ts.startExport(t, `{"path":"shop.db"}`)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?task_id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var last ExportTask
	for {
		var task ExportTask
		if err := conn.ReadJSON(&task); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		assert.Equal(t, id, task.ID)
		last = task
	}
	assert.Equal(t, StatusCompleted, last.Status)
	require.Len(t, last.Results, 1)
	assert.True(t, last.Results[0].Success)
}

func TestWebSocketUnknownTask(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?task_id=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyze(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.get(t, "/api/analyze?path=shop.db&table=users")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Users", gjson.Get(body, "tableName").String())
	assert.Equal(t, int64(2), gjson.Get(body, "statistics.totalRows").Int())

	status, body = ts.get(t, "/api/analyze?path=shop.db&table=Users&column=age")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Age", gjson.Get(body, "columnName").String())
	assert.Equal(t, 50.0, gjson.Get(body, "nullPercentage").Float())

	status, _ = ts.get(t, "/api/analyze?path=shop.db&table=Orders")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.get(t, "/api/analyze?path=shop.db&table=Users&column=Salary")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTableData(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.get(t, "/api/table-data?path=shop.db&table=Users&draw=2&search=jane")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, int64(2), gjson.Get(body, "draw").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "recordsTotal").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "recordsFiltered").Int())
	assert.Equal(t, "Jane Smith", gjson.Get(body, "data.0.Name").String())
	assert.Equal(t, gjson.Null, gjson.Get(body, "data.0.Email").Type)
	assert.True(t, gjson.Get(body, "error").Exists())

	status, body = ts.get(t, "/api/table-data?path=shop.db&table=Users&order=0:desc&length=1&columns=Id,Name")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, int64(1), gjson.Get(body, "data.#").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "data.0.Id").Int())
	assert.False(t, gjson.Get(body, "data.0.Email").Exists())
}

func TestTableDataErrors(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.get(t, "/api/table-data?path=shop.db&table=Orders&draw=7")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, int64(7), gjson.Get(body, "draw").Int())
	assert.NotEmpty(t, gjson.Get(body, "error").String())
	assert.True(t, gjson.Get(body, "data").IsArray())

	status, _ = ts.get(t, "/api/table-data?path=shop.db&table=Users&columns=Secret")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Wrap(discovery.ErrOutsideRoot, "x"), http.StatusBadRequest},
		{renderer.ErrUnknownFormat, http.StatusBadRequest},
		{query.ErrUnknownIdentifier, http.StatusBadRequest},
		{errors.Wrap(adapter.ErrConnection, "x"), http.StatusNotFound},
		{query.ErrUnknownTable, http.StatusNotFound},
		{adapter.Cancelled(context.Canceled), http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestTaskSnapshotIsIndependent(t *testing.T) {
	store := newTaskStore()
	task := store.create("shop", "/tmp/out")
	assert.Equal(t, StatusPending, task.Status)

	store.update(task.ID, func(t *ExportTask) {
		t.Results = append(t.Results, export.Result{TableName: "Users"})
	})
	snap, ok := store.get(task.ID)
	require.True(t, ok)
	snap.Results[0].TableName = "changed"

	again, _ := store.get(task.ID)
	assert.Equal(t, "Users", again.Results[0].TableName)
}
