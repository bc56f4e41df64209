package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"sql2csv/internal/adapter"
	"sql2csv/internal/analyzer"
	"sql2csv/internal/config"
	"sql2csv/internal/discovery"
	"sql2csv/internal/export"
	"sql2csv/internal/query"
	"sql2csv/internal/renderer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// pushInterval websocket 推送任务状态的间隔
const pushInterval = 500 * time.Millisecond

// ExportRequest 导出请求
type ExportRequest struct {
	Path           string   `json:"path"`
	Tables         []string `json:"tables"`
	Delimiter      string   `json:"delimiter"`
	IncludeHeaders *bool    `json:"include_headers"`
}

type server struct {
	ctx    context.Context
	cfg    *config.Config
	logger zerolog.Logger
	tasks  *taskStore
}

// newServer ctx 结束时后台导出任务随之取消
func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *server {
	return &server{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
		tasks:  newTaskStore(),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/databases", s.handleDatabases)
	mux.HandleFunc("GET /api/tables", s.handleTables)
	mux.HandleFunc("GET /api/schema", s.handleSchema)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /api/task/{id}", s.handleTaskStatus)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/table-data", s.handleTableData)
	if s.cfg.Server.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.Server.StaticDir)))
	}
	return mux
}

// openDatabase 打开数据目录内的数据库
func (s *server) openDatabase(ctx context.Context, rel string) (*adapter.SQLiteAdapter, error) {
	path, err := discovery.Resolve(s.cfg.Server.DataDir, rel)
	if err != nil {
		return nil, err
	}
	return discovery.FromFile(path).Open(ctx, s.cfg.Database.Timeout)
}

// handleDatabases 列出数据目录中的数据库
func (s *server) handleDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := discovery.Discover(r.Context(), s.cfg.Server.DataDir, s.logger)
	if err != nil {
		s.writeError(w, err)
		return
	}
	type entry struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	out := make([]entry, 0, len(dbs))
	for _, d := range dbs {
		out = append(out, entry{Name: d.Name, Path: filepath.Base(d.Path)})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTables 列出表
func (s *server) handleTables(w http.ResponseWriter, r *http.Request) {
	db, err := s.openDatabase(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer db.Close()

	tables, err := db.GetTables(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	type entry struct {
		Name     string `json:"name"`
		Columns  int    `json:"columns"`
		RowCount int64  `json:"rowCount"`
	}
	out := make([]entry, 0, len(tables))
	for _, t := range tables {
		out = append(out, entry{Name: t.Name, Columns: len(t.Columns), RowCount: t.RowCount})
	}
	writeJSON(w, http.StatusOK, map[string]any{"database": db.Name(), "tables": out})
}

// handleSchema 结构报告，json 格式按 JSON 返回，其余为纯文本
func (s *server) handleSchema(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := renderer.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	db, err := s.openDatabase(r.Context(), q.Get("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer db.Close()

	var opts []renderer.ReportOption
	if infer, _ := strconv.ParseBool(q.Get("infer")); infer {
		keys, err := s.inferKeys(r.Context(), db)
		if err != nil {
			s.writeError(w, err)
			return
		}
		opts = append(opts, renderer.WithInferredKeys(keys))
	}

	report, err := renderer.GenerateReport(r.Context(), db, format, opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if format == renderer.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	fmt.Fprint(w, report)
}

func (s *server) inferKeys(ctx context.Context, db *adapter.SQLiteAdapter) ([]renderer.InferredKey, error) {
	tables, err := db.GetTables(ctx)
	if err != nil {
		return nil, err
	}
	declared, err := db.GetForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	relations, err := analyzer.NewRelationInferer(db, s.logger).InferRelationships(ctx, tables, declared)
	if err != nil {
		return nil, err
	}
	keys := make([]renderer.InferredKey, len(relations))
	for i, rel := range relations {
		keys[i] = renderer.InferredKey{ForeignKey: rel.ForeignKey, Confidence: rel.Confidence}
	}
	return keys, nil
}

// handleExport 创建异步导出任务
func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// 连接在请求内验证，任务里重新打开
	db, err := s.openDatabase(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	name := db.Name()
	db.Close()

	task := s.tasks.create(name, filepath.Join(s.cfg.Export.OutputDir, name))
	go s.runExport(task.ID, task.OutputDir, req)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"status":  string(task.Status),
	})
}

// runExport 执行导出并更新任务进度
func (s *server) runExport(taskID, outputDir string, req ExportRequest) {
	log := s.logger.With().Str("task", taskID).Logger()
	fail := func(err error) {
		log.Error().Err(err).Msg("Export task failed")
		s.tasks.update(taskID, func(t *ExportTask) {
			t.Status = StatusFailed
			t.Message = err.Error()
		})
	}

	s.tasks.update(taskID, func(t *ExportTask) {
		t.Status = StatusRunning
		t.Message = "正在读取表列表"
	})

	db, err := s.openDatabase(s.ctx, req.Path)
	if err != nil {
		fail(err)
		return
	}
	defer db.Close()

	all, err := db.ListTables(s.ctx)
	if err != nil {
		fail(err)
		return
	}
	total := len(all)
	if req.Tables != nil {
		selected, _ := export.FilterTables(all, req.Tables)
		total = len(selected)
	}

	enc, err := export.LookupEncoding(s.cfg.Export.Encoding)
	if err != nil {
		fail(err)
		return
	}

	done := 0
	exporter := export.NewExporter(s.cfg.CSVOptions(), s.logger,
		export.WithEncoding(enc),
		export.WithProgress(func(res export.Result) {
			done++
			s.tasks.update(taskID, func(t *ExportTask) {
				t.Results = append(t.Results, res)
				t.Progress = done * 100 / total
				t.Message = fmt.Sprintf("已导出 %s (%d/%d)", res.TableName, done, total)
			})
		}),
	)

	opts := export.Options{
		Tables:         req.Tables,
		Delimiter:      config.ParseDelimiter(req.Delimiter),
		IncludeHeaders: req.IncludeHeaders,
	}
	results, err := exporter.ExportDatabase(s.ctx, db, outputDir, opts)
	if err != nil {
		fail(err)
		return
	}

	summary := export.Summarize(results)
	s.tasks.update(taskID, func(t *ExportTask) {
		t.Status = StatusCompleted
		t.Progress = 100
		t.Summary = &summary
		t.Message = fmt.Sprintf("导出完成：%d 张表成功，%d 张失败", summary.Succeeded, summary.Failed)
	})
	log.Info().Int("tables", summary.Tables).Int("failed", summary.Failed).Msg("Export task completed")
}

// handleTaskStatus 查询任务状态
func (s *server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleWebSocket 持续推送任务状态，任务结束后关闭
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if _, ok := s.tasks.get(taskID); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket upgrade")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	var last time.Time
	for {
		task, ok := s.tasks.get(taskID)
		if !ok {
			return
		}
		if task.UpdatedAt != last {
			if err := conn.WriteJSON(task); err != nil {
				return
			}
			last = task.UpdatedAt
		}
		if task.Status.Done() {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(task.Status)))
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// handleAnalyze 表或单列统计
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	db, err := s.openDatabase(r.Context(), q.Get("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer db.Close()

	stats := analyzer.NewStatisticsAnalyzer(db, s.logger,
		analyzer.WithTopValues(s.cfg.Analysis.TopValues),
		analyzer.WithQualityWeights(s.cfg.QualityWeights()),
	)

	table, column := q.Get("table"), q.Get("column")
	var result any
	if column == "" {
		result, err = stats.AnalyzeTable(r.Context(), table)
	} else {
		result, err = stats.AnalyzeColumn(r.Context(), table, column)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleTableData 表格组件的分页数据
func (s *server) handleTableData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := query.Request{
		Draw:   atoi(q.Get("draw")),
		Start:  atoi(q.Get("start")),
		Length: atoi(q.Get("length")),
		Search: q.Get("search"),
		Order:  query.ParseOrder(q.Get("order")),
	}
	if cols := q.Get("columns"); cols != "" {
		req.Columns = strings.Split(cols, ",")
	}

	db, err := s.openDatabase(r.Context(), q.Get("path"))
	if err != nil {
		writeJSON(w, statusOf(err), query.ErrorPage(req.Draw, err))
		return
	}
	defer db.Close()

	page, err := query.NewViewer(db, s.cfg.Limits(), s.logger).Page(r.Context(), q.Get("table"), req)
	if err != nil {
		s.logger.Debug().Err(err).Str("table", q.Get("table")).Msg("Table data request failed")
		writeJSON(w, statusOf(err), query.ErrorPage(req.Draw, err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// statusOf 错误对应的 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, discovery.ErrEmptyPath),
		errors.Is(err, discovery.ErrOutsideRoot),
		errors.Is(err, renderer.ErrUnknownFormat),
		errors.Is(err, query.ErrUnknownIdentifier),
		errors.Is(err, analyzer.ErrUnknownColumn):
		return http.StatusBadRequest
	case errors.Is(err, adapter.ErrConnection),
		errors.Is(err, query.ErrUnknownTable),
		errors.Is(err, analyzer.ErrUnknownTable):
		return http.StatusNotFound
	case errors.Is(err, adapter.ErrCancelled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
