package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	authdomain "github.com/smallbiznis/plantcare/internal/auth/domain"
	authrepo "github.com/smallbiznis/plantcare/internal/auth/repository"
	authservice "github.com/smallbiznis/plantcare/internal/auth/service"
	"github.com/smallbiznis/plantcare/internal/auth/session"
	"github.com/smallbiznis/plantcare/internal/authorization"
	"github.com/smallbiznis/plantcare/internal/clock"
	"github.com/smallbiznis/plantcare/internal/config"
	"github.com/smallbiznis/plantcare/internal/liveevents"
	"github.com/smallbiznis/plantcare/internal/migration"
	"github.com/smallbiznis/plantcare/internal/observability"
	obsmetrics "github.com/smallbiznis/plantcare/internal/observability/metrics"
	plantrepo "github.com/smallbiznis/plantcare/internal/plant/repository"
	plantservice "github.com/smallbiznis/plantcare/internal/plant/service"
	"github.com/smallbiznis/plantcare/internal/prediction"
	readingrepo "github.com/smallbiznis/plantcare/internal/reading/repository"
	readingservice "github.com/smallbiznis/plantcare/internal/reading/service"
	"github.com/smallbiznis/plantcare/internal/report"
	"github.com/smallbiznis/plantcare/internal/simulation"
	"github.com/smallbiznis/plantcare/internal/weather"
	"github.com/smallbiznis/plantcare/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	hub    *liveevents.Hub
	clock  *clock.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Berlin" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"Berlin","main":{"temp":18.5,"feels_like":17,"humidity":60},"weather":[{"description":"light rain"}],"wind":{"speed":3.2}}`))
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Config{
		Environment:    "test",
		AdminUsernames: []string{"admin"},
		Weather: config.WeatherConfig{
			BaseURL:  upstream.URL,
			APIKey:   "test",
			Units:    "metric",
			CacheTTL: time.Minute,
			Timeout:  time.Second,
		},
	}
	tuning := config.DefaultTuning()
	tuning.Simulation.Timezone = "UTC"
	holder := config.NewStaticTuningHolder(tuning)

	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC))
	hub := liveevents.NewHub()

	users, sessions := authrepo.New(conn)
	authSvc := authservice.New(authservice.Params{Log: log, Repo: users, SessionRepo: sessions, GenID: node, Clock: fake})
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{DB: conn, Log: log, Config: cfg, Enforcer: enforcer})

	readings := readingrepo.Provide()
	readingSvc := readingservice.New(readingservice.Params{DB: conn, Log: log, Repo: readings, Clock: fake, Hub: hub})
	predictor := prediction.NewService(prediction.Params{DB: conn, Log: log, Repo: readings, Tuning: holder})
	plantSvc := plantservice.New(plantservice.Params{DB: conn, Log: log, GenID: node, Repo: plantrepo.Provide(), Clock: fake})
	reports := report.NewService(report.Params{Log: log, Readings: readingSvc, Prediction: predictor, Users: authSvc, Clock: fake})
	simulator, err := simulation.NewEngine(simulation.Params{
		DB:      conn,
		Log:     log,
		Repo:    readings,
		Clock:   fake,
		Tuning:  holder,
		Metrics: obsmetrics.NewSimulationMetrics(prometheus.NewRegistry(), obsmetrics.Config{}),
		Hub:     hub,
		Rand:    rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)

	engine := NewEngine(observability.Config{Environment: "test"}, obsmetrics.NewHTTPMetrics(obsmetrics.Config{}))
	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Log:        log,
		Authsvc:    authSvc,
		Sessions:   session.NewManager(cfg),
		AuthzSvc:   authzSvc,
		ReadingSvc: readingSvc,
		Predictor:  predictor,
		PlantSvc:   plantSvc,
		Weather:    weather.NewClient(cfg, log),
		Reports:    reports,
		Simulator:  simulator,
		Tuning:     holder,
		Hub:        hub,
	})

	return &testServer{t: t, engine: engine, hub: hub, clock: fake}
}

func (ts *testServer) request(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in, returning the session cookie and subject id.
func (ts *testServer) signup(username, location string) (*http.Cookie, string) {
	ts.t.Helper()
	rec := ts.request(http.MethodPost, "/api/register", gin.H{"username": username, "password": "pass", "location": location}, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.request(http.MethodPost, "/api/login", gin.H{"username": username, "password": "pass"}, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		UserID string `json:"user_id"`
	}
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(ts.t, body.UserID)

	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c, body.UserID
		}
	}
	ts.t.Fatal("no session cookie")
	return nil, ""
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)
	cookie, userID := ts.signup("user1", "London")
	assert.True(t, cookie.HttpOnly)

	rec := ts.request(http.MethodGet, "/api/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), userID)
	assert.Contains(t, rec.Body.String(), authorization.RoleUser)
}

func TestDuplicateRegistration(t *testing.T) {
	ts := newTestServer(t)
	ts.signup("user2", "")

	rec := ts.request(http.MethodPost, "/api/register", gin.H{"username": "user2", "password": "pass"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodPost, "/api/register", gin.H{"username": "ab", "password": "pass"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "username", payload.Errors[0].Field)
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.signup("user3", "")

	rec := ts.request(http.MethodPost, "/api/login", gin.H{"username": "user3", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/latest_reading"},
		{http.MethodPost, "/api/add_reading"},
		{http.MethodGet, "/api/readings"},
		{http.MethodGet, "/api/predict_watering"},
		{http.MethodGet, "/api/plants"},
		{http.MethodGet, "/api/simulation/status"},
	} {
		rec := ts.request(tc.method, tc.path, gin.H{"moisture": 50, "temp": 20, "light": 700}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("user4", "")

	rec := ts.request(http.MethodPost, "/api/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodGet, "/api/latest_reading", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddAndGetReading(t *testing.T) {
	ts := newTestServer(t)
	cookie, userID := ts.signup("user5", "Paris")

	rec := ts.request(http.MethodGet, "/api/latest_reading", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.request(http.MethodPost, "/api/add_reading", gin.H{
		"moisture": 55, "temp": 22, "light": 800, "notes": "Test", "plant_id": 1,
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.request(http.MethodGet, "/api/latest_reading", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, 55.0, latest["moisture"])
	assert.Equal(t, 22.0, latest["temp"])
	assert.Equal(t, 800.0, latest["light"])
	assert.Equal(t, "manual", latest["sensor_type"])
	assert.Equal(t, "2025-07-06 12:00:00", latest["timestamp"])
	assert.Equal(t, userID, snowflakeString(latest["user_id"]))
}

func snowflakeString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return snowflake.ID(int64(value)).String()
	default:
		return ""
	}
}

func TestAddReadingValidation(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("user6", "")

	rec := ts.request(http.MethodPost, "/api/add_reading", gin.H{"temp": 22, "light": 800}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_moisture", payload.Errors[0].Code)

	rec = ts.request(http.MethodPost, "/api/add_reading", gin.H{"moisture": 50, "temp": 22, "light": -1}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReadingsRange(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("user7", "")

	for _, stamp := range []string{"2025-07-05 10:00:00", "2025-07-06 09:00:00", "2025-07-06 11:00:00"} {
		rec := ts.request(http.MethodPost, "/api/add_reading", gin.H{"moisture": 50, "temp": 20, "light": 100, "timestamp": stamp}, cookie)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := ts.request(http.MethodGet, "/api/readings", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = ts.request(http.MethodGet, "/api/readings?start=2025-07-06", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var since []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &since))
	require.Len(t, since, 2)
	assert.Equal(t, "2025-07-06 09:00:00", since[0]["timestamp"])

	rec = ts.request(http.MethodGet, "/api/readings?start=yesterday", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(http.MethodGet, "/api/readings?start=2025-07-06&end=2025-07-05", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func uploadCSV(t *testing.T, ts *testServer, cookie *http.Cookie, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "readings.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import_readings", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func TestImportAndExportReadings(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("importuser", "Rome")

	csvData := "timestamp,moisture,temp,light,notes,plant_id,sensor_type\n" +
		"2025-07-06 10:00:00,60,23,900,Imported,1,dht22\n" +
		"2025-07-06 11:00:00,58,24,850,Imported,1,dht22\n"
	rec := uploadCSV(t, ts, cookie, csvData)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"imported":2`)

	rec = ts.request(http.MethodGet, "/api/readings", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var readings []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
	require.Len(t, readings, 2)
	assert.Equal(t, "dht22", readings[0]["sensor_type"])

	rec = ts.request(http.MethodGet, "/api/export_readings", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,moisture,temp,light,notes,plant_id,sensor_type", lines[0])
}

func TestImportRejectsBadRowAtomically(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("importbad", "")

	csvData := "timestamp,moisture,temp,light,notes,plant_id,sensor_type\n" +
		"2025-07-06 10:00:00,60,23,900,,,\n" +
		"2025-07-06 11:00:00,abc,24,850,,,\n"
	rec := uploadCSV(t, ts, cookie, csvData)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, 2, payload.Errors[0].Row)

	rec = ts.request(http.MethodGet, "/api/readings", nil, cookie)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestImportRequiresFile(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("nofile", "")

	rec := ts.request(http.MethodPost, "/api/import_readings", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictWatering(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("predictor", "")

	rec := ts.request(http.MethodGet, "/api/predict_watering", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), prediction.MessageInsufficientData)

	for i, moisture := range []float64{70, 65, 60, 55, 50} {
		stamp := time.Date(2025, 7, 6, 6+i, 0, 0, 0, time.UTC).Format("2006-01-02 15:04:05")
		rec := ts.request(http.MethodPost, "/api/add_reading", gin.H{"moisture": moisture, "temp": 20, "light": 100, "timestamp": stamp}, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = ts.request(http.MethodGet, "/api/predict_watering", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var result prediction.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, prediction.OutcomePredicted, result.Outcome)
	require.NotNil(t, result.PredictedTime)
}

func TestReadingsReportIsPDF(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("reporter", "Oslo")
	rec := ts.request(http.MethodPost, "/api/add_reading", gin.H{"moisture": 50, "temp": 20, "light": 100}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodGet, "/api/readings/report", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestSetLocationAndWeather(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("user8", "")

	rec := ts.request(http.MethodGet, "/api/weather", nil, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)

	rec = ts.request(http.MethodPost, "/api/set_location", gin.H{"location": "Berlin"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodGet, "/api/weather", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report weather.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "Berlin", report.Location)
	assert.Equal(t, 18.5, report.Temperature)

	rec = ts.request(http.MethodPost, "/api/set_location", gin.H{"location": "Atlantis"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.request(http.MethodGet, "/api/weather", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "city not found")
}

func TestPlants(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("gardener", "")
	other, _ := ts.signup("neighbour", "")

	rec := ts.request(http.MethodPost, "/api/plants", gin.H{"name": "Monstera Deliciosa", "species": "Monstera"}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "monstera-deliciosa", created["slug"])
	id := created["id"].(string)

	rec = ts.request(http.MethodGet, "/api/plants", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = ts.request(http.MethodGet, "/api/plants/"+id, nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodGet, "/api/plants/"+id, nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.request(http.MethodPost, "/api/plants", gin.H{"name": "  "}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulationRoutesAreRoleGated(t *testing.T) {
	ts := newTestServer(t)
	userCookie, _ := ts.signup("grower", "")
	adminCookie, _ := ts.signup("admin", "")

	rec := ts.request(http.MethodGet, "/api/simulation/status", nil, userCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"idle"`)

	rec = ts.request(http.MethodPost, "/api/simulation/tick", nil, userCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.request(http.MethodGet, "/api/simulation/tuning", nil, userCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(http.MethodPost, "/api/simulation/tick", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tick simulation.TickReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tick))
	assert.Equal(t, 2, tick.Rows)

	rec = ts.request(http.MethodGet, "/api/latest_reading", nil, userCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sensor_type":"simulated"`)

	rec = ts.request(http.MethodGet, "/api/simulation/status", nil, userCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state"`)

	rec = ts.request(http.MethodGet, "/api/simulation/tuning", nil, adminCookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamReplaysBacklog(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("watcher", "")
	rec := ts.request(http.MethodPost, "/api/add_reading", gin.H{"moisture": 42, "temp": 20, "light": 100}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/readings/stream", nil).WithContext(ctx)
	req.AddCookie(cookie)
	stream := httptest.NewRecorder()
	ts.engine.ServeHTTP(stream, req)

	assert.Equal(t, "text/event-stream", stream.Header().Get("Content-Type"))
	body := stream.Body.String()
	assert.True(t, strings.HasPrefix(body, "retry: 2000\n\n"), body)
	assert.Contains(t, body, "event: reading\n")
	assert.Contains(t, body, `"moisture":42`)
	assert.Contains(t, body, `"source":"api"`)
}

func TestShutdownEndsOpenStreams(t *testing.T) {
	ts := newTestServer(t)
	cookie, _ := ts.signup("streamer", "")

	srv := newHTTPServer("127.0.0.1:0", ts.engine)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/api/readings/stream", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	started := time.Now()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Less(t, time.Since(started), 2*time.Second)
	_, _ = io.Copy(io.Discard, resp.Body)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(http.MethodGet, "/api/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{authdomain.ErrUserExists, http.StatusConflict},
		{ErrImportInProgress, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{authorization.ErrForbidden, http.StatusForbidden},
		{authdomain.ErrSessionExpired, http.StatusUnauthorized},
		{liveevents.ErrHubUnavailable, http.StatusServiceUnavailable},
		{weather.ErrMissingLocation, http.StatusBadRequest},
		{prediction.ErrInvalidSubject, http.StatusBadRequest},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.want, status, tc.err.Error())
	}
}
