package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/config"
	"github.com/felman/modulos_backend/internal/controllers"
	"github.com/felman/modulos_backend/internal/database"
	"github.com/felman/modulos_backend/internal/middleware"
	"github.com/felman/modulos_backend/internal/utils"
)

const (
	jwtSecret  = "test-jwt"
	hmacSecret = "firma"
)

func setup(t *testing.T) (*gin.Engine, *Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory()
	require.NoError(t, err)

	cfg := &config.Config{
		ServiceName:      "modulos-test",
		Environment:      config.TestMode,
		JWTSecret:        jwtSecret,
		ModuleHMACSecret: hmacSecret,
		DBConfigSecret:   "clave",
		ViewerTTL:        time.Minute,
		ProbeTimeout:     time.Second,
		ProbeAttempts:    1,
		ProbeWorkers:     2,
	}
	svc := NewServices(db, cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go svc.Hub.Run(ctx)
	t.Cleanup(func() {
		svc.Viewers.Close()
		cancel()
	})

	r := gin.New()
	Register(r, db, cfg, svc)
	return r, svc
}

func backend(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := middleware.SignToken(jwtSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func call(r *gin.Engine, method, path, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func create(t *testing.T, r *gin.Engine, body string) string {
	t.Helper()
	w := call(r, http.MethodPost, "/api/v1/admin/modules", token(t, "admin", "Admin"), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func moduleJSON(name, url string, roles ...string) string {
	b, _ := json.Marshal(map[string]any{
		"nombre":          name,
		"tipoConexion":    "api",
		"apiRestUrl":      url,
		"consultaSQL":     "SELECT * FROM Pedidos",
		"rolesPermitidos": roles,
	})
	return string(b)
}

func TestHealth(t *testing.T) {
	r, _ := setup(t)
	w := call(r, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "ok", out["store"])
	assert.Equal(t, true, out["signed"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	r, _ := setup(t)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/v1/admin/modules", "", "").Code)
	assert.Equal(t, http.StatusForbidden,
		call(r, http.MethodPost, "/api/v1/admin/modules", token(t, "u1", "Almacen"), moduleJSON("x", "http://h/y", "Todos")).Code)
}

func TestCreateValidates(t *testing.T) {
	r, _ := setup(t)
	w := call(r, http.MethodPost, "/api/v1/admin/modules", token(t, "admin", "Admin"), `{"nombre":"","apiRestUrl":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decode(t, w)["problems"])
}

func TestCreateDuplicateID(t *testing.T) {
	r, _ := setup(t)
	body := `{"id":"fijo","nombre":"A","apiRestUrl":"http://h/y","consultaSQL":"SELECT 1","rolesPermitidos":["Todos"]}`
	create(t, r, body)
	w := call(r, http.MethodPost, "/api/v1/admin/modules", token(t, "admin", "Admin"), body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListFiltersByRole(t *testing.T) {
	r, _ := setup(t)
	create(t, r, moduleJSON("General", "http://h/y", "todos"))
	create(t, r, moduleJSON("Almacen", "http://h/y", "Almacen"))
	create(t, r, moduleJSON("Oficina", "http://h/y", "Oficina"))

	names := func(tok string) []string {
		w := call(r, http.MethodGet, "/api/v1/modules?sort_by=nombre&sort_dir=asc", tok, "")
		require.Equal(t, http.StatusOK, w.Code)
		var out []string
		for _, it := range decode(t, w)["data"].([]any) {
			out = append(out, it.(map[string]any)["nombre"].(string))
		}
		return out
	}

	assert.Equal(t, []string{"Almacen", "General"}, names(token(t, "u1", "almacen")))
	assert.Equal(t, []string{"Almacen", "General", "Oficina"}, names(token(t, "admin", "Admin")))
	assert.Equal(t, []string{"General"}, names(token(t, "u2", "Produccion")))
}

func TestGetHidesOtherRoles(t *testing.T) {
	r, _ := setup(t)
	id := create(t, r, moduleJSON("Oficina", "http://h/y", "Oficina"))

	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, "/api/v1/modules/"+id, token(t, "u1", "Almacen"), "").Code)
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/api/v1/modules/"+id, token(t, "u1", "Oficina"), "").Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, "/api/v1/modules/nope", token(t, "u1", "Oficina"), "").Code)
}

func TestViewRendersSignedCards(t *testing.T) {
	r, _ := setup(t)
	srv := backend(t, `{"data":[{"NoPedido":"P1","Cliente":"Acme"}]}`)
	id := create(t, r, moduleJSON("Pedidos", srv.URL+"/y", "Todos"))

	w := call(r, http.MethodGet, "/api/v1/modules/"+id+"/view", token(t, "u1", "Almacen"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, utils.HMACSHA256Hex(hmacSecret, w.Body.Bytes()), w.Header().Get(controllers.SignatureHeader))

	out := decode(t, w)
	assert.Equal(t, "displaying", out["state"])
	assert.Equal(t, []any{"NoPedido", "Cliente"}, out["columns"])
	cards := out["cards"].([]any)
	require.Len(t, cards, 1)
	lines := cards[0].(map[string]any)["lines"].([]any)
	assert.Equal(t, map[string]any{"label": "NoPedido", "value": "P1"}, lines[0])
	assert.Equal(t, map[string]any{"label": "Cliente", "value": "Acme"}, lines[1])
	assert.Equal(t, float64(1), out["page"].(map[string]any)["total"])
}

func TestRefreshReportsFetchErrors(t *testing.T) {
	r, _ := setup(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "caído", http.StatusBadGateway)
	}))
	defer srv.Close()
	id := create(t, r, moduleJSON("Pedidos", srv.URL, "Todos"))

	w := call(r, http.MethodPost, "/api/v1/modules/"+id+"/view/refresh", token(t, "u1", "Almacen"), "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "displaying_error", out["state"])
	errInfo := out["error"].(map[string]any)
	assert.Equal(t, "http", errInfo["kind"])
	assert.Equal(t, float64(http.StatusBadGateway), errInfo["status"])
}

func TestUpdateKeepsRedactedPassword(t *testing.T) {
	r, svc := setup(t)
	id := create(t, r, `{"nombre":"Directo","tipoConexion":"db","apiRestUrl":"http://h/y","consultaSQL":"SELECT 1",
		"rolesPermitidos":["Todos"],"dbConfig":{"tipo":"sqlserver","host":"db","puerto":1433,"database":"erp","usuario":"sa","password":"secreto"}}`)

	w := call(r, http.MethodGet, "/api/v1/admin/modules/"+id, token(t, "admin", "Admin"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "********", decode(t, w)["dbConfig"].(map[string]any)["password"])

	_, v := svc.Viewers.Acquire("u1", id)
	w = call(r, http.MethodPut, "/api/v1/admin/modules/"+id, token(t, "admin", "Admin"), `{"nombre":"Directo 2","tipoConexion":"db",
		"apiRestUrl":"http://h/y","consultaSQL":"SELECT 2","rolesPermitidos":["Todos"],
		"dbConfig":{"tipo":"sqlserver","host":"db","puerto":"1433","database":"erp","usuario":"sa","password":"********"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "closed", string(v.Snapshot().State))

	def, err := svc.Repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Directo 2", def.Name)
	assert.Equal(t, "secreto", def.DBConfig.Password)
	assert.Equal(t, "1433", def.DBConfig.Port.String())
}

func TestDelete(t *testing.T) {
	r, _ := setup(t)
	id := create(t, r, moduleJSON("Temporal", "http://h/y", "Todos"))
	admin := token(t, "admin", "Admin")

	assert.Equal(t, http.StatusOK, call(r, http.MethodDelete, "/api/v1/admin/modules/"+id, admin, "").Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodDelete, "/api/v1/admin/modules/"+id, admin, "").Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodGet, "/api/v1/admin/modules/"+id, admin, "").Code)
}

func TestImportExport(t *testing.T) {
	r, _ := setup(t)
	admin := token(t, "admin", "Admin")
	legacy := `[
		{"id":"m1","nombre":"Legado","apiRestUrl":"http://h/y","usaConsultasMultiples":true,"consultaSQL":"SELECT 1","rolesPermitidos":[]},
		{"id":"m2","nombre":"","tipoConexion":"api","apiRestUrl":"http://h/y","consultaSQL":"SELECT 2","rolesPermitidos":["Todos"]}
	]`

	w := call(r, http.MethodPost, "/api/v1/admin/modules/import", admin, legacy)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, float64(1), res["imported"])
	assert.Equal(t, float64(1), res["repaired"])
	assert.Len(t, res["failed"], 1)

	w = call(r, http.MethodGet, "/api/v1/admin/modules/export", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	var defs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "api", defs[0]["tipoConexion"])
	assert.Equal(t, "principal", defs[0]["queryIdPrincipal"])
	assert.Equal(t, []any{"Todos"}, defs[0]["rolesPermitidos"])

	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodPost, "/api/v1/admin/modules/import", admin, `{"no":"lista"}`).Code)
}

func TestProbeAll(t *testing.T) {
	r, _ := setup(t)
	srv := backend(t, `[]`)
	create(t, r, moduleJSON("Vivo", srv.URL, "Todos"))

	w := call(r, http.MethodGet, "/api/v1/admin/modules/probe", token(t, "admin", "Admin"), "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, float64(1), out["meta"].(map[string]any)["reachable"])
}
