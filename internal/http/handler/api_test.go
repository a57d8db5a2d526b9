package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"codeshop/internal/config"
	mw "codeshop/internal/http/middleware"
	"codeshop/internal/model"
	"codeshop/internal/service"
)

func setupTestAPI(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(&model.Code{}, &model.Order{}, &model.RequestLog{}, &model.OperationLog{}))

	cfg := &config.Config{
		JWTSecret:     "test_secret",
		JWTTTL:        3600,
		CookieName:    "admin_token",
		AdminPassword: "hunter2",
		CodePrefix:    "RBX",
	}

	redemption := service.NewRedemptionService(database)
	generator := service.NewCodeGenerator(database)
	platform := service.NewPlatformClient("", "", "")

	publicH := NewPublicHandler(database, cfg, redemption, platform)
	adminH := NewAdminHandler(database, cfg, generator)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/validate-code", publicH.ValidateCode)
	api.POST("/activate", publicH.Activate)
	api.POST("/activate-gamepass", publicH.ActivateByURL)
	api.GET("/status", publicH.OrderStatus)

	admin := api.Group("/v1/admin")
	admin.POST("/login", adminH.Login)
	admin.POST("/logout", adminH.Logout)

	authed := admin.Group("")
	authed.Use(mw.RequireAdmin(cfg.JWTSecret, cfg.CookieName))
	authed.GET("/codes", adminH.ListCodes)
	authed.POST("/codes", adminH.CreateCode)
	authed.DELETE("/codes/:id", adminH.DeleteCode)
	authed.GET("/codes/stats", adminH.CodeStats)
	authed.POST("/codes/generate", adminH.GenerateCodes)
	authed.POST("/codes/import", adminH.ImportCodes)
	authed.GET("/orders", adminH.ListOrders)
	authed.PATCH("/orders/:id", adminH.UpdateOrder)
	authed.GET("/export/orders", adminH.ExportOrders)

	return r, database
}

func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "expected success envelope, body: %s", w.Body.String())
	return envelope.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func adminLogin(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/v1/admin/login", "", gin.H{"password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decodeData(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAdminLogin(t *testing.T) {
	r, _ := setupTestAPI(t)

	w := doJSON(r, http.MethodPost, "/api/v1/admin/login", "", gin.H{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/admin/login", "", gin.H{"password": "hunter2"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "admin_token=")
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	r, _ := setupTestAPI(t)

	w := doJSON(r, http.MethodGet, "/api/v1/admin/codes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/admin/codes", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRedemptionEndToEnd(t *testing.T) {
	r, _ := setupTestAPI(t)
	token := adminLogin(t, r)

	// generate a small batch
	w := doJSON(r, http.MethodPost, "/api/v1/admin/codes/generate", token, gin.H{"count": 5, "nominal": 800})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decodeData(t, w)
	assert.EqualValues(t, 5, data["count"])
	codes, ok := data["codes"].([]interface{})
	require.True(t, ok)
	require.Len(t, codes, 5)
	code := codes[0].(string)

	// validate with lowercase input
	w = doJSON(r, http.MethodPost, "/api/validate-code", "", gin.H{"code": strings.ToLower(code)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data = decodeData(t, w)
	assert.EqualValues(t, 800, data["nominal"])

	// activate
	w = doJSON(r, http.MethodPost, "/api/activate", "", gin.H{
		"code":         code,
		"nickname":     "builderman",
		"user_id":      156,
		"game_pass_id": 123456,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decodeData(t, w)["order"].(map[string]interface{})
	short := order["short_code"].(string)
	require.Len(t, short, 6)

	// the same code is no longer redeemable
	w = doJSON(r, http.MethodPost, "/api/validate-code", "", gin.H{"code": code})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_USED", errorCode(t, w))

	// customer polls by short code
	w = doJSON(r, http.MethodGet, "/api/status?code="+short, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	polled := decodeData(t, w)["order"].(map[string]interface{})
	assert.Equal(t, model.OrderStatusQueued, polled["status"])

	// operator advances the order
	w = doJSON(r, http.MethodGet, "/api/v1/admin/orders?q="+short, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decodeData(t, w)["orders"].([]interface{})
	require.Len(t, orders, 1)
	orderID := orders[0].(map[string]interface{})["id"].(string)

	w = doJSON(r, http.MethodPatch, "/api/v1/admin/orders/"+orderID, token, gin.H{"status": "done"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/status?code="+short, "", nil)
	polled = decodeData(t, w)["order"].(map[string]interface{})
	assert.Equal(t, model.OrderStatusDone, polled["status"])

	// export carries the order
	w = doJSON(r, http.MethodGet, "/api/v1/admin/export/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Body.String(), short)
}

func TestValidateCodeErrors(t *testing.T) {
	r, _ := setupTestAPI(t)

	w := doJSON(r, http.MethodPost, "/api/validate-code", "", gin.H{"code": "garbage"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FORMAT", errorCode(t, w))

	w = doJSON(r, http.MethodPost, "/api/validate-code", "", gin.H{"code": "RBX-AB12-CD34-7"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CHECKSUM", errorCode(t, w))

	w = doJSON(r, http.MethodPost, "/api/validate-code", "", gin.H{"code": service.EncodeCode("RBX", "ZZ99", "XX88")})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestActivateByURL(t *testing.T) {
	r, database := setupTestAPI(t)
	code := service.EncodeCode("RBX", "PP55", "QQ66")
	require.NoError(t, database.Create(&model.Code{Code: code, Nominal: 400, Status: model.CodeStatusActive}).Error)

	w := doJSON(r, http.MethodPost, "/api/activate-gamepass", "", gin.H{
		"code":         code,
		"nickname":     "builderman",
		"gamepass_url": "https://www.roblox.com/game-pass/987654/VIP",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var order model.Order
	require.NoError(t, database.First(&order, "code = ?", code).Error)
	assert.Equal(t, "987654", order.ItemRef)

	w = doJSON(r, http.MethodPost, "/api/activate-gamepass", "", gin.H{
		"code":         code,
		"nickname":     "builderman",
		"gamepass_url": "https://www.roblox.com/catalog/1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualCodeLifecycle(t *testing.T) {
	r, _ := setupTestAPI(t)
	token := adminLogin(t, r)

	w := doJSON(r, http.MethodPost, "/api/v1/admin/codes", token, gin.H{"code": "RBX100-AB12-CD34", "nominal": 500})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeData(t, w)["code"].(map[string]interface{})
	id := created["id"].(string)

	// duplicate add is a distinguishable conflict
	w = doJSON(r, http.MethodPost, "/api/v1/admin/codes", token, gin.H{"code": "rbx100-ab12-cd34", "nominal": 500})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE", errorCode(t, w))

	w = doJSON(r, http.MethodDelete, "/api/v1/admin/codes/"+id, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// the text is free again once the code is gone
	w = doJSON(r, http.MethodPost, "/api/v1/admin/codes", token, gin.H{"code": "RBX100-AB12-CD34", "nominal": 500})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestGenerateCodesFailureMapping(t *testing.T) {
	r, database := setupTestAPI(t)
	token := adminLogin(t, r)

	// bad prefix is the caller's fault
	w := doJSON(r, http.MethodPost, "/api/v1/admin/codes/generate", token, gin.H{"count": 1, "nominal": 100, "prefix": "TOOLONGPREFIX"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, w))

	// storage failures surface opaquely
	sqlDB, err := database.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w = doJSON(r, http.MethodPost, "/api/v1/admin/codes/generate", token, gin.H{"count": 1, "nominal": 100})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w))
	assert.NotContains(t, w.Body.String(), "sql")
}

func TestDeleteUsedCodeRejected(t *testing.T) {
	r, database := setupTestAPI(t)
	token := adminLogin(t, r)

	row := model.Code{Code: "RBX100-EE11-FF22", Nominal: 100, Status: model.CodeStatusUsed}
	require.NoError(t, database.Create(&row).Error)

	w := doJSON(r, http.MethodDelete, "/api/v1/admin/codes/"+row.ID, token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_USED", errorCode(t, w))
}

func TestImportCodesEndpoint(t *testing.T) {
	r, database := setupTestAPI(t)
	token := adminLogin(t, r)

	body := "code,nominal,status\nRBX100-AA11-BB22,100,\nRBX100-CC33-DD44,200,used\nbroken-row\n"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/codes/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decodeData(t, w)["imported"])

	var count int64
	database.Model(&model.Code{}).Count(&count)
	assert.EqualValues(t, 2, count)

	// wrong media type
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/codes/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestCodeStats(t *testing.T) {
	r, database := setupTestAPI(t)
	token := adminLogin(t, r)

	for i := 0; i < 3; i++ {
		require.NoError(t, database.Create(&model.Code{
			Code: service.EncodeCode("RBX", "AA1"+fmt.Sprint(i+2), "BB22"), Nominal: 100, Status: model.CodeStatusActive,
		}).Error)
	}
	require.NoError(t, database.Create(&model.Code{Code: "RBX100-ZZ88-YY77", Nominal: 100, Status: model.CodeStatusUsed}).Error)

	w := doJSON(r, http.MethodGet, "/api/v1/admin/codes/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData(t, w)["stats"].([]interface{})
	assert.Len(t, stats, 2)
}
