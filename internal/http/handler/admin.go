package handler

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"codeshop/internal/auth"
	"codeshop/internal/config"
	basichttp "codeshop/internal/http"
	"codeshop/internal/model"
	"codeshop/internal/service"
)

type AdminHandler struct {
	db        *gorm.DB
	cfg       *config.Config
	generator *service.CodeGenerator
}

func NewAdminHandler(db *gorm.DB, cfg *config.Config, generator *service.CodeGenerator) *AdminHandler {
	return &AdminHandler{db: db, cfg: cfg, generator: generator}
}

// Session

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		basichttp.Fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "password required")
		return
	}

	ok := false
	switch {
	case h.cfg.AdminPassHash != "":
		ok = bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPassHash), []byte(req.Password)) == nil
	case h.cfg.AdminPassword != "":
		ok = subtle.ConstantTimeCompare([]byte(h.cfg.AdminPassword), []byte(req.Password)) == 1
	}
	if !ok {
		basichttp.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "wrong password")
		return
	}

	token, err := auth.SignAdmin(h.cfg.JWTSecret, h.cfg.JWTTTL)
	if err != nil {
		zap.L().Error("failed to sign admin token", zap.Error(err))
		basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "server error")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, token, int(h.cfg.JWTTTL), "/", "", false, true)
	basichttp.OK(c, gin.H{"token": token})
}

func (h *AdminHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, "", -1, "/", "", false, true)
	basichttp.OK(c, gin.H{"logged_out": true})
}

// Code management

func (h *AdminHandler) ListCodes(c *gin.Context) {
	var codes []model.Code
	if err := h.db.Where("deleted_at IS NULL").Order("created_at DESC").Limit(1000).Find(&codes).Error; err != nil {
		basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "query failed")
		return
	}
	basichttp.OK(c, gin.H{"codes": codes})
}

// CodeStats groups code counts by status and nominal.
func (h *AdminHandler) CodeStats(c *gin.Context) {
	type statRow struct {
		Status  string `json:"status"`
		Nominal int    `json:"nominal"`
		Count   int64  `json:"count"`
	}
	var stats []statRow
	err := h.db.Model(&model.Code{}).
		Select("status, nominal, COUNT(*) AS count").
		Where("deleted_at IS NULL").
		Group("status, nominal").
		Scan(&stats).Error
	if err != nil {
		basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "query failed")
		return
	}
	basichttp.OK(c, gin.H{"stats": stats})
}

type CreateCodeRequest struct {
	Code    string `json:"code" binding:"required"`
	Nominal int    `json:"nominal" binding:"required,min=1"`
	Status  string `json:"status"`
}

func (h *AdminHandler) CreateCode(c *gin.Context) {
	var req CreateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		basichttp.Fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid request")
		return
	}

	row, err := service.CreateCode(h.db, req.Code, req.Nominal, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidFormat):
			basichttp.Fail(c, http.StatusBadRequest, "INVALID_FORMAT", "invalid code format, example: RBX100-XXXX-XXXX")
		case errors.Is(err, service.ErrInvalidChecksum):
			basichttp.Fail(c, http.StatusBadRequest, "INVALID_CHECKSUM", "invalid code checksum")
		case errors.Is(err, service.ErrDuplicateExists):
			basichttp.Fail(c, http.StatusConflict, "DUPLICATE", "code already exists")
		default:
			zap.L().Error("manual code create failed", zap.Error(err))
			basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "server error")
		}
		return
	}

	service.LogOperation(h.db, "create_code", "code", row.ID, map[string]any{"nominal": row.Nominal})
	basichttp.JSON(c, http.StatusCreated, gin.H{"code": row})
}

func (h *AdminHandler) DeleteCode(c *gin.Context) {
	id := c.Param("id")
	if err := service.DeleteCode(h.db, id); err != nil {
		switch {
		case errors.Is(err, service.ErrCodeNotFound):
			basichttp.Fail(c, http.StatusNotFound, "NOT_FOUND", "code not found")
		case errors.Is(err, service.ErrCodeAlreadyUsed):
			basichttp.Fail(c, http.StatusBadRequest, "ALREADY_USED", "used codes cannot be deleted")
		default:
			basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "delete failed")
		}
		return
	}
	service.LogOperation(h.db, "delete_code", "code", id, nil)
	basichttp.OK(c, gin.H{"id": id, "deleted": true})
}

type GenerateCodesRequest struct {
	Count   int    `json:"count" binding:"required,min=1,max=1000"`
	Nominal int    `json:"nominal" binding:"required,min=1"`
	Prefix  string `json:"prefix"`
}

func (h *AdminHandler) GenerateCodes(c *gin.Context) {
	var req GenerateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		basichttp.Fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid request")
		return
	}
	if req.Prefix == "" {
		req.Prefix = h.cfg.CodePrefix
	}

	codes, batchID, err := h.generator.Generate(req.Count, req.Nominal, req.Prefix)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGenerationExhausted):
			basichttp.Fail(c, http.StatusInternalServerError, "GENERATION_EXHAUSTED", "could not generate enough unique codes")
		case errors.Is(err, service.ErrInvalidInput):
			basichttp.Fail(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		default:
			zap.L().Error("code generation failed", zap.Error(err))
			basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "server error")
		}
		return
	}

	service.LogOperation(h.db, "generate_codes", "code_batch", batchID, map[string]any{
		"count":   len(codes),
		"nominal": req.Nominal,
		"prefix":  req.Prefix,
	})

	basichttp.JSON(c, http.StatusCreated, gin.H{
		"batch_id": batchID,
		"count":    len(codes),
		"codes":    codes,
	})
}

// ImportCodes accepts a CSV body of {code, nominal, status?} rows.
func (h *AdminHandler) ImportCodes(c *gin.Context) {
	contentType := c.ContentType()
	if contentType != "text/csv" && contentType != "application/csv" {
		basichttp.Fail(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA", "send text/csv")
		return
	}

	applied, err := service.ImportCodesCSV(h.db, c.Request.Body)
	if err != nil {
		basichttp.Fail(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	service.LogOperation(h.db, "import_codes", "code", "", map[string]any{"imported": applied})
	basichttp.OK(c, gin.H{"imported": applied})
}

// Orders

func (h *AdminHandler) ListOrders(c *gin.Context) {
	q := h.db.Model(&model.Order{}).Where("deleted_at IS NULL")

	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if search := c.Query("q"); search != "" {
		like := "%" + search + "%"
		q = q.Where("short_code LIKE ? OR nickname LIKE ? OR code LIKE ?", like, like, like)
	}

	var orders []model.Order
	if err := q.Order("created_at DESC").Limit(200).Find(&orders).Error; err != nil {
		basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "query failed")
		return
	}
	basichttp.OK(c, gin.H{"orders": orders})
}

type UpdateOrderRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *AdminHandler) UpdateOrder(c *gin.Context) {
	id := c.Param("id")
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		basichttp.Fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "status required")
		return
	}
	if !model.ValidOrderStatus(req.Status) {
		basichttp.Fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "unknown status")
		return
	}

	order, err := service.UpdateOrderStatus(h.db, id, req.Status)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			basichttp.Fail(c, http.StatusNotFound, "NOT_FOUND", "order not found")
			return
		}
		basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "update failed")
		return
	}

	service.LogOperation(h.db, "update_order_status", "order", id, map[string]any{"status": req.Status})
	basichttp.OK(c, gin.H{"order": order})
}

// ExportOrders streams all order fields as CSV, newest first.
func (h *AdminHandler) ExportOrders(c *gin.Context) {
	var buf bytes.Buffer
	if err := service.ExportOrdersCSV(h.db, &buf); err != nil {
		basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "export failed")
		return
	}
	c.Header("Content-Disposition", "attachment; filename=orders.csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
