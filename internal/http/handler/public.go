package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"codeshop/internal/config"
	basichttp "codeshop/internal/http"
	"codeshop/internal/service"
)

// PublicHandler serves the customer-facing redemption flow: validate a
// code, activate it against fulfillment details, poll order status, and
// proxy the platform lookups the submission form needs.
type PublicHandler struct {
	db         *gorm.DB
	cfg        *config.Config
	redemption *service.RedemptionService
	platform   *service.PlatformClient
}

func NewPublicHandler(db *gorm.DB, cfg *config.Config, redemption *service.RedemptionService, platform *service.PlatformClient) *PublicHandler {
	return &PublicHandler{db: db, cfg: cfg, redemption: redemption, platform: platform}
}

// failRedemption maps service error kinds onto envelope codes. Unknown
// errors are logged and surfaced opaquely.
func failRedemption(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidFormat):
		basichttp.Fail(c, http.StatusBadRequest, "INVALID_FORMAT", "invalid code format, example: RBX-ABCD-EFGH-5")
	case errors.Is(err, service.ErrInvalidChecksum):
		basichttp.Fail(c, http.StatusBadRequest, "INVALID_CHECKSUM", "invalid code checksum")
	case errors.Is(err, service.ErrCodeNotFound):
		basichttp.Fail(c, http.StatusNotFound, "NOT_FOUND", "code not found")
	case errors.Is(err, service.ErrCodeAlreadyUsed):
		basichttp.Fail(c, http.StatusConflict, "ALREADY_USED", "code already used")
	case errors.Is(err, service.ErrConflict):
		basichttp.Fail(c, http.StatusConflict, "CONFLICT", "please retry the request")
	case errors.Is(err, service.ErrOrderNotFound):
		basichttp.Fail(c, http.StatusNotFound, "NOT_FOUND", "order not found")
	case errors.Is(err, service.ErrUpstreamUnavailable):
		basichttp.Fail(c, http.StatusBadGateway, "UPSTREAM", "platform api unavailable")
	default:
		zap.L().Error("redemption request failed", zap.Error(err))
		basichttp.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "server error")
	}
}

type ValidateCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ValidateCode is the read-only first phase: nothing is consumed here, so
// the user can review item details before committing.
func (h *PublicHandler) ValidateCode(c *gin.Context) {
	var req ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		basichttp.Fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid request")
		return
	}

	result, err := h.redemption.Validate(req.Code)
	if err != nil {
		failRedemption(c, err)
		return
	}
	basichttp.OK(c, gin.H{
		"code":    result.Code,
		"nominal": result.Nominal,
		"message": "code verified and ready for activation",
	})
}

type ActivateRequest struct {
	Code        string `json:"code" binding:"required"`
	Nickname    string `json:"nickname" binding:"required"`
	UserID      int64  `json:"user_id" binding:"required"`
	GamePassID  int64  `json:"game_pass_id" binding:"required"`
	GamePassURL string `json:"game_pass_url"`
}

// Activate consumes a validated code and creates its order.
func (h *PublicHandler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		basichttp.Fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid request")
		return
	}

	itemRef := strconv.FormatInt(req.GamePassID, 10)
	itemURL := req.GamePassURL
	if itemURL == "" {
		itemURL = service.BuildGamePassURL(itemRef)
	}

	order, err := h.redemption.Activate(service.ActivationInput{
		Code:     req.Code,
		Nickname: req.Nickname,
		UserRef:  strconv.FormatInt(req.UserID, 10),
		ItemRef:  itemRef,
		ItemURL:  itemURL,
	})
	if err != nil {
		failRedemption(c, err)
		return
	}

	basichttp.OK(c, gin.H{
		"order": gin.H{
			"id":         order.ID,
			"short_code": order.ShortCode,
		},
		"message": "order accepted, tracking code " + order.ShortCode,
	})
}

type ActivateByURLRequest struct {
	Code        string `json:"code" binding:"required"`
	Nickname    string `json:"nickname" binding:"required"`
	GamePassURL string `json:"gamepass_url" binding:"required"`
}

// ActivateByURL is the variant where the user pastes a game-pass store
// URL instead of picking a pass from the lookup flow.
func (h *PublicHandler) ActivateByURL(c *gin.Context) {
	var req ActivateByURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		basichttp.Fail(c, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid request")
		return
	}

	itemRef, ok := service.ExtractGamePassID(req.GamePassURL)
	if !ok {
		basichttp.Fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid game pass url")
		return
	}

	order, err := h.redemption.Activate(service.ActivationInput{
		Code:     req.Code,
		Nickname: req.Nickname,
		UserRef:  "gamepass_user",
		ItemRef:  itemRef,
		ItemURL:  req.GamePassURL,
	})
	if err != nil {
		failRedemption(c, err)
		return
	}

	basichttp.OK(c, gin.H{
		"order": gin.H{
			"id":         order.ID,
			"short_code": order.ShortCode,
			"status":     order.Status,
			"created_at": order.CreatedAt,
		},
		"message": "code activated, tracking code " + order.ShortCode,
	})
}

// OrderStatus is the customer polling endpoint, looked up by short code.
func (h *PublicHandler) OrderStatus(c *gin.Context) {
	short := c.Query("code")
	if short == "" {
		basichttp.Fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "code required")
		return
	}
	order, err := h.redemption.OrderByShortCode(short)
	if err != nil {
		failRedemption(c, err)
		return
	}
	basichttp.OK(c, gin.H{
		"order": gin.H{
			"short_code": order.ShortCode,
			"status":     order.Status,
			"created_at": order.CreatedAt,
		},
	})
}

// Platform lookups

func (h *PublicHandler) PlatformUser(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		basichttp.Fail(c, http.StatusBadRequest, "VALIDATION_FAILED", "username required")
		return
	}
	user, err := h.platform.FindUserByUsername(username)
	if err != nil {
		failRedemption(c, err)
		return
	}
	if user == nil {
		basichttp.Fail(c, http.StatusNotFound, "NOT_FOUND", "user does not exist")
		return
	}
	if avatar := h.platform.UserAvatar(user.ID); avatar != "" {
		user.Avatar = &avatar
	}
	basichttp.OK(c, gin.H{"user": user})
}

func (h *PublicHandler) PlatformUserGames(c *gin.Context) {
	userID := c.Param("userId")
	games, err := h.platform.UserGames(userID)
	if err != nil {
		failRedemption(c, err)
		return
	}
	basichttp.OK(c, gin.H{"games": games})
}

func (h *PublicHandler) PlatformGamePasses(c *gin.Context) {
	gameID := c.Param("gameId")
	passes, err := h.platform.GamePasses(gameID)
	if err != nil {
		failRedemption(c, err)
		return
	}
	basichttp.OK(c, gin.H{"passes": passes})
}
