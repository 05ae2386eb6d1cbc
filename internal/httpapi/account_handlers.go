package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/service/account"
)

type registerPayload struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

type loginPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type favoritePayload struct {
	ProductID string `json:"productId" binding:"required"`
}

// register проверяет формат полей в сервисе, чтобы сообщения совпадали с формой регистрации.
func (h *Handler) register(c *gin.Context) {
	var payload registerPayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), account.RegisterRequest{
		Name:        payload.Name,
		Email:       payload.Email,
		PhoneNumber: payload.PhoneNumber,
		Password:    payload.Password,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Signup successful", "user": toUserResponse(user)})
}

func (h *Handler) login(c *gin.Context) {
	var payload loginPayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	session, err := h.accounts.Login(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      toUserResponse(session.User),
	})
}

func (h *Handler) profile(c *gin.Context) {
	user, err := h.accounts.Profile(c.Request.Context(), mustActor(c).UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *Handler) listFavorites(c *gin.Context) {
	products, err := h.accounts.Favorites(c.Request.Context(), mustActor(c).UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProductList(products))
}

func (h *Handler) toggleFavorite(c *gin.Context) {
	var payload favoritePayload
	if err := bindJSON(c, &payload); err != nil {
		writeError(c, h.logger, err)
		return
	}
	added, err := h.accounts.ToggleFavorite(c.Request.Context(), mustActor(c).UserID, payload.ProductID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productId": payload.ProductID, "favorite": added})
}

func (h *Handler) removeFavorite(c *gin.Context) {
	if err := h.accounts.RemoveFavorite(c.Request.Context(), mustActor(c).UserID, c.Param("productId")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
