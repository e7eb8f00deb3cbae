package api

import (
	"net/http"
	"strings"

	"github.com/annel0/landblock/internal/auth"
	"github.com/gin-gonic/gin"
)

// adminKey — ключ gin-контекста с логином администратора
const adminKey = "admin"

// jwtMiddleware проверяет JWT токен в заголовке Authorization.
// Без настроенного аутентификатора изменяющие маршруты закрыты.
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.auth == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, GenericResponse{
				Success: false,
				Message: "Аутентификация не настроена",
			})
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Отсутствует токен авторизации",
			})
			return
		}

		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Неверный формат токена",
			})
			return
		}

		claims, err := rs.auth.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Недействительный токен",
			})
			return
		}

		c.Set(adminKey, claims.Username)
		c.Next()
	}
}

// LoginRequest — тело POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin выдаёт токен администратору
func (rs *RestServer) handleLogin(c *gin.Context) {
	if rs.auth == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Аутентификация не настроена",
		})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	token, expires, err := rs.auth.Login(req.Username, req.Password)
	if err == auth.ErrInvalidCredentials {
		rs.log.Warn("неудачный вход администратора %q с %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, GenericResponse{
			Success: false,
			Message: "Неверный логин или пароль",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Не удалось выпустить токен",
		})
		return
	}

	rs.log.Info("администратор %s вошёл", req.Username)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Вход выполнен",
		Data: gin.H{
			"token":      token,
			"expires_at": expires.UTC(),
		},
	})
}
