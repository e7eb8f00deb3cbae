package auth

import (
	"errors"
	"time"

	"github.com/annel0/landblock/internal/config"
)

// ErrInvalidCredentials — неизвестный логин или неверный пароль
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Authenticator проверяет учётные данные администраторов и выпускает токены
type Authenticator struct {
	issuer *Issuer
	admins map[string]string // username -> bcrypt-хэш
}

// NewAuthenticator собирает аутентификатор из конфигурации
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	issuer, err := NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	a := &Authenticator{issuer: issuer, admins: make(map[string]string, len(cfg.Admins))}
	for _, adm := range cfg.Admins {
		a.admins[adm.Username] = adm.PasswordHash
	}
	return a, nil
}

// Admins возвращает число настроенных администраторов
func (a *Authenticator) Admins() int { return len(a.admins) }

// Login проверяет пароль и выпускает токен
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	hash, ok := a.admins[username]
	if !ok || !CheckPassword(hash, password) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.issuer.Issue(username)
}

// Verify проверяет токен из заголовка Authorization
func (a *Authenticator) Verify(token string) (*Claims, error) {
	return a.issuer.Validate(token)
}
