package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/uma-arai/sbcntr-happypaws/internal/auth"
	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

const contextUserKey = "user"

// requestLog はリクエストごとにアクセスログとメトリクスを記録します
func (h *Handler) requestLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// ステータスを確定させるためここでエラーレスポンスを書き込む
				c.Error(err)
			}
			took := time.Since(start)

			status := c.Response().Status
			if h.metrics != nil {
				h.metrics.TrackRequest(c.Request().Method, c.Path(), status, took)
			}
			h.log.Info("http",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.Int64("latency_ms", took.Milliseconds()),
				slog.String("req_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				slog.String("ip", c.RealIP()),
			)
			return nil
		}
	}
}

// authenticate はBearerトークンを検証し、クレームをコンテキストに格納します
func (h *Handler) authenticate() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: h.tokens.Secret(),
		ContextKey: contextUserKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(auth.Claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized").SetInternal(err)
		},
	})
}

// requireRole は指定した種別の利用者のみ通します
func requireRole(role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, err := currentUser(c)
			if err != nil {
				return err
			}
			if u.Role != role {
				return echo.NewHTTPError(http.StatusForbidden, "only "+string(role)+"s can do this")
			}
			return next(c)
		}
	}
}

// user は認証済みの利用者です
type user struct {
	ID   int64
	Role model.Role
}

func currentUser(c echo.Context) (user, error) {
	token, ok := c.Get(contextUserKey).(*jwt.Token)
	if !ok || token == nil {
		return user{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	claims, ok := token.Claims.(*auth.Claims)
	if !ok || !claims.Role.Valid() {
		return user{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	id, err := claims.UserID()
	if err != nil {
		return user{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized").SetInternal(err)
	}
	return user{ID: id, Role: claims.Role}, nil
}

func requestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	})
}
