// Package middleware 提供基于API令牌的认证中间件。
package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	"gorm.io/gorm"

	"hiregenius-go/internal/logger"
	"hiregenius-go/internal/storage/models"
	"hiregenius-go/internal/types"
)

// PrincipalKey 请求上下文中认证主体的键名
const PrincipalKey = "principal"

// TokenStore 按API令牌查询用户
type TokenStore interface {
	GetUserByAPIToken(ctx context.Context, token string) (*models.User, error)
}

// Auth 返回API令牌认证中间件。
// 令牌从 Authorization: Bearer <token> 头部提取，经用户表校验后
// 将认证主体写入请求上下文，供后续处理器读取
func Auth(users TokenStore) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, token string) (bool, error) {
			user, err := users.GetUserByAPIToken(ctx, token)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return false, fmt.Errorf("无效的API令牌")
				}
				logger.Ctx(ctx).Error().Err(err).Msg("校验API令牌失败")
				return false, fmt.Errorf("令牌校验失败")
			}
			c.Set(PrincipalKey, types.Principal{
				UserID: user.UserID,
				Role:   user.Role,
				Email:  user.Email,
			})
			return true, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, map[string]string{"error": "未认证: " + err.Error()})
		}),
	)
}

// GetPrincipal 从请求上下文中读取认证主体
func GetPrincipal(c *app.RequestContext) (types.Principal, bool) {
	value, exists := c.Get(PrincipalKey)
	if !exists {
		return types.Principal{}, false
	}
	principal, ok := value.(types.Principal)
	return principal, ok
}
