package util

import (
	"errors"
	"time"
	"ztuff-backend/config"
	"ztuff-backend/internal/model"

	"github.com/dgrijalva/jwt-go"
)

// GenerateToken 签发令牌，生产环境由身份服务签发，这里用于测试和运维脚本
func GenerateToken(actor model.Actor, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": actor.UserID,
		"role":    string(actor.Role),
		"exp":     time.Now().Add(ttl).Unix(),
	})

	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ValidateToken 校验令牌并解析出操作者
func ValidateToken(tokenString string) (model.Actor, error) {
	if tokenString == "" {
		return model.Actor{}, errors.New("令牌为空")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return model.Actor{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.Actor{}, errors.New("无效的令牌")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return model.Actor{}, errors.New("无效的用户ID")
	}
	role, _ := claims["role"].(string)
	switch model.Role(role) {
	case model.RoleCustomer, model.RoleStaff:
	default:
		return model.Actor{}, errors.New("无效的角色")
	}

	return model.Actor{UserID: int64(userID), Role: model.Role(role)}, nil
}
