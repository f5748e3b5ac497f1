package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("TOKEN_INVALID")
	ErrTokenExpired = errors.New("TOKEN_EXPIRED")
)

// Claims 重连凭证声明
// 绑定 client_id 和房间码，重连时证明该客户端曾经是这个房间的成员
type Claims struct {
	ClientID string `json:"client_id"`
	RoomCode string `json:"room_code"`
	jwt.RegisteredClaims
}

// Service 重连凭证服务
type Service struct {
	secretKey []byte
	expire    time.Duration
}

// NewService 创建凭证服务
func NewService(secretKey string, expire time.Duration) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		expire:    expire,
	}
}

// Issue 为房间成员签发重连凭证
func (s *Service) Issue(clientID, roomCode string) (string, error) {
	now := time.Now()
	claims := &Claims{
		ClientID: clientID,
		RoomCode: roomCode,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "musicroom",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// Verify 验证重连凭证并确认归属
// 凭证必须匹配提交重连的 client_id 和目标房间
func (s *Service) Verify(tokenString, clientID, roomCode string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.ClientID != clientID || claims.RoomCode != roomCode {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
