package auth

import (
    "time"

    "github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

type Claims struct {
    Role string `json:"role"`
    jwt.RegisteredClaims
}

// SignAdmin issues a short-lived admin token.
func SignAdmin(secret string, ttlSeconds int64) (string, error) {
    now := time.Now()
    claims := Claims{
        Role: RoleAdmin,
        RegisteredClaims: jwt.RegisteredClaims{
            ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
            IssuedAt:  jwt.NewNumericDate(now),
        },
    }
    token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return token.SignedString([]byte(secret))
}

// VerifyAdmin parses tokenStr and checks the admin role claim.
func VerifyAdmin(secret, tokenStr string) bool {
    token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
        return []byte(secret), nil
    })
    if err != nil || !token.Valid {
        return false
    }
    claims, ok := token.Claims.(*Claims)
    return ok && claims.Role == RoleAdmin
}
