package config

import (
    "crypto/rand"
    "encoding/hex"
    "os"
    "strconv"

    "github.com/joho/godotenv"
)

type Config struct {
    Port           int
    DBDriver       string
    DBDsn          string
    JWTSecret      string
    JWTTTL         int64
    CookieName     string
    AdminPassword  string
    AdminPassHash  string
    CodePrefix     string
    RateLimitRPS   int
    RateLimitBurst int

    // Platform lookup API bases, overridable for tests and mirrors.
    PlatformUsersAPI  string
    PlatformGamesAPI  string
    PlatformThumbsAPI string
}

func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func getinti(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        if i, err := strconv.Atoi(v); err == nil {
            return i
        }
    }
    return def
}

func getint64(key string, def int64) int64 {
    if v := os.Getenv(key); v != "" {
        if i, err := strconv.ParseInt(v, 10, 64); err == nil {
            return i
        }
    }
    return def
}

func generateJWTSecret() string {
    bytes := make([]byte, 32)
    if _, err := rand.Read(bytes); err != nil {
        panic("failed to generate JWT secret: " + err.Error())
    }
    return hex.EncodeToString(bytes)
}

func Load() *Config {
    // Optional .env for local development; env vars win.
    _ = godotenv.Load()

    jwtSecret := getenv("JWT_SECRET", "")
    if jwtSecret == "" || jwtSecret == "please_change_me" {
        jwtSecret = generateJWTSecret()
    }

    return &Config{
        Port:           getinti("PORT", 8000),
        DBDriver:       getenv("DB_DRIVER", "sqlite"),
        DBDsn:          getenv("DB_DSN", "./data/app.db"),
        JWTSecret:      jwtSecret,
        JWTTTL:         getint64("JWT_TTL", 7*24*3600),
        CookieName:     getenv("COOKIE_NAME", "admin_token"),
        AdminPassword:  getenv("ADMIN_PASSWORD", ""),
        AdminPassHash:  getenv("ADMIN_PASSWORD_HASH", ""),
        CodePrefix:     getenv("CODE_PREFIX", "RBX"),
        RateLimitRPS:   getinti("RATE_LIMIT_RPS", 20),
        RateLimitBurst: getinti("RATE_LIMIT_BURST", 40),

        PlatformUsersAPI:  getenv("PLATFORM_USERS_API", ""),
        PlatformGamesAPI:  getenv("PLATFORM_GAMES_API", ""),
        PlatformThumbsAPI: getenv("PLATFORM_THUMBS_API", ""),
    }
}
