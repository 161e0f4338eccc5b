package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tokenIssuer = "brand-deck-platform"

// Token lifetimes. The Redis JTI entries expire on the same clock, so a
// token and its revocation record always age out together.
const (
	accessTokenTTL  = 1 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour
	viewerTokenTTL  = 1 * time.Hour
)

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_exp"`
	RefreshExp   time.Time `json:"refresh_exp"`
}

type Claims struct {
	UserID  string `json:"user_id"`
	BrandID string `json:"brand_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

var (
	loadSecretsOnce sync.Once
	accessSecret    []byte
	refreshSecret   []byte
	loadSecretsErr  error
)

func ensureSecrets() error {
	loadSecretsOnce.Do(func() {
		access := os.Getenv("ACCESS_SECRET")
		refresh := os.Getenv("REFRESH_SECRET")

		if len(access) < 32 || len(refresh) < 32 {
			loadSecretsErr = fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET must be configured and at least 32 characters")
			return
		}

		accessSecret = []byte(access)
		refreshSecret = []byte(refresh)
	})

	return loadSecretsErr
}

func IssueTokenPair(userID, brandID, role string, rdb *redis.Client) (*TokenPair, error) {
	if err := ensureSecrets(); err != nil {
		return nil, err
	}

	now := time.Now()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	accessExp := now.Add(accessTokenTTL)
	accessClaims := Claims{
		UserID:  userID,
		BrandID: brandID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        accessJTI,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(accessExp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	refreshExp := now.Add(refreshTokenTTL)
	refreshClaims := Claims{
		UserID:  userID,
		BrandID: brandID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshJTI,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)

	accessString, err := accessToken.SignedString(accessSecret)
	if err != nil {
		return nil, err
	}

	refreshString, err := refreshToken.SignedString(refreshSecret)
	if err != nil {
		return nil, err
	}

	// Store JTIs in Redis for revocation capability
	ctx := context.Background()
	pipe := rdb.Pipeline()
	pipe.Set(ctx, "access:"+accessJTI, userID, accessTokenTTL)
	pipe.Set(ctx, "refresh:"+refreshJTI, userID, refreshTokenTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessString,
		RefreshToken: refreshString,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func ValidateAccessToken(tokenString string, rdb *redis.Client) (*Claims, error) {
	if err := ensureSecrets(); err != nil {
		return nil, err
	}
	return validateToken(tokenString, accessSecret, "access:", rdb)
}

func ValidateRefreshToken(tokenString string, rdb *redis.Client) (*Claims, error) {
	if err := ensureSecrets(); err != nil {
		return nil, err
	}
	return validateToken(tokenString, refreshSecret, "refresh:", rdb)
}

// validateToken parses and verifies a token, then checks its JTI is
// still live in Redis. Pinning the algorithm and issuer keeps a token
// signed any other way from ever reaching the key.
func validateToken(tokenString string, secret []byte, prefix string, rdb *redis.Client) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	// Revoked tokens have their JTI deleted
	ctx := context.Background()
	exists, err := rdb.Exists(ctx, prefix+claims.ID).Result()
	if err != nil || exists != 1 {
		return nil, errors.New("token revoked or expired")
	}

	return claims, nil
}

func RevokeToken(jti string, isRefresh bool, rdb *redis.Client) error {
	ctx := context.Background()
	prefix := "access:"
	if isRefresh {
		prefix = "refresh:"
	}
	return rdb.Del(ctx, prefix+jti).Err()
}

// RevokeAllUserTokens deletes every live JTI belonging to the user,
// ending all of their sessions at once.
func RevokeAllUserTokens(userID string, rdb *redis.Client) error {
	ctx := context.Background()
	pipe := rdb.Pipeline()

	for _, pattern := range []string{"access:*", "refresh:*"} {
		iter := rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			if val, _ := rdb.Get(ctx, key).Result(); val == userID {
				pipe.Del(ctx, key)
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// IssueViewerToken mints a read-only token for embedded deck views. The
// embedding origin rides along as the audience so the embed middleware can
// match it against the request.
func IssueViewerToken(brandID, origin string, rdb *redis.Client) (string, error) {
	if err := ensureSecrets(); err != nil {
		return "", err
	}

	now := time.Now()
	viewerJTI := uuid.NewString()

	viewerExp := now.Add(viewerTokenTTL)
	viewerClaims := Claims{
		UserID:  "viewer",
		BrandID: brandID,
		Role:    "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        viewerJTI,
			Subject:   "viewer",
			Audience:  jwt.ClaimStrings{origin},
			ExpiresAt: jwt.NewNumericDate(viewerExp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	viewerToken := jwt.NewWithClaims(jwt.SigningMethodHS256, viewerClaims)
	viewerString, err := viewerToken.SignedString(accessSecret)
	if err != nil {
		return "", err
	}

	ctx := context.Background()
	if err := rdb.Set(ctx, "viewer:"+viewerJTI, brandID, viewerTokenTTL).Err(); err != nil {
		return "", err
	}

	return viewerString, nil
}

// ValidateViewerToken checks an embed viewer token. Viewer JTIs live under
// their own prefix, so a viewer token never passes the access-token check.
func ValidateViewerToken(tokenString string, rdb *redis.Client) (*Claims, error) {
	if err := ensureSecrets(); err != nil {
		return nil, err
	}
	claims, err := validateToken(tokenString, accessSecret, "viewer:", rdb)
	if err != nil {
		return nil, err
	}
	if claims.Role != "viewer" {
		return nil, errors.New("not a viewer token")
	}
	return claims, nil
}
