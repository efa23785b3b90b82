package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultGoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

	// Googleの公開鍵キャッシュの有効期間。
	// 鍵のローテーションはkid不一致時の再取得でも追従する。
	defaultCertsCacheTTL = 1 * time.Hour
)

// googleIssuers はGoogleのIDトークンで許容されるissクレーム値。
var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// GoogleProfile は検証済みIDトークンから抽出したプロフィール。
// 検証を通過したクレームのみから構築される。
type GoogleProfile struct {
	Sub   string // Googleのsubject ID。アカウント連携のキー。
	Email string
	Name  string
}

// GoogleTokenVerifier はGoogle IDトークンの検証インターフェース。
// テストで偽の検証器に差し替えるための抽象化。
type GoogleTokenVerifier interface {
	// Verify はIDトークンの署名・発行者・audience・有効期限を検証し、
	// プロフィールを抽出する。いかなる検証失敗もエラーを返す。
	Verify(ctx context.Context, idToken string) (*GoogleProfile, error)
}

// GoogleIDTokenVerifierConfig はGoogleIDTokenVerifierの設定。
type GoogleIDTokenVerifierConfig struct {
	ClientID string // audienceクレームと照合するOAuthクライアントID

	// テスト用にオーバーライド可能な設定
	CertsURL      string
	CertsCacheTTL time.Duration
	HTTPClient    *http.Client
}

// GoogleIDTokenVerifier はGoogleの公開鍵（JWKS）でIDトークンの
// RS256署名を検証する実装。公開鍵はキャッシュされ、
// 未知のkidに遭遇した場合のみ再取得する。
type GoogleIDTokenVerifier struct {
	config GoogleIDTokenVerifierConfig

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewGoogleIDTokenVerifier はGoogleIDTokenVerifierを生成する。
func NewGoogleIDTokenVerifier(config GoogleIDTokenVerifierConfig) *GoogleIDTokenVerifier {
	if config.CertsURL == "" {
		config.CertsURL = defaultGoogleCertsURL
	}
	if config.CertsCacheTTL == 0 {
		config.CertsCacheTTL = defaultCertsCacheTTL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleIDTokenVerifier{
		config: config,
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// googleIDClaims はGoogle IDトークンのクレーム。
type googleIDClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verify はIDトークンを検証しプロフィールを抽出する。
func (v *GoogleIDTokenVerifier) Verify(ctx context.Context, idToken string) (*GoogleProfile, error) {
	claims := &googleIDClaims{}

	token, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("missing kid header")
		}
		return v.publicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.config.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify google ID token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("google ID token is not valid")
	}

	// issクレームは2つの形式が許容されるためライブラリ任せにせず自前で照合する
	issuer, err := claims.GetIssuer()
	if err != nil {
		return nil, fmt.Errorf("failed to read issuer claim: %w", err)
	}
	if !isGoogleIssuer(issuer) {
		return nil, fmt.Errorf("unexpected issuer: %s", issuer)
	}

	return &GoogleProfile{
		Sub:   claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}

// isGoogleIssuer はissクレームがGoogleの発行者かを判定する。
func isGoogleIssuer(issuer string) bool {
	for _, iss := range googleIssuers {
		if issuer == iss {
			return true
		}
	}
	return false
}

// publicKey は指定kidの公開鍵を返す。
// キャッシュに無い、またはキャッシュが古い場合はJWKSを再取得する。
func (v *GoogleIDTokenVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := time.Since(v.fetchedAt) < v.config.CertsCacheTTL
	v.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok = v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no google public key for kid %q", kid)
	}
	return key, nil
}

// jwksResponse はGoogleの公開鍵エンドポイントのレスポンス。
type jwksResponse struct {
	Keys []jwksKey `json:"keys"`
}

// jwksKey はJWKS内の1つのRSA公開鍵。
type jwksKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// refreshKeys はGoogleの公開鍵エンドポイントからJWKSを取得しキャッシュを置き換える。
func (v *GoogleIDTokenVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.CertsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read certs response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("certs fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return fmt.Errorf("failed to parse certs response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		key, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			return fmt.Errorf("failed to parse google public key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = key
	}
	if len(keys) == 0 {
		return fmt.Errorf("certs response contains no usable keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	return nil
}

// parseRSAPublicKey はJWKのbase64url表現のn,eからRSA公開鍵を構築する。
func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// compile-time interface check
var _ GoogleTokenVerifier = (*GoogleIDTokenVerifier)(nil)
