package jwt

import (
	"errors"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid claims")
)

// Claims carried by portal access tokens.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwtlib.RegisteredClaims
}

// Service verifies access tokens issued by the portal's auth subsystem.
// GenerateToken exists for tooling and tests; production tokens are minted elsewhere.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	leeway time.Duration
	now    func() time.Time
}

type Option func(*Service)

// WithIssuer stamps minted tokens and requires a matching iss on verify.
func WithIssuer(iss string) Option {
	return func(s *Service) { s.issuer = iss }
}

// WithLeeway tolerates clock skew between the issuer and this process.
func WithLeeway(d time.Duration) Option {
	return func(s *Service) { s.leeway = d }
}

func New(secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GenerateToken(userID int64, role string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) ValidateToken(raw string) (*Claims, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(s.leeway),
		jwtlib.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(s.issuer))
	}

	var claims Claims
	if _, err := jwtlib.ParseWithClaims(raw, &claims, s.key, opts...); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return nil, ErrInvalidClaims
	}
	return &claims, nil
}

func (s *Service) key(*jwtlib.Token) (any, error) {
	return s.secret, nil
}
