package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/aims-enrollment-api/pkg/errors"
)

// NewUserDepartment is assigned to accounts provisioned by a first login.
const NewUserDepartment = "General"

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type otpStore interface {
	Save(ctx context.Context, email string, record models.OTPRecord, ttl time.Duration) error
	Get(ctx context.Context, email string) (*models.OTPRecord, error)
	RecordAttempt(ctx context.Context, email string, ttl time.Duration) (int64, error)
	Consume(ctx context.Context, email string) (bool, error)
	Delete(ctx context.Context, email string) error
	Hit(ctx context.Context, email string, window time.Duration) (int64, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	OTPTTL            time.Duration
	OTPLength         int
	OTPRateLimit      int
	OTPRateWindow     time.Duration
	OTPMaxAttempts    int
}

// AuthService provides password-less login via emailed one-time codes.
type AuthService struct {
	users     authUserRepository
	otps      otpStore
	audit     auditLogger
	notifier  NotificationPublisher
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, otps otpStore, audit auditLogger, notifier NotificationPublisher, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.OTPLength <= 0 {
		config.OTPLength = 6
	}
	if config.OTPTTL <= 0 {
		config.OTPTTL = 5 * time.Minute
	}
	if config.OTPMaxAttempts <= 0 {
		config.OTPMaxAttempts = 5
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	return &AuthService{
		users:     users,
		otps:      otps,
		audit:     audit,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SendOTP issues a fresh code for the email, replacing any previous one, and queues it for delivery.
func (s *AuthService) SendOTP(ctx context.Context, req models.SendOTPRequest) (*models.SendOTPResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email")
	}

	resp := &models.SendOTPResponse{}
	user, err := s.users.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if !user.Active {
			return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
		}
		resp.UserExists = true
		resp.Role = user.Role
	case errors.Is(err, sql.ErrNoRows):
		resp.Role = models.RoleStudent
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if s.config.OTPRateLimit > 0 {
		hits, err := s.otps.Hit(ctx, req.Email, s.config.OTPRateWindow)
		if err != nil {
			s.logger.Warn("otp rate limit check failed", zap.Error(err))
		} else if hits > int64(s.config.OTPRateLimit) {
			return nil, appErrors.Clone(appErrors.ErrTooManyRequests, "too many codes requested, try again later")
		}
	}

	code, err := generateOTP(s.config.OTPLength)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate otp")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash otp")
	}

	expiresAt := s.now().Add(s.config.OTPTTL)
	if err := s.otps.Save(ctx, req.Email, models.OTPRecord{Hash: string(hash), ExpiresAt: expiresAt}, s.config.OTPTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store otp")
	}

	if s.notifier != nil {
		s.notifier.Publish(ctx, models.NotificationIntent{
			TargetEmail: req.Email,
			Kind:        models.NotificationOTPCode,
			Payload: map[string]string{
				"code":        code,
				"ttl_minutes": strconv.Itoa(int(s.config.OTPTTL.Minutes())),
			},
			CreatedAt: s.now(),
		})
	}

	resp.ExpiresAt = expiresAt
	return resp, nil
}

// VerifyOTP consumes a code and returns an access token, provisioning a student account on first login.
func (s *AuthService) VerifyOTP(ctx context.Context, req models.VerifyOTPRequest) (*models.LoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.OTP = strings.TrimSpace(req.OTP)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp payload")
	}

	record, err := s.otps.Get(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "otp expired or not requested")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load otp")
	}
	if s.now().After(record.ExpiresAt) {
		s.discardOTP(ctx, req.Email)
		return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "otp expired or not requested")
	}
	attempts, err := s.otps.RecordAttempt(ctx, req.Email, s.config.OTPTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count otp attempt")
	}
	if attempts > int64(s.config.OTPMaxAttempts) {
		s.discardOTP(ctx, req.Email)
		return nil, appErrors.Clone(appErrors.ErrTooManyRequests, "too many failed attempts, request a new code")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.Hash), []byte(req.OTP)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "invalid otp")
	}
	consumed, err := s.otps.Consume(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume otp")
	}
	if !consumed {
		return nil, appErrors.Clone(appErrors.ErrInvalidOTP, "otp already used")
	}

	user, created, err := s.resolveUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	token, issuedAt, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, issuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &user.ID,
			Action:     models.AuditActionLogin,
			Resource:   "auth",
			ResourceID: &user.ID,
			NewValues:  []byte(fmt.Sprintf(`{"status":"success","new_user":%t}`, created)),
			IPAddress:  req.IP,
			UserAgent:  req.UserAgent,
		}); err != nil {
			s.logger.Warn("failed to record login audit log", zap.Error(err))
		}
	}

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		NewUser:     created,
		User:        userInfo(user),
	}, nil
}

// Me returns profile info for the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := userInfo(user)
	return &info, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) resolveUser(ctx context.Context, req models.VerifyOTPRequest) (*models.User, bool, error) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.SplitN(req.Email, "@", 2)[0]
	}
	user = &models.User{
		Email:      req.Email,
		Name:       name,
		Role:       models.RoleStudent,
		Department: NewUserDepartment,
		Active:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, findErr := s.users.FindByEmail(ctx, req.Email)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision user")
	}
	return user, true, nil
}

func (s *AuthService) discardOTP(ctx context.Context, email string) {
	if err := s.otps.Delete(ctx, email); err != nil {
		s.logger.Warn("failed to delete otp", zap.Error(err))
	}
}

func (s *AuthService) generateAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}

func generateOTP(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func userInfo(user *models.User) models.UserInfo {
	return models.UserInfo{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       user.Role,
		Department: user.Department,
	}
}
