package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/pmb-api/internal/models"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
)

type mockAuthRepo struct {
	users            map[string]*models.User
	findErr          error
	createErr        error
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.Email] = u
	}
	return repo
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	user.ID = "generated"
	m.users[user.Email] = user
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "pmb-api"})
}

func TestLoginSuccess(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u1", Email: "admin@pmb.ac.id", PasswordHash: hashPassword(t, "s3cret"), FullName: "Admin", Role: models.RoleAdmin, Active: true})
	svc := newTestAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: " Admin@PMB.ac.id ", Password: "s3cret", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "u1", resp.User.ID)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLoginFailures(t *testing.T) {
	active := &models.User{ID: "u1", Email: "admin@pmb.ac.id", PasswordHash: hashPassword(t, "s3cret"), Role: models.RoleAdmin, Active: true}
	inactive := &models.User{ID: "u2", Email: "old@pmb.ac.id", PasswordHash: hashPassword(t, "s3cret"), Role: models.RoleAdmin}

	cases := []struct {
		name string
		repo *mockAuthRepo
		req  models.LoginRequest
		want *appErrors.Error
	}{
		{"invalid payload", newMockAuthRepo(), models.LoginRequest{Email: "nope"}, appErrors.ErrValidation},
		{"unknown user", newMockAuthRepo(), models.LoginRequest{Email: "x@pmb.ac.id", Password: "p"}, appErrors.ErrInvalidCredentials},
		{"wrong password", newMockAuthRepo(active), models.LoginRequest{Email: "admin@pmb.ac.id", Password: "bad"}, appErrors.ErrInvalidCredentials},
		{"inactive", newMockAuthRepo(inactive), models.LoginRequest{Email: "old@pmb.ac.id", Password: "s3cret"}, appErrors.ErrInactiveAccount},
		{"store down", &mockAuthRepo{findErr: errors.New("dial tcp: refused")}, models.LoginRequest{Email: "admin@pmb.ac.id", Password: "p"}, appErrors.ErrInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestAuthService(tc.repo).Login(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestValidateTokenRejectsForeignOrExpiredTokens(t *testing.T) {
	svc := newTestAuthService(newMockAuthRepo())

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "pmb-api"}})
	signed, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		Issuer: "pmb-api", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	signed, err = expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	wrongIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"}})
	signed, err = wrongIssuer.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestEnsureAdmin(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newTestAuthService(repo)

	created, err := svc.EnsureAdmin(context.Background(), "Root@PMB.ac.id", "changeme", "")
	require.NoError(t, err)
	assert.True(t, created)
	user := repo.users["root@pmb.ac.id"]
	require.NotNil(t, user)
	assert.Equal(t, models.RoleSuperAdmin, user.Role)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("changeme")))

	created, err = svc.EnsureAdmin(context.Background(), "root@pmb.ac.id", "other", "")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = svc.EnsureAdmin(context.Background(), "", "", "")
	require.NoError(t, err)
	assert.False(t, created)
}
