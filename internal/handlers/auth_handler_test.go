package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"questionbank/internal/config"
	"questionbank/internal/models"
	"questionbank/internal/observability"
	"questionbank/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserService for testing
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) CreateUserWithPassword(ctx context.Context, username, email, password string, role models.Role) (result0 *models.User, err error) {
	args := m.Called(ctx, username, email, password, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) error {
	args := m.Called(ctx, userID, newPassword)
	return args.Error(0)
}

func (m *MockUserService) UpdateUserRole(ctx context.Context, userID int, role models.Role) error {
	args := m.Called(ctx, userID, role)
	return args.Error(0)
}

func (m *MockUserService) UpdateLastActive(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) GetAllUsers(ctx context.Context) (result0 []models.User, err error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) DeleteUser(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error {
	args := m.Called(ctx, adminUsername, adminPassword)
	return args.Error(0)
}

func (m *MockUserService) GetDB() *sql.DB {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*sql.DB)
}

// Ensure the mock stays in sync with the interface
var _ services.UserServiceInterface = (*MockUserService)(nil)

func setupAuthTestRouter(userService services.UserServiceInterface, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Setup session middleware
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))

	if cfg == nil {
		cfg = &config.Config{
			Server: config.ServerConfig{
				SessionSecret: "test-secret",
				AdminUsername: "admin",
				AdminPassword: "password",
			},
		}
	}

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	handler := NewAuthHandler(userService, cfg, logger)

	router.POST("/login", handler.Login)
	router.POST("/logout", handler.Logout)
	router.GET("/status", handler.Status)
	router.POST("/signup", handler.Signup)
	router.GET("/signup/status", handler.SignupStatus)

	return router
}

func TestAuthHandler_Login_Success(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	testUser := &models.User{
		ID:       1,
		Username: "admin",
		Role:     models.RoleAdmin,
	}

	mockUserService.On("AuthenticateUser", mock.Anything, "admin", "password").Return(testUser, nil)
	mockUserService.On("UpdateLastActive", mock.Anything, 1).Return(nil)

	reqBody, _ := json.Marshal(LoginRequest{Username: "admin", Password: "password"})
	req, _ := http.NewRequest("POST", "/login", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Login successful", response["message"])
	user, ok := response["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "admin", user["username"])
	assert.Equal(t, "admin", user["role"])

	// The session cookie is set on successful login
	assert.NotEmpty(t, w.Result().Cookies())

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Login_LastActiveFailureDoesNotBlock(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	testUser := &models.User{ID: 3, Username: "reviewer", Role: models.RoleReviewer}

	mockUserService.On("AuthenticateUser", mock.Anything, "reviewer", "password").Return(testUser, nil)
	mockUserService.On("UpdateLastActive", mock.Anything, 3).Return(assert.AnError)

	reqBody, _ := json.Marshal(LoginRequest{Username: "reviewer", Password: "password"})
	req, _ := http.NewRequest("POST", "/login", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	mockUserService.On("AuthenticateUser", mock.Anything, "admin", "wrong").Return(nil, nil)

	reqBody, _ := json.Marshal(LoginRequest{Username: "admin", Password: "wrong"})
	req, _ := http.NewRequest("POST", "/login", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_CREDENTIALS")

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Login_MissingFields(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing password", map[string]string{"username": "admin"}},
		{"missing username", map[string]string{"password": "password"}},
		{"empty body", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqBody, _ := json.Marshal(tt.body)
			req, _ := http.NewRequest("POST", "/login", bytes.NewBuffer(reqBody))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	mockUserService.AssertNotCalled(t, "AuthenticateUser")
}

func TestAuthHandler_Logout(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	req, _ := http.NewRequest("POST", "/logout", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Logout successful", response["message"])
}

func TestAuthHandler_Status_NotAuthenticated(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	req, _ := http.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, false, response["authenticated"])
	assert.Nil(t, response["user"])
}

func TestAuthHandler_Status_Authenticated(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	testUser := &models.User{ID: 1, Username: "admin", Role: models.RoleAdmin}

	mockUserService.On("AuthenticateUser", mock.Anything, "admin", "password").Return(testUser, nil)
	mockUserService.On("UpdateLastActive", mock.Anything, 1).Return(nil)
	mockUserService.On("GetUserByID", mock.Anything, 1).Return(testUser, nil)

	// Login first to obtain a session cookie
	loginBody, _ := json.Marshal(LoginRequest{Username: "admin", Password: "password"})
	loginReq, _ := http.NewRequest("POST", "/login", bytes.NewBuffer(loginBody))
	loginReq.Header.Set("Content-Type", "application/json")
	loginW := httptest.NewRecorder()
	router.ServeHTTP(loginW, loginReq)
	require.Equal(t, http.StatusOK, loginW.Code)
	cookies := loginW.Result().Cookies()
	require.NotEmpty(t, cookies)

	req, _ := http.NewRequest("GET", "/status", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["authenticated"])
	user, ok := response["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "admin", user["username"])

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Status_UserDeleted(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	testUser := &models.User{ID: 1, Username: "admin", Role: models.RoleAdmin}

	mockUserService.On("AuthenticateUser", mock.Anything, "admin", "password").Return(testUser, nil)
	mockUserService.On("UpdateLastActive", mock.Anything, 1).Return(nil)
	// The user was removed between login and the status check
	mockUserService.On("GetUserByID", mock.Anything, 1).Return(nil, nil)

	loginBody, _ := json.Marshal(LoginRequest{Username: "admin", Password: "password"})
	loginReq, _ := http.NewRequest("POST", "/login", bytes.NewBuffer(loginBody))
	loginReq.Header.Set("Content-Type", "application/json")
	loginW := httptest.NewRecorder()
	router.ServeHTTP(loginW, loginReq)
	require.Equal(t, http.StatusOK, loginW.Code)

	req, _ := http.NewRequest("GET", "/status", nil)
	for _, c := range loginW.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, false, response["authenticated"])
	assert.Nil(t, response["user"])

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Signup_Success(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	createdUser := &models.User{
		ID:       10,
		Username: "newuser",
		Email:    sql.NullString{String: "new@example.com", Valid: true},
		Role:     models.RoleCreator,
	}

	mockUserService.On("GetUserByUsername", mock.Anything, "newuser").Return(nil, nil)
	mockUserService.On("CreateUserWithPassword", mock.Anything, "newuser", "new@example.com", "password123", models.RoleCreator).Return(createdUser, nil)

	reqBody, _ := json.Marshal(SignupRequest{
		Username: "newuser",
		Email:    "New@Example.com",
		Password: "password123",
	})
	req, _ := http.NewRequest("POST", "/signup", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["success"])
	assert.Contains(t, response["message"], "Please log in")

	// Signup does not create a session
	for _, c := range w.Result().Cookies() {
		assert.Empty(t, c.Value)
	}

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Signup_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"username too short", "ab", "a@example.com", "password123"},
		{"username with spaces", "bad user", "a@example.com", "password123"},
		{"username with symbols", "user!", "a@example.com", "password123"},
		{"password too short", "gooduser", "a@example.com", "short"},
		{"invalid email", "gooduser", "not-an-email", "password123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserService := new(MockUserService)
			router := setupAuthTestRouter(mockUserService, nil)

			reqBody, _ := json.Marshal(SignupRequest{
				Username: tt.username,
				Email:    tt.email,
				Password: tt.password,
			})
			req, _ := http.NewRequest("POST", "/signup", bytes.NewBuffer(reqBody))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			mockUserService.AssertNotCalled(t, "CreateUserWithPassword")
		})
	}
}

func TestAuthHandler_Signup_DuplicateUsername(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	existing := &models.User{ID: 4, Username: "taken", Role: models.RoleCreator}
	mockUserService.On("GetUserByUsername", mock.Anything, "taken").Return(existing, nil)

	reqBody, _ := json.Marshal(SignupRequest{
		Username: "taken",
		Email:    "taken@example.com",
		Password: "password123",
	})
	req, _ := http.NewRequest("POST", "/signup", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "RECORD_ALREADY_EXISTS")
	mockUserService.AssertNotCalled(t, "CreateUserWithPassword")
}

func TestAuthHandler_Signup_Disabled(t *testing.T) {
	mockUserService := new(MockUserService)
	cfg := &config.Config{
		Server: config.ServerConfig{SessionSecret: "test-secret"},
		System: &config.SystemConfig{
			Auth: config.AuthConfig{SignupsDisabled: true},
		},
	}
	router := setupAuthTestRouter(mockUserService, cfg)

	reqBody, _ := json.Marshal(SignupRequest{
		Username: "newuser",
		Email:    "new@example.com",
		Password: "password123",
	})
	req, _ := http.NewRequest("POST", "/signup", bytes.NewBuffer(reqBody))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockUserService.AssertNotCalled(t, "CreateUserWithPassword")
}

func TestAuthHandler_SignupStatus(t *testing.T) {
	tests := []struct {
		name         string
		cfg          *config.Config
		wantDisabled bool
	}{
		{
			"enabled by default",
			&config.Config{Server: config.ServerConfig{SessionSecret: "test-secret"}},
			false,
		},
		{
			"disabled via config",
			&config.Config{
				Server: config.ServerConfig{SessionSecret: "test-secret"},
				System: &config.SystemConfig{Auth: config.AuthConfig{SignupsDisabled: true}},
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserService := new(MockUserService)
			router := setupAuthTestRouter(mockUserService, tt.cfg)

			req, _ := http.NewRequest("GET", "/signup/status", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantDisabled, response["signups_disabled"])
		})
	}
}
