package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HemantRana01/TODO/internal/model"
	"github.com/HemantRana01/TODO/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const testSecret = "test_secret"

func newTestHandler(t *testing.T) (*Handler, *gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:authtest%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Todo{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(db, testSecret, time.Hour, logger)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	return h, db, r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister_Success(t *testing.T) {
	_, db, r := newTestHandler(t)

	w := doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"username":  "alice",
		"email":     "Alice@Example.com",
		"password":  "secret1",
		"firstName": "Alice",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID       uint   `json:"id"`
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected token in response")
	}
	if resp.User.Email != "alice@example.com" {
		t.Fatalf("expected lowercased email, got %q", resp.User.Email)
	}
	if resp.Message != "Registration completed successfully" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	var stored model.User
	if err := db.Where("username = ?", "alice").First(&stored).Error; err != nil {
		t.Fatalf("load stored user: %v", err)
	}
	if !stored.IsActive {
		t.Fatalf("expected new user to be active")
	}
	if stored.PasswordHash == "secret1" {
		t.Fatalf("password stored in cleartext")
	}
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	_, _, r := newTestHandler(t)

	first := gin.H{"username": "alice", "email": "alice@example.com", "password": "secret1"}
	if w := doJSON(t, r, http.MethodPost, "/auth/register", first); w.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", w.Code)
	}

	// 用户名重复
	w := doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"username": "alice", "email": "other@example.com", "password": "secret1",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", w.Code)
	}

	// 邮箱重复
	w = doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"username": "bob", "email": "alice@example.com", "password": "secret1",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", w.Code)
	}
}

func TestRegister_Validation(t *testing.T) {
	_, _, r := newTestHandler(t)

	cases := []gin.H{
		{"username": "ab", "email": "a@example.com", "password": "secret1"}, // 用户名过短
		{"username": "alice", "email": "not-an-email", "password": "secret1"},
		{"username": "alice", "email": "a@example.com", "password": "short"},
	}
	for i, body := range cases {
		if w := doJSON(t, r, http.MethodPost, "/auth/register", body); w.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, w.Code)
		}
	}
}

func TestLogin_TokenSubjectMatchesUser(t *testing.T) {
	_, db, r := newTestHandler(t)

	w := doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"username": "alice", "email": "alice@example.com", "password": "secret1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/auth/login", gin.H{
		"username": "alice", "password": "secret1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Message != "Login successful" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(resp.Token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("parse token: %v", err)
	}

	var user model.User
	if err := db.Where("username = ?", "alice").First(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if claims.Subject != fmt.Sprintf("%d", user.ID) {
		t.Fatalf("expected subject %d, got %q", user.ID, claims.Subject)
	}
	if claims.Username != "alice" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLogin_UniformUnauthorized(t *testing.T) {
	_, db, r := newTestHandler(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	active := model.User{Username: "alice", Email: "alice@example.com", PasswordHash: string(hash), IsActive: true}
	inactive := model.User{Username: "bob", Email: "bob@example.com", PasswordHash: string(hash), IsActive: false}
	if err := db.Create(&active).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(&inactive).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	// IsActive 带 gorm:"default:true"，Create 会忽略零值 false，需显式 Update 持久化停用状态
	if err := db.Model(&inactive).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	metrics.InitMetrics()
	failuresBefore := testutil.ToFloat64(metrics.AuthFailuresTotal)

	// 未知用户、密码错误、停用账号必须返回完全相同的错误响应
	bodies := []gin.H{
		{"username": "nobody", "password": "secret1"},
		{"username": "alice", "password": "wrong-password"},
		{"username": "bob", "password": "secret1"},
	}
	var responses []string
	for i, body := range bodies {
		w := doJSON(t, r, http.MethodPost, "/auth/login", body)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("case %d: expected 401, got %d", i, w.Code)
		}
		responses = append(responses, w.Body.String())
	}
	if responses[0] != responses[1] || responses[1] != responses[2] {
		t.Fatalf("expected identical error bodies, got %v", responses)
	}

	if got := testutil.ToFloat64(metrics.AuthFailuresTotal) - failuresBefore; got != 3 {
		t.Fatalf("expected 3 auth failures counted, got %v", got)
	}
}
