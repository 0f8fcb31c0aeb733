package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/errandhub/internal/auth"
	"github.com/sudo-init-do/errandhub/internal/store/memory"
	"github.com/sudo-init-do/errandhub/internal/user"
)

const botToken = "123456:test-token"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func initData(t *testing.T, tgID int64, authDate time.Time, token string) string {
	t.Helper()
	u, err := json.Marshal(map[string]any{"id": tgID, "username": "rider", "first_name": "Ann", "last_name": "Lee"})
	if err != nil {
		t.Fatal(err)
	}
	vals := url.Values{}
	vals.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	vals.Set("query_id", "AAE")
	vals.Set("user", string(u))
	vals.Set("hash", auth.SignInitData(token, vals))
	return vals.Encode()
}

func TestJWTRoundTrip(t *testing.T) {
	t.Parallel()
	j := auth.NewJWT("secret", time.Hour)

	token, err := j.Issue(auth.Identity{UserID: "u1", ExternalID: 77, Role: user.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	id, err := j.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.UserID != "u1" || id.ExternalID != 77 || id.Role != user.RoleUser {
		t.Errorf("identity = %+v", id)
	}

	query := httptest.NewRequest(http.MethodGet, "/stream?access_token="+url.QueryEscape(token), nil)
	if _, err := j.Authenticate(query); err != nil {
		t.Errorf("query token: %v", err)
	}
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	t.Parallel()
	token, err := auth.NewJWT("other", time.Hour).Issue(auth.Identity{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	_, err = auth.NewJWT("secret", time.Hour).Authenticate(req)
	if !errors.Is(err, auth.ErrInvalid) {
		t.Errorf("err = %v, want %v", err, auth.ErrInvalid)
	}

	_, err = auth.NewJWT("secret", time.Hour).Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(err, auth.ErrNoCredential) {
		t.Errorf("no header err = %v, want %v", err, auth.ErrNoCredential)
	}
}

func TestTelegramInitData(t *testing.T) {
	t.Parallel()
	store := memory.New()
	tg := auth.NewTelegram(botToken, time.Hour, store, map[int64]bool{900: true})

	tests := []struct {
		name     string
		data     string
		wantErr  error
		wantRole string
	}{
		{"valid", initData(t, 42, time.Now(), botToken), nil, user.RoleUser},
		{"admin whitelist", initData(t, 900, time.Now(), botToken), nil, user.RoleAdmin},
		{"wrong bot", initData(t, 42, time.Now(), "999:other"), auth.ErrInvalid, ""},
		{"expired", initData(t, 42, time.Now().Add(-2*time.Hour), botToken), auth.ErrInvalid, ""},
		{"tampered", strings.Replace(initData(t, 42, time.Now(), botToken), "query_id=AAE", "query_id=XYZ", 1), auth.ErrInvalid, ""},
		{"missing", "", auth.ErrNoCredential, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.data != "" {
				req.Header.Set(auth.InitDataHeader, tt.data)
			}
			id, err := tg.Authenticate(req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if id.Role != tt.wantRole {
				t.Errorf("role = %v, want %v", id.Role, tt.wantRole)
			}
			if id.UserID == "" {
				t.Error("user id is empty")
			}
		})
	}

	u, err := store.GetUserByExternalID(context.Background(), 42)
	if err != nil {
		t.Fatalf("user not ensured: %v", err)
	}
	if u.Name != "Ann Lee" || u.Username != "rider" {
		t.Errorf("name, username = %q, %q, want Ann Lee, rider", u.Name, u.Username)
	}
}

func TestChainFallsThrough(t *testing.T) {
	t.Parallel()
	j := auth.NewJWT("secret", time.Hour)
	tg := auth.NewTelegram(botToken, time.Hour, memory.New(), nil)
	chain := auth.Chain{j, tg}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.InitDataHeader, initData(t, 5, time.Now(), botToken))
	id, err := chain.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.ExternalID != 5 {
		t.Errorf("tg id = %d, want 5", id.ExternalID)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer nope")
	if _, err := chain.Authenticate(bad); !errors.Is(err, auth.ErrInvalid) {
		t.Errorf("err = %v, want %v", err, auth.ErrInvalid)
	}
}

func TestAdminLogin(t *testing.T) {
	t.Parallel()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	tokens := auth.NewJWT("secret", time.Hour)
	h := &auth.AdminLogin{PasswordHash: string(hash), Tokens: tokens, Logger: testLogger()}
	e := echo.New()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"password":"hunter2"}`, http.StatusOK},
		{"wrong password", `{"password":"nope"}`, http.StatusUnauthorized},
		{"empty", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			if err := h.Login(e.NewContext(req, rec)); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp auth.LoginResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			check := httptest.NewRequest(http.MethodGet, "/", nil)
			check.Header.Set("Authorization", "Bearer "+resp.Token)
			id, err := tokens.Authenticate(check)
			if err != nil {
				t.Fatalf("issued token: %v", err)
			}
			if id.Role != user.RoleAdmin {
				t.Errorf("role = %v, want %v", id.Role, user.RoleAdmin)
			}
		})
	}
}
