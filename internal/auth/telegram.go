package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sudo-init-do/errandhub/internal/user"
)

// InitDataHeader carries the raw Telegram WebApp initData string.
// InitDataParam is the query fallback used by streaming clients.
const (
	InitDataHeader = "X-Tg-Init-Data"
	InitDataParam  = "init_data"
)

// TelegramAuthenticator verifies WebApp initData signed with the bot token
// and ensures the matching user exists.
type TelegramAuthenticator struct {
	botToken string
	maxAge   time.Duration
	users    user.Store
	admins   map[int64]bool
	now      func() time.Time
}

// NewTelegram builds the authenticator. Ids in admins get the admin role.
func NewTelegram(botToken string, maxAge time.Duration, users user.Store, admins map[int64]bool) *TelegramAuthenticator {
	return &TelegramAuthenticator{
		botToken: botToken,
		maxAge:   maxAge,
		users:    users,
		admins:   admins,
		now:      time.Now,
	}
}

type webAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (t *TelegramAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	raw := r.Header.Get(InitDataHeader)
	if raw == "" {
		raw = r.URL.Query().Get(InitDataParam)
	}
	if raw == "" {
		return nil, ErrNoCredential
	}

	tgUser, err := t.verify(raw)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(tgUser.FirstName + " " + tgUser.LastName)
	u, err := t.users.EnsureUser(r.Context(), &user.User{
		ExternalID: tgUser.ID,
		Username:   tgUser.Username,
		Name:       name,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: ensure user: %w", err)
	}

	role := u.Role
	if t.admins[u.ExternalID] {
		role = user.RoleAdmin
	}
	return &Identity{UserID: u.ID, ExternalID: u.ExternalID, Role: role}, nil
}

// verify checks the initData hash and freshness and returns its user.
func (t *TelegramAuthenticator) verify(raw string) (*webAppUser, error) {
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed init data", ErrInvalid)
	}
	hash := vals.Get("hash")
	if hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrInvalid)
	}
	vals.Del("hash")

	expected := SignInitData(t.botToken, vals)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return nil, fmt.Errorf("%w: bad init data signature", ErrInvalid)
	}

	authDate, err := strconv.ParseInt(vals.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad auth_date", ErrInvalid)
	}
	if t.maxAge > 0 && t.now().Sub(time.Unix(authDate, 0)) > t.maxAge {
		return nil, fmt.Errorf("%w: init data expired", ErrInvalid)
	}

	var u webAppUser
	if err := json.Unmarshal([]byte(vals.Get("user")), &u); err != nil || u.ID == 0 {
		return nil, fmt.Errorf("%w: bad user field", ErrInvalid)
	}
	return &u, nil
}

// SignInitData computes the hex hash Telegram attaches to initData: an
// HMAC-SHA256 of the sorted key=value lines, keyed by
// HMAC-SHA256("WebAppData", botToken).
func SignInitData(botToken string, vals url.Values) string {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + vals.Get(k)
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
