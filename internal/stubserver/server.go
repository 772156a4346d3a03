// Package stubserver is an in-process double of the identity and realtime
// backend, used by adapter and end-to-end tests. It mints HS256 access
// tokens and authenticates the websocket handshake from the token query
// parameter, the way the production gateway does.
package stubserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const (
	accessTokenTTL    = 15 * time.Minute
	refreshCookieName = "refresh_token"
)

type User struct {
	ID       int64
	Username string
	Email    string
	Password string
}

type BacklogEntry struct {
	ID        int64     `json:"id"`
	NotifType string    `json:"notif_type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Server holds all state behind one handler. CookieRefresh switches the
// refresh grant between an HttpOnly cookie and an explicit body token.
type Server struct {
	Secret        []byte
	CookieRefresh bool

	mu       sync.Mutex
	users    map[string]User
	refresh  map[string]int64
	revoked  map[string]bool
	backlog  map[int64][]BacklogEntry
	conns    map[int64][]*websocket.Conn
	upgrader websocket.Upgrader
}

func New() *Server {
	return &Server{
		Secret:  []byte("stub-secret"),
		users:   make(map[string]User),
		refresh: make(map[string]int64),
		revoked: make(map[string]bool),
		backlog: make(map[int64][]BacklogEntry),
		conns:   make(map[int64][]*websocket.Conn),
	}
}

func (s *Server) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Email] = u
}

func (s *Server) SetBacklog(userID int64, entries []BacklogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog[userID] = entries
}

// Revoke makes an access token read as expired, forcing 401s until the
// client refreshes.
func (s *Server) Revoke(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[accessToken] = true
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /user", s.handleUser)
	mux.HandleFunc("/ws/collaboration/", s.handleRealtime)
	return mux
}

// MintAccess issues an access token for the user, as login would.
func (s *Server) MintAccess(userID int64) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(accessTokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// PushInvitation sends a live invitation frame to every open connection of
// the recipient.
func (s *Server) PushInvitation(userID, inviteID int64, sender, draftTitle string) {
	frame := map[string]any{
		"type":            "invitation_notification",
		"invite_id":       inviteID,
		"sender":          sender,
		"draftbeat_title": draftTitle,
	}

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns[userID]...)
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.WriteJSON(frame)
	}
}

// DropConnections closes every open websocket for the user without a close
// handshake, simulating an unexpected disconnect.
func (s *Server) DropConnections(userID int64) {
	s.mu.Lock()
	conns := s.conns[userID]
	s.conns[userID] = nil
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	user, ok := s.users[body.Email]
	s.mu.Unlock()
	if !ok || user.Password != body.Password {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	access, err := s.MintAccess(user.ID)
	if err != nil {
		http.Error(w, "mint token", http.StatusInternalServerError)
		return
	}
	refreshToken := randomToken()

	s.mu.Lock()
	s.refresh[refreshToken] = user.ID
	s.mu.Unlock()

	response := map[string]string{"access": access}
	if s.CookieRefresh {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookieName,
			Value:    refreshToken,
			HttpOnly: true,
			Path:     "/",
		})
	} else {
		response["refresh"] = refreshToken
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	fieldErrs := map[string][]string{}
	if body.Username == "" {
		fieldErrs["username"] = []string{"This field is required."}
	}
	if body.Email == "" {
		fieldErrs["email"] = []string{"This field is required."}
	}

	s.mu.Lock()
	if _, exists := s.users[body.Email]; exists {
		fieldErrs["email"] = []string{"A user with this email already exists."}
	}
	if len(fieldErrs) > 0 {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	id := int64(len(s.users) + 1)
	s.users[body.Email] = User{ID: id, Username: body.Username, Email: body.Email, Password: body.Password}
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if s.CookieRefresh {
		cookie, err := r.Cookie(refreshCookieName)
		if err != nil {
			http.Error(w, "missing refresh cookie", http.StatusUnauthorized)
			return
		}
		refreshToken = cookie.Value
	} else {
		var body struct {
			Refresh string `json:"refresh"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Refresh == "" {
			http.Error(w, "missing refresh token", http.StatusUnauthorized)
			return
		}
		refreshToken = body.Refresh
	}

	s.mu.Lock()
	userID, ok := s.refresh[refreshToken]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown refresh token", http.StatusUnauthorized)
		return
	}

	access, err := s.MintAccess(userID)
	if err != nil {
		http.Error(w, "mint token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.authenticate(r.Header.Get("Authorization"))
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	for token, id := range s.refresh {
		if id == userID {
			delete(s.refresh, token)
		}
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := s.authenticate(r.Header.Get("Authorization"))
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	var found *User
	for _, user := range s.users {
		if user.ID == userID {
			u := user
			found = &u
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       found.ID,
		"username": found.Username,
		"email":    found.Email,
	})
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/collaboration/"), "/")
	pathID, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}

	userID, valid := s.validateToken(r.URL.Query().Get("token"))
	if !valid || userID != pathID {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[userID] = append(s.conns[userID], conn)
	backlog := append([]BacklogEntry(nil), s.backlog[userID]...)
	s.mu.Unlock()

	_ = conn.WriteJSON(map[string]any{
		"type":          "unread_notifications",
		"notifications": backlog,
	})

	go s.readActions(conn, userID)
}

func (s *Server) readActions(conn *websocket.Conn, userID int64) {
	defer func() {
		s.mu.Lock()
		remaining := s.conns[userID][:0]
		for _, c := range s.conns[userID] {
			if c != conn {
				remaining = append(remaining, c)
			}
		}
		s.conns[userID] = remaining
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var action struct {
			Action      string `json:"action"`
			InviteID    int64  `json:"invite_id"`
			DraftbeatID int64  `json:"draftbeat_id"`
			RecipientID int64  `json:"recipient_id"`
		}
		if err := conn.ReadJSON(&action); err != nil {
			return
		}

		if action.Action == "send_invite" {
			s.PushInvitation(action.RecipientID, action.DraftbeatID, s.usernameOf(userID), fmt.Sprintf("draft-%d", action.DraftbeatID))
		}
	}
}

func (s *Server) usernameOf(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.ID == userID {
			return user.Username
		}
	}
	return "unknown"
}

func (s *Server) authenticate(header string) (int64, string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return 0, "", false
	}
	token := strings.TrimPrefix(header, prefix)
	userID, ok := s.validateToken(token)
	return userID, token, ok
}

func (s *Server) validateToken(tokenString string) (int64, bool) {
	if tokenString == "" {
		return 0, false
	}

	s.mu.Lock()
	revoked := s.revoked[tokenString]
	s.mu.Unlock()
	if revoked {
		return 0, false
	}

	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	rawID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, false
	}
	return int64(rawID), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
