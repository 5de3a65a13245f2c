package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatrooms/internal/database"
	"github.com/npezzotti/go-chatrooms/internal/types"
	"github.com/samber/lo"
)

const maxRequestBody = 1 << 20

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type CreateRoomRequest struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	s.writeJson(w, errResp.StatusCode, errResp)
}

// decodeRequest reads a JSON body into v and validates its struct tags.
func (s *GoChatApp) decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		return err
	}

	return s.validate.Struct(v)
}

// lookupError maps a repository read error to a not found or internal error.
func lookupError(err error) *ApiError {
	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError()
	}
	return NewInternalServerError(err)
}

// createError maps a repository insert error to a conflict or internal error.
func createError(err error) *ApiError {
	if errors.Is(err, database.ErrDuplicate) {
		return NewConflictError()
	}
	return NewInternalServerError(err)
}

func toUser(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

func (s *GoChatApp) toRoom(r database.Room) types.Room {
	room := types.Room{
		Id:        r.Id,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
	if s.cs != nil {
		room.ActiveUsers = s.cs.ActiveUsers(r.Id.String())
	}
	return room
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		UserId:    m.UserId,
		Username:  m.Username,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.writeError(w, NewRequestError(err))
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	params := database.CreateAccountParams{
		Username:     req.Username,
		PasswordHash: pwdHash,
	}

	newUser, err := s.db.CreateAccount(r.Context(), params)
	if err != nil {
		s.writeError(w, createError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, toUser(newUser))
}

func (s *GoChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(r.Context(), userId)
	if err != nil {
		s.writeError(w, lookupError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

func (s *GoChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := s.decodeRequest(w, r, &lr); err != nil {
		s.writeError(w, NewRequestError(err))
		return
	}

	dbUser, err := s.db.GetAccountByUsername(r.Context(), lr.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	u := toUser(dbUser)
	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, LoginResponse{User: u, Token: token})
}

func (s *GoChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	dbRooms, err := s.db.ListRooms(r.Context())
	if err != nil {
		s.log.Println("list rooms:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	rooms := lo.Map(dbRooms, func(room database.Room, _ int) types.Room {
		return s.toRoom(room)
	})

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := s.decodeRequest(w, r, &req); err != nil {
		s.writeError(w, NewRequestError(err))
		return
	}

	newRoom, err := s.db.CreateRoom(r.Context(), database.CreateRoomParams{Name: req.Name})
	if err != nil {
		s.writeError(w, createError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, s.toRoom(newRoom))
}

func (s *GoChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	roomId, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, NewNotFoundError())
		return
	}

	dbRoom, err := s.db.GetRoomById(r.Context(), roomId)
	if err != nil {
		s.writeError(w, lookupError(err))
		return
	}

	room := s.toRoom(dbRoom)
	if s.cs != nil {
		room.Members = s.cs.Present(dbRoom.Id.String())
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	roomId, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, NewNotFoundError())
		return
	}

	var (
		before time.Time
		limit  int
	)

	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		before, err = time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			s.writeError(w, NewBadRequestError())
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			s.writeError(w, NewBadRequestError())
			return
		}
	}

	if _, err := s.db.GetRoomById(r.Context(), roomId); err != nil {
		s.writeError(w, lookupError(err))
		return
	}

	messages, err := s.db.GetMessages(r.Context(), roomId, before, limit)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, lo.Map(messages, func(m database.Message, _ int) types.Message {
		return toMessage(m)
	}))
}

// serveWs upgrades the request and hands it to the chat server, which
// authorizes the peer and closes the socket with a policy violation when the
// token or room is rejected.
func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get(tokenQueryKey)
	if token == "" {
		token = tokenFromRequest(r)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.ServeConn(conn, token, r.PathValue("room_id"))
}
