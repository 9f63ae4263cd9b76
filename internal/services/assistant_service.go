package services

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/odontoclin/backend/internal/models"
)

var (
	ErrAssistantNotFound  = errors.New("assistant not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AssistantService manages front-desk accounts and their sessions. Logins
// issue a JWT whose id is tracked in Redis so logout can revoke it before
// expiry; without Redis tokens simply live until they expire.
type AssistantService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
	now       func() time.Time
}

func NewAssistantService(db *sql.DB, redisClient *redis.Client) *AssistantService {
	return &AssistantService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

const assistantColumns = "id, name, username, phone, email, password_hash, created_at, updated_at"

func scanAssistant(row interface{ Scan(...any) error }) (*models.Assistant, error) {
	var a models.Assistant
	err := row.Scan(&a.ID, &a.Name, &a.Username, &a.Phone, &a.Email,
		&a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// Login handles POST /auth/login
func (s *AssistantService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req loginRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	row := s.db.QueryRow(`SELECT `+assistantColumns+` FROM assistants WHERE username = $1`, req.Username)
	assistant, err := scanAssistant(row)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, ErrInvalidCredentials.Error(), http.StatusUnauthorized, nil)
		return
	}
	if err != nil {
		log.Printf("[AUTH] Login lookup failed: %v", err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	ok, err := VerifyPassword(req.Password, assistant.PasswordHash)
	if err != nil || !ok {
		SendErrorResponse(w, ErrInvalidCredentials.Error(), http.StatusUnauthorized, nil)
		return
	}

	token, err := s.issueToken(r, assistant)
	if err != nil {
		log.Printf("[AUTH] Failed to issue token: %v", err)
		SendErrorResponse(w, "Login failed", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"token": token, "assistant": assistant})
}

func (s *AssistantService) issueToken(r *http.Request, assistant *models.Assistant) (string, error) {
	viper.SetDefault("jwt.expiry_hours", 12)
	expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour

	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"user_id":  assistant.ID,
		"username": assistant.Username,
		"jti":      jti,
		"exp":      s.now().Add(expiry).Unix(),
		"iat":      s.now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	if err != nil {
		return "", err
	}

	if s.redis != nil {
		key := "session:" + jti
		if err := s.redis.Set(r.Context(), key, assistant.Username, expiry).Err(); err != nil {
			return "", fmt.Errorf("failed to store session: %w", err)
		}
	}
	return signed, nil
}

// Logout handles POST /auth/logout, revoking the presented token's session.
func (s *AssistantService) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
		return
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (any, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
		return
	}

	if s.redis != nil {
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if jti, ok := claims["jti"].(string); ok {
				s.redis.Del(r.Context(), "session:"+jti)
			}
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type createAssistantRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Username string `json:"username" validate:"required,min=3"`
	Phone    string `json:"phone" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Create handles POST /assistants
func (s *AssistantService) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssistantRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Failed to hash password: %v", err)
		SendErrorResponse(w, "Failed to create assistant", http.StatusInternalServerError, nil)
		return
	}

	now := s.now()
	row := s.db.QueryRow(`
		INSERT INTO assistants (name, username, phone, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+assistantColumns,
		req.Name, req.Username, req.Phone, req.Email, hash, now, now)

	assistant, err := scanAssistant(row)
	if err != nil {
		log.Printf("[AUTH] Failed to insert assistant: %v", err)
		SendErrorResponse(w, "Failed to create assistant", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "assistant": assistant})
}

// List handles GET /assistants
func (s *AssistantService) List(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`SELECT ` + assistantColumns + ` FROM assistants ORDER BY name`)
	if err != nil {
		SendErrorResponse(w, "Failed to list assistants", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	assistants := []models.Assistant{}
	for rows.Next() {
		a, err := scanAssistant(rows)
		if err != nil {
			SendErrorResponse(w, "Failed to scan assistant", http.StatusInternalServerError, nil)
			return
		}
		assistants = append(assistants, *a)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to list assistants", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, assistants)
}

type updateAssistantRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=2"`
	Phone    *string `json:"phone" validate:"omitempty,min=8"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=6"`
}

// Update handles PUT /assistants/{id}
func (s *AssistantService) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid assistant id", http.StatusBadRequest, nil)
		return
	}

	var req updateAssistantRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	row := s.db.QueryRow(`SELECT `+assistantColumns+` FROM assistants WHERE id = $1`, id)
	assistant, err := scanAssistant(row)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, ErrAssistantNotFound.Error(), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch assistant", http.StatusInternalServerError, nil)
		return
	}

	if req.Name != nil {
		assistant.Name = *req.Name
	}
	if req.Phone != nil {
		assistant.Phone = *req.Phone
	}
	if req.Email != nil {
		assistant.Email = *req.Email
	}
	if req.Password != nil {
		hash, err := HashPassword(*req.Password)
		if err != nil {
			SendErrorResponse(w, "Failed to update assistant", http.StatusInternalServerError, nil)
			return
		}
		assistant.PasswordHash = hash
	}

	row = s.db.QueryRow(`
		UPDATE assistants
		SET name = $1, phone = $2, email = $3, password_hash = $4, updated_at = $5
		WHERE id = $6
		RETURNING `+assistantColumns,
		assistant.Name, assistant.Phone, assistant.Email, assistant.PasswordHash, s.now(), id)

	updated, err := scanAssistant(row)
	if err != nil {
		log.Printf("[AUTH] Failed to update assistant %d: %v", id, err)
		SendErrorResponse(w, "Failed to update assistant", http.StatusInternalServerError, nil)
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /assistants/{id}
func (s *AssistantService) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		SendErrorResponse(w, "Invalid assistant id", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec(`DELETE FROM assistants WHERE id = $1`, id)
	if err != nil {
		SendErrorResponse(w, "Failed to delete assistant", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, ErrAssistantNotFound.Error(), http.StatusNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Argon2id parameters, overridable the same way the rest of the config is.
func argonParams() (timeCost uint32, memory uint32, threads uint8, keyLen uint32) {
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	return uint32(viper.GetInt("argon2.time")), uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")), uint32(viper.GetInt("argon2.key_length"))
}

// HashPassword produces an encoded argon2id hash.
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	timeCost, memory, threads, keyLen := argonParams()
	key := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, timeCost, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword checks a password against an encoded argon2id hash.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("invalid password hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, err
	}

	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, err
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
