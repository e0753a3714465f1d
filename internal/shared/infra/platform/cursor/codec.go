// Package cursor firma y verifica posiciones de paginación keyset.
//
// Un cursor es base64 (URL-safe, sin padding) de un JSON
// {"data":{...},"signature":"<hex>","timestamp":<epoch ms>} donde la firma es
// HMAC-SHA256 sobre la serialización de {"data":...,"timestamp":...}.
// Cualquier fallo al decodificar se reporta como ErrInvalidCursor.
package cursor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSecret se usa cuando no se configura ningún secreto. No apto para producción.
	DefaultSecret = "default-secret-change-in-production"
	// DefaultMaxAge es la ventana de validez de un cursor.
	DefaultMaxAge = 24 * time.Hour
)

var (
	// ErrInvalidCursor agrupa todos los fallos de decodificación: formato, caducidad,
	// firma o contenido. El motivo concreto solo se registra en los logs.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrEmptyPosition se devuelve al codificar una posición sin created_at.
	ErrEmptyPosition = errors.New("cursor position requires created_at")
)

// Position es la clave keyset de la última fila de una página.
type Position struct {
	CreatedAt time.Time
	ID        int64
	// SortBy y SortValue solo se rellenan cuando la columna de orden no es created_at.
	SortBy    string
	SortValue any
}

// Config del codec.
type Config struct {
	Secret string
	MaxAge time.Duration
}

// Option configura el codec.
type Option func(*Codec)

// WithClock sustituye el reloj del codec (útil en tests).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec es inmutable tras su construcción y seguro para uso concurrente.
type Codec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewCodec crea un codec. Sin secreto configurado se usa DefaultSecret y se avisa en el log.
func NewCodec(cfg Config, log *zap.Logger, opts ...Option) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	secret := cfg.Secret
	if secret == "" {
		log.Warn("cursor secret not configured, using default secret; set CURSOR_SECRET in production")
		secret = DefaultSecret
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	c := &Codec{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------------- Formato de cable ----------------

type positionData struct {
	CreatedAt string          `json:"created_at"`
	ID        *int64          `json:"id"`
	SortBy    string          `json:"sort_by,omitempty"`
	SortValue json.RawMessage `json:"sort_value,omitempty"`
}

type signedContent struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"timestamp"`
}

// incomingEnvelope usa punteros para distinguir campos ausentes de valores cero.
type incomingEnvelope struct {
	Data      json.RawMessage `json:"data"`
	Signature *string         `json:"signature"`
	Timestamp *int64          `json:"timestamp"`
}

// Encode firma la posición con la hora actual y la empaqueta como token opaco.
func (c *Codec) Encode(p Position) (string, error) {
	if p.CreatedAt.IsZero() {
		return "", ErrEmptyPosition
	}

	id := p.ID
	data := positionData{
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		ID:        &id,
	}
	if p.SortBy != "" {
		if p.SortValue == nil {
			return "", fmt.Errorf("cursor position for %q requires a sort value", p.SortBy)
		}
		raw, err := json.Marshal(p.SortValue)
		if err != nil {
			return "", fmt.Errorf("encode sort value: %w", err)
		}
		data.SortBy = p.SortBy
		data.SortValue = raw
	}

	dataRaw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode cursor data: %w", err)
	}

	ts := c.now().UnixMilli()
	sig, err := c.sign(dataRaw, ts)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(envelope{Data: dataRaw, Signature: sig, Timestamp: ts})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decode valida el token (estructura, presencia, caducidad, firma y contenido, en ese orden)
// y devuelve la posición. Todos los fallos devuelven ErrInvalidCursor.
func (c *Codec) Decode(token string) (Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c.reject("malformed base64", err)
	}

	var env incomingEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return c.reject("malformed envelope", err)
	}
	if isAbsent(env.Data) || env.Signature == nil || env.Timestamp == nil {
		return c.reject("missing envelope fields", nil)
	}

	age := c.now().UnixMilli() - *env.Timestamp
	if age > c.maxAge.Milliseconds() {
		return c.reject("cursor expired", nil)
	}

	expected, err := c.sign(env.Data, *env.Timestamp)
	if err != nil {
		return c.reject("cannot recompute signature", err)
	}
	// Se compara la forma canónica (hex en minúsculas): "AB" y "ab" no son la misma firma.
	if !hmac.Equal([]byte(*env.Signature), []byte(expected)) {
		return c.reject("signature mismatch", nil)
	}

	return c.parseData(env.Data)
}

func (c *Codec) parseData(raw json.RawMessage) (Position, error) {
	var data positionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return c.reject("malformed data", err)
	}
	if data.CreatedAt == "" {
		return c.reject("missing created_at", nil)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, data.CreatedAt)
	if err != nil {
		return c.reject("malformed created_at", err)
	}
	if data.ID == nil {
		return c.reject("missing id", nil)
	}

	p := Position{CreatedAt: createdAt.UTC(), ID: *data.ID}
	if data.SortBy == "" {
		if !isAbsent(data.SortValue) {
			return c.reject("sort value without sort column", nil)
		}
		return p, nil
	}

	if isAbsent(data.SortValue) {
		return c.reject("missing sort value", nil)
	}
	var v any
	if err := json.Unmarshal(data.SortValue, &v); err != nil {
		return c.reject("malformed sort value", err)
	}
	switch v.(type) {
	case string, float64:
	default:
		return c.reject("unsupported sort value type", nil)
	}
	p.SortBy = data.SortBy
	p.SortValue = v
	return p, nil
}

func (c *Codec) sign(data json.RawMessage, ts int64) (string, error) {
	content, err := json.Marshal(signedContent{Data: data, Timestamp: ts})
	if err != nil {
		return "", fmt.Errorf("encode signed content: %w", err)
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(content)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (c *Codec) reject(reason string, err error) (Position, error) {
	fields := []zap.Field{zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.log.Debug("cursor rejected", fields...)
	return Position{}, ErrInvalidCursor
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
