package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client-generated submission key.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// Idem rejects a request while another request with the same Idempotency-Key
// from the same user is still being processed. Durable replay of completed
// requests is handled by the stores.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func (i Idem) redisKey(r *http.Request, header string) string {
	user, _ := UserID(r.Context())
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{user, r.Method, route, header}, "|")))
	return "idem:" + hex.EncodeToString(sum[:])
}

// Middleware enforces the in-flight guard for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		if len(header) > maxIdempotencyKeyLen {
			JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Idempotency-Key is too long", nil)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		key := i.redisKey(r, header)
		ok, err := i.R.SetNX(r.Context(), key, "in-flight", ttl).Result()
		if err != nil {
			WriteError(w, r, NewAppError("INTERNAL", "idempotency store error", http.StatusInternalServerError, err))
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_FLIGHT", "A request with this Idempotency-Key is already in progress", nil)
			return
		}
		defer func() {
			_ = i.R.Del(context.Background(), key).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
