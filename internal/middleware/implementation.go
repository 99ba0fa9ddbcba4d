package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kvallam/MedVaultAPI/internal/adapter"
	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

func injectTrace(re requestResponseStruct) requestResponseStruct {
	re.logger.Debug("Injecting trace middleware")
	req := re.req
	if req == nil {
		//this is a bad request
		re.badRequest.httpCode = http.StatusBadRequest
		re.badRequest.errorMessage = "request is empty"
		re.badRequest.isBadRequest = true
		return re
	}
	trace := req.Header.Get("X-Trace-Id")
	if trace == "" {
		trace = uuid.NewString()
	}
	re.logger = re.logger.With("traceId", trace)
	ctx := context.WithValue(req.Context(), config.TRACE_ID_KEY, trace)
	req.Header.Set(`X-Trace-Id`, trace)
	re.writer.Header().Set("X-Trace-Id", trace)
	re.req = req.WithContext(ctx)

	re.logger.Debug("trace middleware injected")
	return re
}

func (c *Chain) authenticate(re requestResponseStruct) requestResponseStruct {
	re.logger.Debug("Authenticating request")

	if !isValidBearerToken(re.req.Header.Get("Authorization"), c.authToken, re.logger) {
		re.badRequest.isBadRequest = true
		re.badRequest.errorMessage = "invalid token"
		re.badRequest.httpCode = http.StatusUnauthorized
		return re
	}
	re.logger.Debug("Authorized")
	return re
}

func isValidBearerToken(authHeader string, token string, log *logger_i.Logger) bool {
	if config.NoAuthBypass {
		log.Error("--------------------------------------- auth bypass----------------------------------------------")
		return true
	}
	if authHeader == "" {
		log.Error("Empty authorization header")
		return false
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		log.Error("No Bearer header")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(authHeader, "Bearer ")), []byte(token)) != 1 {
		log.Error("Invalid authorization header")
		return false
	}

	return true
}

func (c *Chain) rateLimit(re requestResponseStruct) requestResponseStruct {
	re.logger.Debug("Rate limiter middleware")
	ip, _, err := net.SplitHostPort(re.req.RemoteAddr)
	if err != nil {
		ip = re.req.RemoteAddr
	}

	if !c.limiter.GetLimiter(ip).Allow() {
		re.logger.Error("Too many requests", "Rate Limiter exceeded", ip)
		re.badRequest = failureStruct{
			isBadRequest: true,
			httpCode:     http.StatusTooManyRequests,
			errorMessage: "Rate limit exceeded. Slow down bruh",
		}
		return re
	}
	re.logger.Debug("Rate limiter middleware authorized")
	return re
}

// identifyCaller reads the principal forwarded by the auth gateway. Identity
// itself is established upstream; an absent or malformed principal is rejected
// before any handler runs.
func identifyCaller(re requestResponseStruct) requestResponseStruct {
	userId := strings.TrimSpace(re.req.Header.Get("X-User-Id"))
	rawRole := strings.TrimSpace(re.req.Header.Get("X-Role"))
	if userId == "" || rawRole == "" {
		re.badRequest = failureStruct{
			isBadRequest: true,
			httpCode:     http.StatusUnauthorized,
			errorMessage: "missing caller identity headers",
		}
		return re
	}
	role, err := recordModel.ParseRole(rawRole)
	if err != nil {
		re.logger.Warn("Unknown role on request", "role", rawRole)
		re.badRequest = failureStruct{
			isBadRequest: true,
			httpCode:     http.StatusForbidden,
			errorMessage: "unknown role",
		}
		return re
	}

	caller := recordModel.Caller{UserId: userId, Role: role}
	re.req = re.req.WithContext(context.WithValue(re.req.Context(), CallerKey, caller))
	re.logger.Debug("Caller identified", "userId", userId, "role", role)
	return re
}

func (c *Chain) handleBadRequest(re requestResponseStruct) {
	re.logger.Warn("Bad request", "httpCode", re.badRequest.httpCode, "errorMessage", re.badRequest.errorMessage, "IP", re.req.RemoteAddr)

	traceId, _ := re.req.Context().Value(config.TRACE_ID_KEY).(string)
	re.writer.Header().Set("Content-Type", "application/json")
	re.writer.WriteHeader(re.badRequest.httpCode)
	if err := json.NewEncoder(re.writer).Encode(adapter.ToError(re.badRequest.httpCode, re.badRequest.errorMessage, traceId)); err != nil {
		re.logger.Error("Failed to encode error response", "error", err)
	}
}
