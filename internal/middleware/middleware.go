package middleware

import (
	"context"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/metrics"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

type contextKey string

// CallerKey holds the authenticated recordModel.Caller in the request
// context.
const CallerKey contextKey = "caller"

type requestResponseStruct struct {
	writer     http.ResponseWriter
	req        *http.Request
	badRequest failureStruct
	logger     *logger_i.Logger
}

type failureStruct struct {
	isBadRequest bool
	httpCode     int
	errorMessage string
}

// Chain is the shared middleware pipeline: trace injection, bearer auth,
// caller identification, and per-IP rate limiting. All state is injected; one
// chain serves every protected route.
type Chain struct {
	authToken string
	limiter   *IPRateLimiter
	logger    *logger_i.Logger
}

func NewChain(authToken string) *Chain {
	return &Chain{
		authToken: authToken,
		limiter:   NewIPRateLimiter(rate.Limit(config.RATE_LIMIT_PER_SECOND), config.BURST_RATE_LIMIT_PER_SECOND),
		logger:    logger_i.NewLogger("middleware"),
	}
}

// Wrap runs the chain before next and records request metrics after it.
func (c *Chain) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: 200}
		re := c.processRequest(requestResponseStruct{req: r, writer: rec})

		if re.badRequest.isBadRequest {
			c.handleBadRequest(re)
			metrics.HttpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(re.badRequest.httpCode)).Inc()
			return
		}
		next(rec, re.req)

		metrics.HttpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.Status)).Inc()
	}
}

func (c *Chain) processRequest(re requestResponseStruct) requestResponseStruct {
	re.logger = c.logger
	re = injectTrace(re)
	re = c.authenticate(re)
	if re.badRequest.isBadRequest {
		return re
	}
	re = c.rateLimit(re)
	if re.badRequest.isBadRequest {
		return re
	}
	return identifyCaller(re)
}

// CallerFromContext returns the caller placed by the chain.
func CallerFromContext(ctx context.Context) (recordModel.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(recordModel.Caller)
	return caller, ok
}
