package web

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey = "request_id"
	clientIPKey  = "client_ip"
)

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

func generateRequestID() string {
	return uuid.New().String()
}

// RealIPMiddleware stores the client address so reports carry the caller's IP
// rather than the proxy's.
func RealIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c.Request)
		c.Set(clientIPKey, ip)
		c.Writer.Header().Set("X-Client-IP", ip)
		c.Next()
	}
}

func GetIPFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if ip := c.GetString(clientIPKey); ip != "" {
		return ip
	}
	return clientIP(c.Request)
}

func clientIP(r *http.Request) string {
	for _, h := range []string{"X-Original-Client-Ip", "X-Client-IP", "CF-Connecting-IP"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
