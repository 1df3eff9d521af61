package middleware

import (
	"net/http"
	"strings"

	"go-clinic-appointment/pkg/signature"
)

type CORSMiddleware struct {
	allowedHeaders string
}

func NewCORSMiddleware() *CORSMiddleware {
	return &CORSMiddleware{
		allowedHeaders: strings.Join([]string{"Content-Type", "Authorization", signature.Header}, ", "),
	}
}

func (m *CORSMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", m.allowedHeaders)

		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, req)
	})
}
