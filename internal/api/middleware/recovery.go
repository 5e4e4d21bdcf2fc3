package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"copytrader/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Паника логируется со stack trace, клиент получает 500 без деталей.
func Recovery(logger *utils.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	logger = logger.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic in http handler",
						utils.String("panic", fmt.Sprint(rec)),
						utils.String("method", r.Method),
						utils.String("path", r.URL.Path),
						utils.String("stack", string(debug.Stack())),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
