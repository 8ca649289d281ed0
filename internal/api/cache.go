package api

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/rfpd/internal/viewcache"
)

// cacheViews serves GET responses from c and stores successful ones.
// Writers drop entries through viewcache.Invalidator. A response is not stored
// if any invalidation landed while it was being rendered.
func cacheViews(c *viewcache.Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			key := r.URL.Path
			if e, ok := c.Get(key); ok {
				w.Header().Set("Content-Type", e.ContentType)
				w.Header().Set("X-Cache", "hit")
				w.Write(e.Body)
				return
			}

			gen := c.Generation()
			var buf bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&buf)
			ww.Header().Set("X-Cache", "miss")
			next.ServeHTTP(ww, r)

			if ww.Status() == http.StatusOK {
				c.PutIfUnchanged(key, gen, viewcache.Entry{
					ContentType: ww.Header().Get("Content-Type"),
					Body:        bytes.Clone(buf.Bytes()),
				})
			}
		})
	}
}
