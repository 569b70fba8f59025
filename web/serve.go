package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
)

func main() {
	// Parse command-line flags
	port := flag.Int("port", 3000, "Port to serve the dashboard frontend on")
	staticDir := flag.String("dir", "web/static", "Directory containing the dashboard assets")
	apiURL := flag.String("api", "http://localhost:8080", "Base URL of the dashboard API to proxy /api and /metrics to")
	flag.Parse()

	// Check if static directory exists
	if _, err := os.Stat(*staticDir); os.IsNotExist(err) {
		log.Fatalf("Static directory does not exist: %s", *staticDir)
	}

	backend, err := url.Parse(*apiURL)
	if err != nil {
		log.Fatalf("Invalid API URL %s: %v", *apiURL, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(backend)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("Proxy error for %s: %v", r.URL.Path, err)
		http.Error(w, "dashboard API unavailable", http.StatusBadGateway)
	}

	// Set up routes: API and metrics go to the backend, everything else is
	// served from disk with an index.html fallback for client-side routes.
	http.Handle("/api/", proxy)
	http.Handle("/metrics", proxy)
	http.Handle("/", spaHandler(*staticDir))

	// Start the server
	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Serving dashboard on http://localhost%s (API at %s)", addr, backend)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// spaHandler serves static assets and falls back to index.html for paths
// without a file extension, so deep links into the dashboard work.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && !strings.Contains(r.URL.Path, ".") {
			http.ServeFile(w, r, dir+"/index.html")
			return
		}
		fs.ServeHTTP(w, r)
	})
}
