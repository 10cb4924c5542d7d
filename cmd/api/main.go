// cmd/api/main.go
package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	catalogServiceURL, _ := url.Parse(getEnv("CATALOG_SERVICE_URL", "http://localhost:8081"))
	circulationServiceURL, _ := url.Parse(getEnv("CIRCULATION_SERVICE_URL", "http://localhost:8082"))
	identityServiceURL, _ := url.Parse(getEnv("IDENTITY_SERVICE_URL", "http://localhost:8084"))

	catalogProxy := httputil.NewSingleHostReverseProxy(catalogServiceURL)
	circulationProxy := httputil.NewSingleHostReverseProxy(circulationServiceURL)
	identityProxy := httputil.NewSingleHostReverseProxy(identityServiceURL)

	http.Handle("/api/v1/catalog/", http.StripPrefix("/api/v1/catalog", catalogProxy))
	http.Handle("/api/v1/circulation/", http.StripPrefix("/api/v1/circulation", circulationProxy))
	http.Handle("/api/v1/identity/", http.StripPrefix("/api/v1/identity", identityProxy))

	port := getEnv("PORT", "8080")
	logger.Info("api gateway listening", "port", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
