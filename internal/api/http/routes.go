// Package http exposes the image tracker over HTTP: uploads, short links, tracked image
// delivery and access statistics.
package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vadimbarashkov/image-tracker/docs"
	"github.com/vadimbarashkov/image-tracker/internal/models"
	"github.com/vadimbarashkov/image-tracker/pkg/middleware/recoverer"
)

const (
	ResolveRedirect = "redirect"
	ResolveInline   = "inline"

	defaultMaxUploadSize = 10 << 20
)

type LinkService interface {
	Shorten(ctx context.Context, originalURL string) (*models.ShortLink, error)
	Resolve(ctx context.Context, shortID string) (*models.ShortLink, error)
}

type TrackService interface {
	NewEvent(imageURL, ip, userAgent, referrer string) models.AccessEvent
	Serve(ctx context.Context, event models.AccessEvent) (*models.ImageContent, models.AccessOutcome, error)
	Summary(ctx context.Context, imageURL string) (*models.AccessSummary, error)
}

type ImageService interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadedImage, error)
}

// Options configures the router.
type Options struct {
	// PublicBaseURL prefixes returned short links.
	PublicBaseURL string
	// AllowedOrigin is the single origin allowed for cross-origin requests.
	AllowedOrigin string
	// ResolveMode selects how GET /api/{shortId} answers: ResolveRedirect or ResolveInline.
	ResolveMode   string
	MaxUploadSize int64
	// ImagesDir is served under /images/ when set.
	ImagesDir string
}

func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	validate.RegisterValidation("secure_url", func(fl validator.FieldLevel) bool {
		return models.IsSecureURL(fl.Field().String())
	})

	return validate
}

func NewRouter(logger *httplog.Logger, opts Options, links LinkService, tracker TrackService, images ImageService) http.Handler {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultMaxUploadSize
	}
	opts.PublicBaseURL = strings.TrimSuffix(opts.PublicBaseURL, "/")

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{opts.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(recoverer.New(logger.Logger))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(docs.Swagger)
	})

	if opts.ImagesDir != "" {
		r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(opts.ImagesDir))))
	}

	r.Route("/api", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)
		r.Post("/upload", handleUpload(images, opts.MaxUploadSize))
		r.Post("/shorten", handleShorten(links, validate, opts.PublicBaseURL))
		r.Get("/track", handleTrack(tracker, validate))
		r.Get("/stats", handleStats(tracker, validate))
		r.Get("/{shortId}", handleResolve(links, tracker, opts.ResolveMode))
	})

	return r
}
