package http

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/image-tracker/internal/database"
	"github.com/vadimbarashkov/image-tracker/internal/models"
	"github.com/vadimbarashkov/image-tracker/internal/service"
	"github.com/vadimbarashkov/image-tracker/pkg/response"
)

const (
	uploadFormField = "file"

	// multipartOverhead leaves room for boundaries and part headers on top of the file itself.
	multipartOverhead = 1 << 20
)

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

type uploadResponse struct {
	ImageURL string `json:"imageUrl"`
}

func handleUpload(svc ImageService, maxSize int64) http.HandlerFunc {
	const op = "api.http.handleUpload"

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

		if err := r.ParseMultipartForm(maxSize); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.FileTooLargeResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.InvalidRequestBodyResponse)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile(uploadFormField)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.FileMissingResponse)
			return
		}
		defer file.Close()

		if header.Size > maxSize {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.FileTooLargeResponse)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		img, err := svc.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
		if err != nil {
			if errors.Is(err, service.ErrEmptyFile) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.FileMissingResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, uploadResponse{ImageURL: img.URL})
	}
}

type shortenRequest struct {
	ImageURL string `json:"image_url" validate:"required,secure_url"`
}

type shortenResponse struct {
	ShortURL string `json:"short_url"`
}

func handleShorten(svc LinkService, validate *validator.Validate, baseURL string) http.HandlerFunc {
	const op = "api.http.handleShorten"

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.InvalidRequestBodyResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.InvalidURLResponse.WithDetails(err))
			return
		}

		link, err := svc.Shorten(r.Context(), req.ImageURL)
		if err != nil {
			if errors.Is(err, service.ErrInvalidURL) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.InvalidURLResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, shortenResponse{ShortURL: baseURL + "/api/" + link.ShortID})
	}
}

func handleTrack(svc TrackService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleTrack"

	return func(w http.ResponseWriter, r *http.Request) {
		imageURL := r.URL.Query().Get("image_url")

		if err := validate.Var(imageURL, "required,secure_url"); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.InvalidURLResponse)
			return
		}

		event := svc.NewEvent(imageURL, clientIP(r), r.UserAgent(), r.Referer())

		img, outcome, err := svc.Serve(r.Context(), event)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "outcome": outcome, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ImageFetchFailedResponse)
			return
		}

		httplog.LogEntrySetFields(r.Context(), map[string]any{"outcome": outcome})
		writeImage(w, img)
	}
}

func handleResolve(links LinkService, tracker TrackService, mode string) http.HandlerFunc {
	const op = "api.http.handleResolve"

	return func(w http.ResponseWriter, r *http.Request) {
		shortID := chi.URLParam(r, "shortId")

		link, err := links.Resolve(r.Context(), shortID)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.LinkNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		if mode != ResolveInline {
			http.Redirect(w, r, "/api/track?image_url="+url.QueryEscape(link.OriginalURL), http.StatusFound)
			return
		}

		event := tracker.NewEvent(link.OriginalURL, clientIP(r), r.UserAgent(), r.Referer())

		img, outcome, err := tracker.Serve(r.Context(), event)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "outcome": outcome, "err": err})

			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ImageNotFoundResponse)
			return
		}

		httplog.LogEntrySetFields(r.Context(), map[string]any{"outcome": outcome})
		writeImage(w, img)
	}
}

type statsResponse struct {
	ImageURL    string    `json:"image_url"`
	AccessCount int64     `json:"access_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func handleStats(svc TrackService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleStats"

	return func(w http.ResponseWriter, r *http.Request) {
		imageURL := r.URL.Query().Get("image_url")

		if err := validate.Var(imageURL, "required,secure_url"); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.InvalidURLResponse)
			return
		}

		summary, err := svc.Summary(r.Context(), imageURL)
		if err != nil {
			if errors.Is(err, database.ErrSummaryNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.StatsNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, statsResponse{
			ImageURL:    summary.ImageURL,
			AccessCount: summary.AccessCount,
			UpdatedAt:   summary.UpdatedAt,
		})
	}
}

// writeImage streams img with caching disabled so every view reaches the tracker.
func writeImage(w http.ResponseWriter, img *models.ImageContent) {
	h := w.Header()
	h.Set("Content-Type", img.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(img.Data)))
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")

	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// clientIP returns the caller address after middleware.RealIP has applied forwarding headers.
func clientIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
