package models

// ImageContent is an image body fetched from its origin.
type ImageContent struct {
	Data        []byte
	ContentType string
}

// UploadedImage describes an image accepted by the upload endpoint.
type UploadedImage struct {
	// Key is the object key the image was stored under.
	Key string
	// URL is the public URL of the stored image.
	URL string
}
