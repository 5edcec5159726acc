package storage

import "strings"

const (
	videoPrefix     = "videos/"
	thumbnailPrefix = "thumbnails/"
)

// VideoKey is the object key for a media file: videos/<id>.<ext>.
func VideoKey(id, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "mp4"
	}
	return videoPrefix + id + "." + ext
}

// ThumbnailKey is the object key for a thumbnail: thumbnails/<id>.jpg.
func ThumbnailKey(id string) string {
	return thumbnailPrefix + id + ".jpg"
}

// ContentTypeForExt maps a media extension to its MIME type.
func ContentTypeForExt(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "mp4", "m4v":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "mov":
		return "video/quicktime"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
