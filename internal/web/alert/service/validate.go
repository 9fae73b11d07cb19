package service

import (
	"math"
	"mime"
	"strconv"
	"strings"
)

// AllowedImageTypes are the MIME types accepted for upload.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// NormalizeImageType strips parameters and lowercases contentType,
// failing when it is not an allowed image type.
func NormalizeImageType(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if mediaType == "image/jpg" {
		mediaType = "image/jpeg"
	}

	for _, allowed := range AllowedImageTypes {
		if mediaType == allowed {
			return mediaType, nil
		}
	}

	return "", inputErr("Unsupported image type. Allowed types: " + strings.Join(AllowedImageTypes, ", "))
}

// ParseCoordinates validates raw latitude and longitude strings.
func ParseCoordinates(rawLat, rawLng string) (lat, lng float64, err error) {
	rawLat, rawLng = strings.TrimSpace(rawLat), strings.TrimSpace(rawLng)
	if rawLat == "" || rawLng == "" {
		return 0, 0, inputErr("Latitude and longitude are required")
	}

	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lng, errLng := strconv.ParseFloat(rawLng, 64)
	if errLat != nil || errLng != nil {
		return 0, 0, inputErr("Latitude and longitude must be valid numbers")
	}

	return lat, lng, ValidateCoordinates(lat, lng)
}

// ValidateCoordinates checks geographic bounds.
func ValidateCoordinates(lat, lng float64) error {
	switch {
	case math.IsNaN(lat) || math.IsNaN(lng):
		return inputErr("Latitude and longitude must be valid numbers")
	case lat < -90 || lat > 90:
		return inputErr("Latitude must be between -90 and 90")
	case lng < -180 || lng > 180:
		return inputErr("Longitude must be between -180 and 180")
	default:
		return nil
	}
}
