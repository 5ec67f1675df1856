package engine

import (
	"regexp"
	"strconv"

	"reportbot/internal/model"
)

// Location text grammar, evaluated in priority order: explicit GPS pair,
// then the recognized map-provider URL patterns. First match wins.
var (
	gpsPattern    = regexp.MustCompile(`^(-?\d+\.\d+),\s*(-?\d+\.\d+)$`)
	googlePattern = regexp.MustCompile(`^https://.*goo\.gl/.*`)
	yandexPattern = regexp.MustCompile(`^https://yandex.*`)
)

// parseLocationText recognizes a freeform location reply. Returns false when
// the text matches none of the known patterns.
func parseLocationText(text string) (model.Location, bool) {
	if m := gpsPattern.FindStringSubmatch(text); m != nil {
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lon, errLon := strconv.ParseFloat(m[2], 64)
		if errLat != nil || errLon != nil {
			return model.Location{}, false
		}
		return model.Location{Coordinates: &model.Coordinates{Lat: lat, Lon: lon}}, true
	}

	if googlePattern.MatchString(text) {
		return model.Location{Link: &model.ExternalLink{
			Provider: model.ProviderGoogle,
			URL:      text,
			RawText:  text,
		}}, true
	}

	if yandexPattern.MatchString(text) {
		return model.Location{Link: &model.ExternalLink{
			Provider: model.ProviderYandex,
			URL:      text,
			RawText:  text,
		}}, true
	}

	return model.Location{}, false
}
