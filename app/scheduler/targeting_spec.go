package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
)

// Targeting spec keys understood by the reach estimate API
const (
	specInterests    = "interests"
	specConnections  = "connections"
	specGeoLocations = "geo_locations"
)

// CloneSpec deep copies a targeting spec through its JSON form
func CloneSpec(spec map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode targeting spec: %w", err)
	}
	clone := make(map[string]any)
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, fmt.Errorf("failed to decode targeting spec: %w", err)
	}
	return clone, nil
}

// OmitSpecKeys returns a shallow copy of spec without the given keys
func OmitSpecKeys(spec map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(spec))
	for k, v := range spec {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// BuildTargetingSpec turns an audience category spec and a geolocation into the spec of one
// audience fetch job. Interests are collapsed to their ids.
func BuildTargetingSpec(categorySpec map[string]any, geo *models.Geolocation) (map[string]any, error) {
	spec, err := CloneSpec(categorySpec)
	if err != nil {
		return nil, err
	}

	if interests, ok := spec[specInterests].([]any); ok {
		ids := make([]any, 0, len(interests))
		for _, interest := range interests {
			switch v := interest.(type) {
			case map[string]any:
				if id, ok := v["id"]; ok {
					ids = append(ids, id)
				}
			default:
				ids = append(ids, v)
			}
		}
		spec[specInterests] = ids
	}

	geoLocations, err := buildGeoLocations(geo)
	if err != nil {
		return nil, err
	}
	if geoLocations != nil {
		spec[specGeoLocations] = geoLocations
	}
	return spec, nil
}

func buildGeoLocations(geo *models.Geolocation) (map[string]any, error) {
	switch {
	case geo.Type == models.GeolocationTypeCenter:
		if geo.Center == nil {
			return nil, fmt.Errorf("geolocation %s has no center", geo.ID)
		}
		return map[string]any{
			"custom_locations": []any{
				map[string]any{
					"latitude":      geo.Center.Center[0],
					"longitude":     geo.Center.Center[1],
					"radius":        geo.Center.Radius,
					"distance_unit": "kilometer",
				},
			},
		}, nil
	case (geo.Type == "" || geo.Type == models.GeolocationTypeLocation) && len(geo.Facebook) > 0:
		locations := make(map[string]any)
		for _, loc := range geo.Facebook {
			group, err := locationGroup(loc.Type)
			if err != nil {
				return nil, fmt.Errorf("geolocation %s: %w", geo.ID, err)
			}
			var entry any = map[string]any{"key": loc.Key}
			if group == "countries" {
				entry = loc.Key
			}
			list, _ := locations[group].([]any)
			locations[group] = append(list, entry)
		}
		return locations, nil
	default:
		return nil, nil
	}
}

func locationGroup(locationType string) (string, error) {
	switch locationType {
	case "region":
		return "regions", nil
	case "country":
		return "countries", nil
	case "city", "cities":
		return "cities", nil
	default:
		return "", fmt.Errorf("unsupported location type %q", locationType)
	}
}
