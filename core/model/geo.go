package model

import "math"

const earthRadiusKm = 6371.0

// GeoPoint is a GPS position with an optional logistics zone tag
// (SP-Capital, SP-Interior, RJ-Rio, ...).
type GeoPoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zone string  `json:"zone,omitempty"`
}

// DistanceKm returns the haversine distance between two points in kilometers.
func (p GeoPoint) DistanceKm(o GeoPoint) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := o.Lat * math.Pi / 180
	dLat := (o.Lat - p.Lat) * math.Pi / 180
	dLon := (o.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
