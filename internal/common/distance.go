package common

import "math"

const EARTH_RADIUS_KM = 6371.0

// Distance returns the great-circle distance in kilometers between two WGS84 points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := degreesToRadians(lat1)
	phi2 := degreesToRadians(lat2)
	dPhi := degreesToRadians(lat2 - lat1)
	dLambda := degreesToRadians(lon2 - lon1)

	a := math.Pow(math.Sin(dPhi/2), 2) + math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLambda/2), 2)
	// rounding can push a just past 1 near the antipode
	a = min(1, max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EARTH_RADIUS_KM * c
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
