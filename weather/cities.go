package weather

import "strings"

var cities = [...]string{
	"bari", "roma", "milano", "napoli", "torino",
	"palermo", "genova", "bologna", "firenze", "venezia",
}

// forbiddenChars may not appear anywhere in a city name.
const forbiddenChars = "\t@#$%&^*"

// SupportedCities returns a copy of the city table.
func SupportedCities() []string {
	out := make([]string, len(cities))
	copy(out, cities[:])
	return out
}

// HasForbiddenChars reports whether city contains a tab or one of @#$%&^*.
func HasForbiddenChars(city string) bool {
	return strings.ContainsAny(city, forbiddenChars)
}

// IsSupportedCity matches city against the table, ignoring case.
func IsSupportedCity(city string) bool {
	for _, c := range cities {
		if strings.EqualFold(city, c) {
			return true
		}
	}
	return false
}
