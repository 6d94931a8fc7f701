package geonames

// countryDensity is the average population density (people/km²) keyed by
// lower-cased country name.
var countryDensity = map[string]float64{
	"argentina":                17,
	"australia":                3,
	"bangladesh":               1265,
	"brazil":                   25,
	"brasil":                   25,
	"canada":                   4,
	"china":                    153,
	"egypt":                    103,
	"france":                   119,
	"germany":                  240,
	"deutschland":              240,
	"india":                    464,
	"indonesia":                151,
	"italy":                    206,
	"japan":                    347,
	"mexico":                   66,
	"méxico":                   66,
	"nigeria":                  226,
	"pakistan":                 287,
	"portugal":                 112,
	"russia":                   9,
	"spain":                    94,
	"españa":                   94,
	"united kingdom":           281,
	"united states":            36,
	"united states of america": 36,
}
