package vehicle

import (
	"net/url"
	"strings"
	"unicode"
)

// Canonical fuel type values. Unknown inputs pass through as trimmed raw
// strings so no data is silently dropped.
const (
	FuelPetrol   = "petrol"
	FuelDiesel   = "diesel"
	FuelElectric = "electric"
	FuelHybrid   = "hybrid"
	FuelLPG      = "lpg"
	FuelCNG      = "cng"
)

const (
	TransmissionManual    = "manual"
	TransmissionAutomatic = "automatic"
)

var fuelAliases = map[string]string{
	"petrol":        FuelPetrol,
	"gasoline":      FuelPetrol,
	"benzin":        FuelPetrol,
	"benzine":       FuelPetrol,
	"essence":       FuelPetrol,
	"diesel":        FuelDiesel,
	"gasoil":        FuelDiesel,
	"electric":      FuelElectric,
	"elektro":       FuelElectric,
	"ev":            FuelElectric,
	"hybrid":        FuelHybrid,
	"plug-in hybrid": FuelHybrid,
	"hybrid (petrol/electric)": FuelHybrid,
	"lpg":      FuelLPG,
	"autogas":  FuelLPG,
	"cng":      FuelCNG,
	"erdgas":   FuelCNG,
	"natural gas": FuelCNG,
}

var transmissionAliases = map[string]string{
	"manual":         TransmissionManual,
	"manual gearbox": TransmissionManual,
	"schaltgetriebe": TransmissionManual,
	"automatic":      TransmissionAutomatic,
	"automatik":      TransmissionAutomatic,
	"auto":           TransmissionAutomatic,
	"semi-automatic": TransmissionAutomatic,
	"automatic transmission": TransmissionAutomatic,
}

var bodyAliases = map[string]string{
	"sedan":         "sedan",
	"saloon":        "sedan",
	"limousine":     "sedan",
	"estate":        "estate",
	"station wagon": "estate",
	"kombi":         "estate",
	"suv":           "suv",
	"off-road":      "suv",
	"suv/off-road/pick-up": "suv",
	"hatchback":     "hatchback",
	"compact":       "hatchback",
	"coupe":         "coupe",
	"coupé":         "coupe",
	"convertible":   "convertible",
	"cabrio":        "convertible",
	"cabriolet":     "convertible",
	"van":           "van",
	"minibus":       "van",
	"transporter":   "van",
	"pickup":        "pickup",
	"pick-up":       "pickup",
}

var currencySymbols = map[string]string{
	"€":   "EUR",
	"$":   "USD",
	"£":   "GBP",
	"chf": "CHF",
	"kr":  "SEK",
	"zł":  "PLN",
	"lek": "ALL",
}

// NormalizeFuel maps free-text fuel descriptions to canonical values.
func NormalizeFuel(s string) string {
	return normalizeEnum(s, fuelAliases)
}

// NormalizeTransmission maps free-text transmission descriptions to canonical values.
func NormalizeTransmission(s string) string {
	return normalizeEnum(s, transmissionAliases)
}

// NormalizeBody maps free-text body types to canonical values.
func NormalizeBody(s string) string {
	return normalizeEnum(s, bodyAliases)
}

func normalizeEnum(s string, aliases map[string]string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	if canonical, ok := aliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	// Unknown value: keep the raw string rather than dropping it.
	return trimmed
}

// NormalizeCurrency maps a currency symbol or code to an ISO 4217 code.
func NormalizeCurrency(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	if iso, ok := currencySymbols[strings.ToLower(trimmed)]; ok {
		return iso
	}
	if len(trimmed) == 3 && isLetters(trimmed) {
		return strings.ToUpper(trimmed)
	}
	return trimmed
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// ParseNumber extracts an integer from locale-formatted text such as
// "12.500 km", "1,299", "€ 24.990" or "24 990 EUR". Returns 0 and false when
// no digits are present.
func ParseNumber(s string) (int, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n := 0
	for _, r := range b.String() {
		n = n*10 + int(r-'0')
	}
	return n, true
}

// ParsePrice splits locale-formatted price text ("€ 24.990,-") into an
// integer amount and an ISO currency code.
func ParsePrice(s string) (amount int, currency string, ok bool) {
	amount, ok = ParseNumber(s)
	if !ok {
		return 0, "", false
	}
	for sym, iso := range currencySymbols {
		if strings.Contains(strings.ToLower(s), sym) {
			return amount, iso, true
		}
	}
	// Look for a trailing/leading ISO code.
	for _, f := range strings.Fields(s) {
		f = strings.Trim(f, ".,-")
		if len(f) == 3 && isLetters(f) {
			return amount, strings.ToUpper(f), true
		}
	}
	return amount, "", true
}

// NormalizeURL canonicalizes a listing URL for identity: lowercase host,
// https default scheme, no trailing slash, no fragment.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if strings.HasSuffix(u.Path, "/") && len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	return u.String()
}

// Normalize applies all canonicalization rules to a record in place.
func Normalize(r *Record) {
	r.URL = NormalizeURL(r.URL)
	r.Currency = NormalizeCurrency(r.Currency)
	r.FuelType = NormalizeFuel(r.FuelType)
	r.Transmission = NormalizeTransmission(r.Transmission)
	r.BodyType = NormalizeBody(r.BodyType)
	r.Make = strings.TrimSpace(r.Make)
	r.Model = strings.TrimSpace(r.Model)
	r.City = strings.TrimSpace(r.City)
}
