package harvester

import "fmt"

// ErrUnmappedArea is returned when an area name has no source code. Silently
// defaulting would search the wrong region, so this is fatal at startup.
var ErrUnmappedArea = fmt.Errorf("area name has no source area code")

// areaCodes maps human-readable region names to the source's numeric area
// codes. The numeric form is also accepted as-is.
var areaCodes = map[string]string{
	"台北市": "6001001000",
	"新北市": "6001002000",
	"宜蘭縣": "6001003000",
	"基隆市": "6001004000",
	"桃園市": "6001005000",
	"新竹縣市": "6001006000",
	"苗栗縣": "6001007000",
	"台中市": "6001008000",
	"彰化縣": "6001010000",
	"南投縣": "6001011000",
	"雲林縣": "6001012000",
	"嘉義縣市": "6001013000",
	"台南市": "6001014000",
	"高雄市": "6001016000",
	"屏東縣": "6001018000",
	"台東縣": "6001019000",
	"花蓮縣": "6001020000",
	"澎湖縣": "6001021000",
	"金門縣": "6001022000",
	"連江縣": "6001023000",
}

// ResolveArea translates an area name into the source's numeric code.
// Numeric codes pass through untouched so operators can supply them directly.
func ResolveArea(area string) (string, error) {
	if area == "" {
		return "", fmt.Errorf("%w: empty area", ErrUnmappedArea)
	}
	if isNumeric(area) {
		return area, nil
	}
	code, ok := areaCodes[area]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedArea, area)
	}
	return code, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
