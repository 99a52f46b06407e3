package riot

import "strings"

// Route holds both addressing schemes the Riot API uses: platform routing
// (one server cluster, e.g. na1) and regional routing (a geographic grouping
// of clusters, e.g. americas).
type Route struct {
	Platform string
	Region   string
}

// platformToRegion maps every platform routing value to its regional group.
var platformToRegion = map[string]string{
	"br1":  "americas",
	"la1":  "americas",
	"la2":  "americas",
	"na1":  "americas",
	"jp1":  "asia",
	"kr":   "asia",
	"eun1": "europe",
	"euw1": "europe",
	"tr1":  "europe",
	"ru":   "europe",
	"oc1":  "sea",
	"ph2":  "sea",
	"sg2":  "sea",
	"th2":  "sea",
	"tw2":  "sea",
	"vn2":  "sea",
}

// regionToPlatform picks a canonical platform for each regional group, used
// when the caller only supplies the broad value.
var regionToPlatform = map[string]string{
	"americas": "na1",
	"asia":     "kr",
	"europe":   "euw1",
	"sea":      "oc1",
}

// Resolver is the pure platform/region mapping. It is total: any hint that
// is not a known routing value degrades to the configured defaults.
type Resolver struct {
	defaultPlatform string
	defaultRegion   string
}

func NewResolver(defaultPlatform, defaultRegion string) *Resolver {
	if _, ok := platformToRegion[defaultPlatform]; !ok {
		defaultPlatform = "na1"
	}
	if _, ok := regionToPlatform[defaultRegion]; !ok {
		defaultRegion = "americas"
	}
	return &Resolver{
		defaultPlatform: defaultPlatform,
		defaultRegion:   defaultRegion,
	}
}

// Resolve maps a user-supplied routing hint to both addressing schemes.
// broadOnly marks API families that are only served on regional hosts and
// have no "sea" deployment; for those the sea group is remapped to asia.
func (r *Resolver) Resolve(hint string, broadOnly bool) Route {
	hint = strings.ToLower(strings.TrimSpace(hint))

	route := Route{Platform: r.defaultPlatform, Region: r.defaultRegion}
	if region, ok := platformToRegion[hint]; ok {
		route = Route{Platform: hint, Region: region}
	} else if platform, ok := regionToPlatform[hint]; ok {
		route = Route{Platform: platform, Region: hint}
	}

	// account-v1 has no sea cluster; asia serves those platforms
	if broadOnly && route.Region == "sea" {
		route.Region = "asia"
	}

	return route
}
