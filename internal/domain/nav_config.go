package domain

// optional string fields of the site block
var siteStringFields = []string{
	"sidebarTitle",
	"bannerTitle",
	"description",
	"defaultTheme",
	"timeZone",
	"sidebarAvatarSrc",
	"deployedDomain",
	"faviconProxyBase",
	"adminPath",
}

// IsNavConfig validates the link-directory document shape: a site block with a
// title and a list of categories, each holding a list of links.
func IsNavConfig(v any) bool {
	obj, ok := asRecord(v)
	if !ok {
		return false
	}
	site, ok := asRecord(obj["site"])
	if !ok {
		return false
	}
	if _, ok := site["title"].(string); !ok {
		return false
	}
	for _, field := range siteStringFields {
		if !optionalString(site, field) {
			return false
		}
	}
	categories, ok := obj["categories"].([]any)
	if !ok {
		return false
	}
	for _, c := range categories {
		if !isNavCategory(c) {
			return false
		}
	}
	return true
}

func isNavCategory(v any) bool {
	obj, ok := asRecord(v)
	if !ok {
		return false
	}
	if !requiredStrings(obj, "id", "name") {
		return false
	}
	if order, present := obj["order"]; present {
		if _, ok := order.(float64); !ok {
			return false
		}
	}
	items, ok := obj["items"].([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if !isNavLink(item) {
			return false
		}
	}
	return true
}

func isNavLink(v any) bool {
	obj, ok := asRecord(v)
	if !ok {
		return false
	}
	if !requiredStrings(obj, "id", "name", "url") {
		return false
	}
	if !optionalString(obj, "desc") {
		return false
	}
	if tags, present := obj["tags"]; present {
		list, ok := tags.([]any)
		if !ok {
			return false
		}
		for _, tag := range list {
			if _, ok := tag.(string); !ok {
				return false
			}
		}
	}
	return true
}

func asRecord(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok && obj != nil
}

func requiredStrings(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k].(string); !ok {
			return false
		}
	}
	return true
}

// optionalString accepts an absent key or a string; null is rejected.
func optionalString(obj map[string]any, key string) bool {
	v, present := obj[key]
	if !present {
		return true
	}
	_, ok := v.(string)
	return ok
}
