package ownership

import (
	"net/url"
	"strings"

	"github.com/sakaguchi/ownerstats/internal/entities"
)

// buildQueryParams renders the catalog-page filter query string for one
// aggregation row. Owners are emitted as a repeated key, one humanized
// reference each (group is the default kind for humanization), in the owner
// set's insertion order.
func buildQueryParams(owners *entities.RefSet, kind, entityType string) string {
	params := url.Values{}
	params.Set("filters[kind]", strings.ToLower(kind))
	if entityType != "" {
		params.Set("filters[type]", entityType)
	}
	for _, ref := range owners.Refs() {
		params.Add("filters[owners]", entities.HumanizeRef(ref, "group"))
	}
	params.Set("filters[user]", "all")
	return params.Encode()
}
