package crawler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"brand-deck-platform/models"

	"github.com/PuerkitoBio/goquery"
)

// Fact values are capped so a marketing-department description never
// bloats the snapshot record.
const maxFactValueLen = 500

// ExtractSiteFacts pulls brand facts out of a page: JSON-LD structured
// data first, then the meta tags most sites carry. Callers dedup facts
// across pages.
func ExtractSiteFacts(sel *goquery.Selection, pageURL string) []models.SiteFact {
	var facts []models.SiteFact
	now := time.Now()

	add := func(name, value string) {
		value = cleanFactValue(value)
		if value == "" {
			return
		}
		facts = append(facts, models.SiteFact{
			Name:      name,
			Value:     value,
			SourceURL: pageURL,
			ParsedAt:  now,
		})
	}

	sel.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		for _, node := range decodeJSONLD(s.Text()) {
			factsFromJSONLD(node, add)
		}
	})

	// Meta tags carry the same facts on sites without structured data.
	if siteName, ok := sel.Find("meta[property='og:site_name']").Attr("content"); ok {
		add("site_name", siteName)
	}
	if desc, ok := sel.Find("meta[name='description']").Attr("content"); ok {
		add("description", desc)
	} else if ogDesc, ok := sel.Find("meta[property='og:description']").Attr("content"); ok {
		add("description", ogDesc)
	}
	if themeColor, ok := sel.Find("meta[name='theme-color']").Attr("content"); ok {
		add("theme_color", themeColor)
	}

	return facts
}

// decodeJSONLD tolerates the three shapes JSON-LD ships in: a single
// object, an array of objects, and an object wrapping an @graph array.
func decodeJSONLD(text string) []map[string]interface{} {
	var raw interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil
	}

	var nodes []map[string]interface{}
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch value := v.(type) {
		case map[string]interface{}:
			nodes = append(nodes, value)
			if graph, ok := value["@graph"].([]interface{}); ok {
				for _, entry := range graph {
					walk(entry)
				}
			}
		case []interface{}:
			for _, entry := range value {
				walk(entry)
			}
		}
	}
	walk(raw)
	return nodes
}

func factsFromJSONLD(node map[string]interface{}, add func(name, value string)) {
	types := nodeTypes(node)

	switch {
	case hasOrganizationType(types):
		add("organization_name", stringField(node, "name"))
		add("legal_name", stringField(node, "legalName"))
		add("description", stringField(node, "description"))
		add("tagline", stringField(node, "slogan"))
		add("founding_date", stringField(node, "foundingDate"))
		add("employee_count", quantityValue(node["numberOfEmployees"]))
		add("telephone", stringField(node, "telephone"))
		add("email", stringField(node, "email"))
		add("logo_url", urlValue(node["logo"]))
		add("address", postalAddress(node["address"]))
		for _, profile := range stringSlice(node["sameAs"]) {
			add("social_profile", profile)
		}
	case hasType(types, "WebSite"):
		add("site_name", stringField(node, "name"))
		add("description", stringField(node, "description"))
	}
}

func nodeTypes(node map[string]interface{}) []string {
	switch t := node["@type"].(type) {
	case string:
		return []string{t}
	case []interface{}:
		var types []string
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		return types
	}
	return nil
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

// hasOrganizationType matches the schema.org organization family.
// Subtypes like NewsMediaOrganization or LocalBusiness all describe the
// company behind the site, so suffix matching covers most of them.
func hasOrganizationType(types []string) bool {
	for _, t := range types {
		if strings.HasSuffix(t, "Organization") || strings.HasSuffix(t, "Business") {
			return true
		}
		switch t {
		case "Corporation", "Brand", "NGO", "Airline":
			return true
		}
	}
	return false
}

func stringField(node map[string]interface{}, key string) string {
	value, _ := node[key].(string)
	return value
}

// quantityValue handles plain strings, numbers and schema.org
// QuantitativeValue objects.
func quantityValue(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return fmt.Sprintf("%.0f", value)
	case map[string]interface{}:
		return quantityValue(value["value"])
	}
	return ""
}

// urlValue handles plain URL strings and ImageObject wrappers.
func urlValue(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case map[string]interface{}:
		return stringField(value, "url")
	}
	return ""
}

// postalAddress flattens a schema.org PostalAddress into one line.
func postalAddress(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case map[string]interface{}:
		parts := []string{
			stringField(value, "streetAddress"),
			stringField(value, "addressLocality"),
			stringField(value, "addressRegion"),
			stringField(value, "postalCode"),
		}
		switch country := value["addressCountry"].(type) {
		case string:
			parts = append(parts, country)
		case map[string]interface{}:
			parts = append(parts, stringField(country, "name"))
		}

		var nonEmpty []string
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				nonEmpty = append(nonEmpty, part)
			}
		}
		return strings.Join(nonEmpty, ", ")
	}
	return ""
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cleanFactValue(value string) string {
	value = strings.Join(strings.Fields(value), " ")
	if utf8.RuneCountInString(value) > maxFactValueLen {
		value = string([]rune(value)[:maxFactValueLen])
	}
	return value
}
