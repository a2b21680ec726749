package selector

import (
	"regexp"
	"strings"
)

// synonyms maps common key spellings and aliases to canonical field classes.
// Keys are lower-case; lookups happen after lower-casing and again after
// camelCase conversion.
var synonyms = map[string]string{
	"fullname":       "name",
	"full_name":      "name",
	"full name":      "name",
	"firstname":      "first_name",
	"first name":     "first_name",
	"first":          "first_name",
	"fname":          "first_name",
	"given name":     "first_name",
	"givenname":      "first_name",
	"lastname":       "last_name",
	"last name":      "last_name",
	"last":           "last_name",
	"lname":          "last_name",
	"surname":        "last_name",
	"familyname":     "last_name",
	"family name":    "last_name",
	"emailaddress":   "email",
	"email_address":  "email",
	"email address":  "email",
	"e-mail":         "email",
	"mail":           "email",
	"phonenumber":    "phone",
	"phone_number":   "phone",
	"phone number":   "phone",
	"telephone":      "phone",
	"tel":            "phone",
	"mobile":         "phone",
	"cell":           "phone",
	"cellphone":      "phone",
	"streetaddress":  "address",
	"street_address": "address",
	"street address": "address",
	"address1":       "address",
	"addr":           "address",
	"zipcode":        "zip",
	"zip_code":       "zip",
	"zip code":       "zip",
	"postalcode":     "zip",
	"postal_code":    "zip",
	"postal code":    "zip",
	"postcode":       "zip",
	"organization":   "company",
	"org":            "company",
	"employer":       "company",
}

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// Normalize reduces a field key to its canonical class name: "firstName",
// "first name", and "fname" all become "first_name". Keys with no known
// synonym come back lower-cased and trimmed. Normalize is idempotent.
func Normalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := synonyms[lower]; ok {
		return canonical
	}

	snake := strings.ToLower(camelBoundary.ReplaceAllString(strings.TrimSpace(name), "${1}_${2}"))
	if canonical, ok := synonyms[snake]; ok {
		return canonical
	}

	return lower
}
