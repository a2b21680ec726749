// Package selector maps extracted field keys to priority-ordered CSS
// selectors the browser agent can use to address form elements.
//
// Matching is DOM-grounded first: a field key is compared against the actual
// page fields reported by the DOM scanner, and a matched element contributes
// its own pre-computed selector plus id and name selectors. Only when no page
// field matches does the static per-class catalog apply, and only when the
// key fits no known class do generic wildcard selectors act as the last
// resort. A fill attempt therefore always has something to try, ranked by
// how grounded it is in the observed page.
package selector

// catalog holds priority-ordered CSS selectors per canonical field class,
// most specific first. Applied only when no scanned page field matched.
var catalog = map[string][]string{
	"name": {
		"#name", "#fullName", "#full-name", "#full_name",
		"[name='name']", "[name='fullName']", "[name='full_name']",
		"[name='full-name']", "[autocomplete='name']",
		"input[placeholder*='name' i]", "input[aria-label*='name' i]",
	},
	"first_name": {
		"#firstName", "#first-name", "#first_name", "#fname",
		"[name='firstName']", "[name='first_name']", "[name='fname']",
		"[autocomplete='given-name']",
		"input[placeholder*='first name' i]",
	},
	"last_name": {
		"#lastName", "#last-name", "#last_name", "#lname",
		"[name='lastName']", "[name='last_name']", "[name='lname']",
		"[autocomplete='family-name']",
		"input[placeholder*='last name' i]",
	},
	"email": {
		"#email", "#emailAddress", "#email-address",
		"[name='email']", "[name='emailAddress']",
		"[type='email']", "[autocomplete='email']",
		"input[placeholder*='email' i]",
	},
	"phone": {
		"#phone", "#phoneNumber", "#phone-number", "#tel",
		"[name='phone']", "[name='phoneNumber']", "[name='tel']",
		"[type='tel']", "[autocomplete='tel']",
		"input[placeholder*='phone' i]",
	},
	"address": {
		"#address", "#streetAddress", "#street-address", "#address1",
		"[name='address']", "[name='streetAddress']", "[name='address1']",
		"[autocomplete='street-address']",
		"input[placeholder*='address' i]", "textarea[placeholder*='address' i]",
	},
	"city": {
		"#city", "#addressCity",
		"[name='city']", "[name='addressCity']",
		"[autocomplete='address-level2']",
		"input[placeholder*='city' i]",
	},
	"state": {
		"#state", "#addressState", "#province",
		"[name='state']", "[name='addressState']", "[name='province']",
		"[autocomplete='address-level1']",
		"input[placeholder*='state' i]", "select[name*='state' i]",
	},
	"zip": {
		"#zip", "#zipCode", "#zip-code", "#postalCode", "#postal-code",
		"[name='zip']", "[name='zipCode']", "[name='postalCode']",
		"[autocomplete='postal-code']",
		"input[placeholder*='zip' i]", "input[placeholder*='postal' i]",
	},
	"country": {
		"#country", "#addressCountry",
		"[name='country']", "[name='addressCountry']",
		"[autocomplete='country']", "[autocomplete='country-name']",
		"select[name*='country' i]", "input[placeholder*='country' i]",
	},
	"company": {
		"#company", "#organization", "#org",
		"[name='company']", "[name='organization']",
		"[autocomplete='organization']",
		"input[placeholder*='company' i]", "input[placeholder*='organization' i]",
	},
}

// autocompleteMap pairs HTML autocomplete tokens with the field keys they
// denote. Matching applies it in both directions: a DOM element's
// autocomplete token against the extracted key, and the extracted key's
// class against the element's token.
var autocompleteMap = map[string][]string{
	"given-name":     {"first_name", "firstname", "fname", "first"},
	"family-name":    {"last_name", "lastname", "lname", "last", "surname"},
	"name":           {"name", "fullname", "full_name"},
	"email":          {"email", "emailaddress", "email_address"},
	"tel":            {"phone", "phonenumber", "phone_number", "telephone", "tel", "mobile"},
	"street-address": {"address", "streetaddress", "street_address", "address1"},
	"address-level2": {"city", "addresscity"},
	"address-level1": {"state", "province", "addressstate"},
	"postal-code":    {"zip", "zipcode", "zip_code", "postalcode", "postal_code"},
	"country-name":   {"country", "addresscountry"},
	"organization":   {"company", "organization", "org"},
	"username":       {"username", "user", "login"},
}
