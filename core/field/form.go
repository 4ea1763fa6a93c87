package field

// Rule checks a single value.
type Rule func(string) Result

// Check looks up the named check. Names are the ones accepted by the live validation endpoint.
func Check(name string) (Rule, bool) {
	rule, found := rules[name]
	return rule, found
}

var rules = map[string]Rule{
	"required":    Required,
	"brin":        BRIN,
	"postal_code": PostalCode,
	"phone":       Phone,
	"email":       Email,
	"name":        Name,
	"password":    Password,
	"date":        Date,
	"url":         URL,
}

// Optional wraps r so that empty values pass.
func Optional(r Rule) Rule {
	return func(s string) Result {
		if Required(s).Valid {
			return r(s)
		}
		return ok("")
	}
}

// NumberRule adapts Number to a Rule.
func NumberRule(min, max float64, allowDecimals bool) Rule {
	return func(s string) Result { return Number(s, min, max, allowDecimals) }
}

// Form runs the rules of every field in order, stopping at the first failing rule of a field.
// It returns the normalised values and the field errors.
func Form(values map[string]string, fieldRules map[string][]Rule) (map[string]string, map[string]string) {
	clean := make(map[string]string, len(values))
	errs := make(map[string]string)
	for name, rs := range fieldRules {
		val := values[name]
		for _, rule := range rs {
			res := rule(val)
			if !res.Valid {
				errs[name] = res.Message
				break
			}
			if res.Value != "" {
				val = res.Value
			}
		}
		clean[name] = val
	}
	return clean, errs
}
