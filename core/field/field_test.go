package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBRIN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Result
	}{
		{name: "empty", in: "  ", want: Result{Message: MsgRequired}},
		{name: "valid", in: "01AB", want: Result{Valid: true, Value: "01AB"}},
		{name: "lowercase and spaces", in: " 12 xy ", want: Result{Valid: true, Value: "12XY"}},
		{name: "letters first", in: "AB01", want: Result{Value: "AB01", Message: MsgBRIN}},
		{name: "too long", in: "01ABC", want: Result{Value: "01ABC", Message: MsgBRIN}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BRIN(tt.in))
		})
	}
}

func TestPostalCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Result
	}{
		{name: "compact", in: "1234ab", want: Result{Valid: true, Value: "1234 AB"}},
		{name: "formatted", in: "1234 AB", want: Result{Valid: true, Value: "1234 AB"}},
		{name: "leading zero", in: "0123AB", want: Result{Value: "0123AB", Message: MsgPostalCode}},
		{name: "missing letters", in: "1234", want: Result{Value: "1234", Message: MsgPostalCode}},
		{name: "empty", in: "", want: Result{Message: MsgRequired}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PostalCode(tt.in))
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Result
	}{
		{name: "0031 prefix", in: "0031 6 1234 5678", want: Result{Valid: true, Value: "+31 6 1234 5678"}},
		{name: "+31 prefix", in: "+31 20 123 4567", want: Result{Valid: true, Value: "+31 2 0123 4567"}},
		{name: "mobile", in: "06-12345678", want: Result{Valid: true, Value: "06 1234 5678"}},
		{name: "landline", in: "(020) 123 4567", want: Result{Valid: true, Value: "020 123 4567"}},
		{name: "too short", in: "06 1234", want: Result{Value: "061234", Message: MsgPhone}},
		{name: "no digits", in: "abc", want: Result{Message: MsgRequired}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Phone(tt.in))
		})
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Result
	}{
		{name: "valid", in: " Jan@School.NL ", want: Result{Valid: true, Value: "jan@school.nl"}},
		{name: "typo gmai", in: "jan@gmai.com", want: Result{Valid: true, Value: "jan@gmai.com", Suggestion: "jan@gmail.com"}},
		{name: "typo hotmial", in: "jan@hotmial.com", want: Result{Valid: true, Value: "jan@hotmial.com", Suggestion: "jan@hotmail.com"}},
		{name: "no domain", in: "jan@", want: Result{Value: "jan@", Message: MsgEmail}},
		{name: "no tld", in: "jan@school", want: Result{Value: "jan@school", Message: MsgEmail}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Email(tt.in))
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Result
	}{
		{name: "title case", in: "jan de vries", want: Result{Valid: true, Value: "Jan De Vries"}},
		{name: "accents and hyphen", in: "émile van-dijk", want: Result{Valid: true, Value: "Émile Van-Dijk"}},
		{name: "apostrophe", in: "d'Artagnan", want: Result{Valid: true, Value: "D'artagnan"}},
		{name: "too short", in: "J", want: Result{Value: "J", Message: MsgNameLength}},
		{name: "digits", in: "Jan2", want: Result{Value: "Jan2", Message: MsgNameChars}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.in))
		})
	}
}

func TestDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Result
	}{
		{name: "dutch layout", in: "29-02-2024", want: Result{Valid: true, Value: "2024-02-29"}},
		{name: "iso layout", in: "2023-12-31", want: Result{Valid: true, Value: "2023-12-31"}},
		{name: "day out of range", in: "31-02-2024", want: Result{Value: "31-02-2024", Message: MsgDate}},
		{name: "not a leap year", in: "2023-02-29", want: Result{Value: "2023-02-29", Message: MsgDate}},
		{name: "garbage", in: "gisteren", want: Result{Value: "gisteren", Message: MsgDate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Date(tt.in))
		})
	}
}

func TestNumber(t *testing.T) {
	assert.True(t, Number("12", 1, 12, false).Valid)
	assert.True(t, Number("2,5", 0, 10, true).Valid)
	assert.Equal(t, MsgNoDecimals, Number("2.5", 0, 10, false).Message)
	assert.Equal(t, "Waarde mag maximaal 12 zijn", Number("13", 1, 12, false).Message)
	assert.Equal(t, "Waarde moet minimaal 1 zijn", Number("0", 1, 12, false).Message)
	assert.Equal(t, MsgNumber, Number("twaalf", 1, 12, false).Message)
}

func TestURL(t *testing.T) {
	assert.True(t, URL("https://school.nl/info").Valid)
	assert.False(t, URL("ftp://school.nl").Valid)
	assert.False(t, URL("school.nl").Valid)
}

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		pwd  string
		want Strength
	}{
		{pwd: "", want: Strength{Score: 0, Percentage: 0, Label: "very_weak"}},
		{pwd: "abc", want: Strength{Score: 1, Percentage: 20, Label: "very_weak"}},
		{pwd: "abcdefgh", want: Strength{Score: 2, Percentage: 40, Label: "weak"}},
		{pwd: "Abcdefgh", want: Strength{Score: 3, Percentage: 60, Label: "fair"}},
		{pwd: "Abcdefg1", want: Strength{Score: 4, Percentage: 80, Label: "strong"}},
		{pwd: "Abcdef1!", want: Strength{Score: 5, Percentage: 100, Label: "very_strong"}},
	}
	for _, tt := range tests {
		t.Run(tt.pwd, func(t *testing.T) {
			assert.Equal(t, tt.want, PasswordStrength(tt.pwd))
		})
	}

	assert.Equal(t, MsgPasswordMin, Password("Ab1!").Message)
	assert.Equal(t, MsgPasswordWeak, Password("abcdefg1").Message)
	assert.True(t, Password("Abcdef1!").Valid)
}

func TestForm(t *testing.T) {
	values := map[string]string{
		"brin":  "01ab",
		"email": "not-an-email",
		"name":  "",
		"phone": "",
	}
	clean, errs := Form(values, map[string][]Rule{
		"brin":  {Required, BRIN},
		"email": {Required, Email},
		"name":  {Required, Name},
		"phone": {Optional(Phone)},
	})

	assert.Equal(t, map[string]string{"email": MsgEmail, "name": MsgRequired}, errs)
	assert.Equal(t, "01AB", clean["brin"])
	assert.Equal(t, "", clean["phone"])

	rule, found := Check("postal_code")
	assert.True(t, found)
	assert.Equal(t, "1234 AB", rule("1234ab").Value)
	_, found = Check("lol")
	assert.False(t, found)
}
