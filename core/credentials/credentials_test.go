package credentials

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchoolUsername(t *testing.T) {
	gen := SchoolUsername("Basisschool De Regenboog")
	assert.Equal(t, "basissch_admin", gen(0))
	assert.Equal(t, "basissch2_admin", gen(2))
	assert.Equal(t, "cbs_admin", SchoolUsername("C.B.S.")(0))
	assert.Equal(t, "school_admin", SchoolUsername("!!!")(0))
}

func TestTeacherUsername(t *testing.T) {
	re := regexp.MustCompile(`^j\.vandenbe([1-9][0-9]?)$`)
	gen := TeacherUsername("José", "van den Berg-Smit")
	for i := 0; i < 50; i++ {
		assert.Regexp(t, re, gen(i))
	}
}

func TestStudentUsername(t *testing.T) {
	re := regexp.MustCompile(`^emma\.d([1-9][0-9]{0,2})$`)
	gen := StudentUsername("Emma", "de Vries")
	for i := 0; i < 50; i++ {
		assert.Regexp(t, re, gen(i))
	}
}

func TestSecurePassword(t *testing.T) {
	for _, n := range []int{SchoolPasswordLen, TeacherPasswordLen, 2} {
		for i := 0; i < 20; i++ {
			pwd := SecurePassword(n)
			want := n
			if want < 4 {
				want = 4
			}
			assert.Len(t, pwd, want)
			assert.True(t, strings.ContainsAny(pwd, upper), pwd)
			assert.True(t, strings.ContainsAny(pwd, lower), pwd)
			assert.True(t, strings.ContainsAny(pwd, digits), pwd)
			assert.True(t, strings.ContainsAny(pwd, symbols), pwd)
		}
	}
}

func TestStudentPassword(t *testing.T) {
	re := regexp.MustCompile(`^[A-Za-z0-9]+$`)
	for i := 0; i < 20; i++ {
		pwd := StudentPassword(StudentPasswordLen)
		assert.Len(t, pwd, StudentPasswordLen)
		assert.Regexp(t, re, pwd)
		assert.True(t, strings.ContainsAny(pwd, upper), pwd)
		assert.True(t, strings.ContainsAny(pwd, lower), pwd)
		assert.True(t, strings.ContainsAny(pwd, digits), pwd)
	}
}
