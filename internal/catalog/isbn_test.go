// internal/catalog/isbn_test.go
package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeISBN(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"978-0-306-40615-7", "9780306406157"},
		{"0 306 40615 2", "0306406152"},
		{"043942089x", "043942089X"},
		{"isbn: 9780306406157", "9780306406157"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeISBN(tc.in), "input %q", tc.in)
	}
}

func TestValidISBN(t *testing.T) {
	cases := []struct {
		in    string
		valid bool
	}{
		{"9780306406157", true},
		{"0306406152", true},
		{"043942089X", true},
		{"X439420891", false}, // X only legal as check digit
		{"978030640615X", false},
		{"12345", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.valid, validISBN(tc.in), "input %q", tc.in)
	}
}

func TestValidateBookInput(t *testing.T) {
	cases := []struct {
		name      string
		in        BookInput
		wantField string
	}{
		{"missing title", BookInput{Author: "A", ISBN: "9780306406157"}, "title"},
		{"missing author", BookInput{Title: "T", ISBN: "9780306406157"}, "author"},
		{"missing isbn", BookInput{Title: "T", Author: "A"}, "isbn"},
		{"short isbn", BookInput{Title: "T", Author: "A", ISBN: "12345"}, "isbn"},
		{"ok", BookInput{Title: "T", Author: "A", ISBN: "978-0-306-40615-7"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateBookInput(&tc.in)
			if tc.wantField == "" {
				assert.NoError(t, err)
				assert.Equal(t, "9780306406157", tc.in.ISBN, "isbn stored normalized")
				return
			}
			verr := &ValidationError{}
			assert.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.wantField, verr.Field)
		})
	}
}
