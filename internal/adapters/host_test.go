package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHost(t *testing.T) {
	tests := map[string]string{
		"db.example.com":                   "db.example.com",
		"  db.example.com ":                "db.example.com",
		"https://db.example.com/app":       "db.example.com",
		"postgres://user:pw@db:5432/shop":  "db:5432",
		"db.example.com:3306":              "db.example.com:3306",
		"http://db.example.com?ssl=true#x": "db.example.com",
		"":                                 "",
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeHost(in), "input %q", in)
	}
}
