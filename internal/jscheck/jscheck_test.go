package jscheck

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{name: "empty is valid", code: "", wantErr: false},
		{name: "simple statement", code: "document.body.style.background = 'red';", wantErr: false},
		{name: "function declaration", code: "function f(x) { return x + 1; }", wantErr: false},
		{name: "modern syntax", code: "const xs = [1, 2].map(x => x * 2);", wantErr: false},
		{name: "unbalanced brace", code: "if (true) {", wantErr: true},
		{name: "bare garbage", code: "this is not javascript", wantErr: true},
		{name: "unterminated string", code: `var s = "oops;`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckSizeLimit(t *testing.T) {
	big := "var s = '" + strings.Repeat("a", MaxCodeBytes) + "';"
	assert.Error(t, Check(big))
}

func TestCheckAll(t *testing.T) {
	assert.NoError(t, CheckAll(map[string]string{
		"Control":   "",
		"Treatment": "x = 1;",
	}))

	err := CheckAll(map[string]string{"Treatment": "if ("})
	assert.ErrorContains(t, err, `variation "Treatment"`)
}
