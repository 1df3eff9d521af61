package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	got := Sign([]byte("what do ya want for nothing?"), "Jefe")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"transaction_id":"tx-1","status":"completed"}`)
	sig := Sign(body, "secret")

	tests := []struct {
		name      string
		payload   []byte
		secret    string
		signature string
		want      bool
	}{
		{"valid", body, "secret", sig, true},
		{"upper case hex", body, "secret", strings.ToUpper(sig), true},
		{"tampered body", []byte(`{"transaction_id":"tx-2"}`), "secret", sig, false},
		{"wrong secret", body, "other", sig, false},
		{"empty signature", body, "secret", "", false},
		{"empty secret", body, "", Sign(body, ""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.payload, tt.secret, tt.signature))
		})
	}
}
