package harvester

import "testing"

func TestIdentityLockValidateRequiresBrandAndModel(t *testing.T) {
	cases := []struct {
		name    string
		lock    IdentityLock
		wantErr bool
	}{
		{"missing both", IdentityLock{}, true},
		{"missing model", IdentityLock{Brand: "Acme"}, true},
		{"missing brand", IdentityLock{Model: "X200"}, true},
		{"valid", IdentityLock{Brand: "Acme", Model: "X200"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.lock.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
