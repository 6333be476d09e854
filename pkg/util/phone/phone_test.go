package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		region  string
		want    string
		wantErr bool
	}{
		{name: "italian mobile national", raw: "347 123 4567", region: "IT", want: "+393471234567"},
		{name: "already e164", raw: "+393471234567", region: "IT", want: "+393471234567"},
		{name: "foreign number with prefix", raw: "+41 79 123 45 67", region: "IT", want: "+41791234567"},
		{name: "garbage", raw: "not-a-number", region: "IT", wantErr: true},
		{name: "too short", raw: "123", region: "IT", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, tt.region)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) expected error, got %q", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
